// Package history persists one live agent conversation to disk as it
// happens: an append-only JSONL transcript, per-plan trace documents,
// and a metadata file summarizing the session. Writes are incremental
// so a crash mid-session loses at most the last unflushed line.
package history
