// Package preview runs interactive agent sessions: start a remote
// session, exchange messages, end with a reason. Two variants exist,
// one for published agents and one for script-defined bundles that
// compile before starting. Every turn is recorded to the local
// history store as it happens.
package preview
