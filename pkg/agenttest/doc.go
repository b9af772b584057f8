// Package agenttest runs agent evaluations: load a YAML test spec,
// start a remote evaluation run, poll it to completion, and render the
// results as JSON, JUnit XML, or TAP for CI consumers.
package agenttest
