// Package agent drives the authoring lifecycle: generating a topic
// spec, creating an agent from a config, and compiling and publishing
// script-defined agent bundles. Remote payloads are treated as opaque
// JSON; individual fields are extracted rather than fully modeled.
package agent
