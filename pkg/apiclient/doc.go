// Package apiclient dispatches REST calls to the agent platform. Every
// higher-level operation funnels through one Client, which routes each
// request either to the live API host or to a local fixture directory
// when mock mode is configured.
package apiclient
