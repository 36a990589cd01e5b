// Package core holds the workspace gateway: the credential broker, the
// per-namespace watch multiplexer, the status diff tracker and the
// poll-until-ready helper used after creates. Adapters for the upstream API,
// token exchange, persistence and downstream transports depend on this
// package; core does not depend on them.
package core
