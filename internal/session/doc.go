// Package session implements the Session & Middleware Chain:
// per-upstream-session identity, request timing, bearer-token auth
// enforcement, and telemetry emission, composed as an explicit ordered
// chain of middleware wrapping each inbound request handler.
package session
