// Package router implements the Operation Router: a thin coordinator that
// authenticates nothing itself (callers already resolved a *types.User) but
// authorizes, acquires a pooled Docker client, invokes the caller's
// operation, records an audit event, and translates the result into the
// apierr vocabulary every boundary returns.
//
// Grounded on warren's manager facade, the single seam every API handler
// and websocket handler went through rather than touching the scheduler,
// storage or raft layers directly.
package router
