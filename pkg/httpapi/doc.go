// Package httpapi is the reference REST/WebSocket binding (C16): a
// gorilla/mux router that translates spec section 6's external surface
// into calls against C6 (session), C9 (router) and C11 (wsbridge). Nothing
// in pkg/router, pkg/wsbridge or the components they wire depends on this
// package; a deployment can swap it for a different binding (gRPC, a CLI
// driving the packages directly) without touching the core.
package httpapi
