// Package session implements the Identity & Session component: password
// login, JWT access tokens, and opaque server-side refresh tokens with
// rotation-on-use.
//
// Refresh tokens keep the "opaque, storage-backed, revocable" shape warren
// used for cluster join tokens, extended here with rotation: each refresh
// call mints a new token and revokes the one just presented in the same
// storage write, so a stolen refresh token is only usable once before the
// legitimate client's next refresh invalidates it.
package session
