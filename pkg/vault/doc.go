// Package vault implements the control plane's credential vault: at-rest
// encryption of the TLS material and SSH secrets stored against each Host.
//
// All ciphertext is AES-256-GCM with a random nonce prepended to the
// ciphertext before it is persisted:
//
//	[nonce (12 bytes) || ciphertext || auth tag (16 bytes)]
//
// The master key is provided once at process startup (pkg/config) and held
// only in memory; it is never written to storage. Losing it makes every
// stored HostCredential unrecoverable, which is intentional: there is no
// key-escrow path in this package.
package vault
