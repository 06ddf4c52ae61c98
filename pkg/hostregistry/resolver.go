package hostregistry

import (
	"context"
	"fmt"

	"github.com/harborctl/controlplane/pkg/transport"
	"github.com/harborctl/controlplane/pkg/types"
)

// CredentialResolver implements conn.CredentialResolver, decrypting a
// Host's stored credentials on demand so the Connection Manager never holds
// plaintext secret material longer than a single Acquire call.
type CredentialResolver struct {
	registry *Registry
}

// NewCredentialResolver wraps registry as a conn.CredentialResolver.
func NewCredentialResolver(registry *Registry) *CredentialResolver {
	return &CredentialResolver{registry: registry}
}

// Resolve decrypts hostID's stored credentials into transport.Credentials.
func (c *CredentialResolver) Resolve(ctx context.Context, hostID string) (*transport.Credentials, error) {
	creds, err := c.registry.store.ListHostCredentials(hostID)
	if err != nil {
		return nil, fmt.Errorf("hostregistry: list credentials for %s: %w", hostID, err)
	}

	out := &transport.Credentials{}
	for _, cred := range creds {
		plaintext, err := c.registry.vault.OpenCredential(cred)
		if err != nil {
			return nil, fmt.Errorf("hostregistry: open credential %s: %w", cred.Kind, err)
		}
		switch cred.Kind {
		case types.CredentialTLSClientCert:
			out.TLSClientCert = plaintext
		case types.CredentialTLSClientKey:
			out.TLSClientKey = plaintext
		case types.CredentialTLSCA:
			out.TLSCA = plaintext
		case types.CredentialSSHPrivateKey:
			out.SSHPrivateKey = plaintext
		case types.CredentialSSHPassphrase:
			out.SSHPassphrase = plaintext
		case types.CredentialSSHPassword:
			out.SSHPassword = string(plaintext)
		}
	}
	return out, nil
}
