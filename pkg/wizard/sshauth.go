package wizard

import (
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/harborctl/controlplane/pkg/transport"
)

// sshAuthMethods mirrors transport's private method of the same shape; the
// ssh_probe test needs an *ssh.ClientConfig directly rather than a full
// Adapter, so it cannot reuse transport.New here.
func sshAuthMethods(creds *transport.Credentials) ([]ssh.AuthMethod, error) {
	if len(creds.SSHPrivateKey) > 0 {
		var signer ssh.Signer
		var err error
		if len(creds.SSHPassphrase) > 0 {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(creds.SSHPrivateKey, creds.SSHPassphrase)
		} else {
			signer, err = ssh.ParsePrivateKey(creds.SSHPrivateKey)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if creds.SSHPassword != "" {
		return []ssh.AuthMethod{ssh.Password(creds.SSHPassword)}, nil
	}
	return nil, fmt.Errorf("no ssh private key or password supplied")
}
