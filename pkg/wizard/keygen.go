package wizard

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// generateED25519Keypair produces a fresh SSH identity, PEM-encoding the
// private key in PKCS#8 and the public key in OpenSSH authorized_keys
// format, the pair the credentials step writes into state when AuthMethod
// is AuthGenerateKey.
func generateED25519Keypair() (privatePEM, publicOpenSSH string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("wizard: generate ed25519 key: %w", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", fmt.Errorf("wizard: marshal private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	privatePEM = string(pem.EncodeToMemory(block))

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", "", fmt.Errorf("wizard: derive ssh public key: %w", err)
	}
	publicOpenSSH = string(ssh.MarshalAuthorizedKey(sshPub))
	return privatePEM, publicOpenSSH, nil
}
