package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/harborctl/controlplane/pkg/types"
)

// Vault encrypts and decrypts HostCredential material using AES-256-GCM.
type Vault struct {
	key []byte // 32 bytes for AES-256
}

// New creates a Vault from a raw 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault: key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &Vault{key: key}, nil
}

// NewFromHex creates a Vault from a 64-character hex-encoded key, the form
// pkg/config loads CONTROLPLANE_VAULT_KEY as.
func NewFromHex(keyHex string) (*Vault, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("vault: invalid hex key: %w", err)
	}
	return New(key)
}

// Seal encrypts plaintext, returning ciphertext with its nonce prepended.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("vault: cannot seal empty data")
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (v *Vault) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("vault: cannot open empty data")
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("vault: ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decrypt: %w", err)
	}
	return plaintext, nil
}

// SealCredential encrypts plaintext and wraps it as a HostCredential ready
// for C5 to persist.
func (v *Vault) SealCredential(hostID string, kind types.HostCredentialKind, plaintext []byte) (*types.HostCredential, error) {
	ciphertext, err := v.Seal(plaintext)
	if err != nil {
		return nil, fmt.Errorf("vault: seal credential: %w", err)
	}
	return &types.HostCredential{
		ID:         uuid.NewString(),
		HostID:     hostID,
		Kind:       kind,
		Ciphertext: ciphertext,
		CreatedAt:  time.Now(),
	}, nil
}

// OpenCredential decrypts the plaintext behind a stored HostCredential.
func (v *Vault) OpenCredential(cred *types.HostCredential) ([]byte, error) {
	if cred == nil {
		return nil, fmt.Errorf("vault: credential is nil")
	}
	return v.Open(cred.Ciphertext)
}
