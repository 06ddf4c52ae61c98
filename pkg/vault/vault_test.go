package vault

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/controlplane/pkg/types"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{name: "valid 32-byte key", key: make([]byte, 32)},
		{name: "short key", key: make([]byte, 16), wantErr: true},
		{name: "long key", key: make([]byte, 64), wantErr: true},
		{name: "empty key", key: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := New(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, v)
		})
	}
}

func TestSealOpenRoundtrip(t *testing.T) {
	key := bytes.Repeat([]byte("k"), 32)
	v, err := New(key)
	require.NoError(t, err)

	cases := [][]byte{
		[]byte("hello world"),
		[]byte(`{"user":"admin"}`),
		{0x00, 0x01, 0xFF, 0xFE},
		bytes.Repeat([]byte("x"), 4096),
	}

	for _, plaintext := range cases {
		ciphertext, err := v.Seal(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		decrypted, err := v.Open(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestOpenErrors(t *testing.T) {
	key := make([]byte, 32)
	v, _ := New(key)

	_, err := v.Open(nil)
	assert.Error(t, err)

	_, err = v.Open([]byte{0x01, 0x02})
	assert.Error(t, err)

	_, err = v.Open(bytes.Repeat([]byte("x"), 100))
	assert.Error(t, err)
}

func TestOpenWithWrongKey(t *testing.T) {
	v1, _ := New(bytes.Repeat([]byte("a"), 32))
	v2, _ := New(bytes.Repeat([]byte("b"), 32))

	ciphertext, err := v1.Seal([]byte("secret"))
	require.NoError(t, err)

	_, err = v2.Open(ciphertext)
	assert.Error(t, err)
}

func TestSealOpenCredential(t *testing.T) {
	v, _ := New(make([]byte, 32))

	cred, err := v.SealCredential("host-1", types.CredentialSSHPrivateKey, []byte("-----BEGIN KEY-----"))
	require.NoError(t, err)
	assert.Equal(t, "host-1", cred.HostID)
	assert.Equal(t, types.CredentialSSHPrivateKey, cred.Kind)
	assert.NotEmpty(t, cred.ID)

	plaintext, err := v.OpenCredential(cred)
	require.NoError(t, err)
	assert.Equal(t, "-----BEGIN KEY-----", string(plaintext))
}

func TestOpenCredentialNil(t *testing.T) {
	v, _ := New(make([]byte, 32))
	_, err := v.OpenCredential(nil)
	assert.Error(t, err)
}
