package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harborctl/controlplane/pkg/types"
)

func TestNewUnknownTransport(t *testing.T) {
	host := &types.Host{Name: "h1", Transport: "bogus"}
	_, err := New(host, nil, time.Second)
	assert.Error(t, err)
}

func TestNewTCPMissingCredentials(t *testing.T) {
	host := &types.Host{Name: "h1", Transport: types.TransportTCP, Address: "10.0.0.1:2376"}
	_, err := New(host, nil, time.Second)
	assert.Error(t, err)
}

func TestNewSSHMissingCredentials(t *testing.T) {
	host := &types.Host{Name: "h1", Transport: types.TransportSSH, Address: "10.0.0.1:22"}
	_, err := New(host, nil, time.Second)
	assert.Error(t, err)
}

func TestSSHAuthMethodsRequiresKeyOrPassword(t *testing.T) {
	_, err := sshAuthMethods(&Credentials{})
	assert.Error(t, err)
}

func TestSSHAuthMethodsPassword(t *testing.T) {
	methods, err := sshAuthMethods(&Credentials{SSHPassword: "hunter2"})
	assert.NoError(t, err)
	assert.Len(t, methods, 1)
}

func TestSSHAuthMethodsInvalidKey(t *testing.T) {
	_, err := sshAuthMethods(&Credentials{SSHPrivateKey: []byte("not a key")})
	assert.Error(t, err)
}
