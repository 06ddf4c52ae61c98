package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewManager(store, "test-signing-key", 15*time.Minute, 30*24*time.Hour, 4)
}

func TestLoginSucceedsWithCorrectPassword(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser("alice", "correct horse battery staple", types.RoleAdmin)
	require.NoError(t, err)

	pair, err := m.Login("alice", "correct horse battery staple")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
}

func TestLoginFailsWithWrongPassword(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser("alice", "correct horse battery staple", types.RoleViewer)
	require.NoError(t, err)

	_, err = m.Login("alice", "wrong")
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindInvalidCredentials, apiErr.Kind)
}

func TestLoginFailsForDisabledUser(t *testing.T) {
	m := newTestManager(t)
	user, err := m.CreateUser("bob", "hunter22222", types.RoleViewer)
	require.NoError(t, err)
	user.Disabled = true
	require.NoError(t, m.store.UpdateUser(user))

	_, err = m.Login("bob", "hunter22222")
	assert.Error(t, err)
}

func TestValidateAccessTokenRoundTrips(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser("carol", "supersecretpassword", types.RoleOperator)
	require.NoError(t, err)
	pair, err := m.Login("carol", "supersecretpassword")
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, types.RoleOperator, claims.Role)
}

func TestRefreshRotatesAndRevokesOldToken(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser("dave", "anothersecretpassword", types.RoleViewer)
	require.NoError(t, err)
	pair, err := m.Login("dave", "anothersecretpassword")
	require.NoError(t, err)

	rotated, err := m.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	_, err = m.Refresh(pair.RefreshToken)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRevoked, apiErr.Kind)
}

func TestLogoutRevokesToken(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser("erin", "yetanotherpassword", types.RoleViewer)
	require.NoError(t, err)
	pair, err := m.Login("erin", "yetanotherpassword")
	require.NoError(t, err)

	require.NoError(t, m.Logout(pair.RefreshToken))

	_, err = m.Refresh(pair.RefreshToken)
	assert.Error(t, err)
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateUser("frank", "password1234567", types.RoleViewer)
	require.NoError(t, err)

	_, err = m.CreateUser("frank", "differentpassword", types.RoleAdmin)
	assert.Error(t, err)
}
