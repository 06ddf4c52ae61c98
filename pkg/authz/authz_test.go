package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/types"
)

func newTestAuthorizer(t *testing.T) (*Authorizer, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store), store
}

func TestViewerCannotMutate(t *testing.T) {
	a, _ := newTestAuthorizer(t)
	user := &types.User{ID: "u1", Role: types.RoleViewer}
	assert.NoError(t, a.Decide(user, "container.list", ""))
	assert.Error(t, a.Decide(user, "container.start", ""))
}

func TestOperatorCanMutateAndPullImagesButNotManage(t *testing.T) {
	a, _ := newTestAuthorizer(t)
	user := &types.User{ID: "u1", Role: types.RoleOperator}
	assert.NoError(t, a.Decide(user, "container.start", ""))
	assert.NoError(t, a.Decide(user, "image.pull", ""))
	assert.Error(t, a.Decide(user, "host.create", ""))
}

func TestAdminCanManage(t *testing.T) {
	a, _ := newTestAuthorizer(t)
	user := &types.User{ID: "u1", Role: types.RoleAdmin}
	assert.NoError(t, a.Decide(user, "host.create", ""))
}

func TestHostOverrideWidensViewerToOperatorOnOneHost(t *testing.T) {
	a, store := newTestAuthorizer(t)
	user := &types.User{ID: "u1", Role: types.RoleViewer}
	require.NoError(t, store.CreateHostPermission(&types.HostPermission{
		ID: "p1", HostID: "h1", UserID: "u1", Role: types.RoleOperator,
	}))

	assert.NoError(t, a.Decide(user, "container.start", "h1"))
	assert.Error(t, a.Decide(user, "container.start", "h2"), "override is scoped to h1 only")
}

func TestHostOverrideCanDenyNonAdmin(t *testing.T) {
	a, store := newTestAuthorizer(t)
	user := &types.User{ID: "u1", Role: types.RoleOperator}
	require.NoError(t, store.CreateHostPermission(&types.HostPermission{
		ID: "p1", HostID: "h1", UserID: "u1", Deny: true,
	}))

	assert.Error(t, a.Decide(user, "container.list", "h1"))
	assert.NoError(t, a.Decide(user, "container.list", "h2"))
}

func TestHostDenyOverrideHidesExistenceAsNotFound(t *testing.T) {
	a, store := newTestAuthorizer(t)
	user := &types.User{ID: "u1", Role: types.RoleOperator}
	require.NoError(t, store.CreateHostPermission(&types.HostPermission{
		ID: "p1", HostID: "h1", UserID: "u1", Deny: true,
	}))

	err := a.Decide(user, "container.list", "h1")
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindHostNotFound, apiErr.Kind, "a full deny must read as not found, not forbidden")
}

func TestHostOverrideDeniedMutationReadsAsHostDenied(t *testing.T) {
	a, store := newTestAuthorizer(t)
	user := &types.User{ID: "u1", Role: types.RoleViewer}
	require.NoError(t, store.CreateHostPermission(&types.HostPermission{
		ID: "p1", HostID: "h1", UserID: "u1", Role: types.RoleViewer,
	}))

	err := a.Decide(user, "container.start", "h1")
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindHostDenied, apiErr.Kind, "caller can read the host so the denial may name it")
}

func TestHostOverrideCannotDenyAdmin(t *testing.T) {
	a, store := newTestAuthorizer(t)
	user := &types.User{ID: "u1", Role: types.RoleAdmin}
	require.NoError(t, store.CreateHostPermission(&types.HostPermission{
		ID: "p1", HostID: "h1", UserID: "u1", Deny: true,
	}))

	assert.NoError(t, a.Decide(user, "host.create", "h1"))
}

func TestRequestCacheMemoizesDecisions(t *testing.T) {
	a, store := newTestAuthorizer(t)
	user := &types.User{ID: "u1", Role: types.RoleViewer}
	cache := NewRequestCache(a)

	assert.Error(t, cache.Decide(user, "container.start", "h1"))

	// Widen after the first decision was cached; the cached result must
	// still be served, proving the cache is request-scoped and not
	// re-evaluated mid-request.
	require.NoError(t, store.CreateHostPermission(&types.HostPermission{
		ID: "p1", HostID: "h1", UserID: "u1", Role: types.RoleOperator,
	}))
	assert.Error(t, cache.Decide(user, "container.start", "h1"))

	fresh := NewRequestCache(a)
	assert.NoError(t, fresh.Decide(user, "container.start", "h1"))
}

func TestUnknownActionDefaultsToManage(t *testing.T) {
	assert.Equal(t, CategoryManage, ActionCategory("some.unlisted.action"))
}
