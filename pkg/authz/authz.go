package authz

import (
	"fmt"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/types"
)

// Category groups dotted action strings into the four permission buckets
// the data model's role table is expressed in terms of.
type Category string

const (
	CategoryRead    Category = "read"
	CategoryMutate  Category = "mutate"
	CategoryImage   Category = "image"
	CategoryManage  Category = "manage"
	CategoryUnknown Category = "unknown"
)

// actionCategory classifies every dotted action string C9 and C11 route.
// Unlisted actions fall back to CategoryManage, the most conservative
// bucket, so a newly added action is never accidentally exposed to viewers.
var actionCategory = map[string]Category{
	"container.list":       CategoryRead,
	"container.inspect":    CategoryRead,
	"container.logs.view":  CategoryRead,
	"container.stats.view": CategoryRead,
	"container.create":     CategoryMutate,
	"container.start":      CategoryMutate,
	"container.stop":       CategoryMutate,
	"container.restart":    CategoryMutate,
	"container.remove":     CategoryMutate,
	"container.exec":       CategoryMutate,
	"volume.list":          CategoryRead,
	"volume.inspect":       CategoryRead,
	"volume.create":        CategoryMutate,
	"volume.remove":        CategoryMutate,
	"network.list":         CategoryRead,
	"network.inspect":      CategoryRead,
	"network.create":       CategoryMutate,
	"network.remove":       CategoryMutate,
	"image.list":           CategoryRead,
	"image.inspect":        CategoryRead,
	"image.pull":           CategoryImage,
	"image.remove":         CategoryImage,
	"events.subscribe":     CategoryRead,
	"host.list":            CategoryRead,
	"host.inspect":         CategoryRead,
	"host.create":          CategoryManage,
	"host.update":          CategoryManage,
	"host.delete":          CategoryManage,
	"user.create":          CategoryManage,
	"user.update":          CategoryManage,
	"user.delete":          CategoryManage,
	"system.prune":         CategoryManage,
	"swarm.init":           CategoryManage,
	"swarm.leave":          CategoryManage,
	"wizard.advance":       CategoryManage,
}

// ActionCategory classifies action, defaulting unlisted actions to the most
// restrictive bucket.
func ActionCategory(action string) Category {
	if c, ok := actionCategory[action]; ok {
		return c
	}
	return CategoryManage
}

// roleCategories is the fixed permission table from the data model: which
// categories each role may act on with no host-specific override.
var roleCategories = map[types.Role]map[Category]bool{
	types.RoleViewer: {
		CategoryRead: true,
	},
	types.RoleOperator: {
		CategoryRead:   true,
		CategoryMutate: true,
		CategoryImage:  true,
	},
	types.RoleAdmin: {
		CategoryRead:   true,
		CategoryMutate: true,
		CategoryImage:  true,
		CategoryManage: true,
	},
}

func roleAllows(role types.Role, cat Category) bool {
	return roleCategories[role][cat]
}

// Authorizer decides (user, action, host?) -> allow/deny.
type Authorizer struct {
	store storage.Store
}

// New constructs an Authorizer.
func New(store storage.Store) *Authorizer {
	return &Authorizer{store: store}
}

// Decide returns nil if user may perform action against hostID (empty for
// host-independent actions), or an *apierr.Error otherwise. A denial never
// tells a caller who cannot even read the resource that it exists: such a
// denial surfaces as KindNotFound/KindHostNotFound rather than a forbidden
// kind.
func (a *Authorizer) Decide(user *types.User, action, hostID string) error {
	cat := ActionCategory(action)
	base := roleAllows(user.Role, cat)
	baseRead := roleAllows(user.Role, CategoryRead)

	if hostID == "" {
		if base {
			return nil
		}
		return denied(action, hostID, baseRead)
	}

	overrides, err := a.store.ListHostPermissionsByUser(user.ID)
	if err != nil {
		return fmt.Errorf("authz: list overrides: %w", err)
	}

	var override *types.HostPermission
	for _, o := range overrides {
		if o.HostID == hostID {
			override = o
			break
		}
	}
	if override == nil {
		if base {
			return nil
		}
		return denied(action, hostID, baseRead)
	}

	// An override can never narrow an admin's global access.
	if user.Role == types.RoleAdmin {
		return nil
	}

	// An explicit deny blocks the host entirely, including read: the host
	// does not exist as far as this user is concerned.
	if override.Deny {
		return denied(action, hostID, false)
	}

	canReadHost := baseRead || roleAllows(override.Role, CategoryRead)
	widened := roleAllows(override.Role, cat)
	if base || widened {
		return nil
	}
	return denied(action, hostID, canReadHost)
}

// denied reports a denial. When the caller also lacks read access to the
// resource it is reported as not found, not forbidden, so a probe for a
// host a viewer cannot see cannot distinguish "denied" from "does not
// exist".
func denied(action, hostID string, canRead bool) error {
	if !canRead {
		if hostID != "" {
			return apierr.New(apierr.KindHostNotFound, fmt.Sprintf("host %s not found", hostID))
		}
		return apierr.New(apierr.KindNotFound, "resource not found")
	}
	if hostID != "" {
		return apierr.New(apierr.KindHostDenied, fmt.Sprintf("not permitted to perform %s on this host", action))
	}
	return apierr.New(apierr.KindInsufficientRole, fmt.Sprintf("not permitted to perform %s", action))
}

// RequestCache memoizes Decide results for the lifetime of a single
// request, since decisions must never be cached across requests but the
// same (user, action, host) is frequently checked more than once within
// one (e.g. C9 checking before acquiring a client, C11 checking before
// attaching a stream).
type RequestCache struct {
	authz *Authorizer
	seen  map[cacheKey]error
}

type cacheKey struct {
	userID, action, hostID string
}

// NewRequestCache wraps an Authorizer for one request's worth of decisions.
func NewRequestCache(a *Authorizer) *RequestCache {
	return &RequestCache{authz: a, seen: make(map[cacheKey]error)}
}

// Decide is Authorizer.Decide, memoized within this RequestCache's lifetime.
func (c *RequestCache) Decide(user *types.User, action, hostID string) error {
	key := cacheKey{userID: user.ID, action: action, hostID: hostID}
	if err, ok := c.seen[key]; ok {
		return err
	}
	err := c.authz.Decide(user, action, hostID)
	c.seen[key] = err
	return err
}
