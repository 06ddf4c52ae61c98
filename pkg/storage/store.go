package storage

import (
	"github.com/harborctl/controlplane/pkg/types"
)

// Store defines the interface for control-plane state storage, implemented
// by the BoltDB-backed BoltStore.
type Store interface {
	// Users
	CreateUser(u *types.User) error
	GetUser(id string) (*types.User, error)
	GetUserByUsername(username string) (*types.User, error)
	ListUsers() ([]*types.User, error)
	UpdateUser(u *types.User) error
	DeleteUser(id string) error

	// Refresh tokens
	CreateRefreshToken(t *types.RefreshToken) error
	GetRefreshToken(id string) (*types.RefreshToken, error)
	ListRefreshTokensByUser(userID string) ([]*types.RefreshToken, error)
	UpdateRefreshToken(t *types.RefreshToken) error
	DeleteRefreshToken(id string) error

	// Hosts
	CreateHost(h *types.Host) error
	GetHost(id string) (*types.Host, error)
	ListHosts() ([]*types.Host, error)
	UpdateHost(h *types.Host) error
	DeleteHost(id string) error

	// Host credentials
	CreateHostCredential(c *types.HostCredential) error
	ListHostCredentials(hostID string) ([]*types.HostCredential, error)
	DeleteHostCredentialsByHost(hostID string) error

	// Host permissions
	CreateHostPermission(p *types.HostPermission) error
	ListHostPermissions(hostID string) ([]*types.HostPermission, error)
	ListHostPermissionsByUser(userID string) ([]*types.HostPermission, error)
	DeleteHostPermission(id string) error

	// Audit events
	CreateAuditEvent(e *types.AuditEvent) error
	ListAuditEvents(limit int) ([]*types.AuditEvent, error)

	// Wizard instances
	CreateWizardInstance(w *types.WizardInstance) error
	GetWizardInstance(id string) (*types.WizardInstance, error)
	ListWizardInstances() ([]*types.WizardInstance, error)
	UpdateWizardInstance(w *types.WizardInstance) error
	DeleteWizardInstance(id string) error

	Close() error
}
