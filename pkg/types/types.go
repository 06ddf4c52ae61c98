package types

import (
	"encoding/json"
	"time"
)

// Role is the coarse-grained role assigned to a User.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// User is an authenticated principal of the control plane.
type User struct {
	ID               string
	Username         string
	PasswordVerifier string // bcrypt hash
	Role             Role
	Disabled         bool
	CreatedAt        time.Time
	LastLoginAt      time.Time
}

// RefreshToken is an opaque, storage-backed, revocable credential used to
// mint new access tokens without re-authenticating.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // sha256 of the opaque token value, never the raw value
	ParentID  string // non-empty if this token was issued by rotating another
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt time.Time
}

func (r *RefreshToken) Revoked() bool {
	return !r.RevokedAt.IsZero()
}

func (r *RefreshToken) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// TransportKind identifies how a Host's Docker Engine API is reached.
type TransportKind string

const (
	TransportLocal TransportKind = "local"
	TransportTCP   TransportKind = "tcp_tls"
	TransportSSH   TransportKind = "ssh"
)

// HostStatus is the Connection Manager's last-observed reachability of a
// Host, persisted so the Dashboard and Host Registry can report it without
// the pool being warm.
type HostStatus string

const (
	HostPending      HostStatus = "pending"
	HostHealthy      HostStatus = "healthy"
	HostUnhealthy    HostStatus = "unhealthy"
	HostUnreachable  HostStatus = "unreachable"
	HostSetupPending HostStatus = "setup-pending"
)

// Host is a single Docker (or Swarm manager) endpoint under management.
type Host struct {
	ID              string
	Name            string
	Transport       TransportKind
	Address         string // unix socket path, tcp host:port, or ssh host:port
	InsecureSkipTLS bool
	Default         bool
	Status          HostStatus
	LastCheckAt     time.Time
	SwarmID         string // empty if the host is not part of a swarm
	Leader          bool   // true if this host is the swarm manager leader
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HostCredentialKind enumerates the shapes of secret material C1 stores
// against a Host.
type HostCredentialKind string

const (
	CredentialTLSClientCert HostCredentialKind = "tls_client_cert"
	CredentialTLSClientKey  HostCredentialKind = "tls_client_key"
	CredentialTLSCA         HostCredentialKind = "tls_ca"
	CredentialSSHPrivateKey HostCredentialKind = "ssh_private_key"
	CredentialSSHPassphrase HostCredentialKind = "ssh_passphrase"
	CredentialSSHPassword   HostCredentialKind = "ssh_password"
)

// HostCredential is one piece of secret material associated with a Host.
// The plaintext never touches storage, only Ciphertext does (AES-256-GCM,
// nonce prepended).
type HostCredential struct {
	ID         string
	HostID     string
	Kind       HostCredentialKind
	Ciphertext []byte
	CreatedAt  time.Time
}

// HostPermission overrides a User's coarse Role for one specific Host.
type HostPermission struct {
	ID     string
	HostID string
	UserID string
	Role   Role
	Deny   bool // an explicit deny always wins over an allow at any level
}

// AuditEvent is one recorded action against the control plane.
type AuditEvent struct {
	ID        string
	UserID    string
	Username  string
	Action    string
	HostID    string
	Success   bool
	ErrorKind string
	Details   json.RawMessage
	Timestamp time.Time
}

// DashboardHost is one row of the computed, never-persisted Dashboard
// aggregate returned by GET /dashboard.
type DashboardHost struct {
	HostID         string
	Name           string
	BreakerState   string
	Containers     int
	Images         int
	Volumes        int
	LastProbeError string
}

// WizardStep names one stage of the host-setup state machine.
type WizardStep string

const (
	WizardStepTransport   WizardStep = "transport"
	WizardStepCredentials WizardStep = "credentials"
	WizardStepSSHProbe    WizardStep = "ssh_probe"
	WizardStepDockerProbe WizardStep = "docker_probe"
	WizardStepPreview     WizardStep = "preview"
	WizardStepConfirm     WizardStep = "confirm"
	WizardStepComplete    WizardStep = "complete"
)

// WizardSteps is the ssh_host wizard's fixed step order, index 0 first.
// WizardStepPreview is deliberately absent: it is a supplemented out-of-band
// test invoked via Test(id, "preview"), not a step advanced through by
// Next/Previous.
var WizardSteps = []WizardStep{
	WizardStepTransport,
	WizardStepCredentials,
	WizardStepSSHProbe,
	WizardStepDockerProbe,
	WizardStepConfirm,
}

// WizardInstanceStatus is a WizardInstance's lifecycle position.
type WizardInstanceStatus string

const (
	WizardInProgress WizardInstanceStatus = "in_progress"
	WizardCompleted  WizardInstanceStatus = "completed"
	WizardCancelled  WizardInstanceStatus = "cancelled"
)

// WizardInstance is a resumable, server-side host-onboarding session. State
// is replaced wholesale on every advance; there is no partial merge. Kind
// names the target resource type the wizard builds ("ssh_host" is the only
// kind this repo implements, but the engine itself is generic).
type WizardInstance struct {
	ID        string
	UserID    string
	Kind      string
	Step      WizardStep
	Status    WizardInstanceStatus
	State     json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}
