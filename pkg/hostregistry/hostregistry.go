package hostregistry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/streams"
	"github.com/harborctl/controlplane/pkg/types"
	"github.com/harborctl/controlplane/pkg/vault"
)

// Registry is the Host Registry.
type Registry struct {
	store   storage.Store
	vault   *vault.Vault
	changes *streams.Broker[string]
}

// New constructs a Registry backed by store and vault for credential sealing.
func New(store storage.Store, v *vault.Vault) *Registry {
	return &Registry{store: store, vault: v, changes: streams.NewBroker[string](32)}
}

// Changes returns the broker the Connection Manager subscribes to in order
// to invalidate a Host's cached adapter after a mutation.
func (r *Registry) Changes() *streams.Broker[string] { return r.changes }

// CreateHostInput describes a new Host before credentials are attached.
type CreateHostInput struct {
	Name            string
	Transport       types.TransportKind
	Address         string
	InsecureSkipTLS bool
	Default         bool
	// Status defaults to types.HostPending. The wizard (C12) passes
	// types.HostSetupPending so the Connection Manager's first successful
	// probe, not host creation itself, marks the host healthy.
	Status types.HostStatus
}

// CreateHost creates a Host record with no credentials yet attached. The
// wizard (C12) or a direct API call supplies credentials afterward via
// SetCredential.
func (r *Registry) CreateHost(in CreateHostInput) (*types.Host, error) {
	if in.Name == "" {
		return nil, apierr.New(apierr.KindMissingField, "host name is required").WithField("name")
	}
	switch in.Transport {
	case types.TransportLocal, types.TransportTCP, types.TransportSSH:
	default:
		return nil, apierr.New(apierr.KindValidation, "unknown transport kind").WithField("transport")
	}
	if in.Transport != types.TransportLocal && in.Address == "" {
		return nil, apierr.New(apierr.KindMissingField, "address is required for a remote transport").WithField("address")
	}

	status := in.Status
	if status == "" {
		status = types.HostPending
	}

	now := time.Now()
	host := &types.Host{
		ID:              uuid.NewString(),
		Name:            in.Name,
		Transport:       in.Transport,
		Address:         in.Address,
		InsecureSkipTLS: in.InsecureSkipTLS,
		Default:         in.Default,
		Status:          status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := r.store.CreateHost(host); err != nil {
		return nil, fmt.Errorf("hostregistry: create host: %w", err)
	}
	r.changes.Publish(host.ID)
	return host, nil
}

// GetHost returns a Host by ID.
func (r *Registry) GetHost(id string) (*types.Host, error) {
	host, err := r.store.GetHost(id)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindHostNotFound, "host not found", err)
	}
	return host, nil
}

// ListHosts returns every known Host.
func (r *Registry) ListHosts() ([]*types.Host, error) {
	hosts, err := r.store.ListHosts()
	if err != nil {
		return nil, fmt.Errorf("hostregistry: list hosts: %w", err)
	}
	return hosts, nil
}

// UpdateHostInput describes an in-place Host mutation. Nil fields are left
// unchanged; this is a partial update, unlike the Wizard's whole-blob-replace
// semantics.
type UpdateHostInput struct {
	Name            *string
	Address         *string
	InsecureSkipTLS *bool
	Default         *bool
}

// UpdateHost applies a partial update to hostID and publishes a change
// event so C4 rebuilds its adapter.
func (r *Registry) UpdateHost(hostID string, in UpdateHostInput) (*types.Host, error) {
	host, err := r.store.GetHost(hostID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindHostNotFound, "host not found", err)
	}

	if in.Name != nil {
		host.Name = *in.Name
	}
	if in.Address != nil {
		host.Address = *in.Address
	}
	if in.InsecureSkipTLS != nil {
		host.InsecureSkipTLS = *in.InsecureSkipTLS
	}
	if in.Default != nil {
		host.Default = *in.Default
	}
	host.UpdatedAt = time.Now()

	if err := r.store.UpdateHost(host); err != nil {
		return nil, fmt.Errorf("hostregistry: update host: %w", err)
	}
	r.changes.Publish(hostID)
	return host, nil
}

// DeleteHost removes a Host along with its credentials and permission
// overrides.
func (r *Registry) DeleteHost(hostID string) error {
	if err := r.store.DeleteHostCredentialsByHost(hostID); err != nil {
		return fmt.Errorf("hostregistry: delete credentials for %s: %w", hostID, err)
	}
	perms, err := r.store.ListHostPermissions(hostID)
	if err != nil {
		return fmt.Errorf("hostregistry: list permissions for %s: %w", hostID, err)
	}
	for _, p := range perms {
		if err := r.store.DeleteHostPermission(p.ID); err != nil {
			return fmt.Errorf("hostregistry: delete permission %s: %w", p.ID, err)
		}
	}
	if err := r.store.DeleteHost(hostID); err != nil {
		return fmt.Errorf("hostregistry: delete host %s: %w", hostID, err)
	}
	r.changes.Publish(hostID)
	return nil
}

// SetCredential seals plaintext and attaches it to hostID as kind. Multiple
// credential kinds accumulate; setting the same kind again does not replace
// the prior value — callers needing rotation should delete first via
// DeleteCredentials.
func (r *Registry) SetCredential(hostID string, kind types.HostCredentialKind, plaintext []byte) error {
	if _, err := r.store.GetHost(hostID); err != nil {
		return apierr.Wrap(apierr.KindHostNotFound, "host not found", err)
	}
	cred, err := r.vault.SealCredential(hostID, kind, plaintext)
	if err != nil {
		return fmt.Errorf("hostregistry: seal credential: %w", err)
	}
	if err := r.store.CreateHostCredential(cred); err != nil {
		return fmt.Errorf("hostregistry: store credential: %w", err)
	}
	r.changes.Publish(hostID)
	return nil
}

// DeleteCredentials removes every credential attached to hostID, so the
// caller can set a fresh set (e.g. rotating an SSH key).
func (r *Registry) DeleteCredentials(hostID string) error {
	if err := r.store.DeleteHostCredentialsByHost(hostID); err != nil {
		return fmt.Errorf("hostregistry: delete credentials: %w", err)
	}
	r.changes.Publish(hostID)
	return nil
}

// CredentialKinds returns which credential kinds are currently attached to
// hostID, for completeness validation and for the wizard's preview step.
func (r *Registry) CredentialKinds(hostID string) (map[types.HostCredentialKind]bool, error) {
	creds, err := r.store.ListHostCredentials(hostID)
	if err != nil {
		return nil, fmt.Errorf("hostregistry: list credentials: %w", err)
	}
	kinds := make(map[types.HostCredentialKind]bool, len(creds))
	for _, c := range creds {
		kinds[c.Kind] = true
	}
	return kinds, nil
}

// ValidateCredentialCompleteness enforces the data model invariant: a
// tcp_tls host must own at least {cert, key, ca}; an ssh host must own
// exactly one of {private key, password}.
func ValidateCredentialCompleteness(transport types.TransportKind, kinds map[types.HostCredentialKind]bool) error {
	switch transport {
	case types.TransportTCP:
		missing := []types.HostCredentialKind{}
		for _, k := range []types.HostCredentialKind{types.CredentialTLSClientCert, types.CredentialTLSClientKey, types.CredentialTLSCA} {
			if !kinds[k] {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return apierr.New(apierr.KindMissingField, fmt.Sprintf("tcp_tls host is missing credentials: %v", missing))
		}
	case types.TransportSSH:
		hasKey := kinds[types.CredentialSSHPrivateKey]
		hasPassword := kinds[types.CredentialSSHPassword]
		if hasKey == hasPassword {
			return apierr.New(apierr.KindValidation, "ssh host must have exactly one of private key or password")
		}
	case types.TransportLocal:
		// No credentials required for the local Unix socket.
	}
	return nil
}

// SetPermission adds or replaces a per-host permission override for a user.
func (r *Registry) SetPermission(hostID, userID string, role types.Role, deny bool) (*types.HostPermission, error) {
	if _, err := r.store.GetHost(hostID); err != nil {
		return nil, apierr.Wrap(apierr.KindHostNotFound, "host not found", err)
	}
	perm := &types.HostPermission{
		ID:     uuid.NewString(),
		HostID: hostID,
		UserID: userID,
		Role:   role,
		Deny:   deny,
	}
	if err := r.store.CreateHostPermission(perm); err != nil {
		return nil, fmt.Errorf("hostregistry: create permission: %w", err)
	}
	return perm, nil
}

// ListPermissions lists every per-user override for hostID.
func (r *Registry) ListPermissions(hostID string) ([]*types.HostPermission, error) {
	perms, err := r.store.ListHostPermissions(hostID)
	if err != nil {
		return nil, fmt.Errorf("hostregistry: list permissions: %w", err)
	}
	return perms, nil
}

// RemovePermission deletes a single override by ID.
func (r *Registry) RemovePermission(id string) error {
	if err := r.store.DeleteHostPermission(id); err != nil {
		return fmt.Errorf("hostregistry: delete permission: %w", err)
	}
	return nil
}
