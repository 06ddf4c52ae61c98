package wizard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/hostregistry"
	"github.com/harborctl/controlplane/pkg/log"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/transport"
	"github.com/harborctl/controlplane/pkg/types"
)

// probeTimeout bounds every out-of-band test the wizard runs; onboarding a
// dead host should fail fast rather than hang a caller's HTTP request.
const probeTimeout = 10 * time.Second

// Engine is the Wizard Engine (C12).
type Engine struct {
	store storage.Store
	hosts *hostregistry.Registry
}

// New constructs an Engine backed by store for instance persistence and
// hosts for the transactional commit Complete performs.
func New(store storage.Store, hosts *hostregistry.Registry) *Engine {
	return &Engine{store: store, hosts: hosts}
}

// Start creates a new instance of kind, currently only KindSSHHost.
func (e *Engine) Start(userID, kind string) (*types.WizardInstance, error) {
	if kind != KindSSHHost {
		return nil, apierr.New(apierr.KindValidation, fmt.Sprintf("unknown wizard kind %q", kind)).WithField("kind")
	}
	raw, err := encodeSSHHostState(&SSHHostState{})
	if err != nil {
		return nil, fmt.Errorf("wizard: encode initial state: %w", err)
	}
	now := time.Now()
	instance := &types.WizardInstance{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Step:      types.WizardSteps[0],
		Status:    types.WizardInProgress,
		State:     raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateWizardInstance(instance); err != nil {
		return nil, fmt.Errorf("wizard: create instance: %w", err)
	}
	return instance, nil
}

// instanceTTL bounds how long an in-progress instance survives with no
// activity. Reaping happens lazily on Get rather than via a background
// sweep, so the engine owns no scheduler of its own.
const instanceTTL = 24 * time.Hour

// Get returns a live (not yet completed or cancelled) instance by ID. An
// in-progress instance untouched for longer than instanceTTL is deleted on
// read and reported as not found, the same outcome a caller sees for any
// other expired or abandoned instance.
func (e *Engine) Get(id string) (*types.WizardInstance, error) {
	instance, err := e.store.GetWizardInstance(id)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindNotFound, "wizard instance not found", err)
	}
	if instance.Status == types.WizardInProgress && time.Since(instance.UpdatedAt) > instanceTTL {
		if delErr := e.store.DeleteWizardInstance(id); delErr != nil {
			log.WithComponent("wizard").Warn().Err(delErr).Str("instance_id", id).Msg("reap expired instance")
		}
		return nil, apierr.New(apierr.KindNotFound, "wizard instance not found")
	}
	return instance, nil
}

func (e *Engine) mustGetInProgress(id string) (*types.WizardInstance, error) {
	instance, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if instance.Status != types.WizardInProgress {
		return nil, apierr.New(apierr.KindWizardInvalidStep, fmt.Sprintf("wizard instance is %s, not in progress", instance.Status))
	}
	return instance, nil
}

// UpdateStep replaces id's state blob wholesale with patch. A caller
// choosing AuthGenerateKey with no key on file yet has one generated here,
// so the state a reader observes afterward already carries the new
// keypair rather than a half-applied "generate, then set" sequence.
func (e *Engine) UpdateStep(id string, patch json.RawMessage) (*types.WizardInstance, error) {
	instance, err := e.mustGetInProgress(id)
	if err != nil {
		return nil, err
	}
	state, err := decodeSSHHostState(patch)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindValidation, "invalid wizard state", err)
	}

	if state.AuthMethod == AuthGenerateKey && state.SSHPrivateKeyPEM == "" {
		priv, pub, err := generateED25519Keypair()
		if err != nil {
			return nil, fmt.Errorf("wizard: %w", err)
		}
		state.SSHPrivateKeyPEM = priv
		state.SSHPublicKeyOpenSSH = pub
	}

	// Changing the transport or credentials invalidates any probe already
	// run against the old values.
	state.SSHProbeOK = false
	state.DockerProbeOK = false

	raw, err := encodeSSHHostState(state)
	if err != nil {
		return nil, fmt.Errorf("wizard: encode state: %w", err)
	}
	instance.State = raw
	instance.UpdatedAt = time.Now()
	if err := e.store.UpdateWizardInstance(instance); err != nil {
		return nil, fmt.Errorf("wizard: persist instance: %w", err)
	}
	return instance, nil
}

// Next validates the current step's state and advances the index.
func (e *Engine) Next(id string) (*types.WizardInstance, error) {
	instance, err := e.mustGetInProgress(id)
	if err != nil {
		return nil, err
	}
	idx := stepIndex(instance.Step)
	if idx < 0 || idx >= len(types.WizardSteps)-1 {
		return nil, apierr.New(apierr.KindWizardInvalidStep, "already at the final step")
	}
	state, err := decodeSSHHostState(instance.State)
	if err != nil {
		return nil, fmt.Errorf("wizard: decode state: %w", err)
	}
	if validate, ok := sshHostValidators[instance.Step]; ok {
		if err := validate(state); err != nil {
			return nil, err
		}
	}
	instance.Step = types.WizardSteps[idx+1]
	instance.UpdatedAt = time.Now()
	if err := e.store.UpdateWizardInstance(instance); err != nil {
		return nil, fmt.Errorf("wizard: persist instance: %w", err)
	}
	return instance, nil
}

// Previous moves back one step without validation.
func (e *Engine) Previous(id string) (*types.WizardInstance, error) {
	instance, err := e.mustGetInProgress(id)
	if err != nil {
		return nil, err
	}
	idx := stepIndex(instance.Step)
	if idx <= 0 {
		return nil, apierr.New(apierr.KindWizardInvalidStep, "already at the first step")
	}
	instance.Step = types.WizardSteps[idx-1]
	instance.UpdatedAt = time.Now()
	if err := e.store.UpdateWizardInstance(instance); err != nil {
		return nil, fmt.Errorf("wizard: persist instance: %w", err)
	}
	return instance, nil
}

// TestKind names an out-of-band probe Test can run.
type TestKind string

const (
	TestSSHProbe    TestKind = "ssh_probe"
	TestDockerProbe TestKind = "docker_probe"
	TestPreview     TestKind = "preview"
)

// TestResult is what Test returns; Preview is populated only for
// TestPreview, a YAML rendering of the Host + credential kinds Complete
// would create.
type TestResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Preview string `json:"preview,omitempty"`
}

// Test runs an out-of-band, idempotent, reentrant probe against id's
// gathered state without advancing the step index. ssh_probe and
// docker_probe additionally persist their pass/fail flag into the state
// blob, since Next's validators read it back; preview has no side effect.
func (e *Engine) Test(ctx context.Context, id string, kind TestKind) (*TestResult, error) {
	instance, err := e.mustGetInProgress(id)
	if err != nil {
		return nil, err
	}
	state, err := decodeSSHHostState(instance.State)
	if err != nil {
		return nil, fmt.Errorf("wizard: decode state: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	switch kind {
	case TestSSHProbe:
		return e.testSSHProbe(ctx, instance, state)
	case TestDockerProbe:
		return e.testDockerProbe(ctx, instance, state)
	case TestPreview:
		return e.testPreview(state)
	default:
		return nil, apierr.New(apierr.KindValidation, fmt.Sprintf("unknown test kind %q", kind))
	}
}

func (e *Engine) testSSHProbe(ctx context.Context, instance *types.WizardInstance, state *SSHHostState) (*TestResult, error) {
	creds, err := sshCredentials(state)
	if err != nil {
		return &TestResult{OK: false, Message: err.Error()}, nil
	}

	auth, err := sshAuthMethods(creds)
	if err != nil {
		return &TestResult{OK: false, Message: err.Error()}, nil
	}
	user := creds.SSHUser
	if user == "" {
		user = "root"
	}
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // the remote host key is not verified or pinned
		Timeout:         probeTimeout,
	}

	result := &TestResult{}
	if conn, dialErr := ssh.Dial("tcp", state.Address, cfg); dialErr != nil {
		result.Message = dialErr.Error()
	} else {
		conn.Close()
		result.OK = true
	}

	state.SSHProbeOK = result.OK
	raw, encErr := encodeSSHHostState(state)
	if encErr == nil {
		instance.State = raw
		instance.UpdatedAt = time.Now()
		_ = e.store.UpdateWizardInstance(instance)
	}
	return result, nil
}

func (e *Engine) testDockerProbe(ctx context.Context, instance *types.WizardInstance, state *SSHHostState) (*TestResult, error) {
	creds, err := sshCredentials(state)
	if err != nil {
		return &TestResult{OK: false, Message: err.Error()}, nil
	}
	host := &types.Host{ID: instance.ID, Name: state.Name, Address: state.Address, Transport: types.TransportSSH}

	adapter, err := transport.New(host, creds, probeTimeout)
	result := &TestResult{}
	if err != nil {
		result.OK = false
		result.Message = err.Error()
		state.DockerProbeOK = false
	} else {
		_, pingErr := adapter.Client.Ping(ctx)
		adapter.Close()
		if pingErr != nil {
			result.OK = false
			result.Message = pingErr.Error()
		} else {
			result.OK = true
		}
		state.DockerProbeOK = result.OK
	}

	raw, encErr := encodeSSHHostState(state)
	if encErr == nil {
		instance.State = raw
		instance.UpdatedAt = time.Now()
		_ = e.store.UpdateWizardInstance(instance)
	}
	return result, nil
}

func (e *Engine) testPreview(state *SSHHostState) (*TestResult, error) {
	doc, err := renderPreview(state)
	if err != nil {
		return nil, fmt.Errorf("wizard: render preview: %w", err)
	}
	return &TestResult{OK: true, Preview: doc}, nil
}

// Complete commits id: creates the Host, seals and attaches its
// credentials, and grants no extra permissions (the wizard's owner already
// holds the admin role applied platform-wide). Any failure rolls back the
// host it created and leaves the instance in progress so the caller can
// retry without losing the gathered state.
func (e *Engine) Complete(id string) (*types.Host, error) {
	instance, err := e.mustGetInProgress(id)
	if err != nil {
		return nil, err
	}
	if instance.Step != types.WizardStepConfirm {
		return nil, apierr.New(apierr.KindWizardInvalidStep, "reach the confirm step before completing")
	}
	state, err := decodeSSHHostState(instance.State)
	if err != nil {
		return nil, fmt.Errorf("wizard: decode state: %w", err)
	}
	if !state.SSHProbeOK || !state.DockerProbeOK {
		return nil, apierr.New(apierr.KindWizardProbeFailed, "ssh and docker probes must both pass before completing")
	}

	host, err := e.hosts.CreateHost(hostregistry.CreateHostInput{
		Name:      state.Name,
		Transport: types.TransportSSH,
		Address:   state.Address,
		Default:   state.Default,
		Status:    types.HostSetupPending,
	})
	if err != nil {
		return nil, err
	}

	if err := e.attachCredentials(host.ID, state); err != nil {
		if delErr := e.hosts.DeleteHost(host.ID); delErr != nil {
			log.WithHostID(host.ID).Error().Err(delErr).Msg("wizard rollback: delete host failed")
		}
		return nil, apierr.Wrap(apierr.KindWizardCommitFailed, "attach credentials to new host", err)
	}

	instance.Status = types.WizardCompleted
	instance.UpdatedAt = time.Now()
	if err := e.store.UpdateWizardInstance(instance); err != nil {
		log.WithComponent("wizard").Warn().Err(err).Str("instance_id", id).Msg("mark instance completed")
	}
	if err := e.store.DeleteWizardInstance(id); err != nil {
		log.WithComponent("wizard").Warn().Err(err).Str("instance_id", id).Msg("delete completed instance")
	}
	return host, nil
}

func (e *Engine) attachCredentials(hostID string, state *SSHHostState) error {
	if state.SSHPrivateKeyPEM != "" {
		if err := e.hosts.SetCredential(hostID, types.CredentialSSHPrivateKey, []byte(state.SSHPrivateKeyPEM)); err != nil {
			return err
		}
	}
	if state.SSHPassphrase != "" {
		if err := e.hosts.SetCredential(hostID, types.CredentialSSHPassphrase, []byte(state.SSHPassphrase)); err != nil {
			return err
		}
	}
	if state.SSHPassword != "" {
		if err := e.hosts.SetCredential(hostID, types.CredentialSSHPassword, []byte(state.SSHPassword)); err != nil {
			return err
		}
	}
	return nil
}

// Cancel terminates id without committing anything.
func (e *Engine) Cancel(id string) error {
	instance, err := e.mustGetInProgress(id)
	if err != nil {
		return err
	}
	instance.Status = types.WizardCancelled
	instance.UpdatedAt = time.Now()
	if err := e.store.UpdateWizardInstance(instance); err != nil {
		return fmt.Errorf("wizard: persist cancellation: %w", err)
	}
	return e.store.DeleteWizardInstance(id)
}

func sshCredentials(state *SSHHostState) (*transport.Credentials, error) {
	creds := &transport.Credentials{SSHUser: state.SSHUser}
	switch state.AuthMethod {
	case AuthGenerateKey, AuthUploadKey:
		if state.SSHPrivateKeyPEM == "" {
			return nil, apierr.New(apierr.KindMissingField, "no private key gathered yet")
		}
		creds.SSHPrivateKey = []byte(state.SSHPrivateKeyPEM)
		creds.SSHPassphrase = []byte(state.SSHPassphrase)
	case AuthPassword:
		if state.SSHPassword == "" {
			return nil, apierr.New(apierr.KindMissingField, "no password gathered yet")
		}
		creds.SSHPassword = state.SSHPassword
	default:
		return nil, apierr.New(apierr.KindMissingField, "choose an authentication method first")
	}
	return creds, nil
}
