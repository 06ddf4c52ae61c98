package wizard

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/controlplane/pkg/hostregistry"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/types"
	"github.com/harborctl/controlplane/pkg/vault"
)

func newTestEngine(t *testing.T) (*Engine, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	v, err := vault.New(make([]byte, 32))
	require.NoError(t, err)
	hosts := hostregistry.New(store, v)
	return New(store, hosts), store
}

func patch(t *testing.T, state *SSHHostState) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	return raw
}

func TestStartRejectsUnknownKind(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Start("user-1", "vpn_host")
	require.Error(t, err)
}

func TestStartCreatesInProgressInstanceAtFirstStep(t *testing.T) {
	e, _ := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)
	assert.Equal(t, types.WizardInProgress, instance.Status)
	assert.Equal(t, types.WizardSteps[0], instance.Step)
	assert.Equal(t, KindSSHHost, instance.Kind)
}

func TestNextRejectsIncompleteTransportStep(t *testing.T) {
	e, _ := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)

	_, err = e.Next(instance.ID)
	assert.Error(t, err)
}

func TestUpdateStepThenNextAdvancesPastTransport(t *testing.T) {
	e, _ := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)

	_, err = e.UpdateStep(instance.ID, patch(t, &SSHHostState{Name: "db-1", Address: "10.0.0.5:22"}))
	require.NoError(t, err)

	instance, err = e.Next(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, types.WizardStepCredentials, instance.Step)
}

func TestUpdateStepGeneratesKeyForGenerateAuthMethod(t *testing.T) {
	e, _ := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)

	_, err = e.UpdateStep(instance.ID, patch(t, &SSHHostState{
		Name: "db-1", Address: "10.0.0.5:22", AuthMethod: AuthGenerateKey,
	}))
	require.NoError(t, err)

	instance, err = e.Get(instance.ID)
	require.NoError(t, err)
	state, err := decodeSSHHostState(instance.State)
	require.NoError(t, err)
	assert.NotEmpty(t, state.SSHPrivateKeyPEM)
	assert.Contains(t, state.SSHPublicKeyOpenSSH, "ssh-ed25519")
}

func TestNextRejectsCredentialsStepWithNoAuthMethod(t *testing.T) {
	e, _ := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)
	_, err = e.UpdateStep(instance.ID, patch(t, &SSHHostState{Name: "db-1", Address: "10.0.0.5:22"}))
	require.NoError(t, err)
	instance, err = e.Next(instance.ID)
	require.NoError(t, err)

	_, err = e.Next(instance.ID)
	assert.Error(t, err)
}

func TestPreviewNeverAdvancesStepOrMutatesState(t *testing.T) {
	e, _ := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)
	_, err = e.UpdateStep(instance.ID, patch(t, &SSHHostState{
		Name: "db-1", Address: "10.0.0.5:22", AuthMethod: AuthPassword, SSHPassword: "hunter2",
	}))
	require.NoError(t, err)
	before, err := e.Get(instance.ID)
	require.NoError(t, err)

	result, err := e.Test(context.Background(), instance.ID, TestPreview)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Preview, "name: db-1")
	assert.NotContains(t, result.Preview, "hunter2")

	reloaded, err := e.Get(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, types.WizardSteps[0], reloaded.Step)
	assert.JSONEq(t, string(before.State), string(reloaded.State))
}

func TestSSHProbeFailsFastAgainstUnreachableAddress(t *testing.T) {
	e, _ := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)
	_, err = e.UpdateStep(instance.ID, patch(t, &SSHHostState{
		Name: "db-1", Address: "127.0.0.1:1", AuthMethod: AuthPassword, SSHPassword: "hunter2",
	}))
	require.NoError(t, err)

	result, err := e.Test(context.Background(), instance.ID, TestSSHProbe)
	require.NoError(t, err)
	assert.False(t, result.OK)

	reloaded, err := e.Get(instance.ID)
	require.NoError(t, err)
	state, err := decodeSSHHostState(reloaded.State)
	require.NoError(t, err)
	assert.False(t, state.SSHProbeOK)
}

func TestCompleteRejectsBeforeConfirmStep(t *testing.T) {
	e, _ := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)
	_, err = e.Complete(instance.ID)
	assert.Error(t, err)
}

func TestCancelDeletesInstance(t *testing.T) {
	e, _ := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)

	require.NoError(t, e.Cancel(instance.ID))

	_, err = e.Get(instance.ID)
	assert.Error(t, err)
}

func TestGetReapsInstanceIdleLongerThanTTL(t *testing.T) {
	e, store := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)

	instance.UpdatedAt = time.Now().Add(-25 * time.Hour)
	require.NoError(t, store.UpdateWizardInstance(instance))

	_, err = e.Get(instance.ID)
	assert.Error(t, err)

	_, err = store.GetWizardInstance(instance.ID)
	assert.Error(t, err)
}

func TestPreviousMovesBackWithoutValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	instance, err := e.Start("user-1", KindSSHHost)
	require.NoError(t, err)
	_, err = e.UpdateStep(instance.ID, patch(t, &SSHHostState{Name: "db-1", Address: "10.0.0.5:22"}))
	require.NoError(t, err)
	instance, err = e.Next(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, types.WizardStepCredentials, instance.Step)

	instance, err = e.Previous(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, types.WizardStepTransport, instance.Step)
}
