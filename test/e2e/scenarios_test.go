// Package e2e exercises the control plane the way an operator would: over
// HTTP, through the same wiring cmd/controlplaned assembles. Each test here
// corresponds to one end-to-end scenario the component contracts promise
// together, not to any single package's unit behavior.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/controlplane/pkg/audit"
	"github.com/harborctl/controlplane/pkg/authz"
	"github.com/harborctl/controlplane/pkg/conn"
	"github.com/harborctl/controlplane/pkg/hostregistry"
	"github.com/harborctl/controlplane/pkg/httpapi"
	"github.com/harborctl/controlplane/pkg/router"
	"github.com/harborctl/controlplane/pkg/session"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/streams"
	"github.com/harborctl/controlplane/pkg/transport"
	"github.com/harborctl/controlplane/pkg/types"
	"github.com/harborctl/controlplane/pkg/vault"
	"github.com/harborctl/controlplane/pkg/wizard"
	"github.com/harborctl/controlplane/pkg/wsbridge"
)

type stack struct {
	store    storage.Store
	sessions *session.Manager
	authz    *authz.Authorizer
	hosts    *hostregistry.Registry
	pool     *conn.Pool
	router   *router.Router
	rec      *audit.Recorder
	server   *httptest.Server
}

func newStack(t *testing.T, poolCfg conn.Config) *stack {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	v, err := vault.New(make([]byte, 32))
	require.NoError(t, err)

	sessions := session.NewManager(store, "e2e-signing-key", time.Hour, 24*time.Hour, 4)
	az := authz.New(store)
	hosts := hostregistry.New(store, v)
	resolver := hostregistry.NewCredentialResolver(hosts)
	pool := conn.NewPool(poolCfg, store, resolver)
	rec := audit.NewRecorder(store, 16)
	t.Cleanup(rec.Close)
	rt := router.New(pool, az, rec)
	registry := streams.NewRegistry(streams.RegistryConfig{})
	bridge := wsbridge.New(wsbridge.Config{}, sessions, store, az, pool, registry)
	wiz := wizard.New(store, hosts)

	srv := httpapi.NewServer(sessions, az, hosts, pool, rt, bridge, wiz, store)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &stack{store: store, sessions: sessions, authz: az, hosts: hosts, pool: pool, router: rt, rec: rec, server: ts}
}

type envelope struct {
	Status    string          `json:"status"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Error     *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

// Scenario 1: login then list containers; both actions land in the audit
// log under the same user and are attributable after the fact.
func TestLoginThenListContainersIsAudited(t *testing.T) {
	st := newStack(t, conn.Config{})
	_, err := st.sessions.CreateUser("admin", "changeme123", types.RoleAdmin)
	require.NoError(t, err)

	resp, env := doJSON(t, http.MethodPost, st.server.URL+"/auth/login", "", map[string]string{
		"username": "admin", "password": "changeme123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tokens struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	require.NotEmpty(t, tokens.AccessToken)

	host, err := st.hosts.CreateHost(hostregistry.CreateHostInput{
		Name: "unreachable", Transport: types.TransportLocal, Address: "unix:///tmp/harborctl-e2e-nonexistent.sock",
	})
	require.NoError(t, err)

	resp, _ = doJSON(t, http.MethodGet, st.server.URL+"/hosts/"+host.ID+"/containers", tokens.AccessToken, nil)
	// The daemon behind this socket does not exist, so the call itself
	// fails, but it must still reach the router and be audited as an
	// attributable container.list action rather than being rejected
	// earlier in the pipeline.
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	events, err := st.store.ListAuditEvents(100)
	require.NoError(t, err)

	var sawLogin, sawList bool
	for _, e := range events {
		if e.Action == "auth.login" && e.Username == "admin" {
			sawLogin = true
		}
		if e.Action == "container.list" && e.Username == "admin" && e.HostID == host.ID {
			sawList = true
			assert.False(t, e.Success)
			assert.Equal(t, "docker.connection", e.ErrorKind)
		}
	}
	assert.True(t, sawLogin, "expected an auth.login audit event")
	assert.True(t, sawList, "expected a container.list audit event")
}

// Scenario 2: repeated failures against a dead host trip the breaker, and
// once Open, Execute fails fast without invoking the operation at all.
func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	st := newStack(t, conn.Config{
		BreakerFailThreshold: 3,
		BreakerOpenDuration:  time.Minute,
		BreakerHalfOpenMax:   1,
	})
	admin, err := st.sessions.CreateUser("admin", "hunter22", types.RoleAdmin)
	require.NoError(t, err)

	host, err := st.hosts.CreateHost(hostregistry.CreateHostInput{
		Name: "dead", Transport: types.TransportLocal, Address: "unix:///tmp/harborctl-e2e-nonexistent.sock",
	})
	require.NoError(t, err)

	calls := 0
	op := func(ctx context.Context, a *transport.Adapter) (any, error) {
		calls++
		return a.Client.ContainerList(ctx, container.ListOptions{})
	}

	for i := 0; i < 3; i++ {
		_, err := st.router.Execute(context.Background(), nil, admin, "container.list", host.ID, op)
		require.Error(t, err)
	}
	require.Equal(t, 3, calls, "each failure before the threshold must still reach the daemon")

	_, err = st.router.Execute(context.Background(), nil, admin, "container.list", host.ID, op)
	require.Error(t, err)
	assert.Equal(t, 3, calls, "once Open, Execute must fail fast without calling the operation")
}

// Scenario 3: two subscribers to the same stream key share one origin and
// receive the same frames.
func TestSharedLogStreamFansOutToConcurrentSubscribers(t *testing.T) {
	registry := streams.NewRegistry(streams.RegistryConfig{RingBufferSize: 16, SubscriberBufSize: 16})
	key := streams.Key{Kind: "logs", HostID: "h1", ResourceID: "c1"}

	started := 0
	origin := func(ctx context.Context, emit func(streams.Frame)) error {
		started++
		for i := 0; i < 5; i++ {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			emit(streams.Frame{Kind: "logs", Timestamp: time.Now(), Data: []byte{byte(i)}})
			time.Sleep(5 * time.Millisecond)
		}
		<-ctx.Done()
		return nil
	}

	subA, unsubA := registry.Subscribe(key, origin)
	defer unsubA()
	subB, unsubB := registry.Subscribe(key, origin)
	defer unsubB()

	assert.Equal(t, 1, registry.ActiveStreams(), "concurrent subscribers to the same key must share one origin")

	frameA := <-subA.C()
	frameB := <-subB.C()
	assert.Equal(t, frameA.Seq, frameB.Seq)
	assert.Equal(t, 1, started, "origin must start exactly once regardless of subscriber count")
}

// Scenario 4: a subscriber that stops reading gets dropped once it exceeds
// the slow-consumer threshold, without affecting a healthy subscriber on
// the same stream.
func TestSlowConsumerDropsWithoutAffectingOthers(t *testing.T) {
	registry := streams.NewRegistry(streams.RegistryConfig{
		RingBufferSize:     4,
		SubscriberBufSize:  4,
		SlowConsumerDropAt: 4,
	})
	key := streams.Key{Kind: "stats", HostID: "h1", ResourceID: "c1"}

	stop := make(chan struct{})
	origin := func(ctx context.Context, emit func(streams.Frame)) error {
		i := 0
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-stop:
				return nil
			default:
			}
			emit(streams.Frame{Kind: "stats", Timestamp: time.Now(), Data: []byte{byte(i)}})
			i++
			time.Sleep(time.Millisecond)
		}
	}

	fast, unsubFast := registry.Subscribe(key, origin)
	defer unsubFast()
	slow, _ := registry.Subscribe(key, nil)

	// Drain fast continuously; never read from slow.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range fast.C() {
		}
	}()

	select {
	case _, ok := <-slow.C():
		assert.False(t, ok, "slow consumer's channel must be closed once it is dropped")
	case <-time.After(2 * time.Second):
		t.Fatal("slow consumer was never dropped")
	}

	close(stop)
	unsubFast()
	<-drained
}

// Scenario 5: a completed wizard produces an SSH Host in setup-pending
// status and deletes its instance. The SSH and Docker probes this drives
// through are unreachable in a test environment, so their pass/fail flag
// is set the same way testSSHProbe/testDockerProbe would persist it, and
// the rest of the flow (step updates, Next's per-step validation, Complete's
// confirm-step and both-probes-passed gate) runs for real through the
// engine, the same path httpapi's wizard handlers drive.
func TestWizardHappyPathCreatesSetupPendingHost(t *testing.T) {
	st := newStack(t, conn.Config{})
	admin, err := st.sessions.CreateUser("admin", "hunter22", types.RoleAdmin)
	require.NoError(t, err)

	wiz := wizard.New(st.store, st.hosts)
	instance, err := wiz.Start(admin.ID, wizard.KindSSHHost)
	require.NoError(t, err)
	require.Equal(t, types.WizardStepTransport, instance.Step)

	stepTo := func(state map[string]any) {
		raw, err := json.Marshal(state)
		require.NoError(t, err)
		instance, err = wiz.UpdateStep(instance.ID, raw)
		require.NoError(t, err)
	}
	// setProbeOK pokes the persisted state directly, standing in for what
	// testSSHProbe/testDockerProbe would record after a real probe against
	// a reachable host; UpdateStep itself always resets both flags to
	// false, since changing transport or credentials invalidates them.
	setProbeOK := func(field string) {
		current, err := st.store.GetWizardInstance(instance.ID)
		require.NoError(t, err)
		var state wizard.SSHHostState
		require.NoError(t, json.Unmarshal(current.State, &state))
		switch field {
		case "ssh":
			state.SSHProbeOK = true
		case "docker":
			state.DockerProbeOK = true
		}
		raw, err := json.Marshal(state)
		require.NoError(t, err)
		current.State = raw
		require.NoError(t, st.store.UpdateWizardInstance(current))
		instance = current
	}

	stepTo(map[string]any{"name": "db-1", "address": "10.0.0.5:22"})
	instance, err = wiz.Next(instance.ID)
	require.NoError(t, err)
	require.Equal(t, types.WizardStepCredentials, instance.Step)

	stepTo(map[string]any{
		"name": "db-1", "address": "10.0.0.5:22", "auth_method": "password", "ssh_password": "hunter2",
	})
	instance, err = wiz.Next(instance.ID)
	require.NoError(t, err)
	require.Equal(t, types.WizardStepSSHProbe, instance.Step)

	setProbeOK("ssh")
	instance, err = wiz.Next(instance.ID)
	require.NoError(t, err)
	require.Equal(t, types.WizardStepDockerProbe, instance.Step)

	setProbeOK("docker")
	instance, err = wiz.Next(instance.ID)
	require.NoError(t, err)
	require.Equal(t, types.WizardStepConfirm, instance.Step)

	host, err := wiz.Complete(instance.ID)
	require.NoError(t, err)
	assert.Equal(t, types.HostSetupPending, host.Status)
	assert.Equal(t, types.TransportSSH, host.Transport)

	stored, err := st.hosts.GetHost(host.ID)
	require.NoError(t, err)
	assert.Equal(t, host.ID, stored.ID)

	_, err = wiz.Get(instance.ID)
	assert.Error(t, err, "a completed instance is deleted, not left around as completed")
}

// Scenario 6: logging out revokes the refresh token; a subsequent refresh
// with the same token is rejected rather than silently issuing a new pair.
func TestRevokedRefreshTokenRejectsSubsequentRefresh(t *testing.T) {
	st := newStack(t, conn.Config{})
	_, err := st.sessions.CreateUser("admin", "hunter22", types.RoleAdmin)
	require.NoError(t, err)

	_, env := doJSON(t, http.MethodPost, st.server.URL+"/auth/login", "", map[string]string{
		"username": "admin", "password": "hunter22",
	})
	var tokens struct {
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tokens))
	require.NotEmpty(t, tokens.RefreshToken)

	resp, _ := doJSON(t, http.MethodPost, st.server.URL+"/auth/logout", "", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, env = doJSON(t, http.MethodPost, st.server.URL+"/auth/refresh", "", map[string]string{
		"refresh_token": tokens.RefreshToken,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotNil(t, env.Error)
	assert.Equal(t, "auth.revoked", env.Error.Code)
}
