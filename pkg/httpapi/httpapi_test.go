package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborctl/controlplane/pkg/audit"
	"github.com/harborctl/controlplane/pkg/authz"
	"github.com/harborctl/controlplane/pkg/conn"
	"github.com/harborctl/controlplane/pkg/hostregistry"
	"github.com/harborctl/controlplane/pkg/router"
	"github.com/harborctl/controlplane/pkg/session"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/streams"
	"github.com/harborctl/controlplane/pkg/types"
	"github.com/harborctl/controlplane/pkg/vault"
	"github.com/harborctl/controlplane/pkg/wizard"
	"github.com/harborctl/controlplane/pkg/wsbridge"
)

func newTestServer(t *testing.T) (*httptest.Server, storage.Store, *session.Manager) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	v, err := vault.New(make([]byte, 32))
	require.NoError(t, err)

	sessions := session.NewManager(store, "test-signing-key", time.Hour, 24*time.Hour, 4)
	az := authz.New(store)
	hosts := hostregistry.New(store, v)
	resolver := hostregistry.NewCredentialResolver(hosts)
	pool := conn.NewPool(conn.Config{}, store, resolver)
	rec := audit.NewRecorder(store, 16)
	t.Cleanup(rec.Close)
	rt := router.New(pool, az, rec)
	registry := streams.NewRegistry(streams.RegistryConfig{})
	bridge := wsbridge.New(wsbridge.Config{}, sessions, store, az, pool, registry)
	wiz := wizard.New(store, hosts)

	srv := NewServer(sessions, az, hosts, pool, rt, bridge, wiz, store)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, store, sessions
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
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
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", loginRequest{Username: "ghost", Password: "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "auth.invalid_credentials", env.Error.Code)
}

func TestLoginSucceedsAndProtectedRouteAccepts(t *testing.T) {
	ts, _, sessions := newTestServer(t)
	_, err := sessions.CreateUser("alice", "hunter22", types.RoleAdmin)
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", loginRequest{Username: "alice", Password: "hunter22"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var tokens tokenResponse
	require.NoError(t, json.Unmarshal(data, &tokens))
	require.NotEmpty(t, tokens.AccessToken)

	resp = doJSON(t, http.MethodGet, ts.URL+"/users/me", tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateHostThenListReturnsIt(t *testing.T) {
	ts, _, sessions := newTestServer(t)
	_, err := sessions.CreateUser("admin", "hunter22", types.RoleAdmin)
	require.NoError(t, err)
	loginResp := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", loginRequest{Username: "admin", Password: "hunter22"})
	tokens := decodeTokens(t, loginResp)

	createResp := doJSON(t, http.MethodPost, ts.URL+"/hosts", tokens.AccessToken, createHostRequest{
		Name: "local", Transport: types.TransportLocal, Address: "/var/run/docker.sock",
	})
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	listResp := doJSON(t, http.MethodGet, ts.URL+"/hosts", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	env := decodeEnvelope(t, listResp)
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var hosts []hostResponse
	require.NoError(t, json.Unmarshal(raw, &hosts))
	require.Len(t, hosts, 1)
	assert.Equal(t, "local", hosts[0].Name)
}

func TestViewerCannotCreateHost(t *testing.T) {
	ts, _, sessions := newTestServer(t)
	_, err := sessions.CreateUser("viewer", "hunter22", types.RoleViewer)
	require.NoError(t, err)
	loginResp := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", loginRequest{Username: "viewer", Password: "hunter22"})
	tokens := decodeTokens(t, loginResp)

	resp := doJSON(t, http.MethodPost, ts.URL+"/hosts", tokens.AccessToken, createHostRequest{
		Name: "local", Transport: types.TransportLocal,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestStartWizardThenGetReturnsInstance(t *testing.T) {
	ts, _, sessions := newTestServer(t)
	_, err := sessions.CreateUser("admin", "hunter22", types.RoleAdmin)
	require.NoError(t, err)
	loginResp := doJSON(t, http.MethodPost, ts.URL+"/auth/login", "", loginRequest{Username: "admin", Password: "hunter22"})
	tokens := decodeTokens(t, loginResp)

	startResp := doJSON(t, http.MethodPost, ts.URL+"/wizards", tokens.AccessToken, startWizardRequest{Kind: wizard.KindSSHHost})
	require.Equal(t, http.StatusCreated, startResp.StatusCode)
	env := decodeEnvelope(t, startResp)
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var instance wizardResponse
	require.NoError(t, json.Unmarshal(raw, &instance))
	assert.Equal(t, types.WizardSteps[0], instance.Step)

	getResp := doJSON(t, http.MethodGet, ts.URL+"/wizards/"+instance.ID, tokens.AccessToken, nil)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
}

func decodeTokens(t *testing.T, resp *http.Response) tokenResponse {
	t.Helper()
	env := decodeEnvelope(t, resp)
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var tokens tokenResponse
	require.NoError(t, json.Unmarshal(raw, &tokens))
	return tokens
}
