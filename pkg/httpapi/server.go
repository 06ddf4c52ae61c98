package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/harborctl/controlplane/pkg/authz"
	"github.com/harborctl/controlplane/pkg/conn"
	"github.com/harborctl/controlplane/pkg/hostregistry"
	"github.com/harborctl/controlplane/pkg/router"
	"github.com/harborctl/controlplane/pkg/session"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/types"
	"github.com/harborctl/controlplane/pkg/wizard"
	"github.com/harborctl/controlplane/pkg/wsbridge"
)

// Server is the reference HTTP/WS binding (C16), a thin translation layer
// over C5, C6, C9, C11 and C12. It holds no business logic of its own: every
// handler either delegates straight to a C5, C6 or C12 call (or a plain
// store read), builds a router.Operation closure for C9.Execute, or hands
// the request to a C11 Serve* method.
type Server struct {
	sessions *session.Manager
	authz    *authz.Authorizer
	hosts    *hostregistry.Registry
	pool     *conn.Pool
	router   *router.Router
	bridge   *wsbridge.Bridge
	wizard   *wizard.Engine
	store    storage.Store
}

// NewServer wires C6, C7, C4, C9, C11, C12 and C5 into a Server.
func NewServer(
	sessions *session.Manager,
	az *authz.Authorizer,
	hosts *hostregistry.Registry,
	pool *conn.Pool,
	rt *router.Router,
	bridge *wsbridge.Bridge,
	wiz *wizard.Engine,
	store storage.Store,
) *Server {
	return &Server{
		sessions: sessions,
		authz:    az,
		hosts:    hosts,
		pool:     pool,
		router:   rt,
		bridge:   bridge,
		wizard:   wiz,
		store:    store,
	}
}

// Routes builds the full route table, spec section 6's external surface.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(withRequestID, withLogging, withRecovery)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, notFoundErr("route"))
	})

	r.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.withAuth)

	authed.HandleFunc("/users/me", s.handleGetSelf).Methods(http.MethodGet)
	users := authed.NewRoute().Subrouter()
	users.Use(requireRole(types.RoleAdmin))
	users.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	users.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	users.HandleFunc("/users/{id}", s.handleGetUser).Methods(http.MethodGet)
	users.HandleFunc("/users/{id}", s.handleUpdateUser).Methods(http.MethodPatch)
	users.HandleFunc("/users/{id}", s.handleDeleteUser).Methods(http.MethodDelete)

	authed.HandleFunc("/hosts", s.handleListHosts).Methods(http.MethodGet)
	authed.HandleFunc("/hosts", s.handleCreateHost).Methods(http.MethodPost)
	authed.HandleFunc("/hosts/{id}", s.handleGetHost).Methods(http.MethodGet)
	authed.HandleFunc("/hosts/{id}", s.handleUpdateHost).Methods(http.MethodPatch)
	authed.HandleFunc("/hosts/{id}", s.handleDeleteHost).Methods(http.MethodDelete)
	authed.HandleFunc("/hosts/{id}/status", s.handleHostStatus).Methods(http.MethodGet)
	authed.HandleFunc("/hosts/{id}/permissions", s.handleListPermissions).Methods(http.MethodGet)
	authed.HandleFunc("/hosts/{id}/permissions", s.handleSetPermission).Methods(http.MethodPost)
	authed.HandleFunc("/hosts/{id}/permissions/{permissionID}", s.handleRemovePermission).Methods(http.MethodDelete)

	authed.HandleFunc("/hosts/{id}/containers", s.handleListContainers).Methods(http.MethodGet)
	authed.HandleFunc("/hosts/{id}/containers/{containerID}", s.handleInspectContainer).Methods(http.MethodGet)
	authed.HandleFunc("/hosts/{id}/containers/{containerID}/start", s.handleStartContainer).Methods(http.MethodPost)
	authed.HandleFunc("/hosts/{id}/containers/{containerID}/stop", s.handleStopContainer).Methods(http.MethodPost)
	authed.HandleFunc("/hosts/{id}/containers/{containerID}/restart", s.handleRestartContainer).Methods(http.MethodPost)
	authed.HandleFunc("/hosts/{id}/containers/{containerID}", s.handleRemoveContainer).Methods(http.MethodDelete)

	authed.HandleFunc("/hosts/{id}/images", s.handleListImages).Methods(http.MethodGet)
	authed.HandleFunc("/hosts/{id}/images/pull", s.handlePullImage).Methods(http.MethodPost)
	authed.HandleFunc("/hosts/{id}/images/{imageID}", s.handleRemoveImage).Methods(http.MethodDelete)

	authed.HandleFunc("/hosts/{id}/volumes", s.handleListVolumes).Methods(http.MethodGet)
	authed.HandleFunc("/hosts/{id}/networks", s.handleListNetworks).Methods(http.MethodGet)
	authed.HandleFunc("/hosts/{id}/system/info", s.handleSystemInfo).Methods(http.MethodGet)

	authed.HandleFunc("/wizards", s.handleStartWizard).Methods(http.MethodPost)
	authed.HandleFunc("/wizards/{id}", s.handleGetWizard).Methods(http.MethodGet)
	authed.HandleFunc("/wizards/{id}/step", s.handleUpdateWizardStep).Methods(http.MethodPut)
	authed.HandleFunc("/wizards/{id}/next", s.handleWizardNext).Methods(http.MethodPost)
	authed.HandleFunc("/wizards/{id}/previous", s.handleWizardPrevious).Methods(http.MethodPost)
	authed.HandleFunc("/wizards/{id}/test", s.handleWizardTest).Methods(http.MethodPost)
	authed.HandleFunc("/wizards/{id}/complete", s.handleWizardComplete).Methods(http.MethodPost)
	authed.HandleFunc("/wizards/{id}", s.handleWizardCancel).Methods(http.MethodDelete)

	authed.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)

	// wsbridge authenticates its own token (header or ?token= query param,
	// since browsers cannot set headers on a WebSocket handshake), so these
	// routes sit outside the authed subrouter rather than duplicating that
	// check with a header-only middleware.
	r.HandleFunc("/ws/hosts/{id}/containers/{containerID}/logs", s.handleWSLogs)
	r.HandleFunc("/ws/hosts/{id}/containers/{containerID}/stats", s.handleWSStats)
	r.HandleFunc("/ws/hosts/{id}/containers/{containerID}/exec", s.handleWSExec)
	r.HandleFunc("/ws/hosts/{id}/events", s.handleWSEvents)

	return r
}
