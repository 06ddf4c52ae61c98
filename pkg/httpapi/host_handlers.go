package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/hostregistry"
	"github.com/harborctl/controlplane/pkg/types"
)

type hostResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Transport    types.TransportKind `json:"transport"`
	Address      string            `json:"address"`
	Status       types.HostStatus  `json:"status"`
	Default      bool              `json:"default"`
	SwarmID      string            `json:"swarm_id,omitempty"`
	Leader       bool              `json:"leader"`
	BreakerState string            `json:"breaker_state"`
	LastError    string            `json:"last_error,omitempty"`
}

func (s *Server) hostResponseFrom(h *types.Host) hostResponse {
	status := s.pool.Status(h.ID)
	return hostResponse{
		ID: h.ID, Name: h.Name, Transport: h.Transport, Address: h.Address,
		Status: h.Status, Default: h.Default, SwarmID: h.SwarmID, Leader: h.Leader,
		BreakerState: status.BreakerState, LastError: status.LastError,
	}
}

func (s *Server) handleListHosts(w http.ResponseWriter, r *http.Request) {
	if err := authzCacheFromContext(r).Decide(userFromContext(r), "host.list", ""); err != nil {
		respondError(w, r, err)
		return
	}
	hosts, err := s.hosts.ListHosts()
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]hostResponse, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, s.hostResponseFrom(h))
	}
	respondOK(w, r, http.StatusOK, out)
}

type createHostRequest struct {
	Name            string              `json:"name"`
	Transport       types.TransportKind `json:"transport"`
	Address         string              `json:"address"`
	InsecureSkipTLS bool                `json:"insecure_skip_tls"`
	Default         bool                `json:"default"`
}

// handleCreateHost creates a Host with no credentials attached. Remote
// transports normally go through the wizard (POST /wizards) instead, which
// gathers credentials and probes reachability before committing; this
// endpoint exists for a local Docker socket host and for scripted
// provisioning that supplies credentials via separate calls afterward.
func (s *Server) handleCreateHost(w http.ResponseWriter, r *http.Request) {
	if err := authzCacheFromContext(r).Decide(userFromContext(r), "host.create", ""); err != nil {
		respondError(w, r, err)
		return
	}
	var req createHostRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	host, err := s.hosts.CreateHost(hostregistry.CreateHostInput{
		Name: req.Name, Transport: req.Transport, Address: req.Address,
		InsecureSkipTLS: req.InsecureSkipTLS, Default: req.Default,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.pool.SubscribeChanges(s.hosts.Changes())
	respondOK(w, r, http.StatusCreated, s.hostResponseFrom(host))
}

func (s *Server) handleGetHost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := authzCacheFromContext(r).Decide(userFromContext(r), "host.inspect", id); err != nil {
		respondError(w, r, err)
		return
	}
	host, err := s.hosts.GetHost(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, s.hostResponseFrom(host))
}

type updateHostRequest struct {
	Name            *string `json:"name"`
	Address         *string `json:"address"`
	InsecureSkipTLS *bool   `json:"insecure_skip_tls"`
	Default         *bool   `json:"default"`
}

func (s *Server) handleUpdateHost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := authzCacheFromContext(r).Decide(userFromContext(r), "host.update", id); err != nil {
		respondError(w, r, err)
		return
	}
	var req updateHostRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	host, err := s.hosts.UpdateHost(id, hostregistry.UpdateHostInput{
		Name: req.Name, Address: req.Address, InsecureSkipTLS: req.InsecureSkipTLS, Default: req.Default,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, s.hostResponseFrom(host))
}

func (s *Server) handleDeleteHost(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := authzCacheFromContext(r).Decide(userFromContext(r), "host.delete", id); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.hosts.DeleteHost(id); err != nil {
		respondError(w, r, err)
		return
	}
	s.pool.Remove(id)
	respondOK(w, r, http.StatusNoContent, nil)
}

func (s *Server) handleHostStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := authzCacheFromContext(r).Decide(userFromContext(r), "host.inspect", id); err != nil {
		respondError(w, r, err)
		return
	}
	status := s.pool.Status(id)
	respondOK(w, r, http.StatusOK, status)
}

type permissionResponse struct {
	ID     string     `json:"id"`
	HostID string     `json:"host_id"`
	UserID string     `json:"user_id"`
	Role   types.Role `json:"role"`
	Deny   bool       `json:"deny"`
}

func permissionResponseFrom(p *types.HostPermission) permissionResponse {
	return permissionResponse{ID: p.ID, HostID: p.HostID, UserID: p.UserID, Role: p.Role, Deny: p.Deny}
}

func (s *Server) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := authzCacheFromContext(r).Decide(userFromContext(r), "host.inspect", id); err != nil {
		respondError(w, r, err)
		return
	}
	perms, err := s.hosts.ListPermissions(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, permissionResponseFrom(p))
	}
	respondOK(w, r, http.StatusOK, out)
}

type setPermissionRequest struct {
	UserID string     `json:"user_id"`
	Role   types.Role `json:"role"`
	Deny   bool       `json:"deny"`
}

func (s *Server) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := authzCacheFromContext(r).Decide(userFromContext(r), "host.update", id); err != nil {
		respondError(w, r, err)
		return
	}
	var req setPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.UserID == "" {
		respondError(w, r, apierr.New(apierr.KindMissingField, "user_id is required").WithField("user_id"))
		return
	}
	perm, err := s.hosts.SetPermission(id, req.UserID, req.Role, req.Deny)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusCreated, permissionResponseFrom(perm))
}

func (s *Server) handleRemovePermission(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := authzCacheFromContext(r).Decide(userFromContext(r), "host.update", vars["id"]); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.hosts.RemovePermission(vars["permissionID"]); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusNoContent, nil)
}
