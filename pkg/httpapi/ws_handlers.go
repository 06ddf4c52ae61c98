package httpapi

import (
	"net/http"
	"net/url"

	"github.com/docker/docker/api/types/filters"
	"github.com/gorilla/mux"

	"github.com/harborctl/controlplane/pkg/wsbridge"
)

// buildExecRequest reads cmd, workdir, user and repeated env query
// parameters into an ExecRequest. cmd defaults to nil so ServeExec's own
// "/bin/sh" fallback applies.
func buildExecRequest(hostID, containerID string, q url.Values) wsbridge.ExecRequest {
	return wsbridge.ExecRequest{
		HostID:      hostID,
		ContainerID: containerID,
		Cmd:         q["cmd"],
		WorkingDir:  q.Get("workdir"),
		User:        q.Get("user"),
		Env:         q["env"],
	}
}

func (s *Server) handleWSLogs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tail := r.URL.Query().Get("tail")
	s.bridge.ServeLogs(w, r, vars["id"], vars["containerID"], tail)
}

func (s *Server) handleWSStats(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.bridge.ServeStats(w, r, vars["id"], vars["containerID"])
}

func (s *Server) handleWSExec(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	q := r.URL.Query()
	req := buildExecRequest(vars["id"], vars["containerID"], q)
	s.bridge.ServeExec(w, r, req)
}

// handleWSEvents builds a filters.Args from whatever repeated "filter"
// query parameters the client supplied, each shaped "key=value" the way
// the Docker CLI itself encodes --filter.
func (s *Server) handleWSEvents(w http.ResponseWriter, r *http.Request) {
	hostID := mux.Vars(r)["id"]
	f := filters.NewArgs()
	for _, raw := range r.URL.Query()["filter"] {
		key, value, ok := splitFilter(raw)
		if ok {
			f.Add(key, value)
		}
	}
	s.bridge.ServeEvents(w, r, hostID, f)
}

func splitFilter(raw string) (key, value string, ok bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			return raw[:i], raw[i+1:], true
		}
	}
	return "", "", false
}
