package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/types"
)

type userResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Role        types.Role `json:"role"`
	Disabled    bool       `json:"disabled"`
	LastLoginAt string     `json:"last_login_at,omitempty"`
}

func userResponseFrom(u *types.User) userResponse {
	resp := userResponse{ID: u.ID, Username: u.Username, Role: u.Role, Disabled: u.Disabled}
	if !u.LastLoginAt.IsZero() {
		resp.LastLoginAt = u.LastLoginAt.Format(timeFormat)
	}
	return resp
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func (s *Server) handleGetSelf(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, http.StatusOK, userResponseFrom(userFromContext(r)))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers()
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponseFrom(u))
	}
	respondOK(w, r, http.StatusOK, out)
}

type createUserRequest struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     types.Role `json:"role"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	user, err := s.sessions.CreateUser(req.Username, req.Password, req.Role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusCreated, userResponseFrom(user))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, apierr.Wrap(apierr.KindNotFound, "user not found", err))
		return
	}
	respondOK(w, r, http.StatusOK, userResponseFrom(user))
}

type updateUserRequest struct {
	Role     *types.Role `json:"role"`
	Disabled *bool       `json:"disabled"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	user, err := s.store.GetUser(id)
	if err != nil {
		respondError(w, r, apierr.Wrap(apierr.KindNotFound, "user not found", err))
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Disabled != nil {
		user.Disabled = *req.Disabled
	}
	if err := s.store.UpdateUser(user); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, userResponseFrom(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if actor := userFromContext(r); actor.ID == id {
		respondError(w, r, apierr.New(apierr.KindValidation, "cannot delete your own account"))
		return
	}
	if err := s.store.DeleteUser(id); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusNoContent, nil)
}
