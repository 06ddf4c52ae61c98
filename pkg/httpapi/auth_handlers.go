package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/log"
	"github.com/harborctl/controlplane/pkg/session"
	"github.com/harborctl/controlplane/pkg/types"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresAt    string `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	pair, err := s.sessions.Login(req.Username, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if user, lookupErr := s.store.GetUserByUsername(req.Username); lookupErr == nil {
		if auditErr := s.store.CreateAuditEvent(&types.AuditEvent{
			ID: uuid.NewString(), UserID: user.ID, Username: user.Username,
			Action: "auth.login", Success: true, Timestamp: time.Now(),
		}); auditErr != nil {
			log.WithUserID(user.ID).Warn().Err(auditErr).Msg("record login audit event")
		}
	}
	respondOK(w, r, http.StatusOK, tokenResponseFrom(pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		respondError(w, r, apierr.New(apierr.KindMissingField, "refresh_token is required").WithField("refresh_token"))
		return
	}
	pair, err := s.sessions.Refresh(req.RefreshToken)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, tokenResponseFrom(pair))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.sessions.Logout(req.RefreshToken); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusNoContent, nil)
}

func tokenResponseFrom(pair *session.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    pair.ExpiresAt.Format(time.RFC3339),
	}
}
