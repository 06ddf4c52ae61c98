package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/types"
	"github.com/harborctl/controlplane/pkg/wizard"
)

type wizardResponse struct {
	ID     string                  `json:"id"`
	Kind   string                  `json:"kind"`
	Step   types.WizardStep        `json:"step"`
	Status types.WizardInstanceStatus `json:"status"`
	State  json.RawMessage         `json:"state"`
}

func wizardResponseFrom(w *types.WizardInstance) wizardResponse {
	return wizardResponse{ID: w.ID, Kind: w.Kind, Step: w.Step, Status: w.Status, State: w.State}
}

type startWizardRequest struct {
	Kind string `json:"kind"`
}

func (s *Server) handleStartWizard(w http.ResponseWriter, r *http.Request) {
	if err := authzCacheFromContext(r).Decide(userFromContext(r), "wizard.advance", ""); err != nil {
		respondError(w, r, err)
		return
	}
	var req startWizardRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	instance, err := s.wizard.Start(userFromContext(r).ID, req.Kind)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusCreated, wizardResponseFrom(instance))
}

func (s *Server) handleGetWizard(w http.ResponseWriter, r *http.Request) {
	instance, err := s.wizard.Get(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.guardWizardOwner(r, instance); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, wizardResponseFrom(instance))
}

func (s *Server) handleUpdateWizardStep(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	instance, err := s.wizard.Get(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.guardWizardOwner(r, instance); err != nil {
		respondError(w, r, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, r, apierr.Wrap(apierr.KindValidation, "failed to read request body", err))
		return
	}
	updated, err := s.wizard.UpdateStep(id, body)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, wizardResponseFrom(updated))
}

func (s *Server) handleWizardNext(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.guardWizardOwnerByID(r, id); err != nil {
		respondError(w, r, err)
		return
	}
	instance, err := s.wizard.Next(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, wizardResponseFrom(instance))
}

func (s *Server) handleWizardPrevious(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.guardWizardOwnerByID(r, id); err != nil {
		respondError(w, r, err)
		return
	}
	instance, err := s.wizard.Previous(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, wizardResponseFrom(instance))
}

type wizardTestRequest struct {
	Kind wizard.TestKind `json:"kind"`
}

func (s *Server) handleWizardTest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.guardWizardOwnerByID(r, id); err != nil {
		respondError(w, r, err)
		return
	}
	var req wizardTestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	result, err := s.wizard.Test(r.Context(), id, req.Kind)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusOK, result)
}

func (s *Server) handleWizardComplete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.guardWizardOwnerByID(r, id); err != nil {
		respondError(w, r, err)
		return
	}
	host, err := s.wizard.Complete(id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.pool.SubscribeChanges(s.hosts.Changes())
	respondOK(w, r, http.StatusCreated, s.hostResponseFrom(host))
}

func (s *Server) handleWizardCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.guardWizardOwnerByID(r, id); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.wizard.Cancel(id); err != nil {
		respondError(w, r, err)
		return
	}
	respondOK(w, r, http.StatusNoContent, nil)
}

// guardWizardOwner restricts a wizard instance to the user who started it
// or an admin; a setup-in-progress host has no HostID yet for authz.Decide
// to key an override off of, so ownership is the access rule instead.
func (s *Server) guardWizardOwner(r *http.Request, instance *types.WizardInstance) error {
	user := userFromContext(r)
	if user.Role == types.RoleAdmin || user.ID == instance.UserID {
		return nil
	}
	return apierr.New(apierr.KindNotFound, "wizard instance not found")
}

func (s *Server) guardWizardOwnerByID(r *http.Request, id string) error {
	instance, err := s.wizard.Get(id)
	if err != nil {
		return err
	}
	return s.guardWizardOwner(r, instance)
}
