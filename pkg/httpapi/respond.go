package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/harborctl/controlplane/pkg/apierr"
)

// envelope is the uniform success/error wire shape every handler renders,
// named by the status field rather than the HTTP status code so a client
// can switch on payload shape without reading the status line.
type envelope struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondOK(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, envelope{Status: "ok", RequestID: requestID(r), Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := apierr.Of(err)
	writeJSON(w, apiErr.HTTPStatus(), envelope{
		Status:    "error",
		RequestID: requestID(r),
		Error: &errorBody{
			Code:    string(apiErr.Kind),
			Message: apiErr.Message,
			Field:   apiErr.Field,
			Details: apiErr.Details,
		},
	})
}

func notFoundErr(resource string) error {
	return apierr.New(apierr.KindNotFound, resource+" not found")
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierr.Wrap(apierr.KindValidation, "malformed JSON body", err)
	}
	return nil
}
