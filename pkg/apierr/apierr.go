// Package apierr defines the stable error-kind vocabulary the control plane
// returns to HTTP and WebSocket callers, so C9 and pkg/httpapi never hand
// roll the kind-to-status mapping in more than one place.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a stable, dotted error identifier safe to expose to clients. The
// set is fixed across releases: the CLI and any other client key off these
// strings, so an existing Kind is never renamed or repurposed.
type Kind string

const (
	KindInvalidCredentials Kind = "auth.invalid_credentials"
	KindTokenExpired       Kind = "auth.token_expired"
	KindTokenInvalid       Kind = "auth.token_invalid"
	KindRevoked            Kind = "auth.revoked"

	KindInsufficientRole Kind = "authz.insufficient_role"
	KindHostDenied       Kind = "authz.host_denied"

	KindValidation   Kind = "validation.invalid"
	KindMissingField Kind = "validation.missing_field"

	KindNotFound Kind = "resource.not_found"
	KindConflict Kind = "resource.conflict"

	KindHostNotFound          Kind = "host.not_found"
	KindHostInactive          Kind = "host.inactive"
	KindHostUnavailable       Kind = "host.unavailable"
	KindHostCredentialMissing Kind = "host.credential_unavailable"

	KindDockerConnection Kind = "docker.connection"
	KindDockerOperation  Kind = "docker.operation"
	KindDockerTimeout    Kind = "docker.timeout"

	KindSlowConsumer   Kind = "stream.slow_consumer"
	KindClosedByOrigin Kind = "stream.closed_by_origin"

	KindWizardInvalidStep  Kind = "wizard.invalid_step"
	KindWizardProbeFailed  Kind = "wizard.probe_failed"
	KindWizardCommitFailed Kind = "wizard.commit_failed"

	KindUnexpected Kind = "internal.unexpected"
)

// httpStatus maps each Kind to the HTTP status pkg/httpapi renders it as.
var httpStatus = map[Kind]int{
	KindInvalidCredentials: http.StatusUnauthorized,
	KindTokenExpired:       http.StatusUnauthorized,
	KindTokenInvalid:       http.StatusUnauthorized,
	KindRevoked:            http.StatusUnauthorized,

	KindInsufficientRole: http.StatusForbidden,
	KindHostDenied:       http.StatusForbidden,

	KindValidation:   http.StatusBadRequest,
	KindMissingField: http.StatusBadRequest,

	KindNotFound: http.StatusNotFound,
	KindConflict: http.StatusConflict,

	KindHostNotFound:          http.StatusNotFound,
	KindHostInactive:          http.StatusServiceUnavailable,
	KindHostUnavailable:       http.StatusServiceUnavailable,
	KindHostCredentialMissing: http.StatusServiceUnavailable,

	KindDockerConnection: http.StatusBadGateway,
	KindDockerOperation:  http.StatusBadGateway,
	KindDockerTimeout:    http.StatusGatewayTimeout,

	KindWizardInvalidStep:  http.StatusConflict,
	KindWizardProbeFailed:  http.StatusUnprocessableEntity,
	KindWizardCommitFailed: http.StatusUnprocessableEntity,

	KindUnexpected: http.StatusInternalServerError,
}

// wsCloseCode maps each Kind to the WebSocket close code pkg/wsbridge sends
// when a control-frame error terminates the socket. Kinds absent here never
// close the socket on their own (they arrive as an "error" control frame).
var wsCloseCode = map[Kind]int{
	KindInvalidCredentials: 4001,
	KindTokenExpired:       4001,
	KindTokenInvalid:       4001,
	KindRevoked:            4001,
	KindInsufficientRole:   4003,
	KindHostDenied:         4003,
	KindHostUnavailable:    4010,
	KindHostInactive:       4010,
	KindSlowConsumer:       4029,
	KindClosedByOrigin:     4000,
	KindUnexpected:         4000,
}

// Error is the concrete error type every control-plane boundary returns.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code pkg/httpapi should render for e.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WSCloseCode returns the WebSocket close code for e, and whether the kind
// warrants closing the socket at all.
func (e *Error) WSCloseCode() (int, bool) {
	c, ok := wsCloseCode[e.Kind]
	return c, ok
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error that carries cause for logging but never for
// client-facing rendering (callers format Message separately).
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithField attaches the offending field name to a validation error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithDetails attaches structured, client-safe context.
func (e *Error) WithDetails(d map[string]any) *Error {
	e.Details = d
	return e
}

// As extracts an *Error from err, following wrapping chains.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Of returns err as an *Error, substituting KindUnexpected when err is not
// already one. Used at boundary layers so a raw internal error is never
// rendered to a client.
func Of(err error) *Error {
	if e, ok := As(err); ok {
		return e
	}
	return Wrap(KindUnexpected, "an unexpected error occurred", err)
}
