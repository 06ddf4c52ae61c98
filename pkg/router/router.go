package router

import (
	"context"
	"errors"

	"github.com/docker/docker/client"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/audit"
	"github.com/harborctl/controlplane/pkg/authz"
	"github.com/harborctl/controlplane/pkg/circuit"
	"github.com/harborctl/controlplane/pkg/conn"
	"github.com/harborctl/controlplane/pkg/metrics"
	"github.com/harborctl/controlplane/pkg/transport"
	"github.com/harborctl/controlplane/pkg/types"
)

// sensitiveReads names read actions that must still be audited even though
// their category is CategoryRead.
var sensitiveReads = map[string]bool{
	"container.logs.view":  true,
	"container.stats.view": true,
	"container.exec":       true,
}

// Operation is the unit of work C9 invokes against an acquired adapter.
type Operation func(ctx context.Context, adapter *transport.Adapter) (any, error)

// Router is the Operation Router.
type Router struct {
	pool  *conn.Pool
	authz *authz.Authorizer
	audit *audit.Recorder
}

// New constructs a Router wiring C4, C7 and C8.
func New(pool *conn.Pool, az *authz.Authorizer, rec *audit.Recorder) *Router {
	return &Router{pool: pool, authz: az, audit: rec}
}

// Execute runs the pipeline: authorize, acquire, invoke, audit, return.
// cache is the caller's request-scoped authz.RequestCache; pass nil to
// authorize directly against the Authorizer with no memoization.
func (r *Router) Execute(ctx context.Context, cache *authz.RequestCache, user *types.User, action, hostID string, op Operation) (result any, err error) {
	defer func() {
		if shouldAudit(action, err == nil) {
			r.recordAudit(user, action, hostID, err)
		}
	}()

	if authzErr := r.authorize(cache, user, action, hostID); authzErr != nil {
		err = authzErr
		return nil, err
	}

	if hostID == "" {
		result, err = op(ctx, nil)
		err = translate(err)
		return result, err
	}

	adapter, breaker, acquireErr := r.pool.Acquire(ctx, hostID)
	if acquireErr != nil {
		err = apierr.Of(acquireErr)
		return nil, err
	}

	gen, allowErr := breaker.Allow()
	if allowErr != nil {
		metrics.DockerOperationsTotal.WithLabelValues(action, "breaker_open").Inc()
		err = apierr.Wrap(apierr.KindHostUnavailable, "host circuit breaker is open", allowErr)
		return nil, err
	}

	timer := metrics.NewTimer()
	result, opErr := op(ctx, adapter)
	breaker.RecordResult(gen, opErr)
	timer.ObserveDurationVec(metrics.DockerOperationDuration, action)

	if opErr != nil {
		metrics.DockerOperationsTotal.WithLabelValues(action, "error").Inc()
		err = translate(opErr)
		return nil, err
	}

	metrics.DockerOperationsTotal.WithLabelValues(action, "success").Inc()
	return result, nil
}

func (r *Router) authorize(cache *authz.RequestCache, user *types.User, action, hostID string) error {
	if cache != nil {
		return cache.Decide(user, action, hostID)
	}
	return r.authz.Decide(user, action, hostID)
}

func (r *Router) recordAudit(user *types.User, action, hostID string, opErr error) {
	event := audit.Event{
		UserID:   user.ID,
		Username: user.Username,
		Action:   action,
		HostID:   hostID,
		Success:  opErr == nil,
	}
	if opErr != nil {
		event.ErrorKind = string(apierr.Of(opErr).Kind)
	}
	r.audit.Record(event)
}

func shouldAudit(action string, success bool) bool {
	if !success {
		return true
	}
	if authz.ActionCategory(action) != authz.CategoryRead {
		return true
	}
	return sensitiveReads[action]
}

// translate classifies a raw Docker client error into a docker.* kind
// unless it is already an *apierr.Error (e.g. one Execute itself produced).
func translate(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, circuit.ErrOpen) {
		return apierr.Wrap(apierr.KindHostUnavailable, "host circuit breaker is open", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierr.Wrap(apierr.KindDockerTimeout, "docker operation timed out", err)
	}
	if client.IsErrConnectionFailed(err) {
		return apierr.Wrap(apierr.KindDockerConnection, "docker connection failed", err)
	}
	return apierr.Wrap(apierr.KindDockerOperation, "docker operation failed", err)
}
