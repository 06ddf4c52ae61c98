package wsbridge

import (
	"net/http"
	"strings"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/log"
	"github.com/harborctl/controlplane/pkg/streams"
	"github.com/harborctl/controlplane/pkg/transport"
)

func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func (b *Bridge) reject(w http.ResponseWriter, err error) {
	apiErr := apierr.Of(err)
	http.Error(w, apiErr.Message, apiErr.HTTPStatus())
}

// ServeLogs handles GET /ws/containers/{id}/logs. hostID and containerID
// are the already-parsed route and query parameters; tail is the Docker
// "tail" log option (empty for "all").
func (b *Bridge) ServeLogs(w http.ResponseWriter, r *http.Request, hostID, containerID, tail string) {
	user, err := b.Authenticate(tokenFromRequest(r))
	if err != nil {
		b.reject(w, err)
		return
	}
	if err := b.authz.Decide(user, "container.logs.view", hostID); err != nil {
		b.reject(w, err)
		return
	}

	adapter, _, err := b.pool.Acquire(r.Context(), hostID)
	if err != nil {
		b.reject(w, err)
		return
	}

	selfMonitored := b.isSelfMonitored(r, adapter, containerID)

	ws, err := b.upgrade(w, r)
	if err != nil {
		log.WithComponent("wsbridge").Debug().Err(err).Msg("upgrade failed")
		return
	}

	origin := LogsOrigin(adapter, containerID, selfMonitored, tail)
	key := streams.Key{Kind: "logs", HostID: hostID, ResourceID: containerID, Fingerprint: tail}
	sub, unsubscribe := b.registry.Subscribe(key, origin)
	defer unsubscribe()

	b.runStream(r.Context(), ws, sub, FrameLog)
}

// ServeStats handles GET /ws/containers/{id}/stats.
func (b *Bridge) ServeStats(w http.ResponseWriter, r *http.Request, hostID, containerID string) {
	user, err := b.Authenticate(tokenFromRequest(r))
	if err != nil {
		b.reject(w, err)
		return
	}
	if err := b.authz.Decide(user, "container.stats.view", hostID); err != nil {
		b.reject(w, err)
		return
	}

	adapter, _, err := b.pool.Acquire(r.Context(), hostID)
	if err != nil {
		b.reject(w, err)
		return
	}

	ws, err := b.upgrade(w, r)
	if err != nil {
		log.WithComponent("wsbridge").Debug().Err(err).Msg("upgrade failed")
		return
	}

	origin := StatsOrigin(adapter, containerID)
	key := streams.Key{Kind: "stats", HostID: hostID, ResourceID: containerID}
	sub, unsubscribe := b.registry.Subscribe(key, origin)
	defer unsubscribe()

	b.runStream(r.Context(), ws, sub, FrameStats)
}

// ServeEvents handles GET /ws/events, a host-wide (not per-container)
// stream of Docker events filtered by events.ListOptions built from the
// request's query parameters by the caller.
func (b *Bridge) ServeEvents(w http.ResponseWriter, r *http.Request, hostID string, filter filters.Args) {
	user, err := b.Authenticate(tokenFromRequest(r))
	if err != nil {
		b.reject(w, err)
		return
	}
	if err := b.authz.Decide(user, "events.subscribe", hostID); err != nil {
		b.reject(w, err)
		return
	}

	adapter, _, err := b.pool.Acquire(r.Context(), hostID)
	if err != nil {
		b.reject(w, err)
		return
	}

	ws, err := b.upgrade(w, r)
	if err != nil {
		log.WithComponent("wsbridge").Debug().Err(err).Msg("upgrade failed")
		return
	}

	origin := EventsOrigin(adapter, events.ListOptions{Filters: filter}, b.selfMonitor)
	key := streams.Key{Kind: "events", HostID: hostID, Fingerprint: filter.String()}
	sub, unsubscribe := b.registry.Subscribe(key, origin)
	defer unsubscribe()

	b.runStream(r.Context(), ws, sub, FrameEvent)
}

// isSelfMonitored inspects containerID to decide whether it is the control
// plane's own container, so ServeLogs can apply the self-monitoring guard.
// Inspect failures are treated as "not self" rather than failing the
// stream outright.
func (b *Bridge) isSelfMonitored(r *http.Request, adapter *transport.Adapter, containerID string) bool {
	info, err := adapter.Client.ContainerInspect(r.Context(), containerID)
	if err != nil {
		log.WithComponent("wsbridge").Debug().Err(err).Str("container_id", containerID).Msg("inspect failed, assuming not self")
		return false
	}
	var labels map[string]string
	if info.Config != nil {
		labels = info.Config.Labels
	}
	return b.selfMonitor.Matches(info.Name, labels)
}
