package httpapi

import (
	"context"
	"net/http"

	dockercontainer "github.com/docker/docker/api/types/container"
	dockerimage "github.com/docker/docker/api/types/image"
	dockervolume "github.com/docker/docker/api/types/volume"

	"github.com/harborctl/controlplane/pkg/log"
	"github.com/harborctl/controlplane/pkg/types"
)

// handleDashboard aggregates one DashboardHost row per known Host. A host
// whose breaker is open or whose adapter cannot be acquired still gets a
// row, just with zeroed counts and its LastProbeError populated, rather
// than dropping it from the response — a dead host is exactly what this
// view exists to surface.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	hosts, err := s.hosts.ListHosts()
	if err != nil {
		respondError(w, r, err)
		return
	}

	cache := authzCacheFromContext(r)
	user := userFromContext(r)
	rows := make([]types.DashboardHost, 0, len(hosts))
	for _, h := range hosts {
		if cache.Decide(user, "host.inspect", h.ID) != nil {
			continue
		}
		rows = append(rows, s.dashboardRow(r.Context(), h))
	}
	respondOK(w, r, http.StatusOK, rows)
}

func (s *Server) dashboardRow(ctx context.Context, h *types.Host) types.DashboardHost {
	row := types.DashboardHost{HostID: h.ID, Name: h.Name}
	status := s.pool.Status(h.ID)
	row.BreakerState = status.BreakerState
	row.LastProbeError = status.LastError

	adapter, breaker, err := s.pool.Acquire(ctx, h.ID)
	if err != nil {
		row.LastProbeError = err.Error()
		return row
	}
	if _, allowErr := breaker.Allow(); allowErr != nil {
		return row
	}

	if containers, err := adapter.Client.ContainerList(ctx, dockercontainer.ListOptions{All: true}); err == nil {
		row.Containers = len(containers)
	} else {
		log.WithHostID(h.ID).Debug().Err(err).Msg("dashboard: list containers")
	}
	if images, err := adapter.Client.ImageList(ctx, dockerimage.ListOptions{}); err == nil {
		row.Images = len(images)
	} else {
		log.WithHostID(h.ID).Debug().Err(err).Msg("dashboard: list images")
	}
	if volumes, err := adapter.Client.VolumeList(ctx, dockervolume.ListOptions{}); err == nil {
		row.Volumes = len(volumes.Volumes)
	} else {
		log.WithHostID(h.ID).Debug().Err(err).Msg("dashboard: list volumes")
	}
	return row
}
