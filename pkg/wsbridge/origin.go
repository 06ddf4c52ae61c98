package wsbridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"

	"github.com/harborctl/controlplane/pkg/streams"
	"github.com/harborctl/controlplane/pkg/transport"
)

// selfLogMarker is the zerolog field every log line this package writes
// carries. A self-monitoring stream drops any frame containing it so the
// process's own structured logging about this very stream does not feed
// back in.
var selfLogMarker = []byte(`"component":"wsbridge"`)

// LogsOrigin builds a streams.Origin that tails containerID's logs over
// adapter. When selfMonitored is set, frames carrying this process's own
// log marker are dropped.
func LogsOrigin(adapter *transport.Adapter, containerID string, selfMonitored bool, tail string) streams.Origin {
	return func(ctx context.Context, emit func(streams.Frame)) error {
		opts := container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
			Tail:       tail,
			Timestamps: true,
		}
		reader, err := adapter.Client.ContainerLogs(ctx, containerID, opts)
		if err != nil {
			return err
		}
		defer reader.Close()

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			line := scanner.Bytes()
			if selfMonitored && bytes.Contains(line, selfLogMarker) {
				continue
			}
			data := make([]byte, len(line))
			copy(data, line)
			emit(streams.Frame{Kind: "log", Timestamp: time.Now(), Data: data})
		}
		return scanner.Err()
	}
}

// StatsOrigin builds a streams.Origin that decodes containerID's streaming
// stats into one Frame per sample, JSON-encoded from a raw
// dockertypes.StatsJSON.
func StatsOrigin(adapter *transport.Adapter, containerID string) streams.Origin {
	return func(ctx context.Context, emit func(streams.Frame)) error {
		resp, err := adapter.Client.ContainerStats(ctx, containerID, true)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var stat dockertypes.StatsJSON
			if err := decoder.Decode(&stat); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			data, err := json.Marshal(&stat)
			if err != nil {
				continue
			}
			emit(streams.Frame{Kind: "stats", Timestamp: time.Now(), Data: data})
		}
	}
}

// EventsOrigin builds a streams.Origin over the host's Docker event feed,
// scoped by filter, dropping events from containers that policy marks as
// the control plane's own.
func EventsOrigin(adapter *transport.Adapter, filter events.ListOptions, policy SelfMonitorPolicy) streams.Origin {
	return func(ctx context.Context, emit func(streams.Frame)) error {
		msgCh, errCh := adapter.Client.Events(ctx, filter)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case err := <-errCh:
				return err
			case msg, ok := <-msgCh:
				if !ok {
					return nil
				}
				if msg.Type == events.ContainerEventType && policy.Matches(msg.Actor.Attributes["name"], msg.Actor.Attributes) {
					continue
				}
				data, err := json.Marshal(&msg)
				if err != nil {
					continue
				}
				emit(streams.Frame{Kind: "event", Timestamp: time.Now(), Data: data})
			}
		}
	}
}
