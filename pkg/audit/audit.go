package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/harborctl/controlplane/pkg/log"
	"github.com/harborctl/controlplane/pkg/metrics"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/types"
)

// Event is what a caller hands to Record; Recorder fills in ID and
// Timestamp.
type Event struct {
	UserID    string
	Username  string
	Action    string
	HostID    string
	Success   bool
	ErrorKind string
	Details   map[string]any
}

// Recorder is the Audit Recorder.
type Recorder struct {
	store storage.Store
	queue chan *types.AuditEvent
	done  chan struct{}
}

// NewRecorder constructs a Recorder with a queue of the given depth and
// starts its drain goroutine.
func NewRecorder(store storage.Store, queueDepth int) *Recorder {
	if queueDepth <= 0 {
		queueDepth = 1024
	}
	r := &Recorder{
		store: store,
		queue: make(chan *types.AuditEvent, queueDepth),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

// Record enqueues e for asynchronous persistence. If the queue is full it
// writes synchronously instead of dropping the event, since every
// write-side operation must be recorded before its caller is acknowledged.
func (r *Recorder) Record(e Event) {
	record := toStoredEvent(e)

	select {
	case r.queue <- record:
	default:
		metrics.AuditDroppedTotal.Inc()
		if err := r.store.CreateAuditEvent(record); err != nil {
			log.WithComponent("audit").Error().Err(err).Str("action", e.Action).Msg("synchronous audit write failed")
		}
	}
	metrics.AuditQueueDepth.Set(float64(len(r.queue)))
}

// Close stops the drain goroutine after flushing whatever is already
// queued.
func (r *Recorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *Recorder) drain() {
	defer close(r.done)
	logger := log.WithComponent("audit")
	for record := range r.queue {
		if err := r.store.CreateAuditEvent(record); err != nil {
			logger.Error().Err(err).Str("action", record.Action).Msg("audit write failed")
		}
		metrics.AuditQueueDepth.Set(float64(len(r.queue)))
	}
}

func toStoredEvent(e Event) *types.AuditEvent {
	var details json.RawMessage
	if e.Details != nil {
		if b, err := json.Marshal(e.Details); err == nil {
			details = b
		}
	}
	return &types.AuditEvent{
		ID:        uuid.NewString(),
		UserID:    e.UserID,
		Username:  e.Username,
		Action:    e.Action,
		HostID:    e.HostID,
		Success:   e.Success,
		ErrorKind: e.ErrorKind,
		Details:   details,
		Timestamp: time.Now(),
	}
}
