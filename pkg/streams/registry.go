package streams

import (
	"sync"
	"time"
)

// RegistryConfig configures every SharedStream the Registry creates.
type RegistryConfig struct {
	RingBufferSize     int
	SubscriberBufSize  int
	SlowConsumerDropAt int
	LingerDuration     time.Duration
}

// Registry is the Stream Registry: the single point through which C11
// acquires a subscription to a Host's logs/stats/events, deduplicating
// concurrent callers onto one upstream Origin per Key.
type Registry struct {
	cfg RegistryConfig

	mu      sync.Mutex
	streams map[string]*SharedStream
}

// NewRegistry constructs a Registry. Zero-valued cfg fields fall back to
// conservative defaults.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.RingBufferSize <= 0 {
		cfg.RingBufferSize = 64
	}
	if cfg.SubscriberBufSize <= 0 {
		cfg.SubscriberBufSize = 64
	}
	if cfg.SlowConsumerDropAt <= 0 {
		cfg.SlowConsumerDropAt = cfg.SubscriberBufSize
	}
	if cfg.LingerDuration <= 0 {
		cfg.LingerDuration = 10 * time.Second
	}
	return &Registry{cfg: cfg, streams: make(map[string]*SharedStream)}
}

// Subscribe returns a Subscriber to the SharedStream identified by key,
// starting origin if this is the first subscriber. unsubscribe must be
// called exactly once when the caller is done.
func (r *Registry) Subscribe(key Key, origin Origin) (sub *Subscriber, unsubscribe func()) {
	r.mu.Lock()
	stream, ok := r.streams[key.String()]
	if !ok {
		stream = newSharedStream(key, r.cfg.RingBufferSize, r.cfg.SubscriberBufSize, r.cfg.SlowConsumerDropAt, r.cfg.LingerDuration, func() {
			r.mu.Lock()
			delete(r.streams, key.String())
			r.mu.Unlock()
		})
		r.streams[key.String()] = stream
		stream.start(origin)
	}
	r.mu.Unlock()

	sub = stream.subscribe()
	return sub, func() { stream.unsubscribe(sub) }
}

// ActiveStreams reports how many distinct SharedStreams the Registry
// currently holds, including ones lingering with no subscribers.
func (r *Registry) ActiveStreams() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.streams)
}

// TotalSubscribers sums subscribers across every active stream.
func (r *Registry) TotalSubscribers() int {
	r.mu.Lock()
	streams := make([]*SharedStream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.Unlock()

	total := 0
	for _, s := range streams {
		total += s.SubscriberCount()
	}
	return total
}
