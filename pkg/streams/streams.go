package streams

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harborctl/controlplane/pkg/log"
)

// Frame is one unit of a shared stream: one log line, one stats sample, or
// one Docker event.
type Frame struct {
	Seq       uint64
	Kind      string
	Timestamp time.Time
	Data      []byte
}

// Key identifies a SharedStream. Two subscriptions with the same Key share
// one upstream Docker connection.
type Key struct {
	Kind        string // "logs", "stats", "events"
	HostID      string
	ResourceID  string
	Fingerprint string // serialized request parameters (tail lines, since, ...)
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.Kind, k.HostID, k.ResourceID, k.Fingerprint)
}

// Origin produces frames for a SharedStream until ctx is canceled. It must
// call emit for every frame and return when ctx.Done() closes.
type Origin func(ctx context.Context, emit func(Frame)) error

// Subscriber receives frames from one SharedStream.
type Subscriber struct {
	ch       chan Frame
	dropped  int
	stream   *SharedStream
	closed   bool
	mu       sync.Mutex
}

// C returns the channel frames arrive on. It is closed when the
// subscription ends, either by Unsubscribe or by the slow-consumer guard.
func (s *Subscriber) C() <-chan Frame { return s.ch }

// Dropped returns how many frames this subscriber has missed due to a full
// buffer.
func (s *Subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscriber) closeOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// SharedStream fans one Origin's frames out to many Subscribers, keeping a
// ring buffer of the most recent frames so a newly joined subscriber can
// catch up without replaying the full history.
type SharedStream struct {
	key Key

	mu          sync.Mutex
	subscribers map[*Subscriber]bool
	ring        []Frame
	ringCap     int
	nextSeq     uint64

	subBufSize    int
	dropThreshold int

	cancel      context.CancelFunc
	lingerTimer *time.Timer
	lingerDur   time.Duration
	onIdle      func()
	running     bool
}

func newSharedStream(key Key, ringCap, subBufSize, dropThreshold int, lingerDur time.Duration, onIdle func()) *SharedStream {
	return &SharedStream{
		key:           key,
		subscribers:   make(map[*Subscriber]bool),
		ringCap:       ringCap,
		subBufSize:    subBufSize,
		dropThreshold: dropThreshold,
		lingerDur:     lingerDur,
		onIdle:        onIdle,
	}
}

// start launches origin in a goroutine that feeds publish until the last
// subscriber detaches and the linger timer expires.
func (s *SharedStream) start(origin Origin) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	logger := log.WithStreamID(s.key.String())

	go func() {
		if err := origin(ctx, s.publish); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("stream origin ended with error")
		}
	}()
}

func (s *SharedStream) publish(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f.Seq = s.nextSeq
	s.nextSeq++

	s.ring = append(s.ring, f)
	if len(s.ring) > s.ringCap {
		s.ring = s.ring[len(s.ring)-s.ringCap:]
	}

	for sub := range s.subscribers {
		select {
		case sub.ch <- f:
		default:
			sub.mu.Lock()
			sub.dropped++
			drop := len(sub.ch)+sub.dropped > s.dropThreshold
			sub.mu.Unlock()
			if drop {
				delete(s.subscribers, sub)
				sub.closeOnce()
			}
		}
	}
}

// subscribe attaches a new Subscriber, replaying the current ring buffer
// before live frames arrive so a caller never misses what is already
// buffered.
func (s *SharedStream) subscribe() *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lingerTimer != nil {
		s.lingerTimer.Stop()
		s.lingerTimer = nil
	}

	sub := &Subscriber{ch: make(chan Frame, s.subBufSize), stream: s}
	for _, f := range s.ring {
		sub.ch <- f
	}
	s.subscribers[sub] = true
	return sub
}

func (s *SharedStream) unsubscribe(sub *Subscriber) {
	s.mu.Lock()
	_, ok := s.subscribers[sub]
	if ok {
		delete(s.subscribers, sub)
	}
	empty := len(s.subscribers) == 0
	s.mu.Unlock()

	if ok {
		sub.closeOnce()
	}
	if empty {
		s.armLinger()
	}
}

func (s *SharedStream) armLinger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscribers) > 0 || s.lingerTimer != nil {
		return
	}
	s.lingerTimer = time.AfterFunc(s.lingerDur, func() {
		s.mu.Lock()
		stillEmpty := len(s.subscribers) == 0
		s.mu.Unlock()
		if stillEmpty {
			s.teardown()
		}
	})
}

func (s *SharedStream) teardown() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	onIdle := s.onIdle
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if onIdle != nil {
		onIdle()
	}
}

// SubscriberCount reports how many active subscribers this stream has.
func (s *SharedStream) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}
