// Package circuit implements the three-state circuit breaker guarding each
// Host's Docker connection: Closed (normal), Open (failing fast), HalfOpen
// (probing recovery). It keeps gravitational-teleport's api/breaker
// generation-counter technique, which lets a result computed against a
// stale state transition (e.g. a HalfOpen probe that is still in flight
// when the breaker reopens) be discarded instead of incorrectly closing a
// breaker that has already tripped again.
package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the breaker's externally visible state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Allow when the breaker is in the Open state.
var ErrOpen = errors.New("circuit: breaker is open")

// Config configures a Breaker.
type Config struct {
	// FailThreshold is the number of consecutive failures in Closed state
	// that trips the breaker to Open.
	FailThreshold int
	// OpenDuration is how long the breaker stays Open before allowing a
	// HalfOpen probe.
	OpenDuration time.Duration
	// HalfOpenMax is how many concurrent trial requests HalfOpen allows.
	HalfOpenMax int
	// Clock is the time source; defaults to clockwork.NewRealClock().
	Clock clockwork.Clock
}

// Breaker is a per-Host circuit breaker.
type Breaker struct {
	cfg Config

	mu                  sync.Mutex
	state               State
	generation          uint64
	consecutiveFailures int
	halfOpenInFlight    int
	expiry              time.Time
}

// New constructs a Breaker starting Closed.
func New(cfg Config) (*Breaker, error) {
	if cfg.FailThreshold <= 0 {
		return nil, fmt.Errorf("circuit: FailThreshold must be positive")
	}
	if cfg.OpenDuration <= 0 {
		return nil, fmt.Errorf("circuit: OpenDuration must be positive")
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Breaker{cfg: cfg, state: Closed, generation: 1}, nil
}

// State returns the breaker's current state, applying any pending Open ->
// HalfOpen transition first.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeExpireLocked()
	return b.state
}

func (b *Breaker) maybeExpireLocked() {
	if b.state == Open && !b.expiry.IsZero() && !b.cfg.Clock.Now().Before(b.expiry) {
		b.transitionLocked(HalfOpen)
		b.halfOpenInFlight = 0
	}
}

func (b *Breaker) transitionLocked(to State) {
	b.state = to
	b.generation++
	b.consecutiveFailures = 0
	if to == Open {
		b.expiry = b.cfg.Clock.Now().Add(b.cfg.OpenDuration)
	}
}

// Allow reports whether a call may proceed, returning the generation token
// RecordResult must be called with. ErrOpen is returned when the call must
// be rejected without touching the Host.
func (b *Breaker) Allow() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeExpireLocked()

	switch b.state {
	case Closed:
		return b.generation, nil
	case Open:
		return b.generation, ErrOpen
	case HalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMax {
			return b.generation, ErrOpen
		}
		b.halfOpenInFlight++
		return b.generation, nil
	default:
		return b.generation, ErrOpen
	}
}

// RecordResult reports the outcome of a call admitted by Allow. Results
// from a stale generation (the breaker transitioned while the call was in
// flight) are discarded.
func (b *Breaker) RecordResult(generation uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if generation != b.generation {
		return
	}

	switch b.state {
	case Closed:
		if err != nil {
			b.consecutiveFailures++
			if b.consecutiveFailures >= b.cfg.FailThreshold {
				b.transitionLocked(Open)
			}
		} else {
			b.consecutiveFailures = 0
		}
	case HalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		if err != nil {
			b.transitionLocked(Open)
		} else {
			b.transitionLocked(Closed)
		}
	case Open:
		// A result arriving after the breaker already reopened under a new
		// generation is filtered out above; nothing to do here.
	}
}
