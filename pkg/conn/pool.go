package conn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/circuit"
	"github.com/harborctl/controlplane/pkg/log"
	"github.com/harborctl/controlplane/pkg/metrics"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/streams"
	"github.com/harborctl/controlplane/pkg/transport"
	"github.com/harborctl/controlplane/pkg/types"
)

// CredentialResolver decrypts a Host's stored credentials into the form
// pkg/transport needs. pkg/hostregistry implements this by reading C5's
// storage and calling through pkg/vault.
type CredentialResolver interface {
	Resolve(ctx context.Context, hostID string) (*transport.Credentials, error)
}

// Config configures the Connection Manager's breaker and probe behavior.
type Config struct {
	DockerAPITimeout     time.Duration
	BreakerFailThreshold int
	BreakerOpenDuration  time.Duration
	BreakerHalfOpenMax   int
	ProbeInterval        time.Duration
	PingTimeout          time.Duration
}

type entry struct {
	mu      sync.Mutex
	host    *types.Host
	adapter *transport.Adapter
	breaker *circuit.Breaker
	lastErr string
}

// Pool is the Connection Manager: it owns one transport.Adapter and one
// circuit.Breaker per Host, rebuilding the adapter on demand and
// invalidating it whenever C5 reports the Host's credentials or transport
// changed.
type Pool struct {
	cfg      Config
	store    storage.Store
	resolver CredentialResolver

	mu      sync.Mutex
	entries map[string]*entry

	stopCh chan struct{}
}

// NewPool constructs a Pool. Call SubscribeChanges(changes) to wire host change
// notifications from C5, and Start to begin the probe loop.
func NewPool(cfg Config, store storage.Store, resolver CredentialResolver) *Pool {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 5 * time.Second
	}
	return &Pool{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		entries:  make(map[string]*entry),
		stopCh:   make(chan struct{}),
	}
}

// SubscribeChanges invalidates a Host's cached adapter whenever changes
// publishes its ID, so updated credentials or transport settings take
// effect on the next Acquire instead of a stale connection.
func (p *Pool) SubscribeChanges(changes *streams.Broker[string]) {
	ch := changes.Subscribe()
	go func() {
		for hostID := range ch {
			p.Invalidate(hostID)
		}
	}()
}

func (p *Pool) getOrCreateEntry(host *types.Host) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[host.ID]
	if ok {
		return e
	}
	breaker, _ := circuit.New(circuit.Config{
		FailThreshold: p.cfg.BreakerFailThreshold,
		OpenDuration:  p.cfg.BreakerOpenDuration,
		HalfOpenMax:   p.cfg.BreakerHalfOpenMax,
	})
	e = &entry{host: host, breaker: breaker}
	p.entries[host.ID] = e
	return e
}

// Acquire returns the live adapter and breaker for hostID, building the
// adapter on first use or after Invalidate. The breaker's Allow must still
// be consulted by the caller before issuing the actual Docker call; Acquire
// only guarantees an adapter exists, not that the breaker is Closed.
func (p *Pool) Acquire(ctx context.Context, hostID string) (*transport.Adapter, *circuit.Breaker, error) {
	host, err := p.store.GetHost(hostID)
	if err != nil {
		return nil, nil, apierr.Wrap(apierr.KindHostNotFound, fmt.Sprintf("host %s not found", hostID), err)
	}

	e := p.getOrCreateEntry(host)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.adapter != nil {
		return e.adapter, e.breaker, nil
	}

	creds, err := p.resolver.Resolve(ctx, hostID)
	if err != nil {
		e.lastErr = err.Error()
		return nil, e.breaker, apierr.Wrap(apierr.KindHostCredentialMissing, fmt.Sprintf("credentials unavailable for host %s", hostID), err)
	}

	adapter, err := transport.New(host, creds, p.cfg.DockerAPITimeout)
	if err != nil {
		e.lastErr = err.Error()
		return nil, e.breaker, apierr.Wrap(apierr.KindDockerConnection, fmt.Sprintf("connect to host %s", hostID), err)
	}

	e.adapter = adapter
	e.lastErr = ""
	return e.adapter, e.breaker, nil
}

// Invalidate closes and discards hostID's cached adapter, if any, so the
// next Acquire rebuilds it from current credentials.
func (p *Pool) Invalidate(hostID string) {
	p.mu.Lock()
	e, ok := p.entries[hostID]
	p.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.adapter != nil {
		_ = e.adapter.Close()
		e.adapter = nil
	}
}

// Remove drops hostID entirely, for use when C5 deletes the Host.
func (p *Pool) Remove(hostID string) {
	p.Invalidate(hostID)
	p.mu.Lock()
	delete(p.entries, hostID)
	p.mu.Unlock()
}

// Status reports the breaker state and last connection error for hostID,
// for the Dashboard aggregate and for GET /hosts/{id}/status.
type Status struct {
	BreakerState string
	LastError    string
}

func (p *Pool) Status(hostID string) Status {
	p.mu.Lock()
	e, ok := p.entries[hostID]
	p.mu.Unlock()
	if !ok {
		return Status{BreakerState: circuit.Closed.String()}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{BreakerState: e.breaker.State().String(), LastError: e.lastErr}
}

// Start launches the background probe loop that pings every known Host on
// an interval, tripping or recovering its breaker as pkg/circuit dictates.
func (p *Pool) Start() {
	go p.probeLoop()
}

// Stop ends the probe loop and closes every pooled adapter.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		e.mu.Lock()
		if e.adapter != nil {
			_ = e.adapter.Close()
		}
		e.mu.Unlock()
	}
}

func (p *Pool) probeLoop() {
	ticker := time.NewTicker(p.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.probeAll()
		case <-p.stopCh:
			return
		}
	}
}

// probeAll pings every known Host through its pooled adapter, mirroring the
// reconciler's sweep: iterate the full set each tick and log past a single
// Host's failure rather than aborting the cycle.
func (p *Pool) probeAll() {
	logger := log.WithComponent("conn-pool")

	hosts, err := p.store.ListHosts()
	if err != nil {
		logger.Warn().Err(err).Msg("list hosts for probe sweep")
		return
	}

	p.mu.Lock()
	metrics.HostPoolSize.Set(float64(len(p.entries)))
	p.mu.Unlock()

	for _, host := range hosts {
		p.probeOne(host)
	}
}

func (p *Pool) probeOne(host *types.Host) {
	logger := log.WithHostID(host.ID)

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.PingTimeout)
	defer cancel()

	adapter, breaker, err := p.Acquire(ctx, host.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("acquire adapter for probe")
		metrics.HostProbeFailuresTotal.WithLabelValues(host.ID).Inc()
		return
	}

	metrics.HostBreakerState.WithLabelValues(host.ID).Set(float64(breaker.State()))

	gen, err := breaker.Allow()
	if err != nil {
		// Breaker is open; skip the probe but still report its state.
		return
	}

	_, pingErr := adapter.Client.Ping(ctx)
	breaker.RecordResult(gen, pingErr)
	state := breaker.State()
	metrics.HostBreakerState.WithLabelValues(host.ID).Set(float64(state))

	if pingErr != nil {
		logger.Warn().Err(pingErr).Msg("docker ping probe failed")
		metrics.HostProbeFailuresTotal.WithLabelValues(host.ID).Inc()
		p.setLastErr(host.ID, pingErr.Error())
		p.persistStatus(host, state, false)
		return
	}
	p.setLastErr(host.ID, "")
	p.persistStatus(host, state, true)
}

// persistStatus writes the probe's outcome back onto the Host record so the
// Dashboard and Host Registry can report reachability without the pool
// being warm. A Host still in setup-pending only ever leaves that status on
// its first successful probe; failures before that point do not downgrade
// it, since setup has not completed yet.
func (p *Pool) persistStatus(host *types.Host, state circuit.State, healthy bool) {
	next := host.Status
	switch {
	case healthy:
		next = types.HostHealthy
	case host.Status == types.HostSetupPending:
		// leave as-is
	case state == circuit.Open:
		next = types.HostUnreachable
	default:
		next = types.HostUnhealthy
	}
	if next == host.Status {
		host.LastCheckAt = time.Now()
		_ = p.store.UpdateHost(host)
		return
	}
	host.Status = next
	host.LastCheckAt = time.Now()
	if err := p.store.UpdateHost(host); err != nil {
		log.WithHostID(host.ID).Warn().Err(err).Msg("persist host status")
	}
}

func (p *Pool) setLastErr(hostID, msg string) {
	p.mu.Lock()
	e, ok := p.entries[hostID]
	p.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	e.lastErr = msg
	e.mu.Unlock()
}
