// Package poller keeps the dashboard state in sync with the bot backend.
//
// Every tick launches three independent fetches (QR, status, user count).
// Fetches never wait on each other or on the previous tick, so the last
// response to land wins. Failures are logged and leave the previous value in
// place; the next tick is the only recovery.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/botpanel/botpanel/internal/metrics"
	"github.com/botpanel/botpanel/internal/notify"
	"github.com/botpanel/botpanel/internal/session"
)

// Backend is the subset of the bot backend the poller talks to.
type Backend interface {
	FetchQR(ctx context.Context) (string, error)
	FetchStatus(ctx context.Context) (string, error)
	FetchUserCount(ctx context.Context) (int, error)
	Logout(ctx context.Context) error
}

// State is a snapshot of everything the dashboard renders from.
type State struct {
	QR        string         `json:"qr,omitempty"`
	HasQR     bool           `json:"has_qr"`
	RawStatus string         `json:"raw_status"`
	Status    session.Status `json:"status"`
	UserCount int            `json:"user_count"`
	Loading   bool           `json:"loading"`
	LastPoll  time.Time      `json:"last_poll"`
}

// Options configures a Poller.
type Options struct {
	Interval         time.Duration
	FailureThreshold int
}

// Poller owns the polled state.
type Poller struct {
	mu       sync.RWMutex
	state    State
	health   map[Endpoint]*EndpointHealth
	ready    bool
	disposed bool

	backend  Backend
	session  *session.Session
	notifier notify.Notifier
	metrics  *metrics.Collector

	interval         time.Duration
	failureThreshold int
	intervalCh       chan time.Duration

	onQRChange func(qr string)

	toggleMu sync.Mutex
	toggling bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	inflight sync.WaitGroup
}

// New creates a poller. m may be nil.
func New(b Backend, s *session.Session, n notify.Notifier, m *metrics.Collector, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		health:           make(map[Endpoint]*EndpointHealth),
		backend:          b,
		session:          s,
		notifier:         n,
		metrics:          m,
		interval:         opts.Interval,
		failureThreshold: opts.FailureThreshold,
		intervalCh:       make(chan time.Duration, 1),
		ctx:              ctx,
		cancel:           cancel,
		stopCh:           make(chan struct{}),
	}
}

// SetOnQRChange registers a hook called whenever the QR value changes.
// Must be called before Start.
func (p *Poller) SetOnQRChange(fn func(qr string)) {
	p.onQRChange = fn
}

// Start fires one tick immediately and then one every interval.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run()
	}()
	slog.Info("poller started", "interval", p.Interval(), "threshold", p.failureThreshold)
}

// Stop cancels the timer and any in-flight requests and discards every
// response that lands afterwards. Safe to call multiple times.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.disposed = true
		p.mu.Unlock()
		close(p.stopCh)
		p.cancel()
	})
	p.wg.Wait()
	p.inflight.Wait()
	slog.Info("poller stopped")
}

// Interval returns the current tick interval.
func (p *Poller) Interval() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.interval
}

// SetInterval changes the tick interval of a running poller.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	changed := d != p.interval
	p.interval = d
	p.mu.Unlock()
	if !changed {
		return
	}

	// Keep only the newest pending value.
	select {
	case <-p.intervalCh:
	default:
	}
	p.intervalCh <- d
	slog.Info("poll interval changed", "interval", d)
}

func (p *Poller) run() {
	p.tick()

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.tick()
		case d := <-p.intervalCh:
			ticker.Reset(d)
		case <-p.stopCh:
			return
		}
	}
}

// tick launches the three fetches without waiting for them.
func (p *Poller) tick() {
	fetches := []func(context.Context) error{p.fetchQR, p.fetchStatus, p.fetchUserCount}

	p.inflight.Add(len(fetches))
	for _, fetch := range fetches {
		fetch := fetch
		go func() {
			defer p.inflight.Done()
			fetch(p.ctx)
		}()
	}
}

// State returns a copy of the current state.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Ready reports whether a status fetch has succeeded at least once.
func (p *Poller) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// update applies fn to the state unless the poller has been stopped.
func (p *Poller) update(fn func(*State)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return false
	}
	fn(&p.state)
	return true
}

func (p *Poller) fetchQR(ctx context.Context) error {
	start := time.Now()
	qr, err := p.backend.FetchQR(ctx)
	p.recordResult(EndpointQR, start, err)
	if err != nil {
		slog.Warn("fetching QR failed", "err", err)
		return err
	}

	var changed bool
	applied := p.update(func(s *State) {
		changed = s.QR != qr
		s.QR = qr
		s.HasQR = qr != ""
		s.LastPoll = time.Now()
	})
	if !applied {
		return nil
	}

	if p.metrics != nil {
		p.metrics.SetQRPresent(qr != "")
	}
	if changed && p.onQRChange != nil {
		p.onQRChange(qr)
	}
	return nil
}

func (p *Poller) fetchStatus(ctx context.Context) error {
	start := time.Now()
	raw, err := p.backend.FetchStatus(ctx)
	p.recordResult(EndpointStatus, start, err)
	if err != nil {
		slog.Warn("fetching status failed", "err", err)
		return err
	}

	st := session.ParseStatus(raw)
	var prev session.Status
	applied := p.update(func(s *State) {
		prev = s.Status
		s.RawStatus = raw
		s.Status = st
		s.LastPoll = time.Now()
	})
	if !applied {
		return nil
	}

	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()

	if prev != st {
		slog.Info("bot status changed", "status", st, "raw", raw)
	}
	if p.metrics != nil {
		p.metrics.SetBotActive(st.IsActive())
	}

	if p.session.Observe(ctx, st) {
		p.notifier.Notify(notify.LevelSuccess, "Conexión exitosa", "El bot está conectado a WhatsApp", 2500*time.Millisecond)
	}
	return nil
}

func (p *Poller) fetchUserCount(ctx context.Context) error {
	start := time.Now()
	n, err := p.backend.FetchUserCount(ctx)
	p.recordResult(EndpointUsers, start, err)
	if err != nil {
		slog.Warn("fetching user count failed", "err", err)
		return err
	}

	applied := p.update(func(s *State) {
		s.UserCount = n
		s.LastPoll = time.Now()
	})
	if applied && p.metrics != nil {
		p.metrics.SetConnectedUsers(n)
	}
	return nil
}
