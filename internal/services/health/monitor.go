// Package health tracks provider availability from periodic probes and from
// the outcome of real launch attempts.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/fastprodman/gamegateway/internal/providers"
	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusOnline   Status = "online"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 5 * time.Second
	DefaultWindow   = 20
)

// ProviderStatus is the current view of one provider.
type ProviderStatus struct {
	ProviderID          string        `json:"providerId"`
	Status              Status        `json:"status"`
	LastResponseTime    time.Duration `json:"-"`
	LastResponseMs      int64         `json:"lastResponseTimeMs"`
	LastCheck           time.Time     `json:"lastCheck"`
	ErrorRate           float64       `json:"errorRate"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	LastError           string        `json:"lastError,omitempty"`
}

// Observation is the result of one probe or launch attempt. At is when the
// attempt started.
type Observation struct {
	At       time.Time
	Duration time.Duration
	Err      error
}

type Prober interface {
	Probe(ctx context.Context, d providers.Descriptor) error
}

type Registry interface {
	Enabled() []providers.Descriptor
}

type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	// Window is how many recent observations the error rate covers.
	Window int
}

type cell struct {
	mu      sync.Mutex
	status  ProviderStatus
	lastAt  time.Time
	seen    bool
	outcome []bool // ring of recent results, true = failure
	next    int
	filled  int
}

type Monitor struct {
	reg    Registry
	prober Prober
	opts   Options

	mu    sync.RWMutex
	cells map[string]*cell
}

func NewMonitor(reg Registry, prober Prober, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if opts.Timeout >= opts.Interval {
		slog.Warn("probe timeout not shorter than interval, clamping",
			"timeout", opts.Timeout, "interval", opts.Interval)

		opts.Timeout = opts.Interval / 2
	}

	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}

	return &Monitor{
		reg:    reg,
		prober: prober,
		opts:   opts,
		cells:  make(map[string]*cell),
	}
}

// Classify maps an attempt error to the status it implies.
func Classify(err error) Status {
	if err == nil {
		return StatusOnline
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return StatusOffline
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusOffline
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return StatusOffline
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return StatusOffline
	}

	return StatusDegraded
}

func (m *Monitor) cell(id string) *cell {
	m.mu.RLock()
	c, ok := m.cells[id]
	m.mu.RUnlock()

	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok = m.cells[id]
	if !ok {
		c = &cell{
			status:  ProviderStatus{ProviderID: id},
			outcome: make([]bool, m.opts.Window),
		}
		m.cells[id] = c
	}

	return c
}

// Record applies obs to the provider's status. Observations that started
// before the last applied one are dropped.
func (m *Monitor) Record(id string, obs Observation) {
	c := m.cell(id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seen && obs.At.Before(c.lastAt) {
		return
	}

	c.seen = true
	c.lastAt = obs.At

	failed := obs.Err != nil

	c.outcome[c.next] = failed
	c.next = (c.next + 1) % len(c.outcome)
	if c.filled < len(c.outcome) {
		c.filled++
	}

	failures := 0
	for i := range c.filled {
		if c.outcome[i] {
			failures++
		}
	}

	s := &c.status
	s.Status = Classify(obs.Err)
	s.LastResponseTime = obs.Duration
	s.LastResponseMs = obs.Duration.Milliseconds()
	s.LastCheck = obs.At.Add(obs.Duration)
	s.ErrorRate = float64(failures) / float64(c.filled)

	if failed {
		s.ConsecutiveFailures++
		s.LastError = obs.Err.Error()
	} else {
		s.ConsecutiveFailures = 0
		s.LastError = ""
	}
}

// Status returns the provider's status. ok is false until the first
// observation.
func (m *Monitor) Status(id string) (ProviderStatus, bool) {
	m.mu.RLock()
	c, ok := m.cells[id]
	m.mu.RUnlock()

	if !ok {
		return ProviderStatus{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status, c.seen
}

// Snapshot returns every observed provider sorted by id.
func (m *Monitor) Snapshot() []ProviderStatus {
	m.mu.RLock()
	cells := make([]*cell, 0, len(m.cells))
	for _, c := range m.cells {
		cells = append(cells, c)
	}
	m.mu.RUnlock()

	out := make([]ProviderStatus, 0, len(cells))

	for _, c := range cells {
		c.mu.Lock()
		if c.seen {
			out = append(out, c.status)
		}
		c.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })

	return out
}

// Run probes every enabled provider now and then on every interval until ctx
// is done. A round finishes before the next one can start.
func (m *Monitor) Run(ctx context.Context) {
	m.ProbeAll(ctx)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ProbeAll(ctx)
		}
	}
}

// ProbeAll runs one probe round and waits for it.
func (m *Monitor) ProbeAll(ctx context.Context) {
	var g errgroup.Group

	for _, d := range m.reg.Enabled() {
		g.Go(func() error {
			m.probe(ctx, d)

			return nil
		})
	}

	_ = g.Wait()
}

func (m *Monitor) probe(ctx context.Context, d providers.Descriptor) {
	pctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := m.prober.Probe(pctx, d)

	if ctx.Err() != nil {
		// Shutdown, not a provider fault.
		return
	}

	m.Record(d.ID, Observation{At: start, Duration: time.Since(start), Err: err})

	if err != nil {
		slog.Warn("provider probe failed", "provider", d.ID, "status", Classify(err), "error", err)
	}
}
