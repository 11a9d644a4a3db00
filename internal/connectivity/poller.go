package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

const (
	// DefaultInterval is the time between probes.
	DefaultInterval = 15 * time.Second

	// DefaultProbeTimeout bounds a single probe.
	DefaultProbeTimeout = 5 * time.Second
)

// ProbeFunc reports whether the network is usable right now.
type ProbeFunc func(ctx context.Context) bool

// NewHTTPProbe returns a ProbeFunc that sends HEAD to baseURL. Any response
// with status < 500 counts as online; errors and 5xx count as offline.
func NewHTTPProbe(baseURL string, timeout time.Duration, hc *http.Client) (ProbeFunc, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse probe url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("probe url %q: unsupported scheme %q", baseURL, u.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if hc == nil {
		hc = &http.Client{}
	}
	target := u.String()

	return func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
		if err != nil {
			return false
		}
		resp, err := hc.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode < 500
	}, nil
}

// Poller is a Monitor driven by a periodic probe.
//
// A state change is reported only after stablePolls consecutive probes
// agree, so flapping shorter than the polling resolution is absorbed.
type Poller struct {
	probe       ProbeFunc
	interval    time.Duration
	stablePolls int
	now         func() time.Time

	current atomic.Int32
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the probe interval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithStablePolls sets how many consecutive agreeing probes flip the state.
func WithStablePolls(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.stablePolls = n
		}
	}
}

// NewPoller creates a Poller around probe.
func NewPoller(probe ProbeFunc, opts ...PollerOption) *Poller {
	p := &Poller{
		probe:       probe,
		interval:    DefaultInterval,
		stablePolls: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current implements Monitor.
func (p *Poller) Current() State {
	return State(p.current.Load())
}

// Subscribe implements Monitor. The first probe runs immediately; the first
// stable observation is always delivered.
func (p *Poller) Subscribe(ctx context.Context) (<-chan Event, error) {
	if p.probe == nil {
		return nil, ErrUnavailable
	}

	events := make(chan Event)
	go p.run(ctx, events)
	return events, nil
}

func (p *Poller) run(ctx context.Context, events chan<- Event) {
	defer close(events)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	emitted := StateUnknown
	candidate := StateUnknown
	agree := 0

	for {
		observed := StateOffline
		if p.probe(ctx) {
			observed = StateOnline
		}
		if ctx.Err() != nil {
			return
		}

		if observed == candidate {
			agree++
		} else {
			candidate = observed
			agree = 1
		}

		if agree >= p.stablePolls && candidate != emitted {
			emitted = candidate
			p.current.Store(int32(emitted))
			slog.Debug("connectivity changed", "state", emitted.String())

			select {
			case events <- Event{State: emitted, At: p.now()}:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
