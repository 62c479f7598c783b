// Package netwatch supplements spec.md's `set_network_reachability` input
// (§4.7) with an actual reachability signal. The original renderer wires a
// platform-level connectivity signal straight into the scheduler
// (original_source/.../setup.cpp); this package is the Go stand-in for that
// platform signal when no embedder-supplied one exists, grounded on
// internal/datasource.FetchQueue's background-goroutine-plus-ticker shape.
package netwatch

import (
	"context"
	"net/http"
	"time"
)

// Reachability is the subset of scheduler.Scheduler this package depends on,
// so tests can substitute a fake without pulling in the full scheduler.
type Reachability interface {
	SetNetworkReachability(bool)
}

// Poller periodically probes one or more hosts and reports reachability to
// a Reachability target. A single successful probe is enough to consider
// the network reachable; all probes failing marks it unreachable.
type Poller struct {
	Hosts    []string
	Interval time.Duration
	Client   *http.Client
	Target   Reachability

	cancel context.CancelFunc
}

// DefaultInterval matches spec.md's general timer cadence for ambient
// background checks — frequent enough to notice a reconnect quickly without
// adding meaningful request volume.
const DefaultInterval = 10 * time.Second

// Start launches the polling goroutine. Call Stop to end it.
func (p *Poller) Start() {
	if p.Interval <= 0 {
		p.Interval = DefaultInterval
	}
	if p.Client == nil {
		p.Client = &http.Client{Timeout: 3 * time.Second}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go func() {
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()

		p.probeOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.probeOnce(ctx)
			}
		}
	}()
}

// Stop ends the polling goroutine. Safe to call more than once.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) probeOnce(ctx context.Context) {
	for _, host := range p.Hosts {
		if p.probe(ctx, host) {
			p.Target.SetNetworkReachability(true)
			return
		}
	}
	p.Target.SetNetworkReachability(false)
}

func (p *Poller) probe(ctx context.Context, host string) bool {
	reqCtx, cancel := context.WithTimeout(ctx, p.Client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, host, nil)
	if err != nil {
		return false
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}
