// Package probe derives a connectivity signal by pinging the backend.
package probe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/studyspot/internal/pkg/observe"
)

// Pinger is anything that can cheaply check backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Prober implements ports.Connectivity. A failed ping marks the agent
// offline; the next successful ping brings it back online.
type Prober struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	state    *observe.Broadcaster[bool]

	mu     sync.Mutex
	online bool
}

// New creates a Prober. It starts optimistic (online) until the first probe.
func New(pinger Pinger, interval, timeout time.Duration) *Prober {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Prober{
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		logger:   slog.Default().With("component", "probe"),
		state:    observe.New[bool](),
		online:   true,
	}
}

// Online reports the last probe result.
func (p *Prober) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Subscribe registers fn for online/offline transitions.
func (p *Prober) Subscribe(fn func(online bool)) func() {
	return p.state.Subscribe(fn).Unsubscribe
}

// Check runs one probe and returns the resulting state.
func (p *Prober) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(ctx)
	online := err == nil

	p.mu.Lock()
	changed := p.online != online
	p.online = online
	p.mu.Unlock()

	if changed {
		if err != nil {
			p.logger.Warn("backend unreachable", "error", err)
		} else {
			p.logger.Info("backend reachable again")
		}
		p.state.Publish(online)
	}
	return online
}

// Run probes on every interval until ctx ends.
func (p *Prober) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
