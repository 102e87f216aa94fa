package workers

import (
	"context"
	"time"

	"skyrelay/pkg/log"
	"skyrelay/pkg/sessions"
)

const (
	// DefaultSessionTimeout is how long a session may stay silent before it
	// is treated as dead.
	DefaultSessionTimeout = 10 * time.Second
)

// ReaperWorker periodically evicts sessions whose connection has gone
// silent without a clean close, such as a crashed client or a network
// partition. Eviction goes through the same teardown path as a graceful
// disconnect, so peers still receive a leave notification.
type ReaperWorker struct {
	registry *sessions.Registry
	timeout  time.Duration
	interval time.Duration
}

type NewReaperWorkerOptions struct {
	Registry *sessions.Registry
	// Timeout overrides DefaultSessionTimeout when positive.
	Timeout time.Duration
	// Interval overrides the sweep period, which defaults to half the timeout.
	Interval time.Duration
}

// NewReaperWorker creates a new ReaperWorker.
func NewReaperWorker(opts NewReaperWorkerOptions) *ReaperWorker {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = timeout / 2
	}
	return &ReaperWorker{
		registry: opts.Registry,
		timeout:  timeout,
		interval: interval,
	}
}

// Start runs the liveness sweep until the context is cancelled.
func (w *ReaperWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReaperWorker) sweep(ctx context.Context) {
	for _, id := range w.registry.ExpiredIDs(w.timeout) {
		log.Info("session %s timed out, reaping", id)
		w.registry.Disconnect(ctx, id)
	}
}
