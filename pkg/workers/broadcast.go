package workers

import (
	"context"
	"time"

	"skyrelay/pkg/log"
	"skyrelay/pkg/messages"
	"skyrelay/pkg/sessions"
)

const (
	// DefaultBroadcastInterval is the period of the state fan-out tick (10 Hz).
	DefaultBroadcastInterval = 100 * time.Millisecond
)

// BroadcastWorker periodically publishes the latest known state of every
// participant to every session, excluding each recipient's own state.
type BroadcastWorker struct {
	registry *sessions.Registry
	interval time.Duration
}

type NewBroadcastWorkerOptions struct {
	Registry *sessions.Registry
	// Interval overrides DefaultBroadcastInterval when positive.
	Interval time.Duration
}

// NewBroadcastWorker creates a new BroadcastWorker.
func NewBroadcastWorker(opts NewBroadcastWorkerOptions) *BroadcastWorker {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	return &BroadcastWorker{
		registry: opts.Registry,
		interval: interval,
	}
}

// Start runs the broadcast tick until the context is cancelled.
func (w *BroadcastWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick fans the current snapshot out to all sessions. Each recipient gets
// one player_update per peer with known state, never its own. A failed send
// to one recipient is logged and does not abort delivery to the others.
func (w *BroadcastWorker) tick(ctx context.Context) {
	entries := w.registry.SnapshotAll()
	if len(entries) == 0 {
		return
	}

	for _, target := range w.registry.Targets() {
		for _, entry := range entries {
			if entry.ID == target.ID {
				continue
			}
			msg := messages.NewPlayerUpdate(entry.ID, entry.Data)
			if err := target.Conn.Send(ctx, msg); err != nil {
				log.Error("failed to broadcast to session %s: %v", target.ID, err)
			}
		}
	}
}
