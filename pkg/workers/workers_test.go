package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skyrelay/pkg/kinematic"
	"skyrelay/pkg/messages"
	"skyrelay/pkg/sessions"
)

// Shared fixtures for the broadcast and reaper tests.

type fakeConn struct {
	mu      sync.Mutex
	sent    []*messages.Message
	sendErr error
}

func (c *fakeConn) Send(ctx context.Context, msg *messages.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Close() error {
	return nil
}

func (c *fakeConn) messagesOfType(t messages.MessageType) []*messages.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*messages.Message
	for _, m := range c.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testSnapshot(x float64) messages.StateSnapshot {
	return messages.StateSnapshot{
		Position:   kinematic.Vector3{x, 2, 3},
		Quaternion: kinematic.Quaternion{0, 0, 0, 1},
	}
}

func sendUpdate(t *testing.T, r *sessions.Registry, id string, snapshot messages.StateSnapshot) {
	t.Helper()
	b, err := messages.NewUpdateState(id, snapshot).Serialize()
	require.NoError(t, err)
	r.HandleMessage(context.Background(), id, b)
}
