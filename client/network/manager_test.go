package network

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"skyrelay/client/entities"
	"skyrelay/pkg/kinematic"
	"skyrelay/pkg/messages"
)

type fakeRenderer struct {
	mu      sync.Mutex
	created []string
	removed []string
}

func (r *fakeRenderer) CreateProxy(id string, initial *messages.StateSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, id)
}

func (r *fakeRenderer) UpdateProxy(id string, target messages.StateSnapshot) {}

func (r *fakeRenderer) RemoveProxy(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func newTestManager(t *testing.T) (*ConnectionManager, *entities.Registry, *fakeRenderer) {
	t.Helper()
	renderer := &fakeRenderer{}
	registry := entities.NewRegistry(entities.NewRegistryOptions{Renderer: renderer})
	manager := NewConnectionManager(NewConnectionManagerOptions{
		ServerURL: "ws://localhost:8080/ws",
		Entities:  registry,
	})
	return manager, registry, renderer
}

func raw(t *testing.T, msg *messages.Message) []byte {
	t.Helper()
	b, err := msg.Serialize()
	require.NoError(t, err)
	return b
}

func testSnapshot(x float64) messages.StateSnapshot {
	return messages.StateSnapshot{
		Position:   kinematic.Vector3{x, 50, 0},
		Quaternion: kinematic.Quaternion{0, 0, 0, 1},
	}
}

func TestHandleMessageAssignID(t *testing.T) {
	m, _, _ := newTestManager(t)

	assert.Empty(t, m.PlayerID())
	m.handleMessage(raw(t, messages.NewAssignID("me")))
	assert.Equal(t, "me", m.PlayerID())
}

func TestHandleMessageUpdateCreatesEntityOnce(t *testing.T) {
	m, registry, renderer := newTestManager(t)
	m.handleMessage(raw(t, messages.NewAssignID("me")))

	m.handleMessage(raw(t, messages.NewPlayerUpdate("other", testSnapshot(1))))
	assert.Equal(t, []string{"other"}, renderer.created)
	assert.Equal(t, 1, registry.Count())

	m.handleMessage(raw(t, messages.NewPlayerUpdate("other", testSnapshot(2))))
	assert.Equal(t, []string{"other"}, renderer.created)
	assert.Equal(t, 1, registry.Count())

	entity, ok := registry.Entity("other")
	require.True(t, ok)
	assert.Equal(t, testSnapshot(2).Position, entity.TargetPosition)
}

func TestHandleMessageIgnoresOwnID(t *testing.T) {
	m, registry, _ := newTestManager(t)
	m.handleMessage(raw(t, messages.NewAssignID("me")))

	m.handleMessage(raw(t, messages.NewPlayerUpdate("me", testSnapshot(1))))
	m.handleMessage(raw(t, messages.NewPlayerJoin("me")))
	assert.Equal(t, 0, registry.Count())
}

func TestHandleMessageWorldState(t *testing.T) {
	m, registry, _ := newTestManager(t)
	m.handleMessage(raw(t, messages.NewAssignID("me")))

	world := messages.NewWorldState([]messages.PlayerEntry{
		{ID: "me", Data: testSnapshot(0)},
		{ID: "p1", Data: testSnapshot(1)},
		{ID: "p2", Data: testSnapshot(2)},
	})
	m.handleMessage(raw(t, world))

	assert.Equal(t, 2, registry.Count())
	_, ok := registry.Entity("me")
	assert.False(t, ok)
}

func TestHandleMessageJoinAndLeave(t *testing.T) {
	m, registry, renderer := newTestManager(t)
	m.handleMessage(raw(t, messages.NewAssignID("me")))

	m.handleMessage(raw(t, messages.NewPlayerJoin("other")))
	assert.Equal(t, 1, registry.Count())

	m.handleMessage(raw(t, messages.NewPlayerLeave("other")))
	assert.Equal(t, 0, registry.Count())
	assert.Equal(t, []string{"other"}, renderer.removed)

	// player_disconnect is a wire-compatible alias.
	m.handleMessage(raw(t, messages.NewPlayerJoin("p2")))
	m.handleMessage(raw(t, &messages.Message{Type: messages.MessageTypePlayerDisconnect, ID: "p2"}))
	assert.Equal(t, 0, registry.Count())
}

func TestHandleMessageServerInfo(t *testing.T) {
	renderer := &fakeRenderer{}
	registry := entities.NewRegistry(entities.NewRegistryOptions{Renderer: renderer})

	var counts []int
	m := NewConnectionManager(NewConnectionManagerOptions{
		ServerURL:    "ws://localhost:8080/ws",
		Entities:     registry,
		OnServerInfo: func(playerCount int) { counts = append(counts, playerCount) },
	})

	m.handleMessage(raw(t, messages.NewServerInfo(4)))
	assert.Equal(t, []int{4}, counts)
}

func TestHandleMessageDropsGarbage(t *testing.T) {
	m, registry, _ := newTestManager(t)
	m.handleMessage([]byte(`{"type":`))
	m.handleMessage([]byte(`{"type":"chat_message","id":"x"}`))
	m.handleMessage([]byte(`{"type":"player_update","id":"x"}`))
	assert.Equal(t, 0, registry.Count())
}

func TestDropConnectionClearsSessionState(t *testing.T) {
	renderer := &fakeRenderer{}
	registry := entities.NewRegistry(entities.NewRegistryOptions{Renderer: renderer})

	var statuses []Status
	m := NewConnectionManager(NewConnectionManagerOptions{
		ServerURL:       "ws://localhost:8080/ws",
		Entities:        registry,
		OnStatusChanged: func(s Status) { statuses = append(statuses, s) },
	})
	m.status = StatusConnected

	m.handleMessage(raw(t, messages.NewAssignID("me")))
	m.handleMessage(raw(t, messages.NewPlayerUpdate("p1", testSnapshot(1))))
	m.handleMessage(raw(t, messages.NewPlayerUpdate("p2", testSnapshot(2))))
	require.Equal(t, 2, registry.Count())

	// Losing the connection clears identity and every remote entity, so a
	// later session cannot see ghosts from this one.
	m.dropConnection()
	assert.Empty(t, m.PlayerID())
	assert.Equal(t, 0, registry.Count())
	assert.Equal(t, StatusDisconnected, m.Status())
	assert.Equal(t, []Status{StatusDisconnected}, statuses)

	// The next session starts from a clean slate.
	m.handleMessage(raw(t, messages.NewAssignID("me-again")))
	assert.Equal(t, "me-again", m.PlayerID())
	assert.Equal(t, 0, registry.Count())
}

func TestReadyToSendThrottles(t *testing.T) {
	m, _, _ := newTestManager(t)

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	// Not connected yet.
	assert.False(t, m.readyToSendLocked())

	m.status = StatusConnected
	m.conn = &websocket.Conn{}
	assert.False(t, m.readyToSendLocked(), "no id assigned yet")

	m.playerID = "me"
	m.lastSendAt = now
	assert.False(t, m.readyToSendLocked(), "inside the send interval")

	now = now.Add(DefaultSendInterval)
	assert.True(t, m.readyToSendLocked())

	m.lastSendAt = now
	now = now.Add(DefaultSendInterval / 2)
	assert.False(t, m.readyToSendLocked())
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
}
