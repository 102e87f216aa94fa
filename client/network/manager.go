package network

import (
	"context"
	"errors"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"skyrelay/client/entities"
	"skyrelay/pkg/log"
	"skyrelay/pkg/messages"
)

const (
	// DefaultRetryInterval is the fixed delay between reconnect attempts.
	DefaultRetryInterval = 5 * time.Second
	// DefaultSendInterval is the minimum time between outbound state
	// reports, bounding client-to-server traffic to 10 Hz.
	DefaultSendInterval = 100 * time.Millisecond
)

// Status is the connection state surfaced to the UI collaborator.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ConnectionManager owns the single outbound connection to the relay,
// including the retry loop. Losing the connection clears the assigned id
// and the whole remote entity registry before any reconnect proceeds,
// because identity continuity is not guaranteed across sessions.
type ConnectionManager struct {
	serverURL     string
	entities      *entities.Registry
	retryInterval time.Duration
	sendInterval  time.Duration
	statusChanged func(Status)
	serverInfo    func(playerCount int)
	now           func() time.Time

	mu         sync.Mutex
	conn       *websocket.Conn
	status     Status
	playerID   string
	lastSendAt time.Time
}

type NewConnectionManagerOptions struct {
	// ServerURL is the relay's WebSocket endpoint, e.g. ws://host:8080/ws.
	ServerURL string
	// Entities is the remote entity registry fed by inbound dispatch.
	Entities *entities.Registry
	// RetryInterval overrides DefaultRetryInterval when positive.
	RetryInterval time.Duration
	// SendInterval overrides DefaultSendInterval when positive.
	SendInterval time.Duration
	// OnStatusChanged, when set, is called on every connection status change.
	OnStatusChanged func(Status)
	// OnServerInfo, when set, receives the server's participant count.
	OnServerInfo func(playerCount int)
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager(opts NewConnectionManagerOptions) *ConnectionManager {
	retryInterval := opts.RetryInterval
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	sendInterval := opts.SendInterval
	if sendInterval <= 0 {
		sendInterval = DefaultSendInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ConnectionManager{
		serverURL:     opts.ServerURL,
		entities:      opts.Entities,
		retryInterval: retryInterval,
		sendInterval:  sendInterval,
		statusChanged: opts.OnStatusChanged,
		serverInfo:    opts.OnServerInfo,
		now:           now,
	}
}

// Start runs the connect/read/reconnect loop until the context is
// cancelled. Each failed attempt or dropped connection schedules a retry
// after the fixed delay; there is no backoff growth and no retry storm.
func (m *ConnectionManager) Start(ctx context.Context) {
	for {
		m.setStatus(StatusConnecting)
		log.Info("connecting to %s", m.serverURL)

		conn, _, err := websocket.Dial(ctx, m.serverURL, nil)
		if err != nil {
			log.Warn("failed to connect to %s: %v", m.serverURL, err)
			m.dropConnection()
			if !m.waitRetry(ctx) {
				return
			}
			continue
		}

		m.mu.Lock()
		m.conn = conn
		m.status = StatusConnected
		m.lastSendAt = m.now()
		m.mu.Unlock()
		m.notifyStatus(StatusConnected)
		log.Info("connected to %s", m.serverURL)

		m.readPump(ctx, conn)

		conn.Close(websocket.StatusNormalClosure, "")
		m.dropConnection()
		if ctx.Err() != nil {
			return
		}
		log.Info("connection lost, retrying in %s", m.retryInterval)
		if !m.waitRetry(ctx) {
			return
		}
	}
}

// SendState reports the local snapshot to the server. It is a no-op unless
// the connection is up, an id has been assigned, and the minimum send
// interval has elapsed, so callers may invoke it as often as they like.
func (m *ConnectionManager) SendState(ctx context.Context, snapshot messages.StateSnapshot) error {
	m.mu.Lock()
	if !m.readyToSendLocked() {
		m.mu.Unlock()
		return nil
	}
	conn := m.conn
	id := m.playerID
	m.lastSendAt = m.now()
	m.mu.Unlock()

	b, err := messages.NewUpdateState(id, snapshot).Serialize()
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		return err
	}
	return nil
}

// readyToSendLocked reports whether an outbound state report may go out
// now: connected, id assigned, and past the send throttle. Callers must
// hold m.mu.
func (m *ConnectionManager) readyToSendLocked() bool {
	return m.status == StatusConnected &&
		m.conn != nil &&
		m.playerID != "" &&
		m.now().Sub(m.lastSendAt) >= m.sendInterval
}

// Status returns the current connection status.
func (m *ConnectionManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// PlayerID returns the id assigned by the server, or "" before assignment.
func (m *ConnectionManager) PlayerID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playerID
}

func (m *ConnectionManager) readPump(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("read error: %v", err)
			}
			return
		}
		m.handleMessage(data)
	}
}

// handleMessage routes one inbound frame by type. Protocol errors degrade
// only multiplayer visibility; they never tear the connection down.
func (m *ConnectionManager) handleMessage(b []byte) {
	msg, err := messages.DecodeMessage(b)
	if err != nil {
		if errors.Is(err, messages.ErrUnknownType) {
			log.Debug("ignoring server message: %v", err)
		} else {
			log.Warn("dropping server message: %v", err)
		}
		return
	}

	switch {
	case msg.Type == messages.MessageTypeAssignID:
		m.mu.Lock()
		m.playerID = msg.ID
		m.mu.Unlock()
		log.Info("assigned player id %s", msg.ID)
	case msg.Type == messages.MessageTypeWorldState:
		for _, entry := range msg.Players {
			if entry.ID == m.PlayerID() {
				continue
			}
			data := entry.Data
			m.entities.Upsert(entry.ID, &data)
		}
		log.Debug("applied world state with %d players", len(msg.Players))
	case msg.IsStateUpdate():
		if msg.ID == m.PlayerID() {
			return
		}
		m.entities.Upsert(msg.ID, msg.Data)
	case msg.Type == messages.MessageTypePlayerJoin:
		if msg.ID == m.PlayerID() {
			return
		}
		log.Debug("player %s joined", msg.ID)
		m.entities.Upsert(msg.ID, nil)
	case msg.IsLeave():
		log.Debug("player %s left", msg.ID)
		m.entities.Remove(msg.ID)
	case msg.Type == messages.MessageTypeServerInfo:
		if m.serverInfo != nil {
			m.serverInfo(msg.PlayerCount)
		}
	}
}

// dropConnection moves to DISCONNECTED and clears everything tied to the
// old session: the connection handle, the assigned id, and every remote
// entity.
func (m *ConnectionManager) dropConnection() {
	m.mu.Lock()
	m.conn = nil
	m.playerID = ""
	changed := m.status != StatusDisconnected
	m.status = StatusDisconnected
	m.mu.Unlock()

	m.entities.Clear()
	if changed {
		m.notifyStatus(StatusDisconnected)
	}
}

// waitRetry sleeps for the retry interval. It returns false when the
// context is cancelled first.
func (m *ConnectionManager) waitRetry(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(m.retryInterval):
		return true
	}
}

func (m *ConnectionManager) setStatus(status Status) {
	m.mu.Lock()
	changed := m.status != status
	m.status = status
	m.mu.Unlock()
	if changed {
		m.notifyStatus(status)
	}
}

func (m *ConnectionManager) notifyStatus(status Status) {
	if m.statusChanged != nil {
		m.statusChanged(status)
	}
}
