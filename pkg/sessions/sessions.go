package sessions

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"skyrelay/pkg/log"
	"skyrelay/pkg/messages"
)

const (
	// DefaultRateLimit is the maximum number of messages a session may send
	// within one rate window before it is forcibly disconnected.
	DefaultRateLimit = 15
	// DefaultRateWindow is the span of the sliding admission window.
	DefaultRateWindow = 1 * time.Second
)

// Conn is the transport handle owned by a session. Sends must be safe for
// concurrent use; Close must be safe to call more than once.
type Conn interface {
	Send(ctx context.Context, msg *messages.Message) error
	Close() error
}

// Session is the server-side record of one live connection.
type Session struct {
	ID        string
	Conn      Conn
	LastSeen  time.Time
	LastState *messages.StateSnapshot
	window    rateWindow
}

// Target is an (id, conn) pair copied out of the registry so sends can
// fan out without holding the registry lock.
type Target struct {
	ID   string
	Conn Conn
}

// Registry is the authoritative bookkeeping of connected participants and
// their last known state. It is the single owner of all cross-session
// shared state; every operation takes the one registry lock for the full
// read-modify-write, and sends happen on copies outside the lock.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	rateLimit  int
	rateWindow time.Duration
	now        func() time.Time
}

type NewRegistryOptions struct {
	// RateLimit overrides DefaultRateLimit when positive.
	RateLimit int
	// RateWindow overrides DefaultRateWindow when positive.
	RateWindow time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewRegistry creates a new Registry.
func NewRegistry(opts NewRegistryOptions) *Registry {
	rateLimit := opts.RateLimit
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	rateWindow := opts.RateWindow
	if rateWindow <= 0 {
		rateWindow = DefaultRateWindow
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions:   make(map[string]*Session),
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
		now:        now,
	}
}

// Connect registers a new connection, assigns it a unique session id, and
// performs the join handshake: the new session receives its id and a world
// state snapshot of every peer with known state, peers are notified of the
// join, and everyone receives the updated participant count.
func (r *Registry) Connect(ctx context.Context, conn Conn) *Session {
	r.mu.Lock()
	session := &Session{
		ID:       uuid.NewString(),
		Conn:     conn,
		LastSeen: r.now(),
	}
	r.sessions[session.ID] = session

	world := r.snapshotAllLocked()
	peers := r.targetsLocked(session.ID)
	count := len(r.sessions)
	r.mu.Unlock()

	r.send(ctx, Target{ID: session.ID, Conn: conn}, messages.NewAssignID(session.ID))
	if len(world) > 0 {
		r.send(ctx, Target{ID: session.ID, Conn: conn}, messages.NewWorldState(world))
	}
	join := messages.NewPlayerJoin(session.ID)
	for _, peer := range peers {
		r.send(ctx, peer, join)
	}
	r.broadcastServerInfo(ctx, count)

	log.Info("session %s connected (%d total)", session.ID, count)
	return session
}

// HandleMessage processes one raw inbound frame from a session. The rate
// limiter admits the frame before any state mutation; a violation escalates
// to a forced disconnect. Structural rejections and spoofed sender ids are
// logged and dropped without reply. Any valid frame refreshes the session's
// liveness; a state update additionally replaces its last known state.
func (r *Registry) HandleMessage(ctx context.Context, id string, raw []byte) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if !session.window.admit(r.now(), r.rateLimit, r.rateWindow) {
		r.mu.Unlock()
		log.Warn("session %s exceeded rate limit, disconnecting", id)
		r.Disconnect(ctx, id)
		return
	}

	msg, err := messages.ParseMessage(raw)
	if err != nil {
		r.mu.Unlock()
		if errors.Is(err, messages.ErrUnknownType) {
			log.Debug("ignoring message from session %s: %v", id, err)
		} else {
			log.Warn("dropping message from session %s: %v", id, err)
		}
		return
	}
	if msg.ID != "" && msg.ID != id {
		r.mu.Unlock()
		log.Warn("session %s sent message claiming id %s, dropping", id, msg.ID)
		return
	}

	session.LastSeen = r.now()
	if msg.IsStateUpdate() {
		state := *msg.Data
		session.LastState = &state
	} else {
		log.Debug("ignoring %s message from session %s", msg.Type, id)
	}
	r.mu.Unlock()
}

// Disconnect removes a session, closes its connection, and notifies the
// remaining sessions. It is idempotent: a second call for the same id is a
// no-op, so the close, error, rate limit, and liveness paths can all funnel
// through it safely.
func (r *Registry) Disconnect(ctx context.Context, id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	peers := r.targetsLocked("")
	count := len(r.sessions)
	r.mu.Unlock()

	if err := session.Conn.Close(); err != nil {
		log.Debug("failed to close connection for session %s: %v", id, err)
	}

	leave := messages.NewPlayerLeave(id)
	for _, peer := range peers {
		r.send(ctx, peer, leave)
	}
	r.broadcastServerInfoTargets(ctx, peers, count)

	log.Info("session %s disconnected (%d total)", id, count)
}

// SnapshotAll returns the (id, state) pair of every session whose state is
// known. Sessions that have joined but never reported state are invisible
// to others until their first update.
func (r *Registry) SnapshotAll() []messages.PlayerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotAllLocked()
}

// Targets returns send handles for all live sessions.
func (r *Registry) Targets() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.targetsLocked("")
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ExpiredIDs returns the ids of sessions with no valid traffic for longer
// than timeout.
func (r *Registry) ExpiredIDs(timeout time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var expired []string
	for id, session := range r.sessions {
		if now.Sub(session.LastSeen) > timeout {
			expired = append(expired, id)
		}
	}
	return expired
}

// LastState returns a copy of a session's last known state, or nil when the
// session is unknown or has not reported yet.
func (r *Registry) LastState(id string) *messages.StateSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.LastState == nil {
		return nil
	}
	state := *session.LastState
	return &state
}

func (r *Registry) snapshotAllLocked() []messages.PlayerEntry {
	var entries []messages.PlayerEntry
	for id, session := range r.sessions {
		if session.LastState == nil {
			continue
		}
		entries = append(entries, messages.PlayerEntry{ID: id, Data: *session.LastState})
	}
	return entries
}

func (r *Registry) targetsLocked(exclude string) []Target {
	targets := make([]Target, 0, len(r.sessions))
	for id, session := range r.sessions {
		if id == exclude {
			continue
		}
		targets = append(targets, Target{ID: id, Conn: session.Conn})
	}
	return targets
}

// send writes one message to one target. A failure is logged and otherwise
// ignored; the failing session is cleaned up by its own read pump or the
// liveness reaper.
func (r *Registry) send(ctx context.Context, t Target, msg *messages.Message) {
	if err := t.Conn.Send(ctx, msg); err != nil {
		log.Error("failed to send %s to session %s: %v", msg.Type, t.ID, err)
	}
}

func (r *Registry) broadcastServerInfo(ctx context.Context, count int) {
	r.broadcastServerInfoTargets(ctx, r.Targets(), count)
}

func (r *Registry) broadcastServerInfoTargets(ctx context.Context, targets []Target, count int) {
	info := messages.NewServerInfo(count)
	for _, t := range targets {
		r.send(ctx, t, info)
	}
}
