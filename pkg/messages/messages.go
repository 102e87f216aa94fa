package messages

import (
	"encoding/json"
	"errors"
	"fmt"

	"skyrelay/pkg/kinematic"
)

const (
	// MaxMessageSize is the maximum size of an inbound message in bytes.
	MaxMessageSize = 1024
)

// MessageType identifies a message kind on the wire.
type MessageType string

// The closed set of message types. Anything outside this set is rejected
// at the parse boundary.
const (
	MessageTypeAssignID         MessageType = "assign_id"
	MessageTypeWorldState       MessageType = "world_state"
	MessageTypePlayerJoin       MessageType = "player_join"
	MessageTypePlayerUpdate     MessageType = "player_update"
	MessageTypeUpdateState      MessageType = "update_state"
	MessageTypePlayerLeave      MessageType = "player_leave"
	MessageTypePlayerDisconnect MessageType = "player_disconnect"
	MessageTypeServerInfo       MessageType = "server_info"
)

// Parse errors. Callers distinguish unknown types (ignored, forward
// compatible) from structural rejections (logged and dropped).
var (
	ErrMessageTooLarge = errors.New("message exceeds maximum size")
	ErrMalformed       = errors.New("malformed message")
	ErrUnknownType     = errors.New("unknown message type")
)

// StateSnapshot is a single position and orientation sample.
type StateSnapshot struct {
	Position   kinematic.Vector3    `json:"position"`
	Quaternion kinematic.Quaternion `json:"quaternion"`
}

// PlayerEntry pairs a participant id with its last known state.
type PlayerEntry struct {
	ID   string        `json:"id"`
	Data StateSnapshot `json:"data"`
}

// Message is the wire representation shared by server and client.
// Messages are UTF-8 JSON text frames; which fields are populated
// depends on Type.
type Message struct {
	Type        MessageType    `json:"type"`
	ID          string         `json:"id,omitempty"`
	Data        *StateSnapshot `json:"data,omitempty"`
	Players     []PlayerEntry  `json:"players,omitempty"`
	PlayerCount int            `json:"playerCount,omitempty"`
}

// IsStateUpdate reports whether m carries a participant state snapshot.
// The two names are wire-compatible aliases.
func (m *Message) IsStateUpdate() bool {
	return m.Type == MessageTypePlayerUpdate || m.Type == MessageTypeUpdateState
}

// IsLeave reports whether m is an explicit removal notice.
func (m *Message) IsLeave() bool {
	return m.Type == MessageTypePlayerLeave || m.Type == MessageTypePlayerDisconnect
}

// Serialize encodes m as a UTF-8 JSON text frame.
func (m *Message) Serialize() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return b, nil
}

// ParseMessage validates and decodes an inbound frame on the server side.
// It enforces the size cap, requires a type from the closed set, and checks
// the required fields for that type. No reply is ever produced for a
// rejected frame.
func ParseMessage(b []byte) (*Message, error) {
	if len(b) > MaxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(b))
	}
	return DecodeMessage(b)
}

// DecodeMessage validates and decodes a frame without the size cap. The
// cap applies to client-to-server traffic only; a world_state snapshot
// with many participants legitimately exceeds it.
func DecodeMessage(b []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch m.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	case MessageTypeAssignID, MessageTypePlayerJoin, MessageTypePlayerLeave, MessageTypePlayerDisconnect:
		if m.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, m.Type)
		}
	case MessageTypePlayerUpdate, MessageTypeUpdateState:
		if m.ID == "" {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, m.Type)
		}
		if m.Data == nil {
			return nil, fmt.Errorf("%w: %s without data", ErrMalformed, m.Type)
		}
	case MessageTypeWorldState, MessageTypeServerInfo:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}

	return m, nil
}

// NewAssignID builds the message sent once immediately after accept.
func NewAssignID(id string) *Message {
	return &Message{Type: MessageTypeAssignID, ID: id}
}

// NewWorldState builds the snapshot of pre-existing participants sent to
// a late joiner.
func NewWorldState(players []PlayerEntry) *Message {
	return &Message{Type: MessageTypeWorldState, Players: players}
}

// NewPlayerJoin builds the notice that a new participant connected.
func NewPlayerJoin(id string) *Message {
	return &Message{Type: MessageTypePlayerJoin, ID: id}
}

// NewPlayerUpdate builds a server-to-client state update for one participant.
func NewPlayerUpdate(id string, data StateSnapshot) *Message {
	return &Message{Type: MessageTypePlayerUpdate, ID: id, Data: &data}
}

// NewUpdateState builds the client-to-server state report.
func NewUpdateState(id string, data StateSnapshot) *Message {
	return &Message{Type: MessageTypeUpdateState, ID: id, Data: &data}
}

// NewPlayerLeave builds the explicit removal notice.
func NewPlayerLeave(id string) *Message {
	return &Message{Type: MessageTypePlayerLeave, ID: id}
}

// NewServerInfo builds the aggregate participant count notice.
func NewServerInfo(playerCount int) *Message {
	return &Message{Type: MessageTypeServerInfo, PlayerCount: playerCount}
}
