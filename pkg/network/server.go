package network

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"nhooyr.io/websocket"

	"skyrelay/pkg/log"
	"skyrelay/pkg/sessions"
)

const (
	// readLimit is the transport-level frame cap. It sits well above the
	// protocol's 1024-byte message cap so oversized messages are dropped by
	// the registry instead of killing the connection.
	readLimit = 32768
)

// WSServer accepts WebSocket connections and feeds their frames into the
// session registry. It also serves a small status API.
type WSServer struct {
	registry *sessions.Registry
	router   *mux.Router
	server   *http.Server
	baseCtx  context.Context
}

type NewWSServerOptions struct {
	Port     int
	Registry *sessions.Registry
}

// NewWSServer creates a new WSServer listening on /ws with a status
// endpoint on /status.
func NewWSServer(opts NewWSServerOptions) *WSServer {
	s := &WSServer{
		registry: opts.Registry,
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWS)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	s.router = router
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}
	return s
}

// Handler exposes the server's routes for serving through another listener.
func (s *WSServer) Handler() http.Handler {
	return s.router
}

// Start starts the WebSocket server and blocks until it stops. The server
// shuts down when the context is cancelled.
func (s *WSServer) Start(ctx context.Context) {
	s.baseCtx = ctx

	go func() {
		<-ctx.Done()
		if err := s.server.Shutdown(context.Background()); err != nil {
			log.Error("WebSocket server shutdown error: %v", err)
		}
	}()

	log.Info("WebSocket server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("WebSocket server closed")
			return
		}
		log.Error("WebSocket server error: %v", err)
	}
}

// handleWS upgrades the request and runs the connection's read pump. The
// session is registered before the first read and torn down exactly once
// on close or error via the registry's idempotent disconnect path.
func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Error("failed to accept WebSocket connection: %v", err)
		return
	}
	conn.SetReadLimit(readLimit)

	ctx := s.baseCtx
	if ctx == nil {
		ctx = r.Context()
	}

	session := s.registry.Connect(ctx, newWSConn(conn))
	defer s.registry.Disconnect(ctx, session.ID)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("session %s closed connection", session.ID)
			default:
				log.Debug("read error for session %s: %v", session.ID, err)
			}
			return
		}
		s.registry.HandleMessage(ctx, session.ID, data)
	}
}

type statusResponse struct {
	PlayerCount int `json:"playerCount"`
}

func (s *WSServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statusResponse{PlayerCount: s.registry.Count()}); err != nil {
		log.Error("failed to write status response: %v", err)
	}
}
