package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	clientnetwork "skyrelay/client/network"

	"skyrelay/client/entities"
	"skyrelay/pkg/kinematic"
	"skyrelay/pkg/log"
	"skyrelay/pkg/messages"
)

const (
	frameInterval = 50 * time.Millisecond
	lerpFactor    = 0.2

	orbitRadius   = 200.0
	orbitAltitude = 120.0
	angularSpeed  = 0.2 // radians per second
)

// consoleRenderer is a headless stand-in for the rendering collaborator.
// It keeps a display transform per proxy and converges it toward the
// registry's targets the way a real scene would.
type consoleRenderer struct {
	mu      sync.Mutex
	proxies map[string]*proxy
}

type proxy struct {
	position         kinematic.Vector3
	quaternion       kinematic.Quaternion
	targetPosition   kinematic.Vector3
	targetQuaternion kinematic.Quaternion
}

func newConsoleRenderer() *consoleRenderer {
	return &consoleRenderer{proxies: make(map[string]*proxy)}
}

func (r *consoleRenderer) CreateProxy(id string, initial *messages.StateSnapshot) {
	p := &proxy{
		position:         kinematic.Vector3{0, 50, 0},
		quaternion:       kinematic.Identity(),
		targetQuaternion: kinematic.Identity(),
	}
	if initial != nil {
		p.position = initial.Position
		p.quaternion = initial.Quaternion
	}
	p.targetPosition = p.position
	p.targetQuaternion = p.quaternion

	r.mu.Lock()
	r.proxies[id] = p
	r.mu.Unlock()
	log.Info("player %s entered at %.1f,%.1f,%.1f", id, p.position[0], p.position[1], p.position[2])
}

func (r *consoleRenderer) UpdateProxy(id string, target messages.StateSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.proxies[id]
	if !ok {
		return
	}
	p.targetPosition = target.Position
	p.targetQuaternion = target.Quaternion
}

func (r *consoleRenderer) RemoveProxy(id string) {
	r.mu.Lock()
	delete(r.proxies, id)
	r.mu.Unlock()
	log.Info("player %s removed", id)
}

// advance converges every display transform one frame toward its target.
func (r *consoleRenderer) advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.proxies {
		p.position = p.position.Lerp(p.targetPosition, lerpFactor)
		p.quaternion = p.quaternion.Slerp(p.targetQuaternion, lerpFactor).Normalize()
	}
}

// localSnapshot flies a circular orbit, nose along the tangent.
func localSnapshot(elapsed time.Duration) messages.StateSnapshot {
	theta := angularSpeed * elapsed.Seconds()
	yaw := theta + math.Pi/2
	return messages.StateSnapshot{
		Position: kinematic.Vector3{
			orbitRadius * math.Cos(theta),
			orbitAltitude,
			orbitRadius * math.Sin(theta),
		},
		Quaternion: kinematic.Quaternion{0, math.Sin(yaw / 2), 0, math.Cos(yaw / 2)},
	}
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "Relay WebSocket URL")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	log.SetDefaultLogger(log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := newConsoleRenderer()
	registry := entities.NewRegistry(entities.NewRegistryOptions{Renderer: renderer})
	go registry.Start(ctx)

	manager := clientnetwork.NewConnectionManager(clientnetwork.NewConnectionManagerOptions{
		ServerURL: *serverURL,
		Entities:  registry,
		OnStatusChanged: func(status clientnetwork.Status) {
			log.Info("connection status: %s", status)
		},
		OnServerInfo: func(playerCount int) {
			log.Info("server reports %d players", playerCount)
		},
	})
	go manager.Start(ctx)

	start := time.Now()
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			if err := manager.SendState(ctx, localSnapshot(time.Since(start))); err != nil {
				log.Debug("failed to send state: %v", err)
			}
			renderer.advance()
		}
	}
}
