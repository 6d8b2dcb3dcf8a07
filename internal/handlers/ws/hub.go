package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/fanout"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/logger"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn is the part of a WebSocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Session is one live WebSocket connection and its fan-out subscription.
type Session struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	SupportsGzip bool
	Sub          *fanout.Subscription

	conn      Conn
	writeMu   sync.Mutex
	lastPong  time.Time
	pongMu    sync.Mutex
	closeOnce sync.Once
	closeChan chan struct{}
}

// Send writes one frame. Writes are serialized per session.
func (s *Session) Send(frameType string, payload interface{}) error {
	frame, err := events.NewFrame(frameType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	// Compress if supported and beneficial (> 512 bytes)
	msgType := websocket.TextMessage
	if s.SupportsGzip && len(data) > 512 {
		if compressed, err := CompressMessage(data); err == nil && len(compressed) < len(data) {
			data, msgType = compressed, websocket.BinaryMessage
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(msgType, data)
}

func (s *Session) touchPong() {
	s.pongMu.Lock()
	s.lastPong = time.Now()
	s.pongMu.Unlock()
}

func (s *Session) sincePong(now time.Time) time.Duration {
	s.pongMu.Lock()
	defer s.pongMu.Unlock()
	return now.Sub(s.lastPong)
}

// Done is closed when the session is unregistered.
func (s *Session) Done() <-chan struct{} { return s.closeChan }

// Hub manages all active WebSocket sessions
type Hub struct {
	bus          *fanout.Bus
	log          *zap.Logger
	sessions     map[uuid.UUID]*Session
	sessionsMux  sync.RWMutex
	pingInterval time.Duration
	pongTimeout  time.Duration
	stop         chan struct{}
	stopOnce     sync.Once
}

func NewHub(bus *fanout.Bus, log *zap.Logger) *Hub {
	hub := &Hub{
		bus:          bus,
		log:          logger.OrNop(log),
		sessions:     make(map[uuid.UUID]*Session),
		pingInterval: 30 * time.Second,
		pongTimeout:  90 * time.Second,
		stop:         make(chan struct{}),
	}

	go hub.connectionHealthChecker()

	return hub
}

// Register adds a session with health monitoring and starts forwarding its
// subscription's events to the connection.
func (h *Hub) Register(userID uuid.UUID, conn Conn, supportsGzip bool) *Session {
	s := &Session{
		ID:           uuid.New(),
		UserID:       userID,
		SupportsGzip: supportsGzip,
		Sub:          h.bus.Subscribe(),
		conn:         conn,
		lastPong:     time.Now(),
		closeChan:    make(chan struct{}),
	}

	conn.SetPongHandler(func(string) error {
		s.touchPong()
		return conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(h.pongTimeout))

	h.sessionsMux.Lock()
	h.sessions[s.ID] = s
	count := len(h.sessions)
	h.sessionsMux.Unlock()

	go h.forward(s)
	go h.pingRoutine(s)

	h.log.Info("ws session registered",
		zap.Stringer("user", userID),
		zap.Stringer("session", s.ID),
		zap.Int("total", count),
		zap.Bool("gzip", supportsGzip))
	return s
}

// Unregister closes the session's subscription and removes it.
func (h *Hub) Unregister(s *Session) {
	s.closeOnce.Do(func() {
		close(s.closeChan)
		s.Sub.Close()

		h.sessionsMux.Lock()
		delete(h.sessions, s.ID)
		count := len(h.sessions)
		h.sessionsMux.Unlock()

		h.log.Info("ws session unregistered",
			zap.Stringer("user", s.UserID),
			zap.Stringer("session", s.ID),
			zap.Int("total", count))
	})
}

// forward relays bus events until the subscription closes. A failed write
// means the connection is gone.
func (h *Hub) forward(s *Session) {
	for ev := range s.Sub.C {
		if err := s.Send(events.FrameEvent, ev); err != nil {
			h.log.Debug("ws write failed", zap.Stringer("session", s.ID), zap.Error(err))
			h.Unregister(s)
			_ = s.conn.Close()
			return
		}
	}
}

// IsOnline checks if a user has at least one session
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.sessionsMux.RLock()
	defer h.sessionsMux.RUnlock()
	for _, s := range h.sessions {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// Count returns the number of connected sessions
func (h *Hub) Count() int {
	h.sessionsMux.RLock()
	defer h.sessionsMux.RUnlock()
	return len(h.sessions)
}

// Close stops the health checker and drops every session.
func (h *Hub) Close() {
	h.stopOnce.Do(func() { close(h.stop) })

	h.sessionsMux.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.sessionsMux.RUnlock()

	for _, s := range all {
		h.Unregister(s)
		_ = s.conn.Close()
	}
}

// pingRoutine sends periodic ping messages to keep connection alive
func (h *Hub) pingRoutine(s *Session) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeChan:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				h.log.Debug("ws ping failed", zap.Stringer("session", s.ID), zap.Error(err))
				h.Unregister(s)
				return
			}
		}
	}
}

// connectionHealthChecker removes sessions that stopped answering pings
func (h *Hub) connectionHealthChecker() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			h.sweepDead(now)
		}
	}
}

func (h *Hub) sweepDead(now time.Time) int {
	h.sessionsMux.RLock()
	dead := make([]*Session, 0)
	for _, s := range h.sessions {
		if s.sincePong(now) > h.pongTimeout {
			dead = append(dead, s)
		}
	}
	h.sessionsMux.RUnlock()

	for _, s := range dead {
		h.log.Info("removing dead ws session", zap.Stringer("session", s.ID))
		h.Unregister(s)
		_ = s.conn.Close()
	}
	return len(dead)
}
