package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

var errSubscribeTimeout = errors.New("subscribe timed out")

type SessionConfig struct {
	// URL is the server's HTTP base URL; the WebSocket endpoint is derived
	// from it.
	URL    string
	Token  string
	Topics []string

	SubscribeTimeout  time.Duration
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration

	Dialer *websocket.Dialer
	Logger *zap.Logger
	// OnEvent is called after every event frame with the cache's verdict.
	OnEvent func(events.Event, Outcome)
}

func (c *SessionConfig) setDefaults() {
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Session keeps a Cache current over a WebSocket subscription. While no
// subscription is live it polls every topic's canonical state instead.
type Session struct {
	cfg   SessionConfig
	cache *Cache
	log   *zap.Logger

	connected atomic.Bool
	polls     atomic.Int64
	writeMu   sync.Mutex
}

func NewSession(cfg SessionConfig, cache *Cache) *Session {
	cfg.setDefaults()
	return &Session{cfg: cfg, cache: cache, log: cfg.Logger}
}

// Connected reports whether a subscription is currently acknowledged.
func (s *Session) Connected() bool { return s.connected.Load() }

// Polls counts completed polling rounds.
func (s *Session) Polls() int64 { return s.polls.Load() }

// Run subscribes and reconnects with exponential backoff until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	go s.cache.Run(ctx, func(err error) {
		s.log.Warn("resync failed", zap.Error(err))
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.MaxInterval = s.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()

	for {
		err := s.serve(ctx, b.Reset)
		s.connected.Store(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.log.Warn("subscription unavailable, polling", zap.Error(err))

		if err := s.pollFor(ctx, b.NextBackOff()); err != nil {
			return err
		}
	}
}

func (s *Session) wsURL() string {
	u := strings.TrimRight(s.cfg.URL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func (s *Session) write(conn *websocket.Conn, frameType string, payload interface{}) error {
	frame, err := events.NewFrame(frameType, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

// serve runs one subscription until it fails. onSubscribed is called once
// the server acknowledges the subscribe frame.
func (s *Session) serve(ctx context.Context, onSubscribed func()) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.SubscribeTimeout)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.Token)
	conn, _, err := s.cfg.Dialer.DialContext(dialCtx, s.wsURL(), header)
	cancel()
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	// Events missed while disconnected never arrive; every topic is
	// reloaded from its snapshot.
	s.cache.Invalidate(s.cfg.Topics...)
	if err := s.write(conn, events.FrameSubscribe, events.TopicsPayload{Topics: s.cfg.Topics}); err != nil {
		return err
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.SubscribeTimeout))

	for {
		var frame events.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if !s.connected.Load() {
				var netErr interface{ Timeout() bool }
				if errors.As(err, &netErr) && netErr.Timeout() {
					return errSubscribeTimeout
				}
			}
			return err
		}

		switch frame.Type {
		case events.FrameSubscribed:
			var ack events.SubscribedPayload
			if err := json.Unmarshal(frame.Payload, &ack); err != nil {
				return err
			}
			for topic, code := range ack.Rejected {
				s.log.Warn("topic rejected", zap.String("topic", topic), zap.String("code", code))
			}
			_ = conn.SetReadDeadline(time.Time{})
			s.connected.Store(true)
			onSubscribed()
			if s.cfg.HeartbeatInterval > 0 {
				go s.heartbeat(conn, done)
			}
		case events.FrameEvent:
			var ev events.Event
			if err := json.Unmarshal(frame.Payload, &ev); err != nil {
				s.log.Debug("bad event frame", zap.Error(err))
				continue
			}
			outcome := s.cache.Apply(ev)
			if s.cfg.OnEvent != nil {
				s.cfg.OnEvent(ev, outcome)
			}
		case events.FrameSnapshot:
			var snap events.Snapshot
			if err := json.Unmarshal(frame.Payload, &snap); err == nil {
				_ = s.cache.Load(&snap)
			}
		case events.FrameError:
			s.log.Debug("server error frame", zap.ByteString("payload", frame.Payload))
		}
	}
}

func (s *Session) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.write(conn, events.FrameHeartbeat, nil); err != nil {
				return
			}
		}
	}
}

// pollFor refreshes every topic immediately and then every PollInterval
// until wait has elapsed.
func (s *Session) pollFor(ctx context.Context, wait time.Duration) error {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := s.PollOnce(ctx); err != nil {
			s.log.Debug("poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce loads the canonical state of every configured topic.
func (s *Session) PollOnce(ctx context.Context) error {
	var result error
	for _, topic := range s.cfg.Topics {
		if err := s.cache.Refresh(ctx, topic); err != nil {
			result = multierror.Append(result, err)
		}
	}
	s.polls.Add(1)
	return result
}
