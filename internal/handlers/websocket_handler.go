package handlers

import (
	"context"
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/handlers/ws"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/logger"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/middleware"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	syncService     *service.SyncService
	presenceService *service.PresenceService
	hub             *ws.Hub
	log             *zap.Logger
	now             func() time.Time
}

func NewWebSocketHandler(hub *ws.Hub, syncService *service.SyncService, presenceService *service.PresenceService, log *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		syncService:     syncService,
		presenceService: presenceService,
		hub:             hub,
		log:             logger.OrNop(log),
		now:             time.Now,
	}
}

// GetHub returns the hub instance
func (h *WebSocketHandler) GetHub() *ws.Hub {
	return h.hub
}

// Upgrade rejects plain HTTP requests on the WebSocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals(middleware.LocalUserID).(uuid.UUID)
	if !ok {
		_ = c.Close()
		return
	}

	// Check if client supports gzip compression (via query param or header)
	supportsGzip := c.Query("gzip") == "1" || c.Headers("X-Supports-Gzip") == "1"

	session := h.hub.Register(userID, c, supportsGzip)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.hub.Unregister(session)
	}()

	// Connecting counts as a heartbeat
	h.presenceService.Heartbeat(ctx, userID, h.now())

	msgCtx := &ws.MessageContext{
		Ctx:      ctx,
		UserID:   userID,
		Session:  session,
		Hub:      h.hub,
		Sync:     h.syncService,
		Presence: h.presenceService,
		Log:      h.log,
		Now:      h.now,
	}

	for {
		messageType, messageBytes, err := c.ReadMessage()
		if err != nil {
			h.log.Debug("ws read ended", zap.Stringer("user", userID), zap.Error(err))
			break
		}

		// Decompress if binary message (gzip compressed)
		if messageType == websocket.BinaryMessage {
			decompressed, err := ws.DecompressMessage(messageBytes)
			if err != nil {
				_ = ws.SendError(session, "decompression_failed", "Failed to decompress message", err.Error())
				continue
			}
			messageBytes = decompressed
		}

		msg, err := ws.Deserialize(messageBytes)
		if err != nil {
			_ = ws.SendError(session, "invalid_message", "Invalid message format", err.Error())
			continue
		}

		if err := msg.Process(msgCtx); err != nil {
			h.log.Warn("ws frame failed",
				zap.String("type", msg.GetType()),
				zap.Stringer("user", userID),
				zap.Error(err))
			_ = ws.SendError(session, "processing_failed", "Failed to process message", err.Error())
		}
	}
}
