package handlers

import (
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/httpx"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/websocket/v2"
)

// Handlers groups every HTTP and WebSocket handler mounted by Register.
type Handlers struct {
	Friendship   *FriendshipHandler
	Message      *MessageHandler
	Conversation *ConversationHandler
	Presence     *PresenceHandler
	Group        *GroupHandler
	Sync         *SyncHandler
	WebSocket    *WebSocketHandler
}

type RouteConfig struct {
	JWTSecret      string
	AllowedOrigins string
	CSRFMode       string
	// SendsPerMinute caps message sends per user; 0 disables the limit.
	SendsPerMinute int
}

func Register(app *fiber.App, h Handlers, cfg RouteConfig) {
	api := app.Group("/api",
		middleware.OriginAllowed(cfg.AllowedOrigins),
		middleware.AuthRequired(cfg.JWTSecret),
		middleware.CSRFRequired(cfg.CSRFMode, cfg.AllowedOrigins),
	)

	api.Get("/friends", h.Friendship.ListFriends)
	api.Get("/friends/requests", h.Friendship.ListRequests)
	api.Post("/friends/requests", h.Friendship.SendRequest)
	api.Post("/friends/requests/:peer/respond", h.Friendship.Respond)
	api.Get("/friends/:peer/status", h.Friendship.Status)
	api.Delete("/friends/:peer", h.Friendship.Remove)

	sendLimit := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.SendsPerMinute > 0 {
		sendLimit = limiter.New(limiter.Config{
			Max:        cfg.SendsPerMinute,
			Expiration: time.Minute,
			KeyGenerator: func(c *fiber.Ctx) string {
				if uid, err := httpx.LocalUUID(c, middleware.LocalUserID); err == nil {
					return "send:" + uid.String()
				}
				return c.IP()
			},
		})
	}
	api.Post("/messages", sendLimit, h.Message.SendMessage)
	api.Delete("/messages/:id", h.Message.DeleteMessage)

	api.Get("/conversations", h.Conversation.List)
	api.Post("/conversations/:kind/:id/read", h.Conversation.MarkRead)
	api.Get("/conversations/:kind/:id/unread", h.Conversation.Unread)
	api.Get("/conversations/:kind/:id/messages", h.Conversation.History)

	api.Post("/presence/heartbeat", h.Presence.Heartbeat)
	api.Put("/presence/status", h.Presence.SetStatus)
	api.Get("/presence/:id", h.Presence.Get)

	api.Post("/groups", h.Group.CreateGroup)
	api.Get("/groups", h.Group.GetMyGroups)
	api.Post("/groups/:id/members", h.Group.AddMember)
	api.Get("/groups/:id/members", h.Group.GetGroupMembers)
	api.Delete("/groups/:id/members/:member", h.Group.RemoveMember)

	api.Get("/sync", h.Sync.Resync)

	if h.WebSocket != nil {
		app.Use("/ws",
			middleware.OriginAllowed(cfg.AllowedOrigins),
			middleware.AuthRequired(cfg.JWTSecret),
			h.WebSocket.Upgrade,
		)
		app.Get("/ws", websocket.New(h.WebSocket.HandleWebSocket))
	}
}
