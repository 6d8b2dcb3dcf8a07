package handlers

import (
	"time"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/httpx"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/middleware"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/service"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/gofiber/fiber/v2"
)

type PresenceHandler struct {
	presenceService *service.PresenceService
	syncService     *service.SyncService
	now             func() time.Time
}

func NewPresenceHandler(presenceService *service.PresenceService, syncService *service.SyncService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService, syncService: syncService, now: time.Now}
}

type DeclaredStatusRequest struct {
	Status models.DeclaredStatus `json:"status"`
}

// Heartbeat always succeeds; presence write failures are only logged.
func (h *PresenceHandler) Heartbeat(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}

	l := h.presenceService.Heartbeat(c.UserContext(), userID, h.now())
	return c.JSON(fiber.Map{"liveness": l})
}

func (h *PresenceHandler) SetStatus(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}

	var req DeclaredStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}

	view, err := h.presenceService.SetDeclaredStatus(c.UserContext(), userID, req.Status)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(view)
}

// Get is open to the user and their friends, like the presence topic.
func (h *PresenceHandler) Get(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}
	if _, err := h.syncService.Authorize(c.UserContext(), userID, events.PresenceTopic(id)); err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(h.presenceService.Status(c.UserContext(), id))
}
