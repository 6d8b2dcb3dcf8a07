package handlers

import (
	"github.com/Scl-Ywr/confession-wall-sub002/internal/httpx"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/middleware"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/service"
	"github.com/gofiber/fiber/v2"
)

type SyncHandler struct {
	syncService *service.SyncService
}

func NewSyncHandler(syncService *service.SyncService) *SyncHandler {
	return &SyncHandler{syncService: syncService}
}

// Resync returns the canonical snapshot of ?topic= for polling clients and
// after a detected sequence gap.
func (h *SyncHandler) Resync(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	topic := c.Query("topic")
	if topic == "" {
		return httpx.BadRequest(c, "topic is required")
	}

	snap, err := h.syncService.Resync(c.UserContext(), userID, topic)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(snap)
}
