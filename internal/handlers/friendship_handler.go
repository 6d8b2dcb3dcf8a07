package handlers

import (
	"github.com/Scl-Ywr/confession-wall-sub002/internal/httpx"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/middleware"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type FriendshipHandler struct {
	friendshipService *service.FriendshipService
}

func NewFriendshipHandler(friendshipService *service.FriendshipService) *FriendshipHandler {
	return &FriendshipHandler{friendshipService: friendshipService}
}

type FriendRequestRequest struct {
	To uuid.UUID `json:"to"`
}

type RespondRequest struct {
	Accept bool `json:"accept"`
}

func (h *FriendshipHandler) SendRequest(c *fiber.Ctx) error {
	var req FriendRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}

	f, err := h.friendshipService.SendRequest(c.UserContext(), userID, req.To)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(service.FriendshipView(f))
}

func (h *FriendshipHandler) Respond(c *fiber.Ctx) error {
	var req RespondRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	peer, err := httpx.ParamUUID(c, "peer")
	if err != nil {
		return httpx.FromError(c, err)
	}

	state, err := h.friendshipService.Respond(c.UserContext(), userID, peer, req.Accept)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"state": state})
}

func (h *FriendshipHandler) Remove(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	peer, err := httpx.ParamUUID(c, "peer")
	if err != nil {
		return httpx.FromError(c, err)
	}

	if err := h.friendshipService.Remove(c.UserContext(), userID, peer); err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"state": models.StateNone})
}

func (h *FriendshipHandler) Status(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	peer, err := httpx.ParamUUID(c, "peer")
	if err != nil {
		return httpx.FromError(c, err)
	}

	state, err := h.friendshipService.Status(c.UserContext(), userID, peer)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"state": state})
}

func (h *FriendshipHandler) ListFriends(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}

	friends, err := h.friendshipService.ListFriends(c.UserContext(), userID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"friends": friends})
}

func (h *FriendshipHandler) ListRequests(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}

	requests, err := h.friendshipService.ListRequests(c.UserContext(), userID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(requests)
}
