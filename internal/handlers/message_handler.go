package handlers

import (
	"strconv"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/httpx"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/middleware"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/service"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

type SendMessageRequest struct {
	PeerID   uuid.UUID `json:"peer_id"`
	GroupID  uuid.UUID `json:"group_id"`
	Body     string    `json:"body"`
	ClientID string    `json:"client_id"`
}

type SendMessageResponse struct {
	Message   events.MessageView `json:"message"`
	Duplicate bool               `json:"duplicate"`
}

func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}

	res, err := h.messageService.Send(c.UserContext(), userID, service.SendInput{
		Target:   models.Target{PeerID: req.PeerID, GroupID: req.GroupID},
		Body:     req.Body,
		ClientID: req.ClientID,
	})
	if err != nil {
		return httpx.FromError(c, err)
	}

	status := fiber.StatusCreated
	if res.Duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(SendMessageResponse{
		Message:   service.MessageView(res.Message),
		Duplicate: res.Duplicate,
	})
}

func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}

	messageID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return httpx.BadRequest(c, "Invalid message ID")
	}

	if err := h.messageService.Delete(c.UserContext(), userID, uint(messageID)); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
