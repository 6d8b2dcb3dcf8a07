package handlers

import (
	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"strconv"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/httpx"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/middleware"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/models"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/service"
	"github.com/Scl-Ywr/confession-wall-sub002/pkg/events"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ConversationHandler serves read state, unread counts and history for
// /api/conversations/:kind/:id where kind is "direct" or "group".
type ConversationHandler struct {
	ledgerService  *service.LedgerService
	messageService *service.MessageService
}

func NewConversationHandler(ledgerService *service.LedgerService, messageService *service.MessageService) *ConversationHandler {
	return &ConversationHandler{ledgerService: ledgerService, messageService: messageService}
}

func target(c *fiber.Ctx) (uuid.UUID, models.Target, error) {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return uuid.Nil, models.Target{}, err
	}
	t, err := models.ParseTarget(c.Params("kind"), c.Params("id"))
	if err != nil {
		return uuid.Nil, models.Target{}, errInvalidTarget(err)
	}
	return userID, t, nil
}

func (h *ConversationHandler) MarkRead(c *fiber.Ctx) error {
	userID, t, err := target(c)
	if err != nil {
		return httpx.FromError(c, err)
	}

	changed, err := h.ledgerService.MarkRead(c.UserContext(), userID, t)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(changed)
}

func (h *ConversationHandler) Unread(c *fiber.Ctx) error {
	userID, t, err := target(c)
	if err != nil {
		return httpx.FromError(c, err)
	}

	n, err := h.ledgerService.UnreadCount(c.UserContext(), userID, t)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{
		"conversation_id": t.ConversationID(userID),
		"unread":          n,
	})
}

func (h *ConversationHandler) History(c *fiber.Ctx) error {
	userID, t, err := target(c)
	if err != nil {
		return httpx.FromError(c, err)
	}

	var before int64
	if s := c.Query("before"); s != "" {
		before, err = strconv.ParseInt(s, 10, 64)
		if err != nil || before < 0 {
			return httpx.BadRequest(c, "Invalid before cursor")
		}
	}
	limit := c.QueryInt("limit", service.DefaultHistoryLimit)

	messages, err := h.messageService.History(c.UserContext(), userID, t, before, limit)
	if err != nil {
		return httpx.FromError(c, err)
	}

	views := make([]events.MessageView, len(messages))
	for i := range messages {
		views[i] = service.MessageView(&messages[i])
	}
	return c.JSON(fiber.Map{"messages": views})
}

func (h *ConversationHandler) List(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}

	list, err := h.ledgerService.ListConversations(c.UserContext(), userID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"conversations": list})
}

func errInvalidTarget(cause error) error {
	return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid conversation target", cause)
}
