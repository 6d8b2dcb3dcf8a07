package handlers

import (
	"github.com/Scl-Ywr/confession-wall-sub002/internal/httpx"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/middleware"
	"github.com/Scl-Ywr/confession-wall-sub002/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type GroupHandler struct {
	groupService *service.GroupService
}

func NewGroupHandler(groupService *service.GroupService) *GroupHandler {
	return &GroupHandler{groupService: groupService}
}

// AddMemberRequest names the user to add. An empty user_id joins the caller.
type AddMemberRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

func (h *GroupHandler) CreateGroup(c *fiber.Ctx) error {
	var req service.CreateGroupInput
	if err := c.BodyParser(&req); err != nil {
		return httpx.BadRequest(c, "Invalid request body")
	}
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}

	group, err := h.groupService.CreateGroup(c.UserContext(), userID, req)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(group)
}

func (h *GroupHandler) GetMyGroups(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}

	groups, err := h.groupService.ListGroups(c.UserContext(), userID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(groups)
}

func (h *GroupHandler) AddMember(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	groupID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}

	var req AddMemberRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return httpx.BadRequest(c, "Invalid request body")
		}
	}
	member := req.UserID
	if member == uuid.Nil {
		member = userID
	}

	if err := h.groupService.AddMember(c.UserContext(), userID, groupID, member); err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"group_id": groupID, "user_id": member})
}

func (h *GroupHandler) RemoveMember(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	groupID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}
	member, err := httpx.ParamUUID(c, "member")
	if err != nil {
		return httpx.FromError(c, err)
	}

	if err := h.groupService.RemoveMember(c.UserContext(), userID, groupID, member); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *GroupHandler) GetGroupMembers(c *fiber.Ctx) error {
	userID, err := httpx.LocalUUID(c, middleware.LocalUserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	groupID, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return httpx.FromError(c, err)
	}

	members, err := h.groupService.Members(c.UserContext(), userID, groupID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(members)
}
