package httpx

import (
	"fmt"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/apperrors"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Error(c *fiber.Ctx, status int, code string, message string) error {
	if message == "" {
		message = "Request failed"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID(c),
	})
}

func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, string(apperrors.CodeInvalidArgument), message)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, string(apperrors.CodeUnauthenticated), message)
}

func Forbidden(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusForbidden, string(apperrors.CodePermissionDenied), message)
}

// StatusOf maps an error code onto an HTTP status.
func StatusOf(code apperrors.Code) int {
	switch code {
	case apperrors.CodeInvalidArgument:
		return fiber.StatusBadRequest
	case apperrors.CodeNotFound:
		return fiber.StatusNotFound
	case apperrors.CodeAlreadyExists, apperrors.CodeAborted:
		return fiber.StatusConflict
	case apperrors.CodePermissionDenied:
		return fiber.StatusForbidden
	case apperrors.CodeUnauthenticated:
		return fiber.StatusUnauthorized
	case apperrors.CodeFailedPrecondition:
		return fiber.StatusPreconditionFailed
	case apperrors.CodeUnavailable:
		return fiber.StatusServiceUnavailable
	case apperrors.CodeDeadlineExceeded:
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

// FromError writes err as an ErrorResponse. Errors without a code are
// reported as internal and their text is not exposed.
func FromError(c *fiber.Ctx, err error) error {
	code := apperrors.CodeOf(err)
	return Error(c, StatusOf(code), string(code), apperrors.MessageOf(err))
}

// LocalUUID reads the identity stored by the auth middleware. A missing or
// malformed value is reported as unauthenticated.
func LocalUUID(c *fiber.Ctx, key string) (uuid.UUID, error) {
	u, ok := c.Locals(key).(uuid.UUID)
	if !ok || u == uuid.Nil {
		return uuid.Nil, apperrors.Wrap(apperrors.CodeUnauthenticated, "authentication required",
			fmt.Errorf("missing local %s", key))
	}
	return u, nil
}

// ParamUUID parses a route parameter as a UUID.
func ParamUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperrors.InvalidArg(fmt.Sprintf("invalid %s", name))
	}
	return id, nil
}
