package middleware

import (
	"strings"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/httpx"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// LocalUserID is the Locals key holding the caller's uuid.UUID.
	LocalUserID = "userID"

	AccessCookie = "session"
)

// Claims accepts the identity in either "sub" or "user_id".
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) identity() (uuid.UUID, error) {
	if c.Subject != "" {
		return uuid.Parse(c.Subject)
	}
	return uuid.Parse(c.UserID)
}

// AuthRequired validates an HS256 bearer token, or the session cookie, and
// stores the caller's identity under LocalUserID.
func AuthRequired(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		var tokenString string
		if authHeader != "" {
			// Extract token from "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return httpx.Unauthorized(c, "Invalid authorization format")
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Cookies(AccessCookie)
		}

		if tokenString == "" {
			return httpx.Unauthorized(c, "authentication required")
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if token.Method == nil || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			return httpx.Unauthorized(c, "Invalid or expired token")
		}

		id, err := claims.identity()
		if err != nil || id == uuid.Nil {
			return httpx.Unauthorized(c, "Invalid token")
		}

		c.Locals(LocalUserID, id)
		return c.Next()
	}
}
