package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/Scl-Ywr/confession-wall-sub002/internal/httpx"
	"github.com/gofiber/fiber/v2"
)

const (
	CSRFCookie = "cw_csrf"
	CSRFHeader = "X-CW-CSRF"
)

// CSRFRequired protects cookie-authenticated browser requests.
// Modes:
// - token: require the CSRF header to match the CSRF cookie (default)
// - origin: only enforce the Origin allow-list
// - off: disable checks
func CSRFRequired(mode string, allowedOrigins string) fiber.Handler {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "token"
	}
	allowed := splitCSV(strings.TrimSpace(allowedOrigins))

	return func(c *fiber.Ctx) error {
		if mode == "off" {
			return c.Next()
		}

		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		origin := strings.TrimSpace(c.Get("Origin"))
		if origin == "" {
			// Non-browser clients typically have no Origin; allow.
			return c.Next()
		}

		if len(allowed) > 0 && !originAllowed(origin, allowed) {
			return httpx.Forbidden(c, "Origin not allowed")
		}

		if mode == "origin" {
			return c.Next()
		}

		csrfCookie := c.Cookies(CSRFCookie)
		csrfHeader := c.Get(CSRFHeader)
		if csrfCookie == "" || csrfHeader == "" {
			return httpx.Forbidden(c, "Missing CSRF token")
		}

		if subtle.ConstantTimeCompare([]byte(csrfCookie), []byte(csrfHeader)) != 1 {
			return httpx.Forbidden(c, "Invalid CSRF token")
		}

		return c.Next()
	}
}
