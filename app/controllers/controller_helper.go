package controllers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// GetClientIP returns the client address. Forwarded headers only count when
// the app is configured with a ProxyHeader and the peer is a trusted proxy.
func GetClientIP(c *fiber.Ctx) string {
	return c.IP()
}

// requestHeaders copies the fasthttp request headers into a net/http header
// map with canonical keys.
func requestHeaders(c *fiber.Ctx) http.Header {
	headers := make(http.Header)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers.Add(string(key), string(value))
	})
	return headers
}

// requestBody returns a copy of the body that outlives the fiber context.
func requestBody(c *fiber.Ctx) []byte {
	body := c.Body()
	out := make([]byte, len(body))
	copy(out, body)
	return out
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
