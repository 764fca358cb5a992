package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	applog "brewbar/internal/log"
)

func wantsJSON(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/api/") || c.Accepts(fiber.MIMEApplicationJSON, fiber.MIMETextHTML) == fiber.MIMEApplicationJSON
}

// RequireUser enforces that a user is logged in. It runs after AttachUser.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if currentUser(c) == nil {
			applog.Security(c, "access.denied.user", nil)
			if wantsJSON(c) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Please sign in to continue."})
			}
			return c.Redirect("/login")
		}
		return c.Next()
	}
}

func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u := currentUser(c)
		if u == nil {
			if wantsJSON(c) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Please sign in to continue."})
			}
			return c.Redirect("/login")
		}
		if !u.IsAdmin() {
			applog.Security(c, "access.denied.admin", map[string]any{"user_id": u.ID})
			if wantsJSON(c) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Access denied"})
			}
			return c.Status(fiber.StatusForbidden).Render("notfound", fiber.Map{"Message": "Access denied"})
		}
		return c.Next()
	}
}
