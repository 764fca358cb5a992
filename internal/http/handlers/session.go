package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"brewbar/internal/domain"
	applog "brewbar/internal/log"
	"brewbar/internal/services"
)

const sessionCookie = "sid"

func ensureSID(c *fiber.Ctx) string {
	sid := c.Cookies(sessionCookie)
	if sid == "" {
		if v, ok := c.Locals(sessionCookie).(string); ok {
			return v
		}
		sid = uuid.NewString()
		c.Cookie(&fiber.Cookie{
			Name:     sessionCookie,
			Value:    sid,
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
			Secure:   false, // enable true behind TLS
		})
		c.Locals(sessionCookie, sid)
	}
	return sid
}

func expireSID(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(-1 * time.Hour),
	})
}

func currentUser(c *fiber.Ctx) *domain.User {
	u, _ := c.Locals("user").(*domain.User)
	return u
}

// AttachUser resolves the session cookie to a user for every request.
func AttachUser(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sid := c.Cookies(sessionCookie); sid != "" {
			if u, err := auth.CurrentUser(c.UserContext(), sid); err == nil && u != nil {
				c.Locals("user", u)
			}
		}
		return c.Next()
	}
}

// apiError maps domain errors to a status and a message that is safe to show.
func apiError(c *fiber.Ctx, err error) error {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		applog.Security(c, "validation.fail", map[string]any{"field": ve.Field, "reason": ve.Reason})
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Reason, "field": ve.Field})
	case domain.IsIdentity(err):
		applog.Security(c, "access.denied", map[string]any{"reason": err.Error()})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Please sign in to continue."})
	case errors.Is(err, services.ErrCheckoutInProgress):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Your order is already being placed."})
	case errors.Is(err, domain.ErrIllegalTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "That status change is not allowed."})
	case errors.Is(err, domain.ErrAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "That already exists."})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found."})
	case domain.IsBackend(err):
		var be *domain.BackendError
		errors.As(err, &be)
		applog.Error(c, "backend.fail", err, map[string]any{"stage": string(be.Stage)})
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "We could not place your order. Please try again."})
	default:
		applog.Error(c, "server.error", err, nil)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Something went wrong. Please try again."})
	}
}
