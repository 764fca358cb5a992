package handlers

import (
	"github.com/gofiber/fiber/v2"

	"brewbar/internal/cart"
	"brewbar/internal/domain"
	applog "brewbar/internal/log"
	"brewbar/internal/services"
)

type CheckoutHandler struct {
	Checkout *services.CheckoutService
	Carts    *cart.Registry
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Submit(c *fiber.Ctx) error {
	sid := ensureSID(c)
	var req services.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, &domain.ValidationError{Field: "body", Reason: "malformed checkout request"})
	}

	e := h.Carts.Get(c.UserContext(), sid)
	order, err := h.Checkout.Submit(c.UserContext(), e, currentUser(c), req)
	if err != nil {
		return apiError(c, err)
	}
	if err := h.Carts.Persist(c.UserContext(), sid); err != nil {
		applog.Warn(c, "cart.persist.fail", err, nil)
	}
	return c.Status(fiber.StatusCreated).JSON(order)
}

// GET /api/v1/checkout/state
func (h *CheckoutHandler) State(c *fiber.Ctx) error {
	// engine ids follow the session id
	return c.JSON(fiber.Map{"state": h.Checkout.State(ensureSID(c))})
}
