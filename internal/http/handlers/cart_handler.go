package handlers

import (
	"github.com/gofiber/fiber/v2"

	"brewbar/internal/cart"
	"brewbar/internal/domain"
	applog "brewbar/internal/log"
	"brewbar/internal/services"
	"brewbar/internal/validate"
)

type CartHandler struct {
	Catalog *services.CatalogService
	Carts   *cart.Registry
}

type addItemBody struct {
	ItemID         string   `json:"item_id" form:"item_id"`
	Quantity       *int     `json:"quantity" form:"quantity"`
	Customizations []string `json:"customizations" form:"customizations"`
}

const maxLineQuantity = 50

var errQuantityTooLarge = &domain.ValidationError{Field: "quantity", Reason: "quantity must be at most 50"}

// quantity defaults to one when the client leaves it out.
func (b addItemBody) quantity() int {
	if b.Quantity == nil {
		return 1
	}
	return *b.Quantity
}

// persist writes the cart through to the snapshot store and logs failures.
func (h *CartHandler) persist(c *fiber.Ctx, sid string) {
	if err := h.Carts.Persist(c.UserContext(), sid); err != nil {
		applog.Warn(c, "cart.persist.fail", err, nil)
	}
}

// GET /api/v1/cart
func (h *CartHandler) View(c *fiber.Ctx) error {
	return c.JSON(h.Carts.Peek(c.UserContext(), ensureSID(c)))
}

// POST /api/v1/cart/items
func (h *CartHandler) Add(c *fiber.Ctx) error {
	sid := ensureSID(c)
	var body addItemBody
	if err := c.BodyParser(&body); err != nil {
		return apiError(c, &domain.ValidationError{Field: "body", Reason: "malformed request"})
	}
	id, ok := validate.ID(body.ItemID)
	if !ok {
		return apiError(c, &domain.ValidationError{Field: "item_id", Reason: "item id is required"})
	}
	if body.quantity() > maxLineQuantity {
		return apiError(c, errQuantityTooLarge)
	}
	item, err := h.Catalog.Lookup(c.UserContext(), id)
	if err != nil {
		return apiError(c, err)
	}

	e := h.Carts.Get(c.UserContext(), sid)
	if err := e.AddItem(item, body.quantity(), validate.Customizations(body.Customizations)...); err != nil {
		return apiError(c, err)
	}
	h.persist(c, sid)
	return c.Status(fiber.StatusCreated).JSON(e.Snapshot())
}

type quantityBody struct {
	Quantity *int `json:"quantity" form:"quantity"`
}

// PATCH /api/v1/cart/items/:id
func (h *CartHandler) Update(c *fiber.Ctx) error {
	sid := ensureSID(c)
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return apiError(c, domain.ErrItemNotFound)
	}
	var body quantityBody
	if err := c.BodyParser(&body); err != nil || body.Quantity == nil {
		return apiError(c, &domain.ValidationError{Field: "quantity", Reason: "quantity must be a whole number"})
	}
	if *body.Quantity > maxLineQuantity {
		return apiError(c, errQuantityTooLarge)
	}

	e := h.Carts.Get(c.UserContext(), sid)
	e.UpdateQuantity(id, *body.Quantity)
	h.persist(c, sid)
	return c.JSON(e.Snapshot())
}

// DELETE /api/v1/cart/items/:id
func (h *CartHandler) Remove(c *fiber.Ctx) error {
	sid := ensureSID(c)
	e := h.Carts.Get(c.UserContext(), sid)
	e.RemoveItem(c.Params("id"))
	h.persist(c, sid)
	return c.JSON(e.Snapshot())
}

// DELETE /api/v1/cart
func (h *CartHandler) Clear(c *fiber.Ctx) error {
	sid := ensureSID(c)
	e := h.Carts.Get(c.UserContext(), sid)
	e.Clear()
	h.persist(c, sid)
	applog.Info(c, "cart.clear", nil)
	return c.JSON(e.Snapshot())
}
