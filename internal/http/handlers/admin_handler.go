package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"brewbar/internal/domain"
	applog "brewbar/internal/log"
	"brewbar/internal/repos"
	"brewbar/internal/services"
	"brewbar/internal/validate"
)

type AdminHandler struct {
	Orders  *services.OrderService
	Catalog *repos.CatalogRepo
}

// GET /admin/orders
func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	ords, err := h.Orders.Latest(c.UserContext(), c.QueryInt("limit", 100))
	if err != nil {
		applog.Error(c, "admin.orders.list.fail", err, nil)
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"orders": ords})
}

type statusBody struct {
	Status string `json:"status" form:"status"`
}

// POST /admin/orders/:id/status
func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	var body statusBody
	if err := c.BodyParser(&body); err != nil || !ok || body.Status == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing id or status"})
	}
	if err := h.Orders.Advance(c.UserContext(), id, domain.OrderStatus(body.Status)); err != nil {
		applog.Error(c, "admin.orders.update.fail", err, map[string]any{"order_id": id})
		return apiError(c, err)
	}
	applog.Audit(c, "admin.orders.update", map[string]any{"order_id": id, "status": body.Status})
	return c.JSON(fiber.Map{"ok": true})
}

type priceBody struct {
	Price string `json:"price" form:"price"`
}

// POST /admin/menu/:id/price
func (h *AdminHandler) UpdatePrice(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	var body priceBody
	if err := c.BodyParser(&body); err != nil || !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		return apiError(c, &domain.ValidationError{Field: "price", Reason: "price must be a decimal amount"})
	}
	if err := h.Catalog.UpdatePrice(c.UserContext(), id, price.Round(2)); err != nil {
		return apiError(c, err)
	}
	applog.Audit(c, "admin.menu.price", map[string]any{"item_id": id, "price": price.StringFixed(2)})
	return c.JSON(fiber.Map{"ok": true})
}

type availabilityBody struct {
	Available bool `json:"available" form:"available"`
}

// POST /admin/menu/:id/availability
func (h *AdminHandler) SetAvailability(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	var body availabilityBody
	if err := c.BodyParser(&body); err != nil || !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	if err := h.Catalog.SetAvailable(c.UserContext(), id, body.Available); err != nil {
		return apiError(c, err)
	}
	applog.Audit(c, "admin.menu.availability", map[string]any{"item_id": id, "available": body.Available})
	return c.JSON(fiber.Map{"ok": true})
}

// GET /admin/menu
func (h *AdminHandler) ListMenu(c *fiber.Ctx) error {
	items, err := h.Catalog.List(c.UserContext())
	if err != nil {
		applog.Error(c, "admin.menu.list.fail", err, nil)
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"items": items})
}

type newItemBody struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	ImageURL    string `json:"image_url"`
	Category    string `json:"category"`
}

// POST /admin/menu
func (h *AdminHandler) CreateItem(c *fiber.Ctx) error {
	var body newItemBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid input"})
	}
	id, ok := validate.ID(body.ID)
	if !ok {
		return apiError(c, &domain.ValidationError{Field: "id", Reason: "id must be a slug"})
	}
	name := strings.TrimSpace(body.Name)
	if len(name) < 2 || len(name) > 80 {
		return apiError(c, &domain.ValidationError{Field: "name", Reason: "name must be 2-80 characters"})
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil || price.IsNegative() {
		return apiError(c, &domain.ValidationError{Field: "price", Reason: "price must be a decimal amount"})
	}
	it := domain.CatalogItem{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(body.Description),
		Price:       price.Round(2),
		ImageURL:    strings.TrimSpace(body.ImageURL),
		Category:    domain.Category(strings.ToLower(body.Category)),
		Available:   true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.Catalog.Create(c.UserContext(), it); err != nil {
		return apiError(c, err)
	}
	applog.Audit(c, "admin.menu.create", map[string]any{"item_id": id})
	return c.Status(fiber.StatusCreated).JSON(it)
}
