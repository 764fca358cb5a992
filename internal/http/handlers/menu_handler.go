package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"brewbar/internal/cart"
	"brewbar/internal/domain"
	"brewbar/internal/services"
)

type MenuHandler struct {
	Catalog *services.CatalogService
	Carts   *cart.Registry
}

func menuFilter(c *fiber.Ctx) (string, string) {
	category := strings.ToLower(strings.TrimSpace(c.Query("category")))
	if category != "all" && !domain.Category(category).Valid() {
		category = ""
	}
	q := strings.TrimSpace(c.Query("q"))
	if len(q) > 50 {
		q = q[:50]
	}
	return category, q
}

// GET /
func (h *MenuHandler) Home(c *fiber.Ctx) error {
	listing, _ := h.Catalog.ListAvailableItems(c.UserContext())
	category, q := menuFilter(c)
	snap := h.Carts.Peek(c.UserContext(), ensureSID(c))
	return render(c, "menu", fiber.Map{
		"Items":      services.Filter(listing.Items, category, q),
		"Warning":    listing.Warning,
		"Categories": domain.Categories,
		"Category":   category,
		"Query":      q,
		"Cart":       snap,
	})
}

// GET /api/v1/menu
func (h *MenuHandler) List(c *fiber.Ctx) error {
	listing, _ := h.Catalog.ListAvailableItems(c.UserContext())
	category, q := menuFilter(c)
	listing.Items = services.Filter(listing.Items, category, q)
	return c.JSON(listing)
}
