package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "brewbar/internal/log"
	"brewbar/internal/services"
)

type OrderHandler struct {
	Orders *services.OrderService
}

// GET /orders
func (h *OrderHandler) HistoryPage(c *fiber.Ctx) error {
	orders, err := h.Orders.History(c.UserContext(), currentUser(c))
	if err != nil {
		applog.Error(c, "orders.history.fail", err, nil)
		return c.Status(fiber.StatusInternalServerError).Render("notfound", fiber.Map{"Message": "Could not load orders"})
	}
	return render(c, "orders", fiber.Map{"Orders": orders})
}

// GET /api/v1/orders
func (h *OrderHandler) History(c *fiber.Ctx) error {
	orders, err := h.Orders.History(c.UserContext(), currentUser(c))
	if err != nil {
		return apiError(c, err)
	}
	return c.JSON(fiber.Map{"orders": orders})
}
