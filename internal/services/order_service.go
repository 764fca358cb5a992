package services

import (
	"context"

	"brewbar/internal/domain"
	applog "brewbar/internal/log"
	"brewbar/internal/repos"
)

type OrderService struct {
	Orders *repos.OrderRepo
}

func NewOrderService(orders *repos.OrderRepo) *OrderService {
	return &OrderService{Orders: orders}
}

// History lists the user's orders, newest first, with lines and items.
func (s *OrderService) History(ctx context.Context, user *domain.User) ([]domain.Order, error) {
	if user == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return s.Orders.ListOrdersForUser(ctx, user.ID)
}

func (s *OrderService) Latest(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.Orders.ListLatest(ctx, limit)
}

// Advance moves an order along its status progression on behalf of staff.
func (s *OrderService) Advance(ctx context.Context, orderID string, next domain.OrderStatus) error {
	if !next.Valid() {
		return &domain.ValidationError{Field: "status", Reason: "unknown order status"}
	}
	if err := s.Orders.UpdateStatus(ctx, orderID, next); err != nil {
		return err
	}
	applog.Audit(nil, "order.status", map[string]any{"order_id": orderID, "status": string(next)})
	return nil
}
