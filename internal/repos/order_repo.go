package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"brewbar/internal/domain"
)

// OrderWriter is the write side of checkout.
type OrderWriter interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	CreateOrderLines(ctx context.Context, orderID string, lines []domain.OrderLine) error
	RecordPayment(ctx context.Context, p *domain.Payment) error
	DeleteOrder(ctx context.Context, orderID string) error
}

// TxOrderWriter runs a group of writes in one backend transaction.
type TxOrderWriter interface {
	OrderWriter
	WithinTx(ctx context.Context, fn func(w OrderWriter) error) error
}

const orderColumns = `id, user_id, total_amount, status, payment_status, payment_method, order_date, pickup_time, notes`

// OrderRepo reads and writes orders. q is the db or, inside WithinTx, the tx.
type OrderRepo struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{db: db, q: db} }

func (r *OrderRepo) WithinTx(ctx context.Context, fn func(w OrderWriter) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&OrderRepo{db: r.db, q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateOrder inserts the order header. ID and OrderDate are filled in when empty.
func (r *OrderRepo) CreateOrder(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Now()
	}
	o.OrderDate = o.OrderDate.UTC()
	if o.PickupTime != nil {
		p := o.PickupTime.UTC()
		o.PickupTime = &p
	}
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO orders(`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), o.ID, o.UserID, o.Total, o.Status, o.PaymentStatus, o.PaymentMethod, o.OrderDate, o.PickupTime, o.Notes)
	return err
}

// CreateOrderLines inserts the charged lines of an order. Line prices are
// written as given and never looked up from the catalog.
func (r *OrderRepo) CreateOrderLines(ctx context.Context, orderID string, lines []domain.OrderLine) error {
	for i := range lines {
		l := &lines[i]
		if l.Quantity <= 0 {
			return fmt.Errorf("line %s: %w", l.ItemID, domain.ErrInvalidQuantity)
		}
		if l.ID == "" {
			l.ID = uuid.NewString()
		}
		l.OrderID = orderID
		if _, err := r.q.ExecContext(ctx, r.q.Rebind(`
			INSERT INTO order_items(id, order_id, coffee_item_id, quantity, price, customizations)
			VALUES (?, ?, ?, ?, ?, ?)
		`), l.ID, orderID, l.ItemID, l.Quantity, l.Price, l.Customizations); err != nil {
			return fmt.Errorf("insert line %s: %w", l.ItemID, err)
		}
	}
	return nil
}

func (r *OrderRepo) RecordPayment(ctx context.Context, p *domain.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = p.CreatedAt.UTC()
	_, err := r.q.ExecContext(ctx, r.q.Rebind(`
		INSERT INTO payments(id, order_id, amount, status, payment_method, transaction_id, card_last4, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), p.ID, p.OrderID, p.Amount, p.Status, p.Method, p.TransactionID, p.CardLast4, p.CreatedAt)
	return err
}

// DeleteOrder removes an order with its lines and payments.
func (r *OrderRepo) DeleteOrder(ctx context.Context, orderID string) error {
	for _, stmt := range []string{
		`DELETE FROM payments WHERE order_id = ?`,
		`DELETE FROM order_items WHERE order_id = ?`,
		`DELETE FROM orders WHERE id = ?`,
	} {
		if _, err := r.q.ExecContext(ctx, r.q.Rebind(stmt), orderID); err != nil {
			return err
		}
	}
	return nil
}

// Get loads one order with its lines.
func (r *OrderRepo) Get(ctx context.Context, orderID string) (domain.Order, error) {
	var o domain.Order
	err := sqlx.GetContext(ctx, r.q, &o, r.q.Rebind(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	orders := []domain.Order{o}
	if err := r.attachLines(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

// ListOrdersForUser returns the user's orders newest first, each with its
// lines and the catalog item they reference.
func (r *OrderRepo) ListOrdersForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	orders := []domain.Order{}
	if err := sqlx.SelectContext(ctx, r.q, &orders, r.q.Rebind(`
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = ?
		ORDER BY order_date DESC, id DESC
	`), userID); err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// ListLatest returns order headers across all users (fulfillment view).
func (r *OrderRepo) ListLatest(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	out := []domain.Order{}
	err := sqlx.SelectContext(ctx, r.q, &out, r.q.Rebind(`
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY order_date DESC, id DESC
		LIMIT ?
	`), limit)
	return out, err
}

// UpdateStatus moves an order along its fulfillment path.
func (r *OrderRepo) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var cur domain.OrderStatus
	err = tx.GetContext(ctx, &cur, tx.Rebind(`SELECT status FROM orders WHERE id = ?`), orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if !cur.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, cur, next)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE orders SET status = ? WHERE id = ?`), next, orderID); err != nil {
		return err
	}
	return tx.Commit()
}

type lineRow struct {
	domain.OrderLine
	ItemName        string          `db:"item_name"`
	ItemDescription string          `db:"item_description"`
	ItemPrice       decimal.Decimal `db:"item_price"`
	ItemImageURL    string          `db:"item_image_url"`
	ItemCategory    string          `db:"item_category"`
	ItemAvailable   bool            `db:"item_available"`
	ItemCreatedAt   time.Time       `db:"item_created_at"`
}

func (r *OrderRepo) attachLines(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = i
	}

	query, args, err := sqlx.In(`
		SELECT oi.id, oi.order_id, oi.coffee_item_id, oi.quantity, oi.price, oi.customizations,
		       ci.name AS item_name, ci.description AS item_description, ci.price AS item_price,
		       ci.image_url AS item_image_url, ci.category AS item_category,
		       ci.available AS item_available, ci.created_at AS item_created_at
		FROM order_items oi
		JOIN coffee_items ci ON ci.id = oi.coffee_item_id
		WHERE oi.order_id IN (?)
		ORDER BY oi.order_id, ci.name
	`, ids)
	if err != nil {
		return err
	}

	var rows []lineRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, r.q.Rebind(query), args...); err != nil {
		return err
	}
	for _, row := range rows {
		l := row.OrderLine
		l.Item = domain.CatalogItem{
			ID:          row.ItemID,
			Name:        row.ItemName,
			Description: row.ItemDescription,
			Price:       row.ItemPrice,
			ImageURL:    row.ItemImageURL,
			Category:    domain.Category(row.ItemCategory),
			Available:   row.ItemAvailable,
			CreatedAt:   row.ItemCreatedAt,
		}
		i := byID[l.OrderID]
		orders[i].Lines = append(orders[i].Lines, l)
	}
	return nil
}
