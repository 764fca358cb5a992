package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPreparing OrderStatus = "preparing"
	OrderReady     OrderStatus = "ready"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// progression is the forward path an order walks through fulfillment.
var progression = []OrderStatus{OrderPending, OrderConfirmed, OrderPreparing, OrderReady, OrderCompleted}

func (s OrderStatus) Valid() bool {
	return s == OrderCancelled || s.rank() >= 0
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

func (s OrderStatus) rank() int {
	for i, p := range progression {
		if p == s {
			return i
		}
	}
	return -1
}

// CanTransitionTo reports whether an order may move from s to next.
// Statuses only move forward; any non-terminal order may be cancelled.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() || !next.Valid() {
		return false
	}
	if next == OrderCancelled {
		return true
	}
	return next.rank() > s.rank()
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCash PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool { return m == PaymentCard || m == PaymentCash }

// Customizations is stored as a JSON array column.
type Customizations []string

func (c Customizations) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *Customizations) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("customizations: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*c = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("customizations: %w", err)
	}
	if len(out) == 0 {
		out = nil
	}
	*c = out
	return nil
}

type Order struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	Lines         []OrderLine     `db:"-" json:"items"`
	Total         decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status        OrderStatus     `db:"status" json:"status"`
	PaymentStatus PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentMethod PaymentMethod   `db:"payment_method" json:"payment_method"`
	OrderDate     time.Time       `db:"order_date" json:"order_date"`
	PickupTime    *time.Time      `db:"pickup_time" json:"pickup_time,omitempty"`
	Notes         *string         `db:"notes" json:"notes,omitempty"`
}

// OrderLine is the charged snapshot of a cart line. Price never follows
// later catalog changes; Item carries the live catalog record for display.
type OrderLine struct {
	ID             string          `db:"id" json:"id"`
	OrderID        string          `db:"order_id" json:"order_id"`
	ItemID         string          `db:"coffee_item_id" json:"coffee_item_id"`
	Item           CatalogItem     `db:"-" json:"coffee_item"`
	Quantity       int             `db:"quantity" json:"quantity"`
	Price          decimal.Decimal `db:"price" json:"price"`
	Customizations Customizations  `db:"customizations" json:"customizations,omitempty"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type PaymentRecordStatus string

const (
	PaymentRecordPending   PaymentRecordStatus = "pending"
	PaymentRecordCompleted PaymentRecordStatus = "completed"
	PaymentRecordFailed    PaymentRecordStatus = "failed"
)

type Payment struct {
	ID            string              `db:"id" json:"id"`
	OrderID       string              `db:"order_id" json:"order_id"`
	Amount        decimal.Decimal     `db:"amount" json:"amount"`
	Status        PaymentRecordStatus `db:"status" json:"status"`
	Method        PaymentMethod       `db:"payment_method" json:"payment_method"`
	TransactionID *string             `db:"transaction_id" json:"transaction_id,omitempty"`
	CardLast4     *string             `db:"card_last4" json:"card_last4,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
}
