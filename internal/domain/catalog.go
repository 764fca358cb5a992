package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryEspresso   Category = "espresso"
	CategoryLatte      Category = "latte"
	CategoryCappuccino Category = "cappuccino"
	CategoryAmericano  Category = "americano"
	CategorySpecial    Category = "special"
)

// Categories lists every menu category in display order.
var Categories = []Category{
	CategoryEspresso,
	CategoryLatte,
	CategoryCappuccino,
	CategoryAmericano,
	CategorySpecial,
}

func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// CatalogItem is a menu entry. Price is the live catalog price; carts and
// orders copy it at the moment an item is added or charged.
type CatalogItem struct {
	ID          string          `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ImageURL    string          `db:"image_url" json:"image_url"`
	Category    Category        `db:"category" json:"category"`
	Available   bool            `db:"available" json:"available"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
