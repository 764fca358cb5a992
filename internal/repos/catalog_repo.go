package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"brewbar/internal/domain"
)

const itemColumns = `id, name, description, price, image_url, category, available, created_at`

type CatalogRepo struct{ db *sqlx.DB }

func NewCatalogRepo(db *sqlx.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// ListAvailable returns orderable items, oldest first.
func (r *CatalogRepo) ListAvailable(ctx context.Context) ([]domain.CatalogItem, error) {
	out := []domain.CatalogItem{}
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(`
		SELECT `+itemColumns+`
		FROM coffee_items
		WHERE available = ?
		ORDER BY created_at ASC, id ASC
	`), true)
	return out, err
}

// List returns every item including unavailable ones (admin view).
func (r *CatalogRepo) List(ctx context.Context) ([]domain.CatalogItem, error) {
	out := []domain.CatalogItem{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+itemColumns+` FROM coffee_items ORDER BY created_at ASC, id ASC`)
	return out, err
}

func (r *CatalogRepo) ByID(ctx context.Context, id string) (domain.CatalogItem, error) {
	var it domain.CatalogItem
	err := r.db.GetContext(ctx, &it, r.db.Rebind(`SELECT `+itemColumns+` FROM coffee_items WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CatalogItem{}, domain.ErrItemNotFound
	}
	return it, err
}

// Create adds a menu item. A taken id yields domain.ErrAlreadyExists.
func (r *CatalogRepo) Create(ctx context.Context, it domain.CatalogItem) error {
	err := insertItem(ctx, r.db, it)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *CatalogRepo) UpdatePrice(ctx context.Context, id string, price decimal.Decimal) error {
	if price.IsNegative() {
		return &domain.ValidationError{Field: "price", Reason: "price must not be negative"}
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE coffee_items SET price = ? WHERE id = ?`), price, id)
	return affectedOrNotFound(res, err, domain.ErrItemNotFound)
}

func (r *CatalogRepo) SetAvailable(ctx context.Context, id string, available bool) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE coffee_items SET available = ? WHERE id = ?`), available, id)
	return affectedOrNotFound(res, err, domain.ErrItemNotFound)
}

func insertItem(ctx context.Context, q sqlx.ExtContext, it domain.CatalogItem) error {
	if !it.Category.Valid() {
		return &domain.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", it.Category)}
	}
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO coffee_items(`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), it.ID, it.Name, it.Description, it.Price, it.ImageURL, it.Category, it.Available, it.CreatedAt.UTC())
	return err
}

func affectedOrNotFound(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
