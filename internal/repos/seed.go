package repos

import (
	"context"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"brewbar/internal/domain"
)

// seedEpoch anchors the seeded menu's creation times.
var seedEpoch = time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)

// seedMenu inserts the house menu when the catalog is empty.
func seedMenu(ctx context.Context, db *sqlx.DB) error {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM coffee_items`); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	log.Println("[seed] inserting house menu")

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, it := range domain.SampleMenu(seedEpoch) {
		if err := insertItem(ctx, tx, it); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// seedUsers ensures a demo customer and an admin exist (idempotent).
func seedUsers(ctx context.Context, db *sqlx.DB) error {
	type u struct {
		ID, Email, Name, Role, Hash string
	}
	mk := func(id, email, name, role, raw string) (u, error) {
		h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
		return u{ID: id, Email: email, Name: name, Role: role, Hash: string(h)}, err
	}

	var users []u
	for _, x := range [][5]string{
		{"u-ada", "ada@brewbar.test", "Ada Lovelace", domain.RoleCustomer, "Passw0rd!"},
		{"u-grace", "grace@brewbar.test", "Grace Hopper", domain.RoleCustomer, "Passw0rd!"},
		{"u-admin", "admin@brewbar.test", "Barista Admin", domain.RoleAdmin, "Passw0rd!"},
	} {
		var exists int
		if err := db.GetContext(ctx, &exists, db.Rebind(`SELECT COUNT(*) FROM users WHERE id=?`), x[0]); err != nil {
			return err
		}
		if exists > 0 {
			continue
		}
		rec, err := mk(x[0], x[1], x[2], x[3], x[4])
		if err != nil {
			return err
		}
		users = append(users, rec)
	}
	if len(users) == 0 {
		return nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, x := range users {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO users(id,email,full_name,password_hash,role,created_at)
			VALUES(?,?,?,?,?,?)
			ON CONFLICT DO NOTHING
		`), x.ID, x.Email, x.Name, x.Hash, x.Role, time.Now().UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}
