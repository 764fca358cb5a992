package handlers

import (
	"github.com/jmoiron/sqlx"

	"brewbar/internal/cart"
	"brewbar/internal/config"
	"brewbar/internal/repos"
	"brewbar/internal/services"
)

// Extras are the optional Redis-backed adapters. Leave a field nil to run
// without it.
type Extras struct {
	CartStore cart.SnapshotStore
	Lock      services.Locker
}

type Deps struct {
	Auth            *services.AuthService
	AuthHandler     *AuthHandler
	MenuHandler     *MenuHandler
	CartHandler     *CartHandler
	CheckoutHandler *CheckoutHandler
	OrderHandler    *OrderHandler
	AdminHandler    *AdminHandler
}

func NewDeps(db *sqlx.DB, cfg config.Config, extras Extras) *Deps {
	userRepo := repos.NewUserRepo(db)
	catalogRepo := repos.NewCatalogRepo(db)
	orderRepo := repos.NewOrderRepo(db)

	authSvc := services.NewAuthService(userRepo)
	catalogSvc := services.NewCatalogService(catalogRepo)
	orderSvc := services.NewOrderService(orderRepo)
	checkoutSvc := services.NewCheckoutService(orderRepo, cfg.CheckoutTimeout, cfg.PickupLead)
	checkoutSvc.Lock = extras.Lock

	carts := cart.NewRegistry(extras.CartStore)
	carts.IdleTTL = cfg.CartTTL

	return &Deps{
		Auth:            authSvc,
		AuthHandler:     &AuthHandler{Auth: authSvc, Carts: carts},
		MenuHandler:     &MenuHandler{Catalog: catalogSvc, Carts: carts},
		CartHandler:     &CartHandler{Catalog: catalogSvc, Carts: carts},
		CheckoutHandler: &CheckoutHandler{Checkout: checkoutSvc, Carts: carts},
		OrderHandler:    &OrderHandler{Orders: orderSvc},
		AdminHandler:    &AdminHandler{Orders: orderSvc, Catalog: catalogRepo},
	}
}
