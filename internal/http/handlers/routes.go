package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	html "github.com/gofiber/template/html/v2"

	applog "brewbar/internal/log"
)

// Limits bounds request rates. Zero fields fall back to production values.
type Limits struct {
	Global   int
	Login    int
	Checkout int
}

func (l Limits) withDefaults() Limits {
	if l.Global <= 0 {
		l.Global = 120
	}
	if l.Login <= 0 {
		l.Login = 5
	}
	if l.Checkout <= 0 {
		l.Checkout = 10
	}
	return l
}

// ErrorHandler logs the failure and shows a friendly message without internals.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < 500 {
		code = fe.Code
	}
	applog.Error(c, "server.error", err, map[string]any{"status": code})
	msg := "Something went wrong. Please try again."
	if code == fiber.StatusNotFound {
		msg = "Page not found"
	}
	if wantsJSON(c) {
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
	if rerr := c.Status(code).Render("notfound", fiber.Map{"Message": msg}); rerr != nil {
		return c.Status(code).SendString(msg)
	}
	return nil
}

// NewApp builds the fiber app with middleware and every route mounted.
func NewApp(views *html.Engine, deps *Deps, limits Limits) *fiber.App {
	limits = limits.withDefaults()

	app := fiber.New(fiber.Config{
		Views:        views,
		ErrorHandler: ErrorHandler,
		BodyLimit:    1 << 20, // 1 MiB
	})

	// ---------- Middlewares ----------
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("started", time.Now())
		return c.Next()
	})
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(AttachUser(deps.Auth))
	app.Use(limiter.New(limiter.Config{
		Max:        limits.Global,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/healthz"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.global.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	}))
	app.Use(csrf.New(csrf.Config{
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		CookieSecure:   false, // set true behind HTTPS
		Extractor: func(c *fiber.Ctx) (string, error) {
			if tok := c.Get("X-Csrf-Token"); tok != "" {
				return tok, nil
			}
			return csrf.CsrfFromForm("csrf")(c)
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", map[string]any{"reason": err.Error()})
			if wantsJSON(c) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Security check failed. Please refresh and try again."})
			}
			return c.Status(fiber.StatusForbidden).Render("notfound", fiber.Map{"Message": "Security check failed. Please refresh and try again."})
		},
	}))
	app.Use(func(c *fiber.Ctx) error {
		if tok, ok := c.Locals("csrf").(string); ok {
			c.Locals("CSRFToken", tok)
		}
		return c.Next()
	})

	// ---------- Pages ----------
	app.Get("/", deps.MenuHandler.Home)
	app.Get("/orders", RequireUser(), deps.OrderHandler.HistoryPage)
	app.Get("/login", deps.AuthHandler.LoginForm)
	loginLimiter := limiter.New(limiter.Config{
		Max:        limits.Login,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.login.hit", nil)
			if wantsJSON(c) {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many attempts. Please try again later."})
			}
			return c.Status(fiber.StatusTooManyRequests).Render("login", fiber.Map{"Err": "Too many attempts. Please try again later."})
		},
	})
	app.Post("/login", loginLimiter, deps.AuthHandler.Login)
	app.Post("/logout", deps.AuthHandler.Logout)

	// ---------- API ----------
	api := app.Group("/api/v1")
	api.Get("/menu", deps.MenuHandler.List)

	api.Get("/cart", deps.CartHandler.View)
	api.Post("/cart/items", deps.CartHandler.Add)
	api.Patch("/cart/items/:id", deps.CartHandler.Update)
	api.Delete("/cart/items/:id", deps.CartHandler.Remove)
	api.Delete("/cart", deps.CartHandler.Clear)

	checkoutLimiter := limiter.New(limiter.Config{
		Max:        limits.Checkout,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() + "|checkout"
		},
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.checkout.hit", nil)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded, retry soon"})
		},
	})
	api.Post("/checkout", checkoutLimiter, deps.CheckoutHandler.Submit)
	api.Get("/checkout/state", deps.CheckoutHandler.State)
	api.Get("/orders", RequireUser(), deps.OrderHandler.History)

	api.Post("/auth/register", deps.AuthHandler.Register)
	api.Post("/auth/login", loginLimiter, deps.AuthHandler.APILogin)
	api.Post("/auth/logout", deps.AuthHandler.APILogout)
	api.Get("/auth/me", deps.AuthHandler.Me)

	// ---------- Admin ----------
	admin := app.Group("/admin", RequireAdmin())
	admin.Get("/orders", deps.AdminHandler.ListOrders)
	admin.Post("/orders/:id/status", deps.AdminHandler.UpdateOrderStatus)
	admin.Get("/menu", deps.AdminHandler.ListMenu)
	admin.Post("/menu", deps.AdminHandler.CreateItem)
	admin.Post("/menu/:id/price", deps.AdminHandler.UpdatePrice)
	admin.Post("/menu/:id/availability", deps.AdminHandler.SetAvailability)

	// Health & 404
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
	app.Use(func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/api/") {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found."})
		}
		return notFound(c, "Page not found")
	})

	return app
}
