package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"brewbar/internal/cart"
	"brewbar/internal/log"
	"brewbar/internal/services"
	"brewbar/internal/validate"
)

type AuthHandler struct {
	Auth  *services.AuthService
	Carts *cart.Registry
}

type credentials struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
	FullName string `json:"full_name" form:"full_name"`
}

func (h *AuthHandler) LoginForm(c *fiber.Ctx) error {
	return render(c, "login", fiber.Map{"Err": ""})
}

// POST /login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	sid := ensureSID(c)
	email := c.FormValue("email")
	if _, ok := validate.Email(email); !ok {
		log.Security(c, "auth.login.fail", map[string]any{"email": email, "reason": "bad_format"})
		c.Status(fiber.StatusUnauthorized)
		return render(c, "login", fiber.Map{"Err": "Invalid email or password"})
	}
	if _, err := h.Auth.Login(c.UserContext(), sid, email, c.FormValue("password")); err != nil {
		log.Security(c, "auth.login.fail", map[string]any{"email": email})
		c.Status(fiber.StatusUnauthorized)
		return render(c, "login", fiber.Map{"Err": "Invalid email or password"})
	}
	log.Audit(c, "auth.login.success", map[string]any{"email": email})
	return c.Redirect("/")
}

// POST /logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.logout(c)
	return c.Redirect("/")
}

// POST /api/v1/auth/logout
func (h *AuthHandler) APILogout(c *fiber.Ctx) error {
	h.logout(c)
	return c.JSON(fiber.Map{"ok": true})
}

func (h *AuthHandler) logout(c *fiber.Ctx) {
	sid := c.Cookies(sessionCookie)
	if sid != "" {
		if err := h.Auth.Logout(c.UserContext(), sid); err != nil {
			log.Error(c, "auth.logout.fail", err, nil)
		}
		if h.Carts != nil {
			h.Carts.Forget(sid)
		}
	}
	expireSID(c)
	log.Audit(c, "auth.logout", nil)
}

// POST /api/v1/auth/login
func (h *AuthHandler) APILogin(c *fiber.Ctx) error {
	sid := ensureSID(c)
	var body credentials
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request"})
	}
	u, err := h.Auth.Login(c.UserContext(), sid, body.Email, body.Password)
	if errors.Is(err, services.ErrBadCreds) {
		log.Security(c, "auth.login.fail", map[string]any{"email": body.Email})
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
	}
	if err != nil {
		return apiError(c, err)
	}
	log.Audit(c, "auth.login.success", map[string]any{"email": u.Email})
	return c.JSON(u)
}

// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	sid := ensureSID(c)
	var body credentials
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed request"})
	}
	u, err := h.Auth.Register(c.UserContext(), sid, body.Email, body.Password, body.FullName)
	if err != nil {
		return apiError(c, err)
	}
	log.Audit(c, "auth.register", map[string]any{"user_id": u.ID})
	return c.Status(fiber.StatusCreated).JSON(u)
}

// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	u := currentUser(c)
	if u == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Please sign in to continue."})
	}
	return c.JSON(u)
}
