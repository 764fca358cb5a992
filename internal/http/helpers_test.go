package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"

	"brewbar/internal/config"
	"brewbar/internal/http/handlers"
	"brewbar/internal/repos"
	"brewbar/web"
)

func newTestApp(t *testing.T, limits handlers.Limits) (*fiber.App, *sqlx.DB) {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	cfg := config.Config{CheckoutTimeout: 5 * time.Second, PickupLead: 30 * time.Minute}
	deps := handlers.NewDeps(db, cfg, handlers.Extras{})
	return handlers.NewApp(web.Views(), deps, limits), db
}

// client carries the sid and csrf cookies between requests like a browser.
type client struct {
	t       *testing.T
	app     *fiber.App
	cookies map[string]string
}

func newClient(t *testing.T, app *fiber.App) *client {
	c := &client{t: t, app: app, cookies: map[string]string{}}
	// a safe request hands out the csrf cookie
	c.do("GET", "/healthz", nil)
	if c.cookies["csrf_"] == "" {
		t.Fatal("csrf token missing")
	}
	return c
}

func (c *client) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		r = bytes.NewReader(b)
	}
	return c.send(method, path, r, fiber.MIMEApplicationJSON)
}

func (c *client) form(path string, values string) *http.Response {
	c.t.Helper()
	return c.send("POST", path, strings.NewReader(values+"&csrf="+c.cookies["csrf_"]), fiber.MIMEApplicationForm)
}

// page requests path the way a browser would.
func (c *client) page(path string) *http.Response {
	c.t.Helper()
	return c.send("GET", path, nil, fiber.MIMETextHTML)
}

func (c *client) send(method, path string, body io.Reader, contentType string) *http.Response {
	c.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if contentType == fiber.MIMETextHTML {
		req.Header.Set("Accept", fiber.MIMETextHTML)
	}
	if tok := c.cookies["csrf_"]; tok != "" && contentType == fiber.MIMEApplicationJSON {
		req.Header.Set("X-Csrf-Token", tok)
	}
	for name, v := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: v})
	}
	resp, err := c.app.Test(req, -1)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	for _, ck := range resp.Cookies() {
		if ck.Value == "" {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck.Value
	}
	return resp
}

func (c *client) login(email string) {
	c.t.Helper()
	resp := c.do("POST", "/api/v1/auth/login", map[string]string{"email": email, "password": "Passw0rd!"})
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login %s: status %d", email, resp.StatusCode)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

type logEntry struct {
	Level  string         `json:"level"`
	Action string         `json:"action"`
	Status int            `json:"status"`
	Err    string         `json:"err"`
	Fields map[string]any `json:"fields"`
}

type lockedBuf struct {
	b  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	var buf bytes.Buffer
	var mu sync.Mutex
	oldW := log.Writer()
	oldFlags := log.Flags()
	log.SetOutput(&lockedBuf{b: &buf, mu: &mu})
	log.SetFlags(0)
	defer func() {
		log.SetOutput(oldW)
		log.SetFlags(oldFlags)
	}()

	fn()

	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil && e.Action != "" {
			entries = append(entries, e)
		}
	}
	return entries
}

func findLog(entries []logEntry, action string) (logEntry, bool) {
	for _, e := range entries {
		if e.Action == action {
			return e, true
		}
	}
	return logEntry{}, false
}
