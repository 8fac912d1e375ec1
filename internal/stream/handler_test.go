package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/timelock/internal/apierr"
	"github.com/congo-pay/timelock/internal/auth"
)

func newTestApp(t *testing.T) (*fiber.App, *fixture) {
	t.Helper()
	f := newFixture(t)
	h := NewHandler(f.svc)
	app := fiber.New(fiber.Config{Immutable: true, ErrorHandler: func(c *fiber.Ctx, err error) error {
		fe := apierr.From(err).(*fiber.Error)
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.CallerLocal, c.Get("X-Test-Caller"))
		return c.Next()
	})
	app.Post("/streams", h.Create)
	app.Get("/streams", h.List)
	app.Get("/streams/:owner/:kind/:id", h.Get)
	app.Get("/streams/:owner/:kind/:id/claimable", h.Claimable)
	app.Post("/streams/:owner/:kind/:id/withdraw", h.Withdraw)
	app.Post("/streams/:owner/:kind/:id/cancel", h.Cancel)
	return app, f
}

func do(t *testing.T, app *fiber.App, method, path, caller, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Test-Caller", caller)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func TestHandlerLifecycle(t *testing.T) {
	app, f := newTestApp(t)

	code, body := do(t, app, http.MethodPost, "/streams", "alice",
		`{"beneficiary":"bob","kind":"coin","total_amount":3600,"duration":3600}`)
	if code != http.StatusCreated {
		t.Fatalf("expected %d got %d: %v", http.StatusCreated, code, body)
	}
	if body["flow_rate_per_second"] != "1" || body["progress"] != "0.00" {
		t.Fatalf("unexpected stream view: %v", body)
	}

	f.clk.Set(t0 + 900)
	code, body = do(t, app, http.MethodGet, "/streams/alice/coin/0/claimable", "bob", "")
	if code != http.StatusOK || body["claimable"] != float64(900) {
		t.Fatalf("claimable: %d %v", code, body)
	}

	code, body = do(t, app, http.MethodPost, "/streams/alice/coin/0/withdraw", "alice", "")
	if code != http.StatusForbidden {
		t.Fatalf("owner withdraw: expected %d got %d", http.StatusForbidden, code)
	}

	code, body = do(t, app, http.MethodPost, "/streams/alice/coin/0/withdraw", "bob", "")
	if code != http.StatusOK || body["amount"] != float64(900) {
		t.Fatalf("withdraw: %d %v", code, body)
	}
	view := body["stream"].(map[string]any)
	if view["progress"] != "25.00" {
		t.Fatalf("expected progress 25.00 got %v", view["progress"])
	}

	code, body = do(t, app, http.MethodGet, "/streams?owner=alice", "bob", "")
	if code != http.StatusOK || len(body["streams"].([]any)) != 1 {
		t.Fatalf("list: %d %v", code, body)
	}
	code, body = do(t, app, http.MethodGet, "/streams?owner=alice", "mallory", "")
	if code != http.StatusOK || len(body["streams"].([]any)) != 0 {
		t.Fatalf("outsider list: %d %v", code, body)
	}

	code, _ = do(t, app, http.MethodPost, "/streams/alice/coin/0/cancel", "bob", "")
	if code != http.StatusOK {
		t.Fatalf("cancel: expected %d got %d", http.StatusOK, code)
	}
	code, _ = do(t, app, http.MethodGet, "/streams/alice/coin/0", "bob", "")
	if code != http.StatusNotFound {
		t.Fatalf("get after cancel: expected %d got %d", http.StatusNotFound, code)
	}
}

func TestHandlerRejectsBadInput(t *testing.T) {
	app, _ := newTestApp(t)

	code, _ := do(t, app, http.MethodPost, "/streams", "alice",
		`{"beneficiary":"bob","kind":"coin","total_amount":100,"duration":10,"cliff_duration":11}`)
	if code != http.StatusBadRequest {
		t.Fatalf("cliff: expected %d got %d", http.StatusBadRequest, code)
	}
	code, _ = do(t, app, http.MethodPost, "/streams", "alice",
		`{"beneficiary":"bob","kind":"coin","total_amount":50000,"duration":10}`)
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("balance: expected %d got %d", http.StatusUnprocessableEntity, code)
	}
	code, _ = do(t, app, http.MethodGet, "/streams/alice/silver/0", "alice", "")
	if code != http.StatusBadRequest {
		t.Fatalf("kind: expected %d got %d", http.StatusBadRequest, code)
	}
}
