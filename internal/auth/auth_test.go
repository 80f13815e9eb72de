package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"procurement-backend/internal/config"
	"procurement-backend/internal/models"
	"procurement-backend/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newApp(users *Users) *fiber.App {
	cfg := &config.Config{JWTSecret: testSecret}
	app := fiber.New()
	app.Post("/auth/register-admin", RegisterAdminHandler(users))
	app.Post("/auth/login", LoginHandler(cfg, users))
	protected := app.Group("", JWTMiddleware(cfg))
	protected.Get("/auth/me", MeHandler(users))
	protected.Get("/admin-only", RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func get(t *testing.T, app *fiber.App, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func TestRegisterLoginAndMe(t *testing.T) {
	users := NewUsers(store.NewMemory(0, nil, nil))
	app := newApp(users)

	resp := post(t, app, "/auth/register-admin", `{"name":"Ana","email":" Ana@Bar.es ","password":"secreto"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}
	resp = post(t, app, "/auth/register-admin", `{"name":"Otro","email":"otro@bar.es","password":"x"}`)
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("second admin should be refused, got %d", resp.StatusCode)
	}

	resp = post(t, app, "/auth/login", `{"email":"ana@bar.es","password":"mal"}`)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("wrong password: status %d", resp.StatusCode)
	}

	resp = post(t, app, "/auth/login", `{"email":"ana@bar.es","password":"secreto"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil || login.Token == "" {
		t.Fatalf("login body: %v", err)
	}

	resp = get(t, app, "/auth/me", login.Token)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("me: status %d", resp.StatusCode)
	}
	var me map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		t.Fatalf("me body: %v", err)
	}
	if me["email"] != "ana@bar.es" || me["role"] != string(models.RoleAdmin) {
		t.Fatalf("unexpected me: %v", me)
	}

	if resp := get(t, app, "/admin-only", login.Token); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("admin route: status %d", resp.StatusCode)
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	app := newApp(NewUsers(store.NewMemory(0, nil, nil)))

	if resp := get(t, app, "/auth/me", ""); resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("missing header: status %d", resp.StatusCode)
	}
	if resp := get(t, app, "/auth/me", "not-a-token"); resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", resp.StatusCode)
	}

	other, err := GenerateToken("ffffffffffffffffffffffffffffffff", &models.User{ID: "u1", Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if resp := get(t, app, "/auth/me", other); resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("foreign signature: status %d", resp.StatusCode)
	}
}

func TestRequireRoleForbidsStaff(t *testing.T) {
	users := NewUsers(store.NewMemory(0, nil, nil))
	hash, _ := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	staff := models.User{Name: "Luis", Email: "luis@bar.es", PasswordHash: string(hash), Role: models.RoleStaff}
	if err := users.Create(context.Background(), &staff); err != nil {
		t.Fatalf("create: %v", err)
	}
	token, err := GenerateToken(testSecret, &staff)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	app := newApp(users)
	if resp := get(t, app, "/admin-only", token); resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("staff on admin route: status %d", resp.StatusCode)
	}
	if resp := get(t, app, "/auth/me", token); resp.StatusCode != fiber.StatusOK {
		t.Fatalf("staff me: status %d", resp.StatusCode)
	}
}
