package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testKey = []byte("test-signing-key")

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString(testKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

func doRequest(mw echo.MiddlewareFunc, authHeader string) (*httptest.ResponseRecorder, Actor) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var got Actor
	handler := mw(func(c echo.Context) error {
		got = ActorFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, got
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	raw := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "clinicore",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name: "Nurse Joy",
		Role: "nurse",
	})

	mw := JWTMiddleware(JWTConfig{Issuer: "clinicore", SigningKey: testKey})
	rec, actor := doRequest(mw, "Bearer "+raw)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if actor.Name != "Nurse Joy" || actor.Role != "nurse" {
		t.Errorf("unexpected actor: %+v", actor)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: testKey})
	rec, _ := doRequest(mw, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_WrongIssuer(t *testing.T) {
	raw := signToken(t, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
		Name:             "X",
		Role:             "nurse",
	})
	mw := JWTMiddleware(JWTConfig{Issuer: "clinicore", SigningKey: testKey})
	rec, _ := doRequest(mw, "Bearer "+raw)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestJWTMiddleware_MissingRole(t *testing.T) {
	raw := signToken(t, Claims{Name: "No Role"})
	mw := JWTMiddleware(JWTConfig{SigningKey: testKey})
	rec, _ := doRequest(mw, "Bearer "+raw)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestDevAuthMiddleware_DefaultsToAdmin(t *testing.T) {
	rec, actor := doRequest(DevAuthMiddleware(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if actor.Role != "admin" {
		t.Errorf("expected admin role, got %q", actor.Role)
	}
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	run := func(role string, required ...string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithActor(context.Background(), Actor{Name: "T", Role: role}))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		h := RequireRole(required...)(func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})
		if err := h(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		return rec.Code
	}

	if code := run("nurse", "nurse", "physician"); code != http.StatusOK {
		t.Errorf("nurse should pass, got %d", code)
	}
	if code := run("admin", "physician"); code != http.StatusOK {
		t.Errorf("admin should pass every gate, got %d", code)
	}
	if code := run("registrar", "physician"); code != http.StatusForbidden {
		t.Errorf("registrar should be rejected, got %d", code)
	}
}

func TestActorFromContext_Empty(t *testing.T) {
	a := ActorFromContext(context.Background())
	if a.Name != "" || a.Role != "" {
		t.Errorf("expected zero actor, got %+v", a)
	}
}
