package jwtware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-secure-auth/middleware/jwtware"
)

type testClaims struct {
	id   string
	role string
}

func (c testClaims) UserID() string { return c.id }
func (c testClaims) Role() string   { return c.role }
func (c testClaims) IsAtLeast(min string) bool {
	levels := map[string]int{"user": 1, "admin": 2, "superAdmin": 3}
	return levels[c.role] >= levels[min]
}

var errExpired = errors.New("token expired")

func validator(tokens map[string]testClaims) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(_ context.Context, token string) (jwtware.AuthClaims, error) {
		if token == "expired" {
			return nil, errExpired
		}
		claims, ok := tokens[token]
		if !ok {
			return nil, errors.New("invalid token")
		}
		return claims, nil
	})
}

func newServer() router.Server[*fiber.App] {
	return router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New()
	})
}

// wrapped returns the fiber app once every route is registered.
func wrapped(srv router.Server[*fiber.App]) *fiber.App {
	if initer, ok := srv.(interface{ Init() }); ok {
		initer.Init()
	}
	return srv.WrappedRouter()
}

func newApp(cfg jwtware.Config) *fiber.App {
	srv := newServer()
	srv.Router().Get("/protected", func(c router.Context) error {
		claims, ok := c.Locals("user").(jwtware.AuthClaims)
		if !ok {
			return c.NoContent(http.StatusNoContent)
		}
		return c.SendString(claims.UserID())
	}, jwtware.New(cfg))
	return wrapped(srv)
}

func TestJWTWare_BasicHeaderExtraction(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{"good": {id: "u1", role: "user"}}),
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJWTWare_CookieFallback(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{"good": {id: "u1", role: "user"}}),
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: "token", Value: "good"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJWTWare_CustomTokenLookup(t *testing.T) {
	app := newApp(jwtware.Config{
		TokenLookup:    "query:auth_token",
		TokenValidator: validator(map[string]testClaims{"good": {id: "u1", role: "user"}}),
	})

	req := httptest.NewRequest(http.MethodGet, "/protected?auth_token=good", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJWTWare_FilterFunction(t *testing.T) {
	app := newApp(jwtware.Config{
		Filter: func(c router.Context) bool { return c.Header("X-Skip") == "1" },
		TokenValidator: jwtware.TokenValidatorFunc(func(context.Context, string) (jwtware.AuthClaims, error) {
			return nil, errors.New("should not be called")
		}),
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-Skip", "1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	// filtered requests reach the handler without claims
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestJWTWare_MinimumRole(t *testing.T) {
	app := newApp(jwtware.Config{
		MinimumRole: "admin",
		TokenValidator: validator(map[string]testClaims{
			"user":  {id: "u1", role: "user"},
			"admin": {id: "a1", role: "admin"},
			"super": {id: "s1", role: "superAdmin"},
		}),
	})

	cases := map[string]int{
		"user":  http.StatusForbidden,
		"admin": http.StatusOK,
		"super": http.StatusOK,
	}

	for token, status := range cases {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode, token)
	}
}

func TestJWTWare_RecoverExpired(t *testing.T) {
	var recovered error
	app := newApp(jwtware.Config{
		TokenValidator: validator(nil),
		Recover: func(_ router.Context, err error) (jwtware.AuthClaims, error) {
			recovered = err
			if errors.Is(err, errExpired) {
				return testClaims{id: "rotated", role: "user"}, nil
			}
			return nil, err
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer expired")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.ErrorIs(t, recovered, errExpired)
}

func TestJWTWare_ContextEnricherAndListeners(t *testing.T) {
	type key struct{}
	var listened string

	srv := newServer()
	srv.Router().Get("/protected", func(c router.Context) error {
		return c.SendString(c.Context().Value(key{}).(string))
	}, jwtware.New(jwtware.Config{
		TokenValidator: validator(map[string]testClaims{"good": {id: "u1", role: "user"}}),
		ContextEnricher: func(ctx context.Context, claims jwtware.AuthClaims) context.Context {
			return context.WithValue(ctx, key{}, claims.UserID())
		},
		ValidationListeners: []jwtware.ValidationListener{
			nil,
			func(_ router.Context, claims jwtware.AuthClaims) error {
				listened = claims.UserID()
				return nil
			},
		},
	}))
	app := wrapped(srv)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1", listened)
}

func TestJWTWare_Extractors(t *testing.T) {
	extractors := jwtware.GetExtractors("header:Authorization, cookie:token, query:t, param:id, bogus")
	assert.Len(t, extractors, 4)
}

func TestJWTWare_RequiresValidator(t *testing.T) {
	assert.Panics(t, func() {
		jwtware.New(jwtware.Config{})
	})
}
