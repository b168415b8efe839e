package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"obligation-service/internal/apperr"
	"obligation-service/internal/reqctx"
	"obligation-service/pkg/jwtutil"
)

func newTokens() *jwtutil.JWTUtil {
	return jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "middleware-test", ExpirationHours: 1})
}

// serve runs h behind mw and returns the handler error and the recorder.
func serve(t *testing.T, mw echo.MiddlewareFunc, req *http.Request, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(h)(c)
}

func TestRequestIDGeneratesAndKeeps(t *testing.T) {
	var seen string
	h := func(c echo.Context) error {
		seen = c.Request().Header.Get(echo.HeaderXRequestID)
		return c.NoContent(http.StatusOK)
	}

	rec, err := serve(t, RequestID(), httptest.NewRequest(http.MethodGet, "/", nil), h)
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, "client-id")
	rec, err = serve(t, RequestID(), req, h)
	require.NoError(t, err)
	assert.Equal(t, "client-id", rec.Header().Get(echo.HeaderXRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRequestID, strings.Repeat("x", maxRequestIDLength+1))
	rec, err = serve(t, RequestID(), req, h)
	require.NoError(t, err)
	assert.NotEqual(t, strings.Repeat("x", maxRequestIDLength+1), rec.Header().Get(echo.HeaderXRequestID))
}

func TestAuthPutsIdentityInContext(t *testing.T) {
	tokens := newTokens()
	want := reqctx.Identity{ActorID: "u1", TenantID: "t1", Role: reqctx.RoleRestricted, PartyID: "p1"}
	token, err := tokens.GenerateToken("u1@example.com", want)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)

	var got reqctx.Identity
	var tenant string
	_, err = serve(t, Auth(tokens), req, func(c echo.Context) error {
		got, _ = reqctx.IdentityFrom(c.Request().Context())
		tenant, _ = reqctx.TenantFrom(c.Request().Context())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, "t1", tenant)
}

func TestAuthRejects(t *testing.T) {
	tokens := newTokens()
	other := jwtutil.NewJWTUtil(&jwtutil.JWTConfig{SigningKey: "someone-else", ExpirationHours: 1})
	foreign, err := other.GenerateToken("x@example.com", reqctx.Identity{ActorID: "u", TenantID: "t", Role: reqctx.RolePrivileged})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
		{"foreign signature", "Bearer " + foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			called := false
			_, err := serve(t, Auth(tokens), req, func(c echo.Context) error {
				called = true
				return nil
			})
			assert.ErrorIs(t, err, apperr.ErrUnauthorized)
			assert.False(t, called)
		})
	}
}

func TestBootstrapKey(t *testing.T) {
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderBootstrapKey, "secret")
	_, err := serve(t, BootstrapKey("secret"), req, ok)
	assert.NoError(t, err)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(HeaderBootstrapKey, "guess")
	_, err = serve(t, BootstrapKey("secret"), req, ok)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	_, err = serve(t, BootstrapKey(""), req, ok)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestRateLimitDeniesAfterBurst(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(rate.Every(time.Hour), 2, time.Minute))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
