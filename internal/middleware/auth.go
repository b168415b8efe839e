package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"obligation-service/internal/apperr"
	"obligation-service/internal/reqctx"
	"obligation-service/pkg/jwtutil"
	"obligation-service/pkg/logger"
)

// HeaderBootstrapKey carries the operator key that allows tenant registration.
const HeaderBootstrapKey = "X-Admin-Key"

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*jwtutil.UserClaims, error)
}

// Auth validates the bearer token and puts the caller's identity, and with
// it the tenant scope, into the request context. The request logger gains
// tenant_id and actor_id.
func Auth(tokens TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				log.Warn("Missing authorization header")
				return apperr.New(apperr.CodeUnauthorized, "missing authorization header")
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				log.Warn("Invalid authorization header format")
				return apperr.New(apperr.CodeUnauthorized, "invalid authorization header format")
			}

			claims, err := tokens.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				log.Warn("Invalid or expired token", zap.Error(err))
				return apperr.New(apperr.CodeUnauthorized, "invalid or expired token")
			}

			id := claims.Identity()
			req := c.Request()
			c.SetRequest(req.WithContext(reqctx.WithIdentity(req.Context(), id)))

			scoped := log.With(
				zap.String("tenant_id", id.TenantID),
				zap.String("actor_id", id.ActorID),
			)
			logger.Attach(c, scoped)
			scoped.Debug("JWT token validated successfully", zap.String("role", string(id.Role)))

			return next(c)
		}
	}
}

// BootstrapKey admits requests presenting key in X-Admin-Key. An empty key
// closes the route.
func BootstrapKey(key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if key == "" {
				return apperr.New(apperr.CodeForbidden, "tenant registration is disabled")
			}
			got := c.Request().Header.Get(HeaderBootstrapKey)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				logger.FromEcho(c).Warn("Rejected tenant registration with a bad bootstrap key")
				return apperr.New(apperr.CodeForbidden, "invalid bootstrap key")
			}
			return next(c)
		}
	}
}
