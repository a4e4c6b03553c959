package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/omnimsg/omnigate/internal/apikeys"
)

const apiKeyContextKey = "api_key"

// KeyValidator checks a plain-text API key. Implemented by
// apikeys.Service; failures are apikeys.ErrInvalidKey or a transport
// error.
type KeyValidator interface {
	Validate(ctx context.Context, plainKey string) (apikeys.Validated, error)
}

// APIKeyMiddleware authenticates requests with an API key from the
// X-API-Key header or an Authorization bearer value carrying the key
// prefix. The validated key lands in the request context.
func APIKeyMiddleware(validator KeyValidator, skipper middleware.Skipper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}
			raw := extractAPIKey(c.Request())
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "api key required")
			}
			validated, err := validator.Validate(c.Request().Context(), raw)
			if errors.Is(err, apikeys.ErrInvalidKey) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "api key validation failed")
			}
			c.Set(apiKeyContextKey, validated)
			return next(c)
		}
	}
}

// RequireScope guards a route group with a scope check against the
// validated key placed by APIKeyMiddleware.
func RequireScope(scope string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			validated, err := APIKeyFromContext(c)
			if err != nil {
				return err
			}
			if !apikeys.ScopeAllows(validated.Scopes, scope) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient scope")
			}
			return next(c)
		}
	}
}

// APIKeyFromContext returns the validated key stored by
// APIKeyMiddleware.
func APIKeyFromContext(c echo.Context) (apikeys.Validated, error) {
	validated, ok := c.Get(apiKeyContextKey).(apikeys.Validated)
	if !ok {
		return apikeys.Validated{}, echo.NewHTTPError(http.StatusUnauthorized, "api key required")
	}
	return validated, nil
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	bearer := strings.TrimSpace(r.Header.Get("Authorization"))
	if after, ok := strings.CutPrefix(bearer, "Bearer "); ok {
		after = strings.TrimSpace(after)
		if strings.HasPrefix(after, apikeys.KeyPrefix) {
			return after
		}
	}
	return ""
}
