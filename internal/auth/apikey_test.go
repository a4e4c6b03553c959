package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnimsg/omnigate/internal/apikeys"
)

type fakeValidator struct {
	valid map[string]apikeys.Validated
	err   error
}

func (f *fakeValidator) Validate(_ context.Context, plainKey string) (apikeys.Validated, error) {
	if f.err != nil {
		return apikeys.Validated{}, f.err
	}
	v, ok := f.valid[plainKey]
	if !ok {
		return apikeys.Validated{}, apikeys.ErrInvalidKey
	}
	return v, nil
}

func newAPIKeyEcho(validator KeyValidator) *echo.Echo {
	e := echo.New()
	e.Use(APIKeyMiddleware(validator, nil))
	e.GET("/chats", func(c echo.Context) error {
		v, err := APIKeyFromContext(c)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, v.Name)
	}, RequireScope("chats:read"))
	return e
}

func TestAPIKeyMiddlewareAccepts(t *testing.T) {
	key := apikeys.KeyPrefix + "valid"
	validator := &fakeValidator{valid: map[string]apikeys.Validated{
		key: {ID: uuid.New(), Name: "ci", Scopes: []string{"chats:*"}},
	}}
	e := newAPIKeyEcho(validator)

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("X-API-Key", key)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ci", rec.Body.String())
}

func TestAPIKeyMiddlewareBearerFallback(t *testing.T) {
	key := apikeys.KeyPrefix + "valid"
	validator := &fakeValidator{valid: map[string]apikeys.Validated{
		key: {ID: uuid.New(), Name: "ci", Scopes: []string{"*"}},
	}}
	e := newAPIKeyEcho(validator)

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyMiddlewareRejects(t *testing.T) {
	validator := &fakeValidator{valid: map[string]apikeys.Validated{}}
	e := newAPIKeyEcho(validator)

	// Missing key entirely.
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unknown key.
	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("X-API-Key", apikeys.KeyPrefix+"unknown")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyMiddlewareValidatorFailure(t *testing.T) {
	validator := &fakeValidator{err: fmt.Errorf("database down")}
	e := newAPIKeyEcho(validator)

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("X-API-Key", apikeys.KeyPrefix+"any")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequireScopeForbidsMismatch(t *testing.T) {
	key := apikeys.KeyPrefix + "limited"
	validator := &fakeValidator{valid: map[string]apikeys.Validated{
		key: {ID: uuid.New(), Name: "limited", Scopes: []string{"messages:read"}},
	}}
	e := newAPIKeyEcho(validator)

	req := httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("X-API-Key", key)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
