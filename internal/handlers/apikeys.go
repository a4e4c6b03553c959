package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/omnimsg/omnigate/internal/apikeys"
)

// APIKeysHandler exposes key management. These routes sit behind the
// admin JWT, not behind API-key auth.
type APIKeysHandler struct {
	keys   *apikeys.Service
	logger *slog.Logger
}

// NewAPIKeysHandler creates an APIKeysHandler.
func NewAPIKeysHandler(log *slog.Logger, keys *apikeys.Service) *APIKeysHandler {
	return &APIKeysHandler{
		keys:   keys,
		logger: log.With(slog.String("handler", "apikeys")),
	}
}

// Register registers the key management routes.
func (h *APIKeysHandler) Register(e *echo.Echo) {
	g := e.Group("/api-keys")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.GetByID)
	g.PATCH("/:id", h.Update)
	g.POST("/:id/revoke", h.Revoke)
	g.DELETE("/:id", h.Delete)
}

type createKeyRequest struct {
	Name      string   `json:"name"`
	Scopes    []string `json:"scopes"`
	ExpiresAt *string  `json:"expires_at"`
}

type createKeyResponse struct {
	apikeys.Key
	// PlainText is present in this response only; it cannot be
	// retrieved again.
	PlainText string `json:"plain_text_key"`
}

func (h *APIKeysHandler) Create(c echo.Context) error {
	var req createKeyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	params := apikeys.CreateParams{Name: req.Name, Scopes: req.Scopes}
	if req.ExpiresAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid expires_at timestamp")
		}
		params.ExpiresAt = &ts
	}

	created, err := h.keys.Create(c.Request().Context(), params)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, createKeyResponse{Key: created.Key, PlainText: created.PlainText})
}

func (h *APIKeysHandler) List(c echo.Context) error {
	items, err := h.keys.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []apikeys.Key{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *APIKeysHandler) GetByID(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	key, err := h.keys.GetByID(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, key)
}

type updateKeyRequest struct {
	Name      *string  `json:"name"`
	Scopes    []string `json:"scopes"`
	ExpiresAt *string  `json:"expires_at"`
	ClearTTL  bool     `json:"clear_expiry"`
}

func (h *APIKeysHandler) Update(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req updateKeyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	params := apikeys.UpdateParams{Name: req.Name, Scopes: req.Scopes, ClearTTL: req.ClearTTL}
	if req.ExpiresAt != nil {
		ts, err := time.Parse(time.RFC3339, *req.ExpiresAt)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid expires_at timestamp")
		}
		params.ExpiresAt = &ts
	}

	key, err := h.keys.Update(c.Request().Context(), id, params)
	if err != nil {
		if errors.Is(err, apikeys.ErrPrimaryKeyImmutable) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, key)
}

func (h *APIKeysHandler) Revoke(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	key, err := h.keys.Revoke(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, key)
}

func (h *APIKeysHandler) Delete(c echo.Context) error {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		return err
	}
	if err := h.keys.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, apikeys.ErrPrimaryKeyImmutable) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
