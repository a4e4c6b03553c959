package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/omnimsg/omnigate/internal/db"
)

// httpError translates store errors into HTTP status codes; anything
// unrecognized stays a 500.
func httpError(err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	case errors.Is(err, db.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
