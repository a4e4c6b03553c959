package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/omnimsg/omnigate/internal/auth"
)

// Handler registers its routes on the echo instance.
type Handler interface {
	Register(e *echo.Echo)
}

type Server struct {
	echo *echo.Echo
	addr string
}

// Admin surface behind the operator JWT; everything else data-plane
// is behind API-key auth, and the health probes are open.
var (
	openExactPaths = map[string]struct{}{
		"/ping":   {},
		"/health": {},
	}
	jwtPrefixPaths = []string{
		"/api-keys",
		"/routes",
	}
	jwtExemptExactPaths = map[string]struct{}{
		"/routes/resolve": {},
		"/routes/metrics": {},
	}
)

// NewServer builds the HTTP server: recovery, request logging, then
// the two auth layers, then every registered handler.
func NewServer(log *slog.Logger, addr, jwtSecret string, keyValidator auth.KeyValidator, handlers []Handler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
		return !requiresJWT(c.Request().URL.Path)
	}))
	if keyValidator != nil {
		e.Use(auth.APIKeyMiddleware(keyValidator, func(c echo.Context) bool {
			return !requiresAPIKey(c.Request().URL.Path)
		}))
	}

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{echo: e, addr: addr}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func requiresJWT(path string) bool {
	if _, open := openExactPaths[path]; open {
		return false
	}
	if _, exempt := jwtExemptExactPaths[path]; exempt {
		return false
	}
	for _, prefix := range jwtPrefixPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func requiresAPIKey(path string) bool {
	if _, open := openExactPaths[path]; open {
		return false
	}
	return !requiresJWT(path)
}
