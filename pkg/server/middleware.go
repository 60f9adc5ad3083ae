package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/harrisonrobin/clarity/pkg/logger"
)

const ownerKey = "owner_id"

// requestLogger puts a request-scoped logger in the request context and logs
// one line per request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		log := s.deps.Logger.With("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(logger.ContextWithLogger(req.Context(), log)))

		err := next(c)
		if err != nil {
			c.Error(err)
		}
		log.Info("HTTP request",
			"method", req.Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"latency", time.Since(start),
		)
		return nil
	}
}

// requireOwner resolves the bearer token to an owner id.
func (s *Server) requireOwner(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return c.JSON(http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
		}
		claims, err := s.deps.Issuer.ParseToken(strings.TrimSpace(raw))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorBody{Error: err.Error()})
		}
		c.Set(ownerKey, claims.Subject)

		req := c.Request()
		log := logger.FromContext(req.Context()).With("owner_id", claims.Subject)
		c.SetRequest(req.WithContext(logger.ContextWithLogger(req.Context(), log)))
		return next(c)
	}
}

func ownerID(c echo.Context) string {
	id, _ := c.Get(ownerKey).(string)
	return id
}
