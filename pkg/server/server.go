// Package server exposes tasks and the calendar connect flow over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/clarity/pkg/auth"
	"github.com/harrisonrobin/clarity/pkg/logger"
	"github.com/harrisonrobin/clarity/pkg/model"
	"github.com/harrisonrobin/clarity/pkg/tasks"
)

type TaskCreator interface {
	Create(ctx context.Context, ownerID string, cmd model.CreateCommand) (tasks.Result, error)
	CreateFromText(ctx context.Context, ownerID, text string) (tasks.Result, error)
}

type TaskRepository interface {
	Find(ctx context.Context, id int64, ownerID string) (*model.Task, error)
	List(ctx context.Context, ownerID string) ([]model.Task, error)
	Update(ctx context.Context, id int64, ownerID string, cmd model.UpdateCommand) error
	ToggleCompleted(ctx context.Context, id int64, ownerID string) (*model.Task, error)
	Delete(ctx context.Context, id int64, ownerID string) error
}

type CredentialStore interface {
	SetCalendarToken(ctx context.Context, ownerID, refreshToken string) error
}

type Deps struct {
	Orchestrator TaskCreator
	Tasks        TaskRepository
	Owners       CredentialStore
	Issuer       *auth.Issuer
	// OAuth is nil when Google credentials are not configured.
	OAuth  *oauth2.Config
	Logger logger.Logger
	Now    func() time.Time
}

type Server struct {
	echo *echo.Echo
	deps Deps
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logger.NewForTests()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, deps: d}
	s.registerMiddlewares()
	s.registerRoutes()
	return s
}

func (s *Server) registerMiddlewares() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(s.requestLogger)
}

func (s *Server) registerRoutes() {
	th := &taskHandler{orch: s.deps.Orchestrator, tasks: s.deps.Tasks, now: s.deps.Now}
	api := s.echo.Group("/api")

	tg := api.Group("/tasks", s.requireOwner)
	tg.POST("", th.Create)
	tg.POST("/parse", th.Parse)
	tg.GET("", th.List)
	tg.GET("/:id", th.Get)
	tg.PUT("/:id", th.Update)
	tg.DELETE("/:id", th.Delete)
	tg.PATCH("/:id/complete", th.ToggleComplete)

	gh := &googleHandler{oauth: s.deps.OAuth, issuer: s.deps.Issuer, owners: s.deps.Owners}
	api.GET("/auth/google/connect", gh.Connect, s.requireOwner)
	api.GET("/auth/google/callback", gh.Callback)

	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// ServeHTTP lets the server be mounted or driven directly in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start blocks serving addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.deps.Logger.Info("HTTP server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
