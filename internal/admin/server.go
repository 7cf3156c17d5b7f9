// Package admin exposes the workflow entry points an operator can trigger
// over HTTP.
package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/routes"
	"github.com/lucasaxm/RegataSimulator/internal/storage"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
)

// TriggerSource tags runs started through the admin API
const TriggerSource = "admin"

// maxImportSize caps the body of a source import
const maxImportSize = 8 << 20

// Catalog is what the API needs to curate published assets
type Catalog interface {
	RemoveTemplate(ctx context.Context, id string) error
	RemoveSource(ctx context.Context, id string) error
	ResetSourceWeights(ctx context.Context) (int, error)
	ImportSources(ctx context.Context, r io.Reader) ([]models.Source, error)
}

type Server struct {
	echo    *echo.Echo
	runner  routes.Runner
	catalog Catalog
}

// RunResponse describes one finished workflow run
type RunResponse struct {
	RunID   string   `json:"run_id"`
	Initial string   `json:"initial"`
	Actions []string `json:"actions"`
}

// ReviewRequest is the decision posted for a pending template or source
type ReviewRequest struct {
	Approved *bool  `json:"approved"`
	Reason   string `json:"reason"`
}

// ResetResponse reports how many weights were reset
type ResetResponse struct {
	Reset int `json:"reset"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// New builds the admin API. Every /api route needs "Authorization: Bearer <token>".
func New(runner routes.Runner, catalog Catalog, token string) (*Server, error) {
	if token == "" {
		return nil, errors.New("admin token is required")
	}
	if catalog == nil {
		return nil, errors.New("admin catalog is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("Admin request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s := &Server{echo: e, runner: runner, catalog: catalog}

	e.GET("/healthcheck", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	api := e.Group("/api", middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
		return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
	}))
	api.POST("/memes", s.generate)
	api.POST("/backups", s.backup)
	api.POST("/templates/:id/review", s.review(workflow.ReviewTemplate))
	api.POST("/sources/:id/review", s.review(workflow.ReviewSource))
	api.DELETE("/templates/:id", s.remove(catalog.RemoveTemplate))
	api.DELETE("/sources/:id", s.remove(catalog.RemoveSource))
	api.POST("/sources/reset_weights", s.resetWeights)
	api.POST("/sources/import", s.importSources)

	return s, nil
}

// Handler is the http.Handler serving the API
func (s *Server) Handler() http.Handler {
	return s.echo
}

// detached keeps the request values but not its cancellation; a client that
// goes away must not interrupt a run or a removal halfway
func detached(c echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}

func (s *Server) run(c echo.Context, initial workflow.Action, wc *workflow.Context) error {
	trail := s.runner.Run(detached(c), initial, wc)
	resp := RunResponse{RunID: wc.RunID, Initial: initial.String(), Actions: make([]string, len(trail))}
	for i, a := range trail {
		resp.Actions[i] = a.String()
	}
	return c.JSON(http.StatusOK, resp)
}

func newContext() *workflow.Context {
	return workflow.NewContext(&chat.Trigger{Source: TriggerSource})
}

func (s *Server) generate(c echo.Context) error {
	return s.run(c, workflow.GetRandomTemplate, newContext())
}

func (s *Server) backup(c echo.Context) error {
	return s.run(c, workflow.BackupDatabase, newContext())
}

func (s *Server) review(action workflow.Action) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if _, err := uuid.Parse(id); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
		}
		var req ReviewRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		}
		if req.Approved == nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "approved is required"})
		}

		wc := newContext()
		wc.Review = &workflow.Review{ID: id, Approved: *req.Approved, Reason: req.Reason}
		return s.run(c, action, wc)
	}
}

func (s *Server) remove(fn func(ctx context.Context, id string) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if _, err := uuid.Parse(id); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
		}
		err := fn(detached(c), id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
		case err != nil:
			slog.Error("Removal failed", "id", id, "error", err)
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "removal failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func (s *Server) resetWeights(c echo.Context) error {
	n, err := s.catalog.ResetSourceWeights(detached(c))
	if err != nil {
		slog.Error("Weight reset failed", "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "reset failed"})
	}
	return c.JSON(http.StatusOK, ResetResponse{Reset: n})
}

func (s *Server) importSources(c echo.Context) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxImportSize)
	created, err := s.catalog.ImportSources(detached(c), body)
	if err != nil {
		slog.Warn("Source import failed", "error", err)
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	}
	if created == nil {
		created = []models.Source{}
	}
	return c.JSON(http.StatusOK, created)
}
