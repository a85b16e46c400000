package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/insightgraph/internal/executor"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge/snapshot"
	"github.com/mohammad-safakhou/insightgraph/internal/planner"
	"github.com/mohammad-safakhou/insightgraph/internal/telemetry"
)

// PlanCreator turns a question into a plan.
type PlanCreator interface {
	CreatePlan(ctx context.Context, query string) (*planner.Plan, error)
}

// PlanRunner executes a plan.
type PlanRunner interface {
	Run(ctx context.Context, plan *planner.Plan) (executor.Outcome, error)
}

// KnowledgeBase is the knowledge store surface the API needs.
type KnowledgeBase interface {
	Hits(ctx context.Context, query string, topK int) ([]knowledge.Hit, error)
	Items() []knowledge.Item
	Load(ctx context.Context, items []knowledge.Item) error
}

// Extractor builds knowledge items from raw text.
type Extractor interface {
	ExtractFromText(ctx context.Context, text string, chunkSize int) ([]knowledge.Item, error)
}

// Deps wires the server to the analysis components. Snapshots, Metrics and JWTSecret are optional.
type Deps struct {
	Planner   PlanCreator
	Engine    PlanRunner
	Knowledge KnowledgeBase
	Extractor Extractor
	Snapshots snapshot.Store
	Metrics   *telemetry.Metrics

	JWTSecret      []byte
	CORSOrigins    []string
	ChunkSize      int
	SearchTopK     int
	ExpansionLimit int
	Logger         *log.Logger
}

// Server is the HTTP API in front of the planner, engine and knowledge store.
type Server struct {
	deps   Deps
	echo   *echo.Echo
	logger *log.Logger
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	if deps.ExpansionLimit <= 0 {
		deps.ExpansionLimit = knowledge.DefaultExpansionLimit
	}
	if deps.SearchTopK <= 0 {
		deps.SearchTopK = knowledge.DefaultTopK
	}
	if len(deps.CORSOrigins) == 0 {
		deps.CORSOrigins = []string{"*"}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: deps.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	s := &Server{deps: deps, echo: e, logger: logger}
	if deps.Metrics != nil {
		e.Use(s.observeRequests)
		e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)

	api := s.echo.Group("")
	if len(s.deps.JWTSecret) > 0 {
		api.Use(AuthMiddleware(s.deps.JWTSecret))
	}
	api.POST("/analyze", s.analyze)
	api.POST("/plan", s.plan)

	kg := api.Group("/knowledge")
	kg.GET("", s.listKnowledge)
	kg.GET("/search", s.searchKnowledge)
	extract := []echo.MiddlewareFunc{}
	if len(s.deps.JWTSecret) > 0 {
		extract = append(extract, RequireScopes(ScopeKnowledgeWrite))
	}
	kg.POST("/extract", s.extractKnowledge, extract...)
}

func (s *Server) observeRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		code := c.Response().Status
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		} else if err != nil {
			code = http.StatusInternalServerError
		}
		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		s.deps.Metrics.ObserveRequest(c.Request().Method, route, code)
		return err
	}
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.echo }

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Printf("listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }
