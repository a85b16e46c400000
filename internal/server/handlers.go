package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
)

const (
	planFailedMessage = "failed to create execution plan"
	noAnswerMessage   = "no answer was produced"
)

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func bindQuery(c echo.Context) (string, error) {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	return q, nil
}

func (s *Server) analyze(c echo.Context) error {
	query, err := bindQuery(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	plan, err := s.deps.Planner.CreatePlan(ctx, query)
	if err != nil {
		s.logger.Printf("warn: plan for %q failed: %v", query, err)
		return c.JSON(http.StatusOK, QueryResponse{Success: false, Message: planFailedMessage})
	}

	out, err := s.deps.Engine.Run(ctx, plan)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "execution failed: "+err.Error())
	}
	resp := QueryResponse{Plan: plan, FinalAnswer: out.Text, Success: true, Results: out.Results}
	if out.Text == "" {
		resp.Message = noAnswerMessage
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) plan(c echo.Context) error {
	query, err := bindQuery(c)
	if err != nil {
		return err
	}
	plan, err := s.deps.Planner.CreatePlan(c.Request().Context(), query)
	if err != nil {
		s.logger.Printf("warn: plan for %q failed: %v", query, err)
		return c.JSON(http.StatusOK, PlanResponse{Success: false, Message: planFailedMessage})
	}
	return c.JSON(http.StatusOK, PlanResponse{Plan: plan, Success: true})
}

func (s *Server) listKnowledge(c echo.Context) error {
	items := s.deps.Knowledge.Items()
	return c.JSON(http.StatusOK, KnowledgeResponse{Count: len(items), Items: items})
}

func (s *Server) searchKnowledge(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	k := s.deps.SearchTopK
	if raw := c.QueryParam("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
		k = n
	}

	hits, err := s.deps.Knowledge.Hits(c.Request().Context(), q, k)
	if errors.Is(err, knowledge.ErrQueryNotEmbedded) {
		return c.JSON(http.StatusOK, SearchResponse{Query: q, Hits: []knowledge.Hit{}, Text: knowledge.QueryNotEmbeddedText})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	text := knowledge.Render(hits, knowledge.Expand(s.deps.Knowledge.Items(), hits, s.deps.ExpansionLimit))
	if hits == nil {
		hits = []knowledge.Hit{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Query: q, Hits: hits, Text: text})
}

func (s *Server) extractKnowledge(c echo.Context) error {
	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	if req.ChunkSize < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "chunkSize cannot be negative")
	}
	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = s.deps.ChunkSize
	}

	ctx := c.Request().Context()
	items, err := s.deps.Extractor.ExtractFromText(ctx, req.Text, chunkSize)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "extraction failed: "+err.Error())
	}
	if items == nil {
		items = []knowledge.Item{}
	}
	resp := ExtractResponse{Items: items}
	if !req.Load || len(items) == 0 {
		return c.JSON(http.StatusOK, resp)
	}

	if err := s.deps.Knowledge.Load(ctx, items); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	resp.Loaded = true
	if s.deps.Snapshots != nil {
		if err := s.deps.Snapshots.Save(ctx, items); err != nil {
			s.logger.Printf("warn: knowledge snapshot not saved: %v", err)
		} else {
			resp.Saved = true
		}
	}
	return c.JSON(http.StatusOK, resp)
}
