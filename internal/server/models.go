package server

import (
	"github.com/mohammad-safakhou/insightgraph/internal/executor"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
	"github.com/mohammad-safakhou/insightgraph/internal/planner"
)

// HTTPError is a generic error envelope returned by the server.
type HTTPError struct {
	Error string `json:"error"`
}

// QueryRequest carries a natural-language question.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the /analyze answer.
type QueryResponse struct {
	Plan        *planner.Plan     `json:"plan,omitempty"`
	FinalAnswer string            `json:"finalAnswer,omitempty"`
	Success     bool              `json:"success"`
	Message     string            `json:"message,omitempty"`
	Results     *executor.Results `json:"results,omitempty"`
}

// PlanResponse is the /plan answer.
type PlanResponse struct {
	Plan    *planner.Plan `json:"plan,omitempty"`
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
}

// ExtractRequest submits text for knowledge extraction.
type ExtractRequest struct {
	Text      string `json:"text"`
	ChunkSize int    `json:"chunkSize"`
	Load      bool   `json:"load"`
}

// ExtractResponse lists the extracted items.
type ExtractResponse struct {
	Items  []knowledge.Item `json:"items"`
	Loaded bool             `json:"loaded"`
	Saved  bool             `json:"saved"`
}

// SearchResponse carries ranked hits and their rendered text.
type SearchResponse struct {
	Query string          `json:"query"`
	Hits  []knowledge.Hit `json:"hits"`
	Text  string          `json:"text"`
}

// KnowledgeResponse dumps the loaded collection.
type KnowledgeResponse struct {
	Count int              `json:"count"`
	Items []knowledge.Item `json:"items"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status string `json:"status"`
}
