package planner

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/insightgraph/internal/helpers"
	"github.com/mohammad-safakhou/insightgraph/provider"
)

const planInstruction = `You are a data analysis expert. Decompose the user's request into a list of tasks.
Each task uses exactly one tool:
- "StructuredQuery": answer a question from the sales warehouse (numbers, breakdowns, trends).
- "Retrieval": look up background knowledge about entities, events and their relations.
- "FinalSynthesis": combine the results of the other tasks into the final report.
Tasks that can run independently must have an empty dependencies list. The FinalSynthesis task depends on
every other task and its description restates the user's question.
Respond with JSON only, shaped like:
{
  "planId": "string",
  "tasks": [
    {"id": 1, "tool": "StructuredQuery", "description": "...", "subQuery": "...", "dependencies": []},
    {"id": 2, "tool": "Retrieval", "description": "...", "subQuery": "...", "dependencies": []},
    {"id": 3, "tool": "FinalSynthesis", "description": "...", "subQuery": "...", "dependencies": [1, 2]}
  ]
}`

// Planner turns a natural-language query into a Plan with a single completion.
type Planner struct {
	llm    provider.LLM
	logger *log.Logger
}

func NewPlanner(llm provider.LLM, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{llm: llm, logger: logger}
}

// CreatePlan asks the model for a plan. Any failure yields an error and no partial plan; there is no retry.
func (p *Planner) CreatePlan(ctx context.Context, query string) (*Plan, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidPlan)
	}

	reply, err := p.llm.Complete(ctx, provider.Conversation(planInstruction, query), provider.CompleteOptions{JSON: true})
	if err != nil {
		p.logger.Printf("warn: plan completion failed: %v", err)
		return nil, fmt.Errorf("plan completion: %w", err)
	}

	raw, err := helpers.ExtractJSON(reply)
	if err != nil {
		p.logger.Printf("warn: plan reply carried no JSON: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	plan, err := ParsePlan([]byte(raw))
	if err != nil {
		p.logger.Printf("warn: rejected plan: %v", err)
		return nil, err
	}
	if strings.TrimSpace(plan.PlanID) == "" {
		plan.PlanID = uuid.NewString()
	}
	p.logger.Printf("plan %s created with %d tasks", plan.PlanID, len(plan.Tasks))
	return plan, nil
}
