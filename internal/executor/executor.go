package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/insightgraph/internal/planner"
	"github.com/mohammad-safakhou/insightgraph/provider"
)

const (
	DefaultRetrievalTopK = 5
	DefaultContextTopK   = 2

	// MissingSynthesisMessage is the outcome text for plans without a FinalSynthesis task.
	MissingSynthesisMessage = "plan missing synthesis node"

	analystPersona = "You are an in-depth business logic analyst. Combine the entity relations from the knowledge graph, " +
		"the data analysis results and the document background into an objective, detailed analysis report."
)

var ErrNilPlan = errors.New("nil plan")

var engineTracer trace.Tracer = otel.Tracer("insightgraph/internal/executor")

// QueryExecutor answers structured queries.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, query string) (QueryResult, error)
}

// Retriever answers free-text retrieval queries with display text.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) (string, error)
}

// Metrics aggregates optional telemetry callbacks.
type Metrics struct {
	TaskDuration func(ctx context.Context, task planner.Task, failed bool, elapsed time.Duration)
	TaskSkipped  func(ctx context.Context, task planner.Task)
	Synthesis    func(ctx context.Context, answered bool, elapsed time.Duration)
}

// Outcome is the result of one plan run.
type Outcome struct {
	Text     string
	Answered bool
	Results  *Results
}

// Engine runs plans: independent tasks concurrently, then one synthesis completion.
type Engine struct {
	llm           provider.LLM
	queries       QueryExecutor
	retriever     Retriever
	knowledgeCtx  Retriever
	retrievalTopK int
	contextTopK   int
	logger        *log.Logger
	metrics       Metrics
}

// Option configures engine behaviour.
type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets engine metrics callbacks.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithRetrievalTopK(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.retrievalTopK = n
		}
	}
}

// WithContextTopK sets how many knowledge hits accompany structured query results. Zero disables it.
func WithContextTopK(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.contextTopK = n
		}
	}
}

// WithContextRetriever answers the knowledge context of structured queries with r instead of the
// Retrieval backend.
func WithContextRetriever(r Retriever) Option {
	return func(e *Engine) {
		if r != nil {
			e.knowledgeCtx = r
		}
	}
}

// New creates an Engine. queries or retriever may be nil; tasks needing them then record a failure.
func New(llm provider.LLM, queries QueryExecutor, retriever Retriever, opts ...Option) *Engine {
	e := &Engine{
		llm:           llm,
		queries:       queries,
		retriever:     retriever,
		knowledgeCtx:  retriever,
		retrievalTopK: DefaultRetrievalTopK,
		contextTopK:   DefaultContextTopK,
		logger:        log.New(log.Writer(), "[ENGINE] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes every zero-dependency task of plan concurrently and waits for all of them. Tasks with
// dependencies are not scheduled. The synthesis task then merges the stored results with one completion.
// Capability failures degrade the outcome instead of returning an error; only cancellation does.
func (e *Engine) Run(ctx context.Context, plan *planner.Plan) (Outcome, error) {
	if plan == nil {
		return Outcome{}, ErrNilPlan
	}
	ctx, span := engineTracer.Start(ctx, "engine.run", trace.WithAttributes(
		attribute.String("plan.id", plan.PlanID),
		attribute.Int("plan.tasks", len(plan.Tasks)),
	))
	defer span.End()

	results := NewResults()
	for _, task := range plan.Dependent() {
		if task.Tool == planner.ToolFinalSynthesis {
			continue
		}
		e.logger.Printf("warn: task %d skipped: depends on %v and only independent tasks are scheduled", task.ID, task.Dependencies)
		if e.metrics.TaskSkipped != nil {
			e.metrics.TaskSkipped(ctx, task)
		}
	}

	var g errgroup.Group
	for _, task := range plan.Independent() {
		if task.Tool == planner.ToolFinalSynthesis {
			continue
		}
		task := task
		g.Go(func() error {
			results.Put(task.ID, e.execute(ctx, task))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{Results: results}, err
	}

	synthesis, ok := plan.Synthesis()
	if !ok {
		e.logger.Printf("warn: plan %s has no synthesis task", plan.PlanID)
		span.SetStatus(codes.Ok, "missing synthesis")
		return Outcome{Text: MissingSynthesisMessage, Results: results}, nil
	}

	out := e.synthesize(ctx, synthesis, results)
	span.SetAttributes(attribute.Bool("plan.answered", out.Answered))
	span.SetStatus(codes.Ok, "completed")
	return out, nil
}

func (e *Engine) execute(ctx context.Context, task planner.Task) TaskResult {
	taskCtx, span := engineTracer.Start(ctx, "engine.task", trace.WithAttributes(
		attribute.Int("task.id", task.ID),
		attribute.String("task.tool", task.Tool.String()),
	))
	defer span.End()
	started := time.Now()

	var res TaskResult
	switch task.Tool {
	case planner.ToolStructuredQuery:
		res = e.structuredQuery(taskCtx, task.SubQuery)
	case planner.ToolRetrieval:
		res = e.retrieve(taskCtx, task.SubQuery)
	default:
		res = RetrievalResult{Query: task.SubQuery, Err: fmt.Errorf("%w: %s", planner.ErrUnknownTool, task.Tool)}
	}

	if err := res.Failed(); err != nil {
		e.logger.Printf("warn: task %d (%s) failed: %v", task.ID, task.Tool, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "completed")
	}
	if e.metrics.TaskDuration != nil {
		e.metrics.TaskDuration(ctx, task, res.Failed() != nil, time.Since(started))
	}
	return res
}

func (e *Engine) structuredQuery(ctx context.Context, query string) StructuredQueryResult {
	res := StructuredQueryResult{Query: query}
	if e.queries == nil {
		res.Err = errors.New("no query executor configured")
		return res
	}
	data, err := e.queries.ExecuteQuery(ctx, query)
	if err != nil {
		res.Err = err
		return res
	}
	res.Data = data
	if e.knowledgeCtx != nil && e.contextTopK > 0 {
		kg, err := e.knowledgeCtx.Search(ctx, query, e.contextTopK)
		if err != nil {
			e.logger.Printf("warn: knowledge context for %q unavailable: %v", query, err)
		} else {
			res.KnowledgeContext = kg
		}
	}
	return res
}

func (e *Engine) retrieve(ctx context.Context, query string) RetrievalResult {
	res := RetrievalResult{Query: query}
	if e.retriever == nil {
		res.Err = errors.New("no retriever configured")
		return res
	}
	text, err := e.retriever.Search(ctx, query, e.retrievalTopK)
	if err != nil {
		res.Err = err
		return res
	}
	res.Text = text
	return res
}

// SynthesisPrompt builds the user prompt for the synthesis completion.
func SynthesisPrompt(question, resultsContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Based on the following multi-source analysis results (including knowledge graph retrieval), answer the user's question: %q\n\n", question)
	b.WriteString("Execution context:\n")
	b.WriteString(resultsContext)
	b.WriteString("\n\nCombine the entity relations from the knowledge graph with the data analysis results and write an objective, detailed analysis report.")
	return b.String()
}

func (e *Engine) synthesize(ctx context.Context, task planner.Task, results *Results) Outcome {
	synthCtx, span := engineTracer.Start(ctx, "engine.synthesize", trace.WithAttributes(attribute.Int("task.id", task.ID)))
	defer span.End()
	started := time.Now()

	prompt := SynthesisPrompt(task.Description, results.Context())
	text, err := e.llm.Complete(synthCtx, provider.Conversation(analystPersona, prompt), provider.CompleteOptions{})
	answered := err == nil
	if e.metrics.Synthesis != nil {
		e.metrics.Synthesis(ctx, answered, time.Since(started))
	}
	if err != nil {
		e.logger.Printf("warn: synthesis failed: %v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{Results: results}
	}
	span.SetStatus(codes.Ok, "completed")
	return Outcome{Text: text, Answered: true, Results: results}
}
