package executor

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/mohammad-safakhou/insightgraph/internal/knowledge"
	"github.com/mohammad-safakhou/insightgraph/internal/knowledge/knowledgetest"
	"github.com/mohammad-safakhou/insightgraph/internal/planner"
	"github.com/mohammad-safakhou/insightgraph/provider"
)

type stubLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	messages []provider.Message
	calls    int
}

func (s *stubLLM) Complete(ctx context.Context, messages []provider.Message, opts provider.CompleteOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.messages = messages
	return s.reply, s.err
}

func (s *stubLLM) prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return ""
	}
	return s.messages[len(s.messages)-1].Content
}

type stubQueries struct {
	mu      sync.Mutex
	queries []string
	err     error
}

func (s *stubQueries) ExecuteQuery(ctx context.Context, query string) (QueryResult, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.err != nil {
		return QueryResult{}, s.err
	}
	return QueryResult{
		Columns: []string{"region", "growth"},
		Rows:    []map[string]interface{}{{"region": "East China", "growth": "-28.4%"}},
	}, nil
}

type stubRetriever struct {
	mu    sync.Mutex
	topKs []int
	err   error
}

func (s *stubRetriever) Search(ctx context.Context, query string, topK int) (string, error) {
	s.mu.Lock()
	s.topKs = append(s.topKs, topK)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return "kg:" + query, nil
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestRunRetrievalAndSynthesisAgainstSeedStore(t *testing.T) {
	store := knowledge.New(knowledgetest.SalesEmbedder(), knowledge.WithLogger(quietLogger()))
	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	llm := &stubLLM{reply: "East China sales fell because of the partner optimization plan."}
	engine := New(llm, &stubQueries{}, store, WithLogger(quietLogger()))

	plan := &planner.Plan{PlanID: "p", Tasks: []planner.Task{
		{ID: 1, Tool: planner.ToolRetrieval, SubQuery: "Q3 sales decline East China", Dependencies: []int{}},
		{ID: 2, Tool: planner.ToolFinalSynthesis, Description: "Why did Q3 sales decline in East China?", Dependencies: []int{1}},
	}}
	out, err := engine.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Answered || out.Text == "" {
		t.Fatalf("expected an answered outcome, got %+v", out)
	}
	res, ok := out.Results.Get(1)
	if !ok {
		t.Fatalf("expected result for task 1")
	}
	if !strings.Contains(res.String(), "East China Region") {
		t.Fatalf("retrieval result missing seed entity: %s", res)
	}
	prompt := llm.prompt()
	if !strings.Contains(prompt, "task 1 result:") {
		t.Fatalf("synthesis context must reference task 1: %s", prompt)
	}
	if !strings.Contains(prompt, "Why did Q3 sales decline in East China?") {
		t.Fatalf("synthesis prompt must carry the question: %s", prompt)
	}
	if llm.messages[0].Role != provider.RoleSystem || !strings.Contains(llm.messages[0].Content, "analyst") {
		t.Fatalf("expected analyst persona, got %+v", llm.messages[0])
	}
}

func TestRunDispatchesByTool(t *testing.T) {
	queries := &stubQueries{}
	retriever := &stubRetriever{}
	llm := &stubLLM{reply: "report"}
	engine := New(llm, queries, retriever, WithLogger(quietLogger()))

	plan := &planner.Plan{Tasks: []planner.Task{
		{ID: 1, Tool: planner.ToolStructuredQuery, SubQuery: "q3 sales by region"},
		{ID: 2, Tool: planner.ToolRetrieval, SubQuery: "partner changes"},
		{ID: 3, Tool: planner.ToolFinalSynthesis, Dependencies: []int{1, 2}},
	}}
	out, err := engine.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Text != "report" {
		t.Fatalf("synthesis text must be returned verbatim, got %q", out.Text)
	}

	sq, _ := out.Results.Get(1)
	structured, ok := sq.(StructuredQueryResult)
	if !ok {
		t.Fatalf("task 1 should hold a structured query result, got %T", sq)
	}
	if structured.KnowledgeContext != "kg:q3 sales by region" {
		t.Fatalf("expected knowledge context, got %q", structured.KnowledgeContext)
	}
	if !strings.Contains(structured.String(), "{region: East China, growth: -28.4%}") {
		t.Fatalf("unexpected rendering: %s", structured)
	}
	if r, _ := out.Results.Get(2); r.Tool() != planner.ToolRetrieval {
		t.Fatalf("task 2 should hold a retrieval result")
	}

	topKs := map[int]int{}
	for _, k := range retriever.topKs {
		topKs[k]++
	}
	if topKs[DefaultContextTopK] != 1 || topKs[DefaultRetrievalTopK] != 1 {
		t.Fatalf("unexpected retrieval top-k usage: %v", retriever.topKs)
	}
	if _, ok := out.Results.Get(3); ok {
		t.Fatalf("synthesis task must not be dispatched")
	}
}

func TestRunUsesContextRetrieverForStructuredQueries(t *testing.T) {
	docs := &stubRetriever{}
	graph := &stubRetriever{}
	engine := New(&stubLLM{reply: "ok"}, &stubQueries{}, docs, WithLogger(quietLogger()), WithContextRetriever(graph))

	plan := &planner.Plan{Tasks: []planner.Task{
		{ID: 1, Tool: planner.ToolStructuredQuery, SubQuery: "q3 sales"},
		{ID: 2, Tool: planner.ToolRetrieval, SubQuery: "partner changes"},
		{ID: 3, Tool: planner.ToolFinalSynthesis},
	}}
	if _, err := engine.Run(context.Background(), plan); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(graph.topKs) != 1 || graph.topKs[0] != DefaultContextTopK {
		t.Fatalf("context retriever should be asked once with top-k %d, got %v", DefaultContextTopK, graph.topKs)
	}
	if len(docs.topKs) != 1 || docs.topKs[0] != DefaultRetrievalTopK {
		t.Fatalf("retrieval backend should only answer the retrieval task, got %v", docs.topKs)
	}
}

func TestRunMissingSynthesis(t *testing.T) {
	llm := &stubLLM{reply: "unused"}
	engine := New(llm, &stubQueries{}, &stubRetriever{}, WithLogger(quietLogger()))
	out, err := engine.Run(context.Background(), &planner.Plan{Tasks: []planner.Task{
		{ID: 1, Tool: planner.ToolRetrieval, SubQuery: "x"},
	}})
	if err != nil {
		t.Fatalf("missing synthesis must not be an error: %v", err)
	}
	if out.Text != MissingSynthesisMessage || out.Answered {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Results.Len() != 1 {
		t.Fatalf("independent tasks still run, got %d results", out.Results.Len())
	}
	if llm.calls != 0 {
		t.Fatalf("no synthesis completion expected")
	}
}

func TestRunSynthesisFailureDegrades(t *testing.T) {
	llm := &stubLLM{err: errors.New("model unavailable")}
	engine := New(llm, &stubQueries{}, &stubRetriever{}, WithLogger(quietLogger()))
	out, err := engine.Run(context.Background(), &planner.Plan{Tasks: []planner.Task{
		{ID: 1, Tool: planner.ToolRetrieval},
		{ID: 2, Tool: planner.ToolFinalSynthesis, Dependencies: []int{1}},
	}})
	if err != nil {
		t.Fatalf("capability failure must not propagate: %v", err)
	}
	if out.Answered || out.Text != "" {
		t.Fatalf("expected unanswered outcome, got %+v", out)
	}
}

func TestRunRecordsTaskFailures(t *testing.T) {
	llm := &stubLLM{reply: "ok"}
	engine := New(llm, &stubQueries{err: errors.New("warehouse down")}, &stubRetriever{err: errors.New("index gone")}, WithLogger(quietLogger()))
	out, err := engine.Run(context.Background(), &planner.Plan{Tasks: []planner.Task{
		{ID: 1, Tool: planner.ToolStructuredQuery},
		{ID: 2, Tool: planner.ToolRetrieval},
		{ID: 3, Tool: planner.ToolFinalSynthesis, Dependencies: []int{1, 2}},
	}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, id := range []int{1, 2} {
		res, ok := out.Results.Get(id)
		if !ok || res.Failed() == nil {
			t.Fatalf("task %d should record its failure, got %v", id, res)
		}
	}
	if !strings.Contains(llm.prompt(), "structured query failed: warehouse down") {
		t.Fatalf("synthesis should see the failure: %s", llm.prompt())
	}
}

func TestRunSkipsDependentTasks(t *testing.T) {
	retriever := &stubRetriever{}
	var skipped []int
	engine := New(&stubLLM{reply: "ok"}, &stubQueries{}, retriever,
		WithLogger(quietLogger()),
		WithMetrics(Metrics{TaskSkipped: func(ctx context.Context, task planner.Task) { skipped = append(skipped, task.ID) }}),
	)
	out, err := engine.Run(context.Background(), &planner.Plan{Tasks: []planner.Task{
		{ID: 1, Tool: planner.ToolRetrieval},
		{ID: 2, Tool: planner.ToolRetrieval, Dependencies: []int{1}},
		{ID: 3, Tool: planner.ToolFinalSynthesis, Dependencies: []int{1, 2}},
	}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, ok := out.Results.Get(2); ok {
		t.Fatalf("dependent task must not run")
	}
	if len(skipped) != 1 || skipped[0] != 2 {
		t.Fatalf("expected task 2 reported as skipped, got %v", skipped)
	}
}

// barrierRetriever blocks until n searches are in flight, proving they run concurrently.
type barrierRetriever struct {
	n       int
	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func (b *barrierRetriever) Search(ctx context.Context, query string, topK int) (string, error) {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.release)
	}
	b.mu.Unlock()
	select {
	case <-b.release:
		return query, nil
	case <-time.After(5 * time.Second):
		return "", errors.New("searches did not overlap")
	}
}

func TestRunExecutesIndependentTasksConcurrently(t *testing.T) {
	retriever := &barrierRetriever{n: 3, release: make(chan struct{})}
	engine := New(&stubLLM{reply: "ok"}, nil, retriever, WithLogger(quietLogger()))
	out, err := engine.Run(context.Background(), &planner.Plan{Tasks: []planner.Task{
		{ID: 1, Tool: planner.ToolRetrieval, SubQuery: "a"},
		{ID: 2, Tool: planner.ToolRetrieval, SubQuery: "b"},
		{ID: 3, Tool: planner.ToolRetrieval, SubQuery: "c"},
		{ID: 4, Tool: planner.ToolFinalSynthesis, Dependencies: []int{1, 2, 3}},
	}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, e := range out.Results.Entries() {
		if e.Result.Failed() != nil {
			t.Fatalf("task %d: %v", e.TaskID, e.Result.Failed())
		}
	}
}

func TestRunNilPlan(t *testing.T) {
	if _, err := New(&stubLLM{}, nil, nil).Run(context.Background(), nil); !errors.Is(err, ErrNilPlan) {
		t.Fatalf("expected ErrNilPlan, got %v", err)
	}
}

func TestPropertyOneResultPerIndependentNonSynthesisTask(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 10).Draw(rt, "tasks")
		tools := []planner.Tool{planner.ToolStructuredQuery, planner.ToolRetrieval, planner.ToolFinalSynthesis}
		plan := &planner.Plan{}
		want := map[int]bool{}
		for i := 1; i <= n; i++ {
			tool := rapid.SampledFrom(tools).Draw(rt, "tool")
			plan.Tasks = append(plan.Tasks, planner.Task{ID: i, Tool: tool})
			if tool != planner.ToolFinalSynthesis {
				want[i] = true
			}
		}
		engine := New(&stubLLM{reply: "ok"}, &stubQueries{}, &stubRetriever{}, WithLogger(quietLogger()))
		out, err := engine.Run(context.Background(), plan)
		if err != nil {
			rt.Fatalf("run: %v", err)
		}
		if out.Results.Len() != len(want) {
			rt.Fatalf("expected %d results, got %d", len(want), out.Results.Len())
		}
		for id := range want {
			if _, ok := out.Results.Get(id); !ok {
				rt.Fatalf("missing result for task %d", id)
			}
		}
	})
}
