package executor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/insightgraph/internal/planner"
)

// TaskResult is the payload stored for one executed task. It is either a StructuredQueryResult or a
// RetrievalResult.
type TaskResult interface {
	fmt.Stringer
	Tool() planner.Tool
	Failed() error
	isTaskResult()
}

// QueryResult is the tabular answer of a structured query.
type QueryResult struct {
	Columns []string                 `json:"columns"`
	Rows    []map[string]interface{} `json:"rows"`
}

// StructuredQueryResult holds warehouse rows plus the knowledge context retrieved for the same query.
type StructuredQueryResult struct {
	Query            string
	Data             QueryResult
	KnowledgeContext string
	Err              error
}

func (StructuredQueryResult) Tool() planner.Tool { return planner.ToolStructuredQuery }
func (r StructuredQueryResult) Failed() error    { return r.Err }
func (StructuredQueryResult) isTaskResult()      {}

func (r StructuredQueryResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("structured query failed: %v", r.Err)
	}
	var b strings.Builder
	b.WriteString("data query result: ")
	b.WriteString(formatRows(r.Data))
	if r.KnowledgeContext != "" {
		b.WriteString("\nknowledge graph context: ")
		b.WriteString(r.KnowledgeContext)
	}
	return b.String()
}

func formatRows(data QueryResult) string {
	cols := data.Columns
	rows := make([]string, 0, len(data.Rows))
	for _, row := range data.Rows {
		keys := cols
		if len(keys) == 0 {
			keys = make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			sort.Strings(keys)
		}
		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, fmt.Sprintf("%s: %v", k, row[k]))
		}
		rows = append(rows, "{"+strings.Join(fields, ", ")+"}")
	}
	return "[" + strings.Join(rows, ", ") + "]"
}

// RetrievalResult holds the rendered retrieval text.
type RetrievalResult struct {
	Query string
	Text  string
	Err   error
}

func (RetrievalResult) Tool() planner.Tool { return planner.ToolRetrieval }
func (r RetrievalResult) Failed() error    { return r.Err }
func (RetrievalResult) isTaskResult()      {}

func (r RetrievalResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("retrieval failed: %v", r.Err)
	}
	return r.Text
}

// Entry pairs a task id with its result.
type Entry struct {
	TaskID int
	Result TaskResult
}

// Results maps task ids to results for one run, remembering insertion order. Safe for concurrent Put.
type Results struct {
	mu    sync.RWMutex
	order []int
	byID  map[int]TaskResult
}

func NewResults() *Results {
	return &Results{byID: map[int]TaskResult{}}
}

// Put stores r under id. Replacing an existing id keeps its original position.
func (r *Results) Put(id int, res TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		r.order = append(r.order, id)
	}
	r.byID[id] = res
}

func (r *Results) Get(id int) (TaskResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byID[id]
	return res, ok
}

func (r *Results) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Entries returns results in insertion order.
func (r *Results) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, Entry{TaskID: id, Result: r.byID[id]})
	}
	return out
}

// Context renders every entry as "task {id} result: {result}", one per line.
func (r *Results) Context() string {
	entries := r.Entries()
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("task %d result: %s", e.TaskID, e.Result))
	}
	return strings.Join(lines, "\n")
}

type entryJSON struct {
	TaskID int          `json:"taskId"`
	Tool   planner.Tool `json:"tool"`
	Result string       `json:"result"`
	Error  string       `json:"error,omitempty"`
}

func (r *Results) MarshalJSON() ([]byte, error) {
	entries := r.Entries()
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		item := entryJSON{TaskID: e.TaskID, Tool: e.Result.Tool(), Result: e.Result.String()}
		if err := e.Result.Failed(); err != nil {
			item.Error = err.Error()
		}
		out = append(out, item)
	}
	return json.Marshal(out)
}
