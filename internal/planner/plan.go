package planner

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tool is the capability a task is resolved with.
type Tool string

const (
	ToolStructuredQuery Tool = "StructuredQuery"
	ToolRetrieval       Tool = "Retrieval"
	ToolFinalSynthesis  Tool = "FinalSynthesis"
)

// toolAliases maps lower-cased names, including the names earlier planners emitted, to tools.
var toolAliases = map[string]Tool{
	"structuredquery": ToolStructuredQuery,
	"text2sql":        ToolStructuredQuery,
	"retrieval":       ToolRetrieval,
	"rag":             ToolRetrieval,
	"finalsynthesis":  ToolFinalSynthesis,
	"final_synthesis": ToolFinalSynthesis,
	"synthesis":       ToolFinalSynthesis,
}

// ParseTool resolves a tool name case-insensitively.
func ParseTool(name string) (Tool, error) {
	if tool, ok := toolAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return tool, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

func (t Tool) String() string { return string(t) }

func (t *Tool) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("tool must be a string: %w", err)
	}
	tool, err := ParseTool(name)
	if err != nil {
		return err
	}
	*t = tool
	return nil
}

// Task is one node of the plan graph.
type Task struct {
	ID           int    `json:"id"`
	Tool         Tool   `json:"tool"`
	Description  string `json:"description"`
	SubQuery     string `json:"subQuery"`
	Dependencies []int  `json:"dependencies"`
}

// Plan is the planner's decomposition of one user query. It is built once and consumed by a single run.
type Plan struct {
	PlanID string `json:"planId"`
	Tasks  []Task `json:"tasks"`
}

// Validate checks that task ids are unique and that every dependency names a task of the same plan.
// A plan without a FinalSynthesis task is valid; the engine reports it at run time.
func (p *Plan) Validate() error {
	var errs ValidationErrors
	seen := make(map[int]struct{}, len(p.Tasks))
	for _, task := range p.Tasks {
		if _, dup := seen[task.ID]; dup {
			errs = append(errs, ValidationError{TaskID: task.ID, Err: ErrDuplicateTask, Message: fmt.Sprintf("duplicate task id %d", task.ID)})
			continue
		}
		seen[task.ID] = struct{}{}
	}
	for _, task := range p.Tasks {
		for _, dep := range task.Dependencies {
			if _, ok := seen[dep]; !ok {
				errs = append(errs, ValidationError{TaskID: task.ID, Err: ErrUnknownDependency, Message: fmt.Sprintf("task %d depends on unknown task %d", task.ID, dep)})
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Independent returns the tasks with no dependencies, in plan order.
func (p *Plan) Independent() []Task {
	var out []Task
	for _, task := range p.Tasks {
		if len(task.Dependencies) == 0 {
			out = append(out, task)
		}
	}
	return out
}

// Dependent returns the tasks that wait on at least one other task, in plan order.
func (p *Plan) Dependent() []Task {
	var out []Task
	for _, task := range p.Tasks {
		if len(task.Dependencies) > 0 {
			out = append(out, task)
		}
	}
	return out
}

// Synthesis returns the first FinalSynthesis task.
func (p *Plan) Synthesis() (Task, bool) {
	for _, task := range p.Tasks {
		if task.Tool == ToolFinalSynthesis {
			return task, true
		}
	}
	return Task{}, false
}
