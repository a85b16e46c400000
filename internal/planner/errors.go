package planner

import (
	"errors"
	"strings"
)

var (
	ErrInvalidPlan       = errors.New("invalid plan")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrDuplicateTask     = errors.New("duplicate task id")
	ErrUnknownDependency = errors.New("unknown dependency")
)

// ValidationError describes one structural problem with a plan.
type ValidationError struct {
	TaskID  int
	Err     error
	Message string
}

func (e ValidationError) Error() string { return e.Message }

func (e ValidationError) Unwrap() error { return e.Err }

// ValidationErrors collects every problem found in a plan.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Message
	}
	return "invalid plan: " + strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v)+1)
	out = append(out, ErrInvalidPlan)
	for _, e := range v {
		out = append(out, e)
	}
	return out
}
