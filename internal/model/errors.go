package model

import (
	"fmt"
	"strings"
)

// MissingRequiredFieldError means the selection context could not derive a
// required identity field from the dataset row. Fatal for that run.
type MissingRequiredFieldError struct {
	Field string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("required field %s could not be derived from the selected row", e.Field)
}

// RetrievalError records a single failed retrieval query. It is always
// caught inside the gateway and degraded to a warning, never fatal.
type RetrievalError struct {
	Query string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval query %q: %v", e.Query, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// SynthesisError means the language model call itself failed (provider
// error, timeout, missing credential). Fatal for the run; never retried
// internally.
type SynthesisError struct {
	Provider string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis via %s failed: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// FieldIssue is one (field path, problem) pair from schema validation.
type FieldIssue struct {
	Path    string `json:"path"`
	Problem string `json:"problem"`
}

func (i FieldIssue) String() string {
	return i.Path + ": " + i.Problem
}

// ValidationError carries every structural problem found in a candidate
// dossier. Recoverable once via a synthesis retry, fatal on the second
// occurrence.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "dossier validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return "dossier validation failed: " + strings.Join(parts, "; ")
}

// Add appends an issue for the given field path.
func (e *ValidationError) Add(path, format string, args ...interface{}) {
	e.Issues = append(e.Issues, FieldIssue{Path: path, Problem: fmt.Sprintf(format, args...)})
}

// RunError is the structured FAILED outcome of a profile run. It names the
// terminal state, a human-readable reason, and any recorded validation
// errors. A failed run never writes to the cache.
type RunError struct {
	State      string
	Reason     string
	Validation []*ValidationError
	Err        error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("profile run failed in %s: %s: %v", e.State, e.Reason, e.Err)
	}
	return fmt.Sprintf("profile run failed in %s: %s", e.State, e.Reason)
}

func (e *RunError) Unwrap() error { return e.Err }
