// Package errs classifies failures so handlers can decide between failing
// startup, answering 4xx, or folding an external failure into UI state.
package errs

import (
	"errors"
	"fmt"
)

// Category of an Error.
type Category string

const (
	// CategoryConfig marks broken configuration or datasets. Fatal at startup.
	CategoryConfig Category = "config"
	// CategoryCaller marks invalid input from a caller.
	CategoryCaller Category = "caller"
	// CategoryExternal marks failures of collaborators outside the process.
	CategoryExternal Category = "external"
	// CategoryInternal is used for anything unclassified.
	CategoryInternal Category = "internal"
)

// Fields carries structured context for an Error.
type Fields map[string]any

// Error is a categorized error wrapping a cause.
type Error struct {
	Category Category `json:"category"`
	Op       string   `json:"op"`
	Cause    error    `json:"-"`
	Context  Fields   `json:"context,omitempty"`
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Category, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Category, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// With adds a context field and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(Fields)
	}
	e.Context[key] = value
	return e
}

func newError(cat Category, op string, cause error) *Error {
	return &Error{Category: cat, Op: op, Cause: cause}
}

// Config wraps cause as a configuration error.
func Config(op string, cause error) *Error { return newError(CategoryConfig, op, cause) }

// Caller wraps cause as a caller error.
func Caller(op string, cause error) *Error { return newError(CategoryCaller, op, cause) }

// External wraps cause as an external-collaborator error.
func External(op string, cause error) *Error { return newError(CategoryExternal, op, cause) }

// CategoryOf reports the category of the outermost *Error in err's chain,
// or CategoryInternal when there is none.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryInternal
}

// Is reports whether err carries the given category.
func Is(err error, cat Category) bool {
	return err != nil && CategoryOf(err) == cat
}
