package tools

import (
	"errors"
	"fmt"
)

// Tool registry errors.
var (
	// ErrToolNotFound is returned when no tool has the requested name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExists is returned when creating a tool whose name is taken.
	ErrToolExists = errors.New("tool already exists")

	// ErrInvalidName is returned when a name is not a usable function identifier.
	ErrInvalidName = errors.New("invalid tool name")

	// ErrInvalidSchema is returned when a parameter schema is malformed.
	ErrInvalidSchema = errors.New("invalid parameter schema")

	// ErrMissingRequiredArg is returned when a required argument is missing or null.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInternalTool is returned when asked to run a record that is not user-callable.
	ErrInternalTool = errors.New("tool is internal and cannot be executed")

	// ErrCorruptRecord is returned when a stored record cannot be decoded.
	ErrCorruptRecord = errors.New("corrupt tool record")
)

// Kind classifies where an operation failed.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindGeneration   Kind = "generation"
	KindSanitization Kind = "sanitization"
	KindEmbedding    Kind = "embedding"
	KindStore        Kind = "store"
	KindExecution    Kind = "execution"
)

// OpError is a failure of a tool operation, tagged with its Kind.
type OpError struct {
	Kind Kind
	Tool string
	Err  error
}

func (e *OpError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s failed for %s: %v", e.Kind, e.Tool, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Fail builds an OpError.
func Fail(kind Kind, tool string, err error) *OpError {
	return &OpError{Kind: kind, Tool: tool, Err: err}
}

// KindOf returns the Kind of the first OpError in err's chain, or "".
func KindOf(err error) Kind {
	var op *OpError
	if errors.As(err, &op) {
		return op.Kind
	}
	return ""
}
