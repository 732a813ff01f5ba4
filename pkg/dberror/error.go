package dberror

import (
	"fmt"
	"runtime"
	"strings"
)

// ErrorCategory classifies errors by their nature and appropriate handling strategy.
type ErrorCategory int

const (
	// ErrCategoryUser represents errors caused by the DDL request itself.
	// Examples: duplicate area name, path count mismatch, unsupported grant.
	ErrCategoryUser ErrorCategory = iota

	// ErrCategoryTransient represents temporary errors that might succeed on retry.
	ErrCategoryTransient

	// ErrCategorySystem represents errors requiring administrator intervention.
	// Examples: directory cannot be removed, catalog store cannot be opened.
	ErrCategorySystem

	// ErrCategoryData represents catalog or log corruption.
	// Examples: out-of-range log item, meta row with unexpected field type.
	ErrCategoryData

	// ErrCategoryConcurrency represents conflicts between concurrent creators.
	ErrCategoryConcurrency
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryUser:
		return "user"
	case ErrCategoryTransient:
		return "transient"
	case ErrCategorySystem:
		return "system"
	case ErrCategoryData:
		return "data"
	case ErrCategoryConcurrency:
		return "concurrency"
	default:
		return "unknown"
	}
}

// DBError represents a structured catalog error with rich context information.
type DBError struct {
	// Code is a unique identifier for this error type (e.g., "AREA_ALREADY_DEFINED").
	Code string

	// Category classifies the error for appropriate handling strategy.
	Category ErrorCategory

	// Message is a human-readable description of what went wrong.
	Message string

	// Detail provides additional context about the specific error instance.
	// Example: "area A1 in database sales".
	Detail string

	// Hint suggests how the user might fix or work around this error.
	Hint string

	// Operation identifies the catalog operation that was being performed.
	// Examples: "CreateArea", "AlterPrivilege", "Move".
	Operation string

	// Component identifies the subsystem where the error originated.
	// Examples: "Area", "ObjectSnapshot", "SystemTable".
	Component string

	// Cause is the underlying error that triggered this error.
	Cause error

	// Stack contains the call stack where this error was created.
	Stack []uintptr
}

// New creates a new DBError with the specified code, category, and message.
func New(category ErrorCategory, code, message string) *DBError {
	return &DBError{
		Code:     code,
		Category: category,
		Message:  message,
		Stack:    captureStack(),
	}
}

// Wrap wraps an existing error with catalog-specific context information.
// If the error is already a DBError, it enriches the existing error with
// operation and component context (only if not already set).
func Wrap(err error, code, operation, component string) *DBError {
	if err == nil {
		return nil
	}

	if dbErr, ok := err.(*DBError); ok {
		if dbErr.Operation == "" {
			dbErr.Operation = operation
		}
		if dbErr.Component == "" {
			dbErr.Component = component
		}
		return dbErr
	}

	return &DBError{
		Code:      code,
		Category:  ErrCategorySystem,
		Message:   err.Error(),
		Operation: operation,
		Component: component,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// WithDetail sets Detail and returns the receiver for chaining.
func (e *DBError) WithDetail(format string, args ...any) *DBError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithHint sets Hint and returns the receiver for chaining.
func (e *DBError) WithHint(hint string) *DBError {
	e.Hint = hint
	return e
}

// In records where the error surfaced.
func (e *DBError) In(operation, component string) *DBError {
	e.Operation = operation
	e.Component = component
	return e
}

// captureStack skips captureStack, New/Wrap and the constructor helper.
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the standard Go error interface
//
// The format follows the pattern:
// [ERROR_CODE] Message: Detail (operation: Operation, component: Component) caused by: underlying error
func (e *DBError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Detail != "" {
		b.WriteString(fmt.Sprintf(": %s", e.Detail))
	}

	if e.Operation != "" {
		b.WriteString(fmt.Sprintf(" (operation: %s", e.Operation))
		if e.Component != "" {
			b.WriteString(fmt.Sprintf(", component: %s", e.Component))
		}
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause error, enabling error chain traversal
// with errors.Is and errors.As.
func (e *DBError) Unwrap() error {
	return e.Cause
}

// FormatStack returns a human-readable stack trace for debugging purposes.
func (e *DBError) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n",
			f.Function, f.File, f.Line))
		if !more {
			break
		}
	}

	return b.String()
}
