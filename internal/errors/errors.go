// Package errors provides categorized error handling for the analysis pipeline.
//
// Errors are built with a fluent builder so that each failure carries the
// component that raised it, a category used by the run-level error policy,
// and free-form context for logging:
//
//	err := errors.New(readErr).
//		Component("myaudio").
//		Category(errors.CategoryAudioRead).
//		Context("offset", offset).
//		Build()
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	// Pipeline error kinds, the run-level policy keys off these.
	CategoryConfiguration ErrorCategory = "configuration" // invalid parameters, fails the run before any I/O
	CategoryAudioRead     ErrorCategory = "audio-read"    // corrupt or unreadable audio, skips the file
	CategoryInference     ErrorCategory = "inference"     // model invocation failure, aborts the file
	CategoryOutputFormat  ErrorCategory = "output-format" // serialization failure, drops the file's output

	CategoryValidation   ErrorCategory = "validation"
	CategoryFileIO       ErrorCategory = "file-io"
	CategoryModelLoad    ErrorCategory = "model-loading"
	CategoryLabelLoad    ErrorCategory = "label-loading"
	CategoryDatabase     ErrorCategory = "database"
	CategoryWorker       ErrorCategory = "worker-pool"
	CategoryCancellation ErrorCategory = "cancellation"
	CategoryGeneric      ErrorCategory = "generic"
)

// ComponentUnknown is used when the component was not set by the caller.
const ComponentUnknown = "unknown"

// EnhancedError wraps an error with additional context and metadata
type EnhancedError struct {
	Err       error          // Original error
	component string         // Component where error occurred
	Category  ErrorCategory  // Error category for grouping and policy
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
	mu        sync.RWMutex
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is reports category equality against another EnhancedError, otherwise
// defers to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return Is(ee.Err, target)
}

// GetComponent returns the component name
func (ee *EnhancedError) GetComponent() string {
	return ee.component
}

// GetCategory returns the error category
func (ee *EnhancedError) GetCategory() string {
	return string(ee.Category)
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	ee.mu.RLock()
	defer ee.mu.RUnlock()

	if ee.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ee.Context))
	maps.Copy(contextCopy, ee.Context)
	return contextCopy
}

// GetTimestamp returns when the error occurred
func (ee *EnhancedError) GetTimestamp() time.Time {
	return ee.Timestamp
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error with enhanced context
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf creates a new formatted error with enhanced context
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// FileContext records the path of the file being processed.
func (eb *ErrorBuilder) FileContext(path string) *ErrorBuilder {
	if path == "" {
		return eb
	}
	return eb.Context("path", path)
}

// Timing adds performance timing context
func (eb *ErrorBuilder) Timing(operation string, duration time.Duration) *ErrorBuilder {
	eb.Context("operation", operation)
	return eb.Context("duration_ms", duration.Milliseconds())
}

// Build creates the EnhancedError.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Err == nil {
		ee.Err = NewStd("unspecified error")
	}
	if ee.component == "" {
		ee.component = ComponentUnknown
	}
	if ee.Category == "" {
		ee.Category = inheritCategory(eb.err)
	}
	return ee
}

// inheritCategory returns the category of the first EnhancedError in err's
// chain so re-wrapping keeps the original kind.
func inheritCategory(err error) ErrorCategory {
	var ee *EnhancedError
	if err != nil && As(err, &ee) && ee.Category != "" {
		return ee.Category
	}
	return CategoryGeneric
}

// NewStd creates a plain error, equivalent to errors.New from the standard library.
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
