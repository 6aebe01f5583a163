package agent

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the type of error
type ErrorCategory string

const (
	// ErrorCategoryConfig for missing credentials or required inputs
	ErrorCategoryConfig ErrorCategory = "config"
	// ErrorCategoryCapture for screen capture and image preparation errors
	ErrorCategoryCapture ErrorCategory = "capture"
	// ErrorCategoryLLM for rejected or unreachable vision model calls
	ErrorCategoryLLM ErrorCategory = "llm"
	// ErrorCategoryParse for model answers that carry no coordinate pair
	ErrorCategoryParse ErrorCategory = "parse"
	// ErrorCategoryAction for pointer and keyboard failures
	ErrorCategoryAction ErrorCategory = "action"
	// ErrorCategoryStorage for filesystem/S3/database errors
	ErrorCategoryStorage ErrorCategory = "storage"
)

// CategorizedError wraps an error with its category.
// Every category is terminal for the current run; nothing is retried.
type CategorizedError struct {
	Category ErrorCategory
	Original error
	Message  string
	// Raw holds the model response text for parse errors
	Raw string
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Original == nil {
		return fmt.Sprintf("[%s] %s", e.Category, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Message, e.Original)
}

// Unwrap implements error unwrapping
func (e *CategorizedError) Unwrap() error {
	return e.Original
}

// NewConfigError creates a configuration error
func NewConfigError(message string) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryConfig,
		Message:  message,
	}
}

// NewCaptureError creates a capture/preparation error
func NewCaptureError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryCapture,
		Original: err,
		Message:  message,
	}
}

// NewLLMError creates a vision model transport/authentication error
func NewLLMError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryLLM,
		Original: err,
		Message:  message,
	}
}

// NewParseError creates a parse error that keeps the raw model answer for diagnosis
func NewParseError(message, raw string) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryParse,
		Message:  message,
		Raw:      raw,
	}
}

// NewActionError creates a pointer/keyboard error
func NewActionError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryAction,
		Original: err,
		Message:  message,
	}
}

// NewStorageError creates a storage error
func NewStorageError(message string, err error) *CategorizedError {
	return &CategorizedError{
		Category: ErrorCategoryStorage,
		Original: err,
		Message:  message,
	}
}

// CategoryOf returns the category of the first CategorizedError in err's chain,
// or an empty category when there is none.
func CategoryOf(err error) ErrorCategory {
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}
	return ""
}

// IsCategory reports whether err carries the given category
func IsCategory(err error, category ErrorCategory) bool {
	return err != nil && CategoryOf(err) == category
}
