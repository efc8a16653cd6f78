package pipeline

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the pipeline and its component wrappers.
// The taxonomy is flat: one code per failure class, no hierarchy.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeExtractionError   = "EXTRACTION_ERROR"
	CodeCompressionError  = "COMPRESSION_ERROR"
	CodeEmbeddingError    = "EMBEDDING_ERROR"
	CodeDuplicateFile     = "DUPLICATE_FILE"
	CodeDatabaseError     = "DATABASE_ERROR"
	CodeUnknownError      = "UNKNOWN_ERROR"

	CodeEmptyFile        = "EMPTY_FILE"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodePDFParseError    = "PDF_PARSE_ERROR"
	CodeEmptyContent     = "EMPTY_CONTENT"
	CodeInvalidFileType  = "INVALID_FILE_TYPE"
	CodeJSONParseError   = "JSON_PARSE_ERROR"
	CodeRateLimit        = "RATE_LIMIT"
	CodeAPIError         = "API_ERROR"
	CodeEmptyText        = "EMPTY_TEXT"
	CodeTextTooLong      = "TEXT_TOO_LONG"
	CodeAPIRateLimit     = "API_RATE_LIMIT"
	CodeInvalidDimension = "INVALID_EMBEDDING_DIMENSIONS"
)

// Error is the pipeline's error type. Code is one of the constants above,
// Stage (when set) names the pipeline stage that failed, and Details carries
// optional structured diagnostics (observed sizes, raw LLM output, ...).
type Error struct {
	Code    string
	Stage   string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a pipeline error with no stage tag.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithStage tags the error with a pipeline stage and returns it.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithDetails attaches structured diagnostics and returns the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// WithCause records the underlying error for %w-style unwrapping.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// AsPipelineError extracts an *Error from err, or wraps err as UNKNOWN_ERROR.
func AsPipelineError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return NewError(CodeUnknownError, err.Error()).WithCause(err)
}
