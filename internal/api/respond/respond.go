// Package respond writes the service's uniform JSON envelopes.
// Success: {"success": true, "data": ...}
// Error:   {"error": {"message": ..., "code": ..., "details": ...}}
package respond

import (
	"encoding/json"
	"net/http"
)

// Error codes owned by the HTTP boundary. Pipeline codes pass through as-is.
const (
	CodeAuthRequired        = "AUTH_REQUIRED"
	CodeNoFile              = "NO_FILE"
	CodeInvalidFilename     = "INVALID_FILENAME"
	CodeFormParseError      = "FORM_PARSE_ERROR"
	CodeFileReadError       = "FILE_READ_ERROR"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeInvalidStatusFilter = "INVALID_STATUS_FILTER"
	CodeInvalidFileID       = "INVALID_FILE_ID"
	CodeFileNotFound        = "FILE_NOT_FOUND"
	CodeDatabaseError       = "DATABASE_ERROR"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeInvalidBody         = "INVALID_BODY"
	CodeUserExists          = "USER_EXISTS"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
)

type successBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// Success writes a 2xx envelope.
func Success(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(successBody{Success: true, Data: data})
}

// Error writes an error envelope.
func Error(w http.ResponseWriter, statusCode int, code, message string) {
	ErrorWithDetails(w, statusCode, code, message, nil)
}

// ErrorWithDetails writes an error envelope carrying structured diagnostics.
func ErrorWithDetails(w http.ResponseWriter, statusCode int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Message: message, Code: code, Details: details},
	})
}
