// Package dto defines the request and response shapes of the HTTP API.
package dto

import "errors"

// Validation errors
var (
	ErrEmptyText      = errors.New("text cannot be empty")
	ErrEmptySourceRef = errors.New("source_ref cannot be empty")
	ErrEmptyQuery     = errors.New("query cannot be empty")
	ErrEmptyDocuments = errors.New("documents cannot be empty")
	ErrTextTooLong    = errors.New("text exceeds maximum length (1MB)")
	ErrTooManyDocs    = errors.New("documents count exceeds maximum (1000)")
	ErrQualityRange   = errors.New("quality must be between 0 and 1")
)

// Maximum field sizes, to prevent abuse.
const (
	MaxTextLength     = 1024 * 1024 // 1MB
	MaxDocumentsCount = 1000
	MaxResultsCap     = 100
)

// ErrorResponse is the error envelope every failing request returns.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
