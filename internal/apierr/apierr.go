// Package apierr defines the API error taxonomy shared by services and handlers.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries an HTTP status, a machine-readable code, and an optional cause.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given status and code.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Wrap creates an Error carrying an underlying cause. The cause text is exposed
// under details.exception, matching the error body contract.
func Wrap(status int, code, message string, err error) *Error {
	e := &Error{Status: status, Code: code, Message: message, Err: err}
	if err != nil {
		e.Details = map[string]any{"exception": err.Error()}
	}
	return e
}

// Validation returns a 400 ValidationError.
func Validation(message string) *Error {
	return New(http.StatusBadRequest, "ValidationError", message)
}

// Unauthorized returns a 401 Unauthorized.
func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, "Unauthorized", message)
}

// InsufficientTokens returns a 402 for an exhausted balance.
func InsufficientTokens() *Error {
	return New(http.StatusPaymentRequired, "InsufficientTokens",
		"You have no remaining API tokens. Please contact an administrator.")
}

// ArticleNotFound returns a 404 for a missing article node.
func ArticleNotFound(nodeID int64) *Error {
	return New(http.StatusNotFound, "ArticleNotFound",
		fmt.Sprintf("Article with node_id '%d' not found", nodeID))
}

// ConversationNotFound returns a 404 for a missing or not-owned conversation.
// Ownership failures use the same error so existence is never leaked.
func ConversationNotFound(id string) *Error {
	return New(http.StatusNotFound, "ConversationNotFound",
		fmt.Sprintf("Conversation '%s' not found", id))
}

// Embedding returns a 500 for an embedding provider failure.
func Embedding(err error) *Error {
	return Wrap(http.StatusInternalServerError, "EmbeddingGenerationError",
		"Failed to generate query embedding", err)
}

// Database returns a 500 for a retrieval backend failure.
func Database(err error) *Error {
	return Wrap(http.StatusInternalServerError, "DatabaseError",
		"Failed to search vector database", err)
}

// ChatProcessing returns a 500 for an orchestrator failure.
func ChatProcessing(err error) *Error {
	return Wrap(http.StatusInternalServerError, "ChatProcessingError",
		"Failed to process chat message", err)
}

// Internal returns a generic 500.
func Internal(err error) *Error {
	return Wrap(http.StatusInternalServerError, "InternalServerError",
		"An unexpected error occurred", err)
}

// From extracts an *Error from err, falling back to Internal.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}
