package middleware

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ValidateQuery validates a semantic search query.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return errors.New("query cannot be empty or only whitespace")
	}
	if !utf8.ValidString(query) {
		return errors.New("query must be valid UTF-8")
	}
	return nil
}

// ValidateTopK validates a top_k value against an inclusive range.
func ValidateTopK(topK, min, max int) error {
	if topK < min || topK > max {
		return errors.New("top_k out of range")
	}
	return nil
}

// ValidateChatMessage validates a chat message body.
func ValidateChatMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("message cannot be empty")
	}
	if len(content) > 100000 {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateCredentials validates login request fields.
func ValidateCredentials(username, password string) error {
	if len(username) < 3 || len(username) > 50 {
		return errors.New("username must be between 3 and 50 characters")
	}
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	return nil
}
