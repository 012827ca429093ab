// Package service provides the business logic behind the API handlers.
package service

import (
	"strings"
	"unicode"

	"github.com/lexgraph/legal-assistant-api/internal/model"
)

// FormatDate converts an 8-digit YYYYMMDD date to ISO YYYY-MM-DD. Values of
// any other length pass through unchanged; empty stays empty.
func FormatDate(dateStr string) string {
	if len(dateStr) != 8 {
		return dateStr
	}
	return dateStr[:4] + "-" + dateStr[4:6] + "-" + dateStr[6:8]
}

// FormatContextPath renders a context path as a human-readable breadcrumb,
// e.g. "Título I, Capítulo Segundo". Structural ROOT and CONTENT nodes are
// dropped, the remaining entries are reversed to leaf-to-root order, and
// all-uppercase names are title-cased for readability.
func FormatContextPath(contextPath []model.ContextPathEntry) string {
	filtered := make([]model.ContextPathEntry, 0, len(contextPath))
	for _, entry := range contextPath {
		switch strings.ToUpper(entry.Type) {
		case "ROOT", "CONTENT":
			continue
		}
		filtered = append(filtered, entry)
	}
	if len(filtered) == 0 {
		return ""
	}

	parts := make([]string, 0, len(filtered))
	for i := len(filtered) - 1; i >= 0; i-- {
		entry := filtered[i]
		name := entry.Name
		if len(name) > 1 && name == strings.ToUpper(name) && strings.ContainsFunc(name, unicode.IsLetter) {
			name = titleCase(name)
		}
		parts = append(parts, capitalize(entry.Type)+" "+name)
	}
	return strings.Join(parts, ", ")
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// titleCase capitalizes each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// optional returns nil for an empty string so absent dates serialize as null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// optionalID formats a node id pointer as a string pointer.
func optionalID(id *int64) *string {
	if id == nil {
		return nil
	}
	s := formatInt(*id)
	return &s
}
