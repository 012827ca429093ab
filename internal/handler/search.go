package handler

import (
	"net/http"

	"github.com/lexgraph/legal-assistant-api/internal/middleware"
	"github.com/lexgraph/legal-assistant-api/internal/model"
	"github.com/lexgraph/legal-assistant-api/internal/service"
	"github.com/lexgraph/legal-assistant-api/pkg/logger"
)

// SearchHandler serves semantic search over the article index.
type SearchHandler struct {
	search *service.SearchService
	logger *logger.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(search *service.SearchService, log *logger.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: log}
}

// SemanticSearch handles POST /search/semantic.
func (h *SearchHandler) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	var req model.SemanticSearchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp, err := h.search.Search(r.Context(), &req, middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
