package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lexgraph/legal-assistant-api/internal/apierr"
	"github.com/lexgraph/legal-assistant-api/internal/service"
	"github.com/lexgraph/legal-assistant-api/pkg/logger"
)

// ArticleHandler serves article detail and version-history lookups.
type ArticleHandler struct {
	articles *service.ArticleService
	logger   *logger.Logger
}

// NewArticleHandler creates an article handler.
func NewArticleHandler(articles *service.ArticleService, log *logger.Logger) *ArticleHandler {
	return &ArticleHandler{articles: articles, logger: log}
}

// GetArticle handles GET /article/{node_id}.
func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	nodeID, err := parseNodeID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp, err := h.articles.GetArticle(r.Context(), nodeID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetArticleVersions handles GET /article/{node_id}/versions.
func (h *ArticleHandler) GetArticleVersions(w http.ResponseWriter, r *http.Request) {
	nodeID, err := parseNodeID(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp, err := h.articles.GetArticleVersions(r.Context(), nodeID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseNodeID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "node_id")
	nodeID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apierr.Validation("node_id must be an integer")
	}
	return nodeID, nil
}
