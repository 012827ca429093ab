package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/lexgraph/legal-assistant-api/internal/apierr"
	"github.com/lexgraph/legal-assistant-api/internal/embedding"
	"github.com/lexgraph/legal-assistant-api/internal/events"
	"github.com/lexgraph/legal-assistant-api/internal/middleware"
	"github.com/lexgraph/legal-assistant-api/internal/model"
	"github.com/lexgraph/legal-assistant-api/pkg/logger"
	"github.com/lexgraph/legal-assistant-api/pkg/metrics"
)

const (
	defaultSearchTopK = 10
	maxSearchTopK     = 100
)

// SearchService runs semantic searches over the article corpus.
type SearchService struct {
	retriever    ArticleRetriever
	embedder     embedding.Provider
	publisher    *events.Publisher
	logger       *logger.Logger
	defaultIndex string
	callTimeout  time.Duration
}

// NewSearchService creates a search service.
func NewSearchService(
	retriever ArticleRetriever,
	embedder embedding.Provider,
	publisher *events.Publisher,
	log *logger.Logger,
	defaultIndex string,
	callTimeout time.Duration,
) *SearchService {
	return &SearchService{
		retriever:    retriever,
		embedder:     embedder,
		publisher:    publisher,
		logger:       log,
		defaultIndex: defaultIndex,
		callTimeout:  callTimeout,
	}
}

// Search embeds the query, runs a vector search, and shapes the results.
// Results keep the rank order produced by the index.
func (s *SearchService) Search(ctx context.Context, req *model.SemanticSearchRequest, userID string) (*model.SemanticSearchResponse, error) {
	start := time.Now()

	if err := middleware.ValidateQuery(req.Query); err != nil {
		return nil, apierr.Validation(err.Error())
	}
	topK := req.TopK
	if topK == 0 {
		topK = defaultSearchTopK
	}
	if err := middleware.ValidateTopK(topK, 1, maxSearchTopK); err != nil {
		return nil, apierr.Validation(fmt.Sprintf("top_k must be between 1 and %d", maxSearchTopK))
	}
	indexName := req.IndexName
	if indexName == "" {
		indexName = s.defaultIndex
	}

	s.logger.Info("semantic search",
		zap.String("query", truncateForLog(req.Query)),
		zap.Int("top_k", topK),
		zap.String("index", indexName),
	)

	embedStart := time.Now()
	embedCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	vector, err := s.embedder.Embed(embedCtx, req.Query)
	cancel()
	if err != nil {
		metrics.RecordEmbedding(s.embedder.Name(), "error", time.Since(embedStart).Seconds())
		s.logger.Error("failed to generate embedding", zap.Error(err))
		return nil, apierr.Embedding(err)
	}
	metrics.RecordEmbedding(s.embedder.Name(), "success", time.Since(embedStart).Seconds())

	searchCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	hits, err := s.retriever.VectorSearch(searchCtx, vector, topK, indexName)
	cancel()
	if err != nil {
		metrics.RecordSearch(indexName, "error", time.Since(start).Seconds())
		s.logger.Error("vector search failed", zap.Error(err))
		return nil, apierr.Database(err)
	}

	results := make([]model.ArticleResult, 0, len(hits))
	for _, hit := range hits {
		result, err := s.mapHit(hit, req.Query)
		if err != nil {
			metrics.RecordSearch(indexName, "error", time.Since(start).Seconds())
			return nil, err
		}
		results = append(results, result)
	}

	elapsed := time.Since(start)
	metrics.RecordSearch(indexName, "success", elapsed.Seconds())

	if err := s.publisher.PublishSearch(ctx, events.SearchUsage{
		UserID:          userID,
		IndexName:       indexName,
		TopK:            topK,
		Results:         len(results),
		ExecutionTimeMs: float64(elapsed.Milliseconds()),
		Timestamp:       time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("failed to publish search usage event", zap.Error(err))
	}

	return &model.SemanticSearchResponse{
		Query:           req.Query,
		Results:         results,
		TotalResults:    len(results),
		StrategyUsed:    "Vector Search",
		ExecutionTimeMs: float64(elapsed.Microseconds()) / 1000.0,
	}, nil
}

// mapHit shapes one raw hit into the response contract. Article ids must come
// back from the graph as integers; anything else is a store integrity failure.
func (s *SearchService) mapHit(hit model.SearchHit, query string) (model.ArticleResult, error) {
	articleID, ok := hit.ArticleID.(int64)
	if !ok {
		err := fmt.Errorf("article_id must be int, got %T: %v", hit.ArticleID, hit.ArticleID)
		s.logger.Error("article id type mismatch", zap.Error(err))
		return model.ArticleResult{}, apierr.Database(err)
	}

	// article_path is authoritative; the formatted context path is a fallback.
	contextText := hit.ArticlePath
	if contextText == "" {
		contextText = FormatContextPath(hit.ContextPath)
	}

	return model.ArticleResult{
		ArticleID:         formatInt(articleID),
		ArticleNumber:     hit.ArticleNumber,
		ArticleText:       hit.ArticleText,
		ArticlePath:       hit.ArticlePath,
		Score:             hit.Score,
		NormativaTitle:    hit.NormativaTitle,
		NormativaID:       hit.NormativaID,
		FechaPublicacion:  optional(FormatDate(hit.FechaPublicacion)),
		FechaVigencia:     optional(FormatDate(hit.FechaVigencia)),
		FechaCaducidad:    optional(FormatDate(hit.FechaCaducidad)),
		PreviousVersionID: optionalID(hit.PreviousVersionID),
		NextVersionID:     optionalID(hit.NextVersionID),
		ContextPath:       hit.ContextPath,
		Metadata: map[string]any{
			"has_embedding":     hit.HasEmbedding,
			"query":             query,
			"context_path_text": contextText,
		},
	}, nil
}

func truncateForLog(s string) string {
	if len(s) <= 50 {
		return s
	}
	n := 50
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
