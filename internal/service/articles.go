package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/lexgraph/legal-assistant-api/internal/apierr"
	"github.com/lexgraph/legal-assistant-api/internal/model"
	"github.com/lexgraph/legal-assistant-api/pkg/logger"
)

// ArticleRetriever is the graph store surface the services consume.
type ArticleRetriever interface {
	GetArticleByID(ctx context.Context, nodeID int64) (*model.Article, error)
	GetArticleVersions(ctx context.Context, nodeID int64) ([]model.ArticleVersion, error)
	VectorSearch(ctx context.Context, embedding []float32, topK int, indexName string) ([]model.SearchHit, error)
}

// ArticleService serves single-article retrieval and version history.
type ArticleService struct {
	retriever ArticleRetriever
	logger    *logger.Logger
}

// NewArticleService creates an article service.
func NewArticleService(retriever ArticleRetriever, log *logger.Logger) *ArticleService {
	return &ArticleService{retriever: retriever, logger: log}
}

// GetArticle retrieves a single article by node id with formatted dates.
func (s *ArticleService) GetArticle(ctx context.Context, nodeID int64) (*model.ArticleDetailResponse, error) {
	s.logger.Info("getting article", zap.Int64("node_id", nodeID))

	article, err := s.retriever.GetArticleByID(ctx, nodeID)
	if err != nil {
		return nil, apierr.Database(err)
	}
	if article == nil {
		return nil, apierr.ArticleNotFound(nodeID)
	}

	return &model.ArticleDetailResponse{
		NodeID:            formatInt(article.NodeID),
		ArticleNumber:     article.ArticleNumber,
		ArticleText:       article.ArticleText,
		ArticlePath:       article.ArticlePath,
		NormativaTitle:    article.NormativaTitle,
		NormativaID:       article.NormativaID,
		FechaPublicacion:  optional(FormatDate(article.FechaPublicacion)),
		FechaVigencia:     optional(FormatDate(article.FechaVigencia)),
		FechaCaducidad:    optional(FormatDate(article.FechaCaducidad)),
		PreviousVersionID: optionalID(article.PreviousVersionID),
		NextVersionID:     optionalID(article.NextVersionID),
		ContextPath:       article.ContextPath,
	}, nil
}

// GetArticleVersions retrieves every version in the article's chain. The
// current version is the one without a validity-end date; the data is not
// trusted to hold exactly one such version, each entry is tagged on its own.
func (s *ArticleService) GetArticleVersions(ctx context.Context, nodeID int64) (*model.ArticleVersionsResponse, error) {
	s.logger.Info("getting article versions", zap.Int64("node_id", nodeID))

	versions, err := s.retriever.GetArticleVersions(ctx, nodeID)
	if err != nil {
		return nil, apierr.Database(err)
	}
	if len(versions) == 0 {
		return nil, apierr.ArticleNotFound(nodeID)
	}

	infos := make([]model.ArticleVersionInfo, 0, len(versions))
	for _, v := range versions {
		infos = append(infos, model.ArticleVersionInfo{
			NodeID:           formatInt(v.NodeID),
			ArticleNumber:    v.ArticleNumber,
			FechaVigencia:    optional(FormatDate(v.ValidityStart)),
			FechaCaducidad:   optional(FormatDate(v.ValidityEnd)),
			IsCurrentVersion: v.ValidityEnd == "",
			ArticleText:      v.ArticleText,
		})
	}

	return &model.ArticleVersionsResponse{
		ArticleNumber:  versions[0].ArticleNumber,
		NormativaTitle: versions[0].NormativaTitle,
		Versions:       infos,
		TotalVersions:  len(infos),
	}, nil
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
