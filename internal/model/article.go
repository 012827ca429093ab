// Package model defines data structures for the legal assistant API.
package model

// ContextPathEntry is one structural breadcrumb from document root to article.
type ContextPathEntry struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// Article is an article node as returned by the graph store. Date fields keep
// the raw YYYYMMDD representation; formatting happens at the API boundary.
type Article struct {
	NodeID            int64
	ArticleNumber     string
	ArticleText       string
	ArticlePath       string
	NormativaTitle    string
	NormativaID       string
	FechaPublicacion  string
	FechaVigencia     string
	FechaCaducidad    string
	PreviousVersionID *int64
	NextVersionID     *int64
	ContextPath       []ContextPathEntry
	HasEmbedding      bool
}

// ArticleVersion is one entry of an article's version chain.
type ArticleVersion struct {
	NodeID         int64
	ArticleNumber  string
	ArticleText    string
	NormativaTitle string
	ValidityStart  string
	// ValidityEnd is empty for the current version.
	ValidityEnd string
}

// SearchHit is a raw vector search result from the graph store. ArticleID is
// kept untyped so the service layer can enforce the integer-id invariant.
type SearchHit struct {
	ArticleID any
	Score     float64
	Article
}

// ArticleDetailResponse is the response for single article retrieval.
type ArticleDetailResponse struct {
	NodeID            string             `json:"node_id"`
	ArticleNumber     string             `json:"article_number"`
	ArticleText       string             `json:"article_text"`
	ArticlePath       string             `json:"article_path"`
	NormativaTitle    string             `json:"normativa_title"`
	NormativaID       string             `json:"normativa_id"`
	FechaPublicacion  *string            `json:"fecha_publicacion"`
	FechaVigencia     *string            `json:"fecha_vigencia"`
	FechaCaducidad    *string            `json:"fecha_caducidad"`
	PreviousVersionID *string            `json:"previous_version_id"`
	NextVersionID     *string            `json:"next_version_id"`
	ContextPath       []ContextPathEntry `json:"context_path"`
}

// ArticleVersionInfo describes a single version in the versions response.
type ArticleVersionInfo struct {
	NodeID           string  `json:"node_id"`
	ArticleNumber    string  `json:"article_number"`
	FechaVigencia    *string `json:"fecha_vigencia"`
	FechaCaducidad   *string `json:"fecha_caducidad"`
	IsCurrentVersion bool    `json:"is_current_version"`
	ArticleText      string  `json:"article_text"`
}

// ArticleVersionsResponse carries every version of an article.
type ArticleVersionsResponse struct {
	ArticleNumber  string               `json:"article_number"`
	NormativaTitle string               `json:"normativa_title"`
	Versions       []ArticleVersionInfo `json:"versions"`
	TotalVersions  int                  `json:"total_versions"`
}
