package model

// SemanticSearchRequest is the request body for POST /search/semantic.
type SemanticSearchRequest struct {
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
	IndexName string `json:"index_name"`
}

// ArticleResult is a single ranked search result.
type ArticleResult struct {
	ArticleID         string             `json:"article_id"`
	ArticleNumber     string             `json:"article_number"`
	ArticleText       string             `json:"article_text"`
	ArticlePath       string             `json:"article_path"`
	Score             float64            `json:"score"`
	NormativaTitle    string             `json:"normativa_title"`
	NormativaID       string             `json:"normativa_id"`
	FechaPublicacion  *string            `json:"fecha_publicacion"`
	FechaVigencia     *string            `json:"fecha_vigencia"`
	FechaCaducidad    *string            `json:"fecha_caducidad"`
	PreviousVersionID *string            `json:"previous_version_id"`
	NextVersionID     *string            `json:"next_version_id"`
	ContextPath       []ContextPathEntry `json:"context_path"`
	Metadata          map[string]any     `json:"metadata"`
}

// SemanticSearchResponse is the response body for POST /search/semantic.
type SemanticSearchResponse struct {
	Query           string          `json:"query"`
	Results         []ArticleResult `json:"results"`
	TotalResults    int             `json:"total_results"`
	StrategyUsed    string          `json:"strategy_used"`
	ExecutionTimeMs float64         `json:"execution_time_ms"`
}
