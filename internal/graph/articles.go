package graph

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/lexgraph/legal-assistant-api/internal/model"
)

// ArticleStore reads articles and runs vector searches against the graph.
type ArticleStore struct {
	client *Client
}

// NewArticleStore creates an article store on top of a connected client.
func NewArticleStore(client *Client) *ArticleStore {
	return &ArticleStore{client: client}
}

const articleByIDQuery = `
MATCH (a:Article {node_id: $node_id})
OPTIONAL MATCH (a)-[:BELONGS_TO*]->(s:Structure)
WITH a, collect({type: s.type, name: s.name}) AS context_path
OPTIONAL MATCH (prev:Article)-[:NEXT_VERSION]->(a)
OPTIONAL MATCH (a)-[:NEXT_VERSION]->(next:Article)
RETURN a.node_id AS node_id,
       a.article_number AS article_number,
       a.full_text AS article_text,
       a.article_path AS article_path,
       a.normativa_title AS normativa_title,
       a.normativa_id AS normativa_id,
       a.fecha_publicacion AS fecha_publicacion,
       a.fecha_vigencia AS fecha_vigencia,
       a.fecha_caducidad AS fecha_caducidad,
       prev.node_id AS previous_version_id,
       next.node_id AS next_version_id,
       context_path
`

// GetArticleByID returns the article for node_id, or (nil, nil) when no node
// with that id exists.
func (s *ArticleStore) GetArticleByID(ctx context.Context, nodeID int64) (*model.Article, error) {
	session := s.client.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, articleByIDQuery, map[string]any{"node_id": nodeID})
		if err != nil {
			return nil, err
		}
		return firstArticle(ctx, res)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(*model.Article), nil
}

const articleVersionsQuery = `
MATCH (a:Article {node_id: $node_id})
MATCH (v:Article)
WHERE v = a OR (a)-[:NEXT_VERSION*]->(v) OR (v)-[:NEXT_VERSION*]->(a)
RETURN v.node_id AS node_id,
       v.article_number AS article_number,
       v.full_text AS article_text,
       v.normativa_title AS normativa_title,
       v.fecha_vigencia AS validity_start,
       v.fecha_caducidad AS validity_end
ORDER BY coalesce(v.fecha_vigencia, '') ASC
`

// GetArticleVersions resolves the whole version chain from any node id in it.
// Returns an empty slice when the id matches no article.
func (s *ArticleStore) GetArticleVersions(ctx context.Context, nodeID int64) ([]model.ArticleVersion, error) {
	session := s.client.readSession(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, articleVersionsQuery, map[string]any{"node_id": nodeID})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		versions := make([]model.ArticleVersion, 0, len(records))
		for _, record := range records {
			m := record.AsMap()
			versions = append(versions, model.ArticleVersion{
				NodeID:         int64Value(m["node_id"]),
				ArticleNumber:  stringValue(m["article_number"]),
				ArticleText:    stringValue(m["article_text"]),
				NormativaTitle: stringValue(m["normativa_title"]),
				ValidityStart:  stringValue(m["validity_start"]),
				ValidityEnd:    stringValue(m["validity_end"]),
			})
		}
		return versions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.ArticleVersion), nil
}

const vectorSearchQuery = `
CALL db.index.vector.queryNodes($index_name, $top_k, $embedding)
YIELD node, score
OPTIONAL MATCH (node)-[:BELONGS_TO*]->(s:Structure)
WITH node, score, collect({type: s.type, name: s.name}) AS context_path
OPTIONAL MATCH (prev:Article)-[:NEXT_VERSION]->(node)
OPTIONAL MATCH (node)-[:NEXT_VERSION]->(next:Article)
RETURN node.node_id AS article_id,
       score,
       node.article_number AS article_number,
       node.full_text AS article_text,
       node.article_path AS article_path,
       node.normativa_title AS normativa_title,
       node.normativa_id AS normativa_id,
       node.fecha_publicacion AS fecha_publicacion,
       node.fecha_vigencia AS fecha_vigencia,
       node.fecha_caducidad AS fecha_caducidad,
       prev.node_id AS previous_version_id,
       next.node_id AS next_version_id,
       node.embedding IS NOT NULL AS has_embedding,
       context_path
ORDER BY score DESC
`

// VectorSearch queries the named vector index and returns hits in rank order.
// The article id is returned untyped; the service layer enforces that it is an
// integer.
func (s *ArticleStore) VectorSearch(ctx context.Context, embedding []float32, topK int, indexName string) ([]model.SearchHit, error) {
	session := s.client.readSession(ctx)
	defer session.Close(ctx)

	vector := make([]any, len(embedding))
	for i, v := range embedding {
		vector[i] = v
	}

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, vectorSearchQuery, map[string]any{
			"index_name": indexName,
			"top_k":      topK,
			"embedding":  vector,
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		hits := make([]model.SearchHit, 0, len(records))
		for _, record := range records {
			m := record.AsMap()
			hit := model.SearchHit{
				ArticleID: m["article_id"],
				Score:     floatValue(m["score"]),
			}
			hit.ArticleNumber = stringValue(m["article_number"])
			hit.ArticleText = stringValue(m["article_text"])
			hit.ArticlePath = stringValue(m["article_path"])
			hit.NormativaTitle = stringValue(m["normativa_title"])
			hit.NormativaID = stringValue(m["normativa_id"])
			hit.FechaPublicacion = stringValue(m["fecha_publicacion"])
			hit.FechaVigencia = stringValue(m["fecha_vigencia"])
			hit.FechaCaducidad = stringValue(m["fecha_caducidad"])
			hit.PreviousVersionID = int64Ptr(m["previous_version_id"])
			hit.NextVersionID = int64Ptr(m["next_version_id"])
			hit.HasEmbedding = boolValue(m["has_embedding"])
			hit.ContextPath = contextPathValue(m["context_path"])
			hits = append(hits, hit)
		}
		return hits, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]model.SearchHit), nil
}

// articleRows is the subset of the driver result needed to read one row.
type articleRows interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// firstArticle reads the first row if there is one. An empty result is
// (nil, nil); a failure while consuming the stream is an error, not a miss.
func firstArticle(ctx context.Context, res articleRows) (any, error) {
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return articleFromRecord(res.Record().AsMap()), nil
}

func articleFromRecord(m map[string]any) *model.Article {
	return &model.Article{
		NodeID:            int64Value(m["node_id"]),
		ArticleNumber:     stringValue(m["article_number"]),
		ArticleText:       stringValue(m["article_text"]),
		ArticlePath:       stringValue(m["article_path"]),
		NormativaTitle:    stringValue(m["normativa_title"]),
		NormativaID:       stringValue(m["normativa_id"]),
		FechaPublicacion:  stringValue(m["fecha_publicacion"]),
		FechaVigencia:     stringValue(m["fecha_vigencia"]),
		FechaCaducidad:    stringValue(m["fecha_caducidad"]),
		PreviousVersionID: int64Ptr(m["previous_version_id"]),
		NextVersionID:     int64Ptr(m["next_version_id"]),
		ContextPath:       contextPathValue(m["context_path"]),
	}
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func int64Value(v any) int64 {
	if i, ok := v.(int64); ok {
		return i
	}
	return 0
}

func int64Ptr(v any) *int64 {
	if i, ok := v.(int64); ok {
		return &i
	}
	return nil
}

func floatValue(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int64:
		return float64(t)
	}
	return 0
}

func boolValue(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}

// contextPathValue drops empty entries produced when an article has no
// structural ancestors (collect over an unmatched OPTIONAL MATCH).
func contextPathValue(v any) []model.ContextPathEntry {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	entries := make([]model.ContextPathEntry, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := model.ContextPathEntry{
			Type: stringValue(m["type"]),
			Name: stringValue(m["name"]),
		}
		if entry.Type == "" && entry.Name == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}
