package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lexgraph/legal-assistant-api/internal/events"
	"github.com/lexgraph/legal-assistant-api/internal/model"
	"github.com/lexgraph/legal-assistant-api/internal/service"
)

func searchHandler(t *testing.T, retriever *fakeRetriever) *SearchHandler {
	t.Helper()
	log := handlerTestLogger(t)
	svc := service.NewSearchService(retriever, fakeEmbedder{}, events.NewPublisher(nil), log, "article_embeddings", 5*time.Second)
	return NewSearchHandler(svc, log)
}

func TestSemanticSearchEndpoint(t *testing.T) {
	retriever := &fakeRetriever{hits: []model.SearchHit{{
		ArticleID: int64(123),
		Score:     0.88,
		Article:   model.Article{ArticleNumber: "Artículo 14", NormativaTitle: "Constitución Española"},
	}}}
	h := searchHandler(t, retriever)

	rec := postJSON(t, h.SemanticSearch, `{"query":"igualdad","top_k":3}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp model.SemanticSearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalResults != 1 {
		t.Errorf("TotalResults = %d, want 1", resp.TotalResults)
	}
	if resp.Results[0].ArticleID != "123" {
		t.Errorf("ArticleID = %q, want \"123\"", resp.Results[0].ArticleID)
	}
	if resp.Query != "igualdad" {
		t.Errorf("Query = %q", resp.Query)
	}
}

func TestSemanticSearchEndpointValidation(t *testing.T) {
	h := searchHandler(t, &fakeRetriever{})

	tests := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":""}`},
		{"whitespace query", `{"query":"   "}`},
		{"top_k too large", `{"query":"q","top_k":500}`},
		{"malformed json", `{"query":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, h.SemanticSearch, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			body := decodeError(t, rec)
			if body.Error != "ValidationError" {
				t.Errorf("error = %q, want ValidationError", body.Error)
			}
		})
	}
}

func TestSemanticSearchEndpointIntegrityFailure(t *testing.T) {
	h := searchHandler(t, &fakeRetriever{hits: []model.SearchHit{{ArticleID: "not-an-int", Score: 0.4}}})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"q"}`))
	rec := httptest.NewRecorder()
	h.SemanticSearch(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error != "DatabaseError" {
		t.Errorf("error = %q, want DatabaseError", body.Error)
	}
}
