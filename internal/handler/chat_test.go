package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lexgraph/legal-assistant-api/internal/events"
	"github.com/lexgraph/legal-assistant-api/internal/llm"
	"github.com/lexgraph/legal-assistant-api/internal/middleware"
	"github.com/lexgraph/legal-assistant-api/internal/model"
	"github.com/lexgraph/legal-assistant-api/internal/service"
	"github.com/lexgraph/legal-assistant-api/internal/store"
)

type fakeRetriever struct {
	article  *model.Article
	versions []model.ArticleVersion
	hits     []model.SearchHit
	searches int
}

func (f *fakeRetriever) GetArticleByID(ctx context.Context, nodeID int64) (*model.Article, error) {
	return f.article, nil
}

func (f *fakeRetriever) GetArticleVersions(ctx context.Context, nodeID int64) ([]model.ArticleVersion, error) {
	return f.versions, nil
}

func (f *fakeRetriever) VectorSearch(ctx context.Context, embedding []float32, topK int, indexName string) ([]model.SearchHit, error) {
	f.searches++
	return f.hits, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1}, nil
}

func (fakeEmbedder) Name() string { return "fake" }

type fakeLLM struct{}

func (fakeLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: "respuesta [1]", Model: "test-model"}, nil
}

func (fakeLLM) Name() string     { return "fake" }
func (fakeLLM) Models() []string { return nil }

type fakeConversationRepo struct {
	convs map[string]*model.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{convs: map[string]*model.Conversation{}}
}

func (r *fakeConversationRepo) add(userID string) *model.Conversation {
	conv := &model.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	r.convs[conv.ID] = conv
	return conv
}

func (r *fakeConversationRepo) Create(ctx context.Context, userID string) (*model.Conversation, error) {
	return r.add(userID), nil
}

func (r *fakeConversationRepo) Get(ctx context.Context, id, userID string) (*model.Conversation, error) {
	conv, ok := r.convs[id]
	if !ok || conv.UserID != userID {
		return nil, store.ErrConversationNotFound
	}
	return conv, nil
}

func (r *fakeConversationRepo) Owner(ctx context.Context, id string) (string, error) {
	conv, ok := r.convs[id]
	if !ok {
		return "", store.ErrConversationNotFound
	}
	return conv.UserID, nil
}

func (r *fakeConversationRepo) List(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	summaries := []model.ConversationSummary{}
	for _, c := range r.convs {
		if c.UserID == userID {
			summaries = append(summaries, model.ConversationSummary{ID: c.ID, MessageCount: len(c.Messages)})
		}
	}
	return summaries, nil
}

func (r *fakeConversationRepo) AppendMessages(ctx context.Context, id string, messages []model.Message) error {
	conv, ok := r.convs[id]
	if !ok {
		return store.ErrConversationNotFound
	}
	conv.Messages = append(conv.Messages, messages...)
	return nil
}

func (r *fakeConversationRepo) Delete(ctx context.Context, id, userID string) error {
	if _, err := r.Get(ctx, id, userID); err != nil {
		return err
	}
	delete(r.convs, id)
	return nil
}

func (r *fakeConversationRepo) Clear(ctx context.Context, id, userID string) error {
	conv, err := r.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	conv.Messages = nil
	return nil
}

type chatFixture struct {
	handler   *ChatHandler
	users     *stubUserRepo
	convs     *fakeConversationRepo
	retriever *fakeRetriever
}

func newChatFixture(t *testing.T, requireAuth bool) *chatFixture {
	t.Helper()
	log := handlerTestLogger(t)
	users := newStubUserRepo()
	convs := newFakeConversationRepo()
	retriever := &fakeRetriever{hits: []model.SearchHit{{
		ArticleID: int64(101),
		Score:     0.9,
		Article:   model.Article{ArticleNumber: "Artículo 14", NormativaTitle: "Constitución Española"},
	}}}

	chatSvc := service.NewChatService(retriever, fakeEmbedder{}, fakeLLM{}, convs, log, "test-model", "article_embeddings", 5*time.Second)
	return &chatFixture{
		handler:   NewChatHandler(chatSvc, convs, users, events.NewPublisher(nil), log, requireAuth),
		users:     users,
		convs:     convs,
		retriever: retriever,
	}
}

func authedRequest(method, target, body, userID string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if userID != "" {
		ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
		req = req.WithContext(ctx)
	}
	return req
}

func TestChatDeductsOneTokenOnSuccess(t *testing.T) {
	fx := newChatFixture(t, true)
	fx.users.addUser(t, "u1", "letrado", "secreto123", true, 5)

	rec := httptest.NewRecorder()
	fx.handler.Chat(rec, authedRequest(http.MethodPost, "/chat", `{"message":"hola"}`, "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp model.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ConversationID == "" || resp.Response == "" {
		t.Errorf("incomplete response: %+v", resp)
	}
	if len(fx.users.consumed) != 1 || fx.users.consumed[0] != 1 {
		t.Errorf("consumed = %v, want exactly one deduction of 1", fx.users.consumed)
	}
}

func TestChatRejectsExhaustedBalanceBeforeWork(t *testing.T) {
	fx := newChatFixture(t, true)
	fx.users.addUser(t, "u1", "letrado", "secreto123", true, 0)

	rec := httptest.NewRecorder()
	fx.handler.Chat(rec, authedRequest(http.MethodPost, "/chat", `{"message":"hola"}`, "u1"))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error != "InsufficientTokens" {
		t.Errorf("error = %q, want InsufficientTokens", body.Error)
	}
	if body.Message != "You have no remaining API tokens. Please contact an administrator." {
		t.Errorf("unexpected message %q", body.Message)
	}
	if fx.retriever.searches != 0 {
		t.Error("retrieval ran despite exhausted balance")
	}
	if len(fx.users.consumed) != 0 {
		t.Errorf("consumed = %v, want no deduction", fx.users.consumed)
	}
}

func TestChatForeignConversationLooksMissing(t *testing.T) {
	fx := newChatFixture(t, true)
	fx.users.addUser(t, "u1", "letrado", "secreto123", true, 5)
	other := fx.convs.add("u2")

	rec := httptest.NewRecorder()
	fx.handler.Chat(rec, authedRequest(http.MethodPost, "/chat", `{"message":"hola","conversation_id":"`+other.ID+`"}`, "u1"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error != "ConversationNotFound" {
		t.Errorf("error = %q, want ConversationNotFound", body.Error)
	}
	if fx.retriever.searches != 0 {
		t.Error("retrieval ran for a foreign conversation")
	}

	// A nonexistent id must be indistinguishable from a foreign one.
	rec = httptest.NewRecorder()
	fx.handler.Chat(rec, authedRequest(http.MethodPost, "/chat", `{"message":"hola","conversation_id":"missing"}`, "u1"))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "ConversationNotFound" {
		t.Errorf("error = %q, want ConversationNotFound", body.Error)
	}
}

func TestChatFailureCostsNothing(t *testing.T) {
	fx := newChatFixture(t, true)
	fx.users.addUser(t, "u1", "letrado", "secreto123", true, 5)
	// Non-integer article ids are a store integrity failure inside the
	// orchestrator, after the balance check.
	fx.retriever.hits = []model.SearchHit{{ArticleID: "bad", Score: 0.5}}

	rec := httptest.NewRecorder()
	fx.handler.Chat(rec, authedRequest(http.MethodPost, "/chat", `{"message":"hola"}`, "u1"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if len(fx.users.consumed) != 0 {
		t.Errorf("consumed = %v, failed turns must cost nothing", fx.users.consumed)
	}
}

func TestChatUnauthenticatedMode(t *testing.T) {
	fx := newChatFixture(t, false)

	rec := httptest.NewRecorder()
	fx.handler.Chat(rec, authedRequest(http.MethodPost, "/chat", `{"message":"hola"}`, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(fx.users.consumed) != 0 {
		t.Error("tokens metered in unauthenticated mode")
	}
}

func TestChatEmptyMessage(t *testing.T) {
	fx := newChatFixture(t, true)
	fx.users.addUser(t, "u1", "letrado", "secreto123", true, 5)

	rec := httptest.NewRecorder()
	fx.handler.Chat(rec, authedRequest(http.MethodPost, "/chat", `{"message":"   "}`, "u1"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	body := decodeError(t, rec)
	if body.Error != "ValidationError" {
		t.Errorf("error = %q, want ValidationError", body.Error)
	}
}

func chatRouter(fx *chatFixture) chi.Router {
	r := chi.NewRouter()
	r.Get("/chat/{conversation_id}", fx.handler.GetConversation)
	r.Delete("/chat/{conversation_id}", fx.handler.DeleteConversation)
	r.Post("/chat/{conversation_id}/clear", fx.handler.ClearConversation)
	r.Get("/conversations", fx.handler.ListConversations)
	return r
}

func TestGetConversation(t *testing.T) {
	fx := newChatFixture(t, true)
	conv := fx.convs.add("u1")
	now := time.Now().UTC()
	conv.Messages = []model.Message{
		{Role: model.RoleUser, Content: "hola", Timestamp: now},
		{Role: model.RoleAssistant, Content: "respuesta [1]", Citations: []model.Citation{{Index: 1, ArticleID: "101"}}, Timestamp: now},
	}

	rec := httptest.NewRecorder()
	chatRouter(fx).ServeHTTP(rec, authedRequest(http.MethodGet, "/chat/"+conv.ID, "", "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp model.ConversationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != conv.ID || len(resp.Messages) != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.Messages[0].Citations) != 0 {
		t.Error("user message should serialize empty citations")
	}
	if len(resp.Messages[1].Citations) != 1 {
		t.Error("assistant citations lost")
	}
}

func TestConversationOwnershipIsInvisible(t *testing.T) {
	fx := newChatFixture(t, true)
	foreign := fx.convs.add("u2")

	requests := []*http.Request{
		authedRequest(http.MethodGet, "/chat/"+foreign.ID, "", "u1"),
		authedRequest(http.MethodDelete, "/chat/"+foreign.ID, "", "u1"),
		authedRequest(http.MethodPost, "/chat/"+foreign.ID+"/clear", "", "u1"),
		authedRequest(http.MethodGet, "/chat/missing-id", "", "u1"),
	}
	router := chatRouter(fx)
	for _, req := range requests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", req.Method, req.URL.Path, rec.Code)
		}
		body := decodeError(t, rec)
		if body.Error != "ConversationNotFound" {
			t.Errorf("%s %s: error = %q, want ConversationNotFound", req.Method, req.URL.Path, body.Error)
		}
	}
}

func TestClearConversationKeepsID(t *testing.T) {
	fx := newChatFixture(t, true)
	conv := fx.convs.add("u1")
	conv.Messages = []model.Message{{Role: model.RoleUser, Content: "hola", Timestamp: time.Now()}}

	rec := httptest.NewRecorder()
	chatRouter(fx).ServeHTTP(rec, authedRequest(http.MethodPost, "/chat/"+conv.ID+"/clear", "", "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp model.DeleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}

	kept, err := fx.convs.Get(context.Background(), conv.ID, "u1")
	if err != nil {
		t.Fatalf("conversation vanished after clear: %v", err)
	}
	if len(kept.Messages) != 0 {
		t.Errorf("messages remain after clear: %d", len(kept.Messages))
	}
}

func TestDeleteConversation(t *testing.T) {
	fx := newChatFixture(t, true)
	conv := fx.convs.add("u1")

	rec := httptest.NewRecorder()
	chatRouter(fx).ServeHTTP(rec, authedRequest(http.MethodDelete, "/chat/"+conv.ID, "", "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if _, err := fx.convs.Get(context.Background(), conv.ID, "u1"); err == nil {
		t.Error("conversation still readable after delete")
	}
}

func TestListConversations(t *testing.T) {
	fx := newChatFixture(t, true)
	fx.convs.add("u1")
	fx.convs.add("u1")
	fx.convs.add("u2")

	rec := httptest.NewRecorder()
	chatRouter(fx).ServeHTTP(rec, authedRequest(http.MethodGet, "/conversations", "", "u1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp model.ConversationListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || len(resp.Conversations) != 2 {
		t.Errorf("Total = %d, want 2", resp.Total)
	}
}
