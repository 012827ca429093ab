package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lexgraph/legal-assistant-api/internal/apierr"
	"github.com/lexgraph/legal-assistant-api/internal/llm"
	"github.com/lexgraph/legal-assistant-api/internal/model"
	"github.com/lexgraph/legal-assistant-api/internal/store"
)

type stubLLM struct {
	response string
	err      error
	lastReq  *llm.CompletionRequest
}

func (s *stubLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.response, Model: "test-model"}, nil
}

func (s *stubLLM) Name() string     { return "stub" }
func (s *stubLLM) Models() []string { return []string{"test-model"} }

type memConversationRepo struct {
	convs map[string]*model.Conversation
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{convs: map[string]*model.Conversation{}}
}

func (r *memConversationRepo) Create(ctx context.Context, userID string) (*model.Conversation, error) {
	conv := &model.Conversation{ID: uuid.New().String(), UserID: userID}
	r.convs[conv.ID] = conv
	return conv, nil
}

func (r *memConversationRepo) Get(ctx context.Context, id, userID string) (*model.Conversation, error) {
	conv, ok := r.convs[id]
	if !ok || conv.UserID != userID {
		return nil, store.ErrConversationNotFound
	}
	return conv, nil
}

func (r *memConversationRepo) Owner(ctx context.Context, id string) (string, error) {
	conv, ok := r.convs[id]
	if !ok {
		return "", store.ErrConversationNotFound
	}
	return conv.UserID, nil
}

func (r *memConversationRepo) List(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	var out []model.ConversationSummary
	for _, c := range r.convs {
		if c.UserID == userID {
			out = append(out, model.ConversationSummary{ID: c.ID, MessageCount: len(c.Messages)})
		}
	}
	return out, nil
}

func (r *memConversationRepo) AppendMessages(ctx context.Context, id string, messages []model.Message) error {
	conv, ok := r.convs[id]
	if !ok {
		return store.ErrConversationNotFound
	}
	conv.Messages = append(conv.Messages, messages...)
	return nil
}

func (r *memConversationRepo) Delete(ctx context.Context, id, userID string) error {
	if _, err := r.Get(ctx, id, userID); err != nil {
		return err
	}
	delete(r.convs, id)
	return nil
}

func (r *memConversationRepo) Clear(ctx context.Context, id, userID string) error {
	conv, err := r.Get(ctx, id, userID)
	if err != nil {
		return err
	}
	conv.Messages = nil
	return nil
}

func newChatService(t *testing.T, retriever *stubRetriever, llmClient llm.Client, repo store.ConversationRepo) *ChatService {
	t.Helper()
	return NewChatService(retriever, &stubEmbedder{vec: []float32{0.1}}, llmClient, repo, testLogger(t), "test-model", "article_embeddings", 5*time.Second)
}

func chatHits() []model.SearchHit {
	return []model.SearchHit{
		{
			ArticleID: int64(101),
			Score:     0.91,
			Article: model.Article{
				ArticleNumber:  "Artículo 14",
				ArticleText:    "Los españoles son iguales ante la ley.",
				ArticlePath:    "Título I, Capítulo Segundo",
				NormativaTitle: "Constitución Española",
			},
		},
		{
			ArticleID: int64(202),
			Score:     0.85,
			Article: model.Article{
				ArticleNumber:  "Artículo 9",
				ArticleText:    "Los ciudadanos están sujetos a la Constitución.",
				NormativaTitle: "Constitución Española",
			},
		},
	}
}

func TestChatAnswer(t *testing.T) {
	repo := newMemConversationRepo()
	llmClient := &stubLLM{response: "Según el principio de igualdad [1]."}
	svc := newChatService(t, &stubRetriever{hits: chatHits()}, llmClient, repo)

	result, err := svc.Answer(context.Background(), "¿Qué dice sobre igualdad?", "", 0, "u1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if result.Response != "Según el principio de igualdad [1]." {
		t.Errorf("Response = %q", result.Response)
	}
	if result.ConversationID == "" {
		t.Fatal("expected a conversation id for an implicit conversation")
	}
	if len(result.Citations) != 2 {
		t.Fatalf("citations = %d, want 2", len(result.Citations))
	}
	if result.Citations[0].Index != 1 || result.Citations[1].Index != 2 {
		t.Errorf("citation indexes = %d, %d, want 1, 2", result.Citations[0].Index, result.Citations[1].Index)
	}
	if result.Citations[0].ArticleID != "101" {
		t.Errorf("citation article id = %q, want \"101\"", result.Citations[0].ArticleID)
	}

	conv, err := repo.Get(context.Background(), result.ConversationID, "u1")
	if err != nil {
		t.Fatalf("conversation not persisted: %v", err)
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("persisted messages = %d, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Role != model.RoleUser || conv.Messages[1].Role != model.RoleAssistant {
		t.Errorf("roles = %s, %s", conv.Messages[0].Role, conv.Messages[1].Role)
	}
	if len(conv.Messages[1].Citations) != 2 {
		t.Errorf("assistant message citations = %d, want 2", len(conv.Messages[1].Citations))
	}
	if len(conv.Messages[0].Citations) != 0 {
		t.Errorf("user message should carry no citations")
	}
}

func TestChatPromptCarriesSources(t *testing.T) {
	llmClient := &stubLLM{response: "ok"}
	svc := newChatService(t, &stubRetriever{hits: chatHits()}, llmClient, newMemConversationRepo())

	if _, err := svc.Answer(context.Background(), "pregunta", "", 0, "u1"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if llmClient.lastReq == nil {
		t.Fatal("LLM never called")
	}
	system := llmClient.lastReq.System
	if !strings.Contains(system, "[1] Artículo 14") || !strings.Contains(system, "[2] Artículo 9") {
		t.Errorf("system prompt missing numbered sources:\n%s", system)
	}
	last := llmClient.lastReq.Messages[len(llmClient.lastReq.Messages)-1]
	if last.Role != "user" || last.Content != "pregunta" {
		t.Errorf("final message = %+v, want the user query", last)
	}
}

func TestChatContinuesConversation(t *testing.T) {
	repo := newMemConversationRepo()
	llmClient := &stubLLM{response: "segunda respuesta"}
	svc := newChatService(t, &stubRetriever{hits: chatHits()}, llmClient, repo)

	first, err := svc.Answer(context.Background(), "primera", "", 0, "u1")
	if err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	second, err := svc.Answer(context.Background(), "segunda", first.ConversationID, 0, "u1")
	if err != nil {
		t.Fatalf("second Answer: %v", err)
	}
	if second.ConversationID != first.ConversationID {
		t.Errorf("conversation id changed: %q != %q", second.ConversationID, first.ConversationID)
	}

	// The second call must replay the first turn as history.
	if len(llmClient.lastReq.Messages) != 3 {
		t.Fatalf("messages sent = %d, want 3", len(llmClient.lastReq.Messages))
	}

	conv, _ := repo.Get(context.Background(), first.ConversationID, "u1")
	if len(conv.Messages) != 4 {
		t.Errorf("persisted messages = %d, want 4", len(conv.Messages))
	}
}

func TestChatUnknownConversationNotFound(t *testing.T) {
	retriever := &stubRetriever{hits: chatHits()}
	svc := newChatService(t, retriever, &stubLLM{response: "ok"}, newMemConversationRepo())

	_, err := svc.Answer(context.Background(), "hola", "no-such-id", 0, "u1")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierr.Error, got %T", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "ConversationNotFound" {
		t.Errorf("got %d %s, want 404 ConversationNotFound", apiErr.Status, apiErr.Code)
	}
	if retriever.searches != 0 {
		t.Errorf("retriever called %d times for an unknown conversation", retriever.searches)
	}
}

func TestChatLLMFailureCostsNothing(t *testing.T) {
	repo := newMemConversationRepo()
	svc := newChatService(t, &stubRetriever{hits: chatHits()}, &stubLLM{err: errors.New("overloaded")}, repo)

	_, err := svc.Answer(context.Background(), "hola", "", 0, "u1")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *apierr.Error, got %T", err)
	}
	if apiErr.Status != http.StatusInternalServerError || apiErr.Code != "ChatProcessingError" {
		t.Errorf("got %d %s, want 500 ChatProcessingError", apiErr.Status, apiErr.Code)
	}
	for _, conv := range repo.convs {
		if len(conv.Messages) != 0 {
			t.Error("messages persisted for a failed turn")
		}
	}
}

func TestChatNonIntegerArticleID(t *testing.T) {
	retriever := &stubRetriever{hits: []model.SearchHit{{ArticleID: "bad", Score: 0.5}}}
	svc := newChatService(t, retriever, &stubLLM{response: "ok"}, newMemConversationRepo())

	_, err := svc.Answer(context.Background(), "hola", "", 0, "u1")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "ChatProcessingError" {
		t.Errorf("got %v, want ChatProcessingError", err)
	}
}

func TestChatTopKOutOfRange(t *testing.T) {
	svc := newChatService(t, &stubRetriever{hits: chatHits()}, &stubLLM{response: "ok"}, newMemConversationRepo())

	_, err := svc.Answer(context.Background(), "hola", "", 99, "u1")
	var apiErr *apierr.Error
	if !errors.As(err, &apiErr) || apiErr.Code != "ValidationError" {
		t.Errorf("got %v, want ValidationError", err)
	}
}
