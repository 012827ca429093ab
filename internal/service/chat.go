package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lexgraph/legal-assistant-api/internal/apierr"
	"github.com/lexgraph/legal-assistant-api/internal/embedding"
	"github.com/lexgraph/legal-assistant-api/internal/llm"
	"github.com/lexgraph/legal-assistant-api/internal/model"
	"github.com/lexgraph/legal-assistant-api/internal/store"
	"github.com/lexgraph/legal-assistant-api/pkg/logger"
	"github.com/lexgraph/legal-assistant-api/pkg/metrics"
)

const (
	defaultChatTopK = 5
	maxChatTopK     = 20

	// historyWindow bounds how many stored messages are replayed as context.
	historyWindow = 10
)

const chatSystemPrompt = `Eres un asistente jurídico especializado en normativa española.
Responde usando únicamente las fuentes proporcionadas. Cita cada afirmación con
su número de fuente entre corchetes, por ejemplo [1] o [2]. Si las fuentes no
contienen la respuesta, dilo claramente.

Fuentes:
%s`

// ChatResult is the orchestrator's answer to one chat turn.
type ChatResult struct {
	Response        string
	ConversationID  string
	Citations       []model.Citation
	ExecutionTimeMs float64
	Model           string
}

// ChatService orchestrates retrieval-augmented chat: embed the query, search
// the article index, generate a grounded answer, and persist the turn.
type ChatService struct {
	retriever     ArticleRetriever
	embedder      embedding.Provider
	llmClient     llm.Client
	conversations store.ConversationRepo
	logger        *logger.Logger
	chatModel     string
	defaultIndex  string
	callTimeout   time.Duration
}

// NewChatService creates a chat service.
func NewChatService(
	retriever ArticleRetriever,
	embedder embedding.Provider,
	llmClient llm.Client,
	conversations store.ConversationRepo,
	log *logger.Logger,
	chatModel string,
	defaultIndex string,
	callTimeout time.Duration,
) *ChatService {
	return &ChatService{
		retriever:     retriever,
		embedder:      embedder,
		llmClient:     llmClient,
		conversations: conversations,
		logger:        log,
		chatModel:     chatModel,
		defaultIndex:  defaultIndex,
		callTimeout:   callTimeout,
	}
}

// Answer runs one chat turn. An empty conversationID starts a new
// conversation; an id the caller cannot see fails as not-found, identically
// for missing and foreign conversations. Collaborator failures surface as
// ChatProcessingError; nothing is persisted for a failed turn.
func (s *ChatService) Answer(ctx context.Context, query, conversationID string, topK int, userID string) (*ChatResult, error) {
	start := time.Now()

	if topK == 0 {
		topK = defaultChatTopK
	}
	if topK < 1 || topK > maxChatTopK {
		return nil, apierr.Validation(fmt.Sprintf("top_k must be between 1 and %d", maxChatTopK))
	}

	conv, err := s.resolveConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	vector, err := s.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		metrics.RecordChat(s.chatModel, "error", time.Since(start).Seconds(), 0)
		return nil, apierr.ChatProcessing(fmt.Errorf("embed query: %w", err))
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	hits, err := s.retriever.VectorSearch(searchCtx, vector, topK, s.defaultIndex)
	cancel()
	if err != nil {
		metrics.RecordChat(s.chatModel, "error", time.Since(start).Seconds(), 0)
		return nil, apierr.ChatProcessing(fmt.Errorf("retrieve sources: %w", err))
	}

	citations, sources, err := s.buildCitations(hits)
	if err != nil {
		metrics.RecordChat(s.chatModel, "error", time.Since(start).Seconds(), 0)
		return nil, apierr.ChatProcessing(err)
	}

	messages := historyMessages(conv.Messages)
	messages = append(messages, llm.ChatMessage{Role: string(model.RoleUser), Content: query})

	genCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	resp, err := s.llmClient.Complete(genCtx, &llm.CompletionRequest{
		Model:    s.chatModel,
		System:   fmt.Sprintf(chatSystemPrompt, sources),
		Messages: messages,
	})
	cancel()
	if err != nil {
		metrics.RecordChat(s.chatModel, "error", time.Since(start).Seconds(), 0)
		return nil, apierr.ChatProcessing(fmt.Errorf("generate answer: %w", err))
	}

	now := time.Now().UTC()
	err = s.conversations.AppendMessages(ctx, conv.ID, []model.Message{
		{Role: model.RoleUser, Content: query, Timestamp: now},
		{Role: model.RoleAssistant, Content: resp.Content, Citations: citations, Timestamp: now.Add(time.Millisecond)},
	})
	if err != nil {
		metrics.RecordChat(s.chatModel, "error", time.Since(start).Seconds(), 0)
		return nil, apierr.ChatProcessing(fmt.Errorf("persist messages: %w", err))
	}

	elapsed := time.Since(start)
	metrics.RecordChat(resp.Model, "success", elapsed.Seconds(), len(citations))

	s.logger.Info("chat turn completed",
		zap.String("conversation_id", conv.ID),
		zap.Int("citations", len(citations)),
		zap.Int64("latency_ms", elapsed.Milliseconds()),
	)

	return &ChatResult{
		Response:        resp.Content,
		ConversationID:  conv.ID,
		Citations:       citations,
		ExecutionTimeMs: float64(elapsed.Microseconds()) / 1000.0,
		Model:           resp.Model,
	}, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, conversationID, userID string) (*model.Conversation, error) {
	if conversationID == "" {
		conv, err := s.conversations.Create(ctx, userID)
		if err != nil {
			return nil, apierr.ChatProcessing(fmt.Errorf("create conversation: %w", err))
		}
		return conv, nil
	}
	conv, err := s.conversations.Get(ctx, conversationID, userID)
	if errors.Is(err, store.ErrConversationNotFound) {
		return nil, apierr.ConversationNotFound(conversationID)
	}
	if err != nil {
		return nil, apierr.ChatProcessing(fmt.Errorf("load conversation: %w", err))
	}
	return conv, nil
}

// buildCitations maps retrieval hits to 1-based citations in rank order and
// renders the numbered source block for the prompt.
func (s *ChatService) buildCitations(hits []model.SearchHit) ([]model.Citation, string, error) {
	citations := make([]model.Citation, 0, len(hits))
	var b strings.Builder
	for i, hit := range hits {
		articleID, ok := hit.ArticleID.(int64)
		if !ok {
			return nil, "", fmt.Errorf("article_id must be int, got %T: %v", hit.ArticleID, hit.ArticleID)
		}

		path := hit.ArticlePath
		if path == "" {
			path = FormatContextPath(hit.ContextPath)
		}

		citations = append(citations, model.Citation{
			Index:          i + 1,
			ArticleID:      formatInt(articleID),
			ArticleNumber:  hit.ArticleNumber,
			NormativaTitle: hit.NormativaTitle,
			ArticlePath:    path,
			Score:          hit.Score,
		})

		fmt.Fprintf(&b, "[%d] %s — %s", i+1, hit.ArticleNumber, hit.NormativaTitle)
		if path != "" {
			fmt.Fprintf(&b, " (%s)", path)
		}
		fmt.Fprintf(&b, "\n%s\n\n", hit.ArticleText)
	}
	return citations, b.String(), nil
}

func historyMessages(stored []model.Message) []llm.ChatMessage {
	if len(stored) > historyWindow {
		stored = stored[len(stored)-historyWindow:]
	}
	messages := make([]llm.ChatMessage, 0, len(stored)+1)
	for _, msg := range stored {
		messages = append(messages, llm.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return messages
}
