package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lexgraph/legal-assistant-api/internal/apierr"
	"github.com/lexgraph/legal-assistant-api/internal/events"
	"github.com/lexgraph/legal-assistant-api/internal/middleware"
	"github.com/lexgraph/legal-assistant-api/internal/model"
	"github.com/lexgraph/legal-assistant-api/internal/service"
	"github.com/lexgraph/legal-assistant-api/internal/store"
	"github.com/lexgraph/legal-assistant-api/pkg/logger"
	"github.com/lexgraph/legal-assistant-api/pkg/metrics"
)

// tokensPerChat is the metered cost of one successful chat request.
const tokensPerChat = 1

// ChatHandler serves the chat endpoint and conversation management.
type ChatHandler struct {
	chat          *service.ChatService
	conversations store.ConversationRepo
	users         store.UserRepo
	publisher     *events.Publisher
	logger        *logger.Logger
	requireAuth   bool
}

// NewChatHandler creates a chat handler. When requireAuth is false the chat
// surface runs unauthenticated and no balance metering happens.
func NewChatHandler(
	chat *service.ChatService,
	conversations store.ConversationRepo,
	users store.UserRepo,
	publisher *events.Publisher,
	log *logger.Logger,
	requireAuth bool,
) *ChatHandler {
	return &ChatHandler{
		chat:          chat,
		conversations: conversations,
		users:         users,
		publisher:     publisher,
		logger:        log,
		requireAuth:   requireAuth,
	}
}

// Chat handles POST /chat. In authenticated mode the token balance is checked
// before any orchestration work starts and exactly one token is consumed per
// successful answer. Failed answers cost nothing.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := middleware.ValidateChatMessage(req.Message); err != nil {
		writeError(w, h.logger, apierr.Validation(err.Error()))
		return
	}

	userID := middleware.GetUserID(ctx)

	if h.requireAuth {
		balance, err := h.users.GetTokenBalance(ctx, userID)
		if err != nil {
			writeError(w, h.logger, apierr.Internal(fmt.Errorf("read token balance: %w", err)))
			return
		}
		if balance < tokensPerChat {
			writeError(w, h.logger, apierr.InsufficientTokens())
			return
		}

		if req.ConversationID != "" {
			owner, err := h.conversations.Owner(ctx, req.ConversationID)
			switch {
			case errors.Is(err, store.ErrConversationNotFound):
				writeError(w, h.logger, apierr.ConversationNotFound(req.ConversationID))
				return
			case err != nil:
				writeError(w, h.logger, apierr.Internal(err))
				return
			case owner != userID:
				writeError(w, h.logger, apierr.ConversationNotFound(req.ConversationID))
				return
			}
		}
	}

	result, err := h.chat.Answer(ctx, req.Message, req.ConversationID, req.TopK, userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	if h.requireAuth {
		if err := h.users.ConsumeTokens(ctx, userID, tokensPerChat); err != nil {
			h.logger.Warn("failed to consume token after successful chat",
				zap.String("user_id", userID), zap.Error(err))
		} else {
			metrics.BalanceTokensConsumed.Add(tokensPerChat)
		}
	}

	if err := h.publisher.PublishChat(ctx, events.ChatUsage{
		UserID:          userID,
		ConversationID:  result.ConversationID,
		Citations:       len(result.Citations),
		TokensConsumed:  tokensPerChat,
		ExecutionTimeMs: result.ExecutionTimeMs,
		Timestamp:       time.Now().UTC(),
	}); err != nil {
		h.logger.Warn("failed to publish chat usage event", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, model.ChatResponse{
		Response:        result.Response,
		ConversationID:  result.ConversationID,
		Citations:       result.Citations,
		ExecutionTimeMs: result.ExecutionTimeMs,
	})
}

// GetConversation handles GET /chat/{conversation_id}.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversation_id")
	userID := middleware.GetUserID(r.Context())

	conv, err := h.conversations.Get(r.Context(), id, userID)
	if errors.Is(err, store.ErrConversationNotFound) {
		writeError(w, h.logger, apierr.ConversationNotFound(id))
		return
	}
	if err != nil {
		writeError(w, h.logger, apierr.Internal(err))
		return
	}

	messages := make([]model.ConversationMessageResponse, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		citations := msg.Citations
		if citations == nil {
			citations = []model.Citation{}
		}
		messages = append(messages, model.ConversationMessageResponse{
			Role:      msg.Role,
			Content:   msg.Content,
			Citations: citations,
			Timestamp: msg.Timestamp.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, model.ConversationResponse{
		ID:        conv.ID,
		Messages:  messages,
		CreatedAt: conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt: conv.UpdatedAt.Format(time.RFC3339),
	})
}

// DeleteConversation handles DELETE /chat/{conversation_id}.
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversation_id")
	userID := middleware.GetUserID(r.Context())

	err := h.conversations.Delete(r.Context(), id, userID)
	if errors.Is(err, store.ErrConversationNotFound) {
		writeError(w, h.logger, apierr.ConversationNotFound(id))
		return
	}
	if err != nil {
		writeError(w, h.logger, apierr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, model.DeleteResponse{
		Success: true,
		Message: fmt.Sprintf("Conversation '%s' deleted", id),
	})
}

// ClearConversation handles POST /chat/{conversation_id}/clear. The
// conversation row and id survive; only its messages are removed.
func (h *ChatHandler) ClearConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversation_id")
	userID := middleware.GetUserID(r.Context())

	err := h.conversations.Clear(r.Context(), id, userID)
	if errors.Is(err, store.ErrConversationNotFound) {
		writeError(w, h.logger, apierr.ConversationNotFound(id))
		return
	}
	if err != nil {
		writeError(w, h.logger, apierr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, model.DeleteResponse{
		Success: true,
		Message: fmt.Sprintf("Conversation '%s' cleared", id),
	})
}

// ListConversations handles GET /conversations.
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	summaries, err := h.conversations.List(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, apierr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, model.ConversationListResponse{
		Conversations: summaries,
		Total:         len(summaries),
	})
}
