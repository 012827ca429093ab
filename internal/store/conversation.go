package store

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexgraph/legal-assistant-api/internal/model"
)

// ErrConversationNotFound is returned when a conversation does not exist or is
// not owned by the requesting user. The two cases are deliberately
// indistinguishable.
var ErrConversationNotFound = errors.New("conversation not found")

const previewLength = 80

// ConversationRepo persists conversations and their ordered messages.
type ConversationRepo interface {
	Create(ctx context.Context, userID string) (*model.Conversation, error)
	Get(ctx context.Context, id, userID string) (*model.Conversation, error)
	Owner(ctx context.Context, id string) (string, error)
	List(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	AppendMessages(ctx context.Context, id string, messages []model.Message) error
	Delete(ctx context.Context, id, userID string) error
	Clear(ctx context.Context, id, userID string) error
}

type conversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo creates a conversation repository backed by the
// relational store.
func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) Create(ctx context.Context, userID string) (*model.Conversation, error) {
	now := time.Now().UTC()
	conv := &model.Conversation{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepo) Get(ctx context.Context, id, userID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		}).
		Where("id = ? AND user_id = ?", id, userID).
		First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Owner returns the owning user id, or ErrConversationNotFound if the
// conversation does not exist.
func (r *conversationRepo) Owner(ctx context.Context, id string) (string, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).Select("id", "user_id").Where("id = ?", id).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrConversationNotFound
	}
	if err != nil {
		return "", err
	}
	return conv.UserID, nil
}

func (r *conversationRepo) List(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	var convs []model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp ASC")
		}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]model.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		preview := ""
		if len(c.Messages) > 0 {
			preview = truncate(c.Messages[0].Content, previewLength)
		}
		summaries = append(summaries, model.ConversationSummary{
			ID:           c.ID,
			CreatedAt:    c.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    c.UpdatedAt.Format(time.RFC3339),
			MessageCount: len(c.Messages),
			Preview:      preview,
		})
	}
	return summaries, nil
}

// AppendMessages appends messages in order and bumps the conversation's
// updated_at timestamp.
func (r *conversationRepo) AppendMessages(ctx context.Context, id string, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range messages {
			if messages[i].ID == "" {
				messages[i].ID = uuid.New().String()
			}
			messages[i].ConversationID = id
		}
		if err := tx.Create(&messages).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", id).
			UpdateColumn("updated_at", time.Now().UTC()).Error
	})
}

func (r *conversationRepo) Delete(ctx context.Context, id, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		return tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error
	})
}

// Clear removes every message but keeps the conversation row and id.
func (r *conversationRepo) Clear(ctx context.Context, id, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv model.Conversation
		err := tx.Select("id").Where("id = ? AND user_id = ?", id, userID).First(&conv).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Conversation{}).
			Where("id = ?", id).
			UpdateColumn("updated_at", time.Now().UTC()).Error
	})
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
