package model

import "time"

// Role is the sender of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Citation is a ranked reference from an assistant answer back to an article.
type Citation struct {
	Index          int     `json:"index"`
	ArticleID      string  `json:"article_id"`
	ArticleNumber  string  `json:"article_number"`
	NormativaTitle string  `json:"normativa_title"`
	ArticlePath    string  `json:"article_path"`
	Score          float64 `json:"score"`
}

// User is an account row in the credential store. Accounts are provisioned
// out-of-band; this API only reads them and decrements AvailableTokens.
type User struct {
	ID              string    `gorm:"primaryKey"`
	Username        string    `gorm:"uniqueIndex;not null"`
	PasswordHash    string    `gorm:"not null"`
	IsActive        bool      `gorm:"not null;default:true"`
	AvailableTokens int       `gorm:"not null;default:0"`
	CreatedAt       time.Time
}

// Conversation is a message thread owned by one user.
type Conversation struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// Message is one entry in a conversation. Citations are empty for user turns.
type Message struct {
	ID             string     `gorm:"primaryKey"`
	ConversationID string     `gorm:"index;not null"`
	Role           Role       `gorm:"not null"`
	Content        string     `gorm:"not null"`
	Citations      []Citation `gorm:"serializer:json"`
	Timestamp      time.Time  `gorm:"not null"`
}

// ConversationSummary is a list item for GET /conversations.
type ConversationSummary struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
	MessageCount int    `json:"message_count"`
	Preview      string `json:"preview"`
}

// ChatRequest is the request body for POST /chat.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	TopK           int    `json:"top_k"`
}

// ChatResponse is the response body for POST /chat.
type ChatResponse struct {
	Response        string     `json:"response"`
	ConversationID  string     `json:"conversation_id"`
	Citations       []Citation `json:"citations"`
	ExecutionTimeMs float64    `json:"execution_time_ms"`
}

// ConversationMessageResponse is one message in a conversation history reply.
type ConversationMessageResponse struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations"`
	Timestamp string     `json:"timestamp"`
}

// ConversationResponse is the response body for GET /chat/{id}.
type ConversationResponse struct {
	ID        string                        `json:"id"`
	Messages  []ConversationMessageResponse `json:"messages"`
	CreatedAt string                        `json:"created_at"`
	UpdatedAt string                        `json:"updated_at"`
}

// ConversationListResponse is the response body for GET /conversations.
type ConversationListResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int                   `json:"total"`
}

// DeleteResponse acknowledges delete and clear operations.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
