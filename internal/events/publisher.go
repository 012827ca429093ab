package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	// StreamName is the name of the usage events stream.
	StreamName = "USAGE"

	// SubjectPrefix is the prefix for all usage subjects.
	SubjectPrefix = "usage"
)

// ChatUsage describes one completed chat request.
type ChatUsage struct {
	UserID          string    `json:"user_id"`
	ConversationID  string    `json:"conversation_id"`
	Citations       int       `json:"citations"`
	TokensConsumed  int       `json:"tokens_consumed"`
	ExecutionTimeMs float64   `json:"execution_time_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// SearchUsage describes one completed semantic search.
type SearchUsage struct {
	UserID          string    `json:"user_id,omitempty"`
	IndexName       string    `json:"index_name"`
	TopK            int       `json:"top_k"`
	Results         int       `json:"results"`
	ExecutionTimeMs float64   `json:"execution_time_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// Publisher writes usage events to JetStream.
type Publisher struct {
	client *Client
}

// NewPublisher creates a usage event publisher. A nil client yields a
// publisher whose methods are no-ops.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// EnsureStream creates the usage stream if it does not exist yet.
func (p *Publisher) EnsureStream(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	js := p.client.js

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "API usage events for audit and analytics",
	})
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	return nil
}

// PublishChat publishes a chat usage event.
func (p *Publisher) PublishChat(ctx context.Context, usage ChatUsage) error {
	subject := fmt.Sprintf("%s.chat.%s", SubjectPrefix, orAnonymous(usage.UserID))
	return p.publish(ctx, subject, usage)
}

// PublishSearch publishes a search usage event.
func (p *Publisher) PublishSearch(ctx context.Context, usage SearchUsage) error {
	subject := fmt.Sprintf("%s.search.%s", SubjectPrefix, orAnonymous(usage.UserID))
	return p.publish(ctx, subject, usage)
}

func (p *Publisher) publish(ctx context.Context, subject string, payload any) error {
	if p == nil || p.client == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.client.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func orAnonymous(userID string) string {
	if userID == "" {
		return "anonymous"
	}
	return userID
}
