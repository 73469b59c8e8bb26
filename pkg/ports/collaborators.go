package ports

import (
	"context"
	"time"

	"github.com/botaas/flowengine/pkg/domain"
)

// WebhookRequest is a fully interpolated outbound call.
type WebhookRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// WebhookResponse is the raw reply of a webhook.
type WebhookResponse struct {
	StatusCode int
	Body       []byte
}

// WebhookClient performs webhook node calls. The deadline comes from ctx.
type WebhookClient interface {
	Do(ctx context.Context, req WebhookRequest) (*WebhookResponse, error)
}

// ToxicityClassifier scores text from 0 (benign) to 1 (toxic).
type ToxicityClassifier interface {
	Score(ctx context.Context, text string) (float64, error)
}

// BanRequest restricts a user in a chat.
type BanRequest struct {
	BotID  domain.ID
	ChatID string
	UserID string
	// Until is zero for a permanent ban.
	Until          time.Time
	RevokeMessages bool
}

// ChatAdmin performs moderation on the chat platform.
type ChatAdmin interface {
	BanChatMember(ctx context.Context, req BanRequest) error
	DeleteMessage(ctx context.Context, botID domain.ID, chatID, messageID string) error
}

// Email is an outbound message from a send_email action.
type Email struct {
	BotID   domain.ID
	To      string
	Subject string
	Body    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// OwnerNotifier reaches the bot owner, both for notify_owner actions and
// for configuration errors found while a flow runs.
type OwnerNotifier interface {
	NotifyOwner(ctx context.Context, botID domain.ID, text string) error
}

// Event is an analytics record from a log_event action.
type Event struct {
	BotID     domain.ID
	FlowID    domain.ID
	SessionID string
	UserID    string
	NodeID    string
	Name      string
	Data      map[string]string
	At        time.Time
}

// EventSink records analytics events.
type EventSink interface {
	Record(ctx context.Context, event Event) error
}
