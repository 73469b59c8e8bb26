// Package logsink provides side-effect collaborators that only write
// structured log records. It backs local runs and the CLI, where no chat
// platform, mail relay or analytics pipeline is attached.
package logsink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/ports"
)

// Sink implements ports.ChatAdmin, ports.Mailer, ports.OwnerNotifier and
// ports.EventSink. It also remembers what it received.
type Sink struct {
	logger *slog.Logger

	mu     sync.Mutex
	bans   []ports.BanRequest
	emails []ports.Email
	notes  []string
	events []ports.Event
}

// New creates a Sink writing to logger.
func New(logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{logger: logger}
}

func (s *Sink) BanChatMember(ctx context.Context, req ports.BanRequest) error {
	s.mu.Lock()
	s.bans = append(s.bans, req)
	s.mu.Unlock()

	until := "permanent"
	if !req.Until.IsZero() {
		until = req.Until.UTC().Format("2006-01-02T15:04:05Z")
	}
	s.logger.InfoContext(ctx, "ban chat member",
		"bot_id", req.BotID, "chat_id", req.ChatID, "user_id", req.UserID,
		"until", until, "revoke_messages", req.RevokeMessages)
	return nil
}

func (s *Sink) DeleteMessage(ctx context.Context, botID domain.ID, chatID, messageID string) error {
	s.logger.InfoContext(ctx, "delete message", "bot_id", botID, "chat_id", chatID, "message_id", messageID)
	return nil
}

func (s *Sink) Send(ctx context.Context, email ports.Email) error {
	s.mu.Lock()
	s.emails = append(s.emails, email)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "send email", "bot_id", email.BotID, "to", email.To, "subject", email.Subject)
	return nil
}

func (s *Sink) NotifyOwner(ctx context.Context, botID domain.ID, text string) error {
	s.mu.Lock()
	s.notes = append(s.notes, text)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "notify owner", "bot_id", botID, "text", text)
	return nil
}

func (s *Sink) Record(ctx context.Context, event ports.Event) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()

	attrs := []any{"bot_id", event.BotID, "flow_id", event.FlowID, "session_id", event.SessionID, "event", event.Name}
	for k, v := range event.Data {
		attrs = append(attrs, "data."+k, v)
	}
	s.logger.InfoContext(ctx, "analytics event", attrs...)
	return nil
}

// Bans returns the ban requests seen so far.
func (s *Sink) Bans() []ports.BanRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.BanRequest(nil), s.bans...)
}

// Emails returns the emails seen so far.
func (s *Sink) Emails() []ports.Email {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Email(nil), s.emails...)
}

// Notifications returns the owner notifications seen so far.
func (s *Sink) Notifications() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}

// Events returns the analytics events seen so far.
func (s *Sink) Events() []ports.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Event(nil), s.events...)
}
