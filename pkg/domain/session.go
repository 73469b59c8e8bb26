package domain

import "time"

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session is the persisted conversation cursor for one (bot, user) pair.
type Session struct {
	ID            string        `json:"session_id"`
	BotID         ID            `json:"bot_id"`
	UserID        string        `json:"user_id"`
	ChatID        string        `json:"chat_id,omitempty"`
	FlowID        ID            `json:"flow_id"`
	CurrentNodeID string        `json:"current_node_id,omitempty"`
	Status        SessionStatus `json:"status"`
	Variables     Variables     `json:"variables"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewSession starts a session on flow, seeded with the flow's variables.
func NewSession(id string, flow *Flow, userID string, now time.Time) *Session {
	vars := flow.Variables.Clone()
	if vars == nil {
		vars = Variables{}
	}
	if _, ok := vars["user_id"]; !ok && userID != "" {
		vars["user_id"] = userID
	}
	return &Session{
		ID:        id,
		BotID:     flow.BotID,
		UserID:    userID,
		FlowID:    flow.ID,
		Status:    SessionActive,
		Variables: vars,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Ended reports whether the session reached an end node.
func (s *Session) Ended() bool { return s.Status == SessionEnded }

// Clone returns a copy whose variables can be mutated independently.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Variables = s.Variables.Clone()
	if cp.Variables == nil {
		cp.Variables = Variables{}
	}
	return &cp
}
