package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/botaas/flowengine/pkg/domain"
)

// SessionStore implements ports.SessionStore on SQLite.
type SessionStore struct {
	db *sql.DB
}

// Save upserts the session.
func (s *SessionStore) Save(ctx context.Context, sessionID string, sess *domain.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (session_id, bot_id, user_id, flow_id, document, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
	bot_id = excluded.bot_id,
	user_id = excluded.user_id,
	flow_id = excluded.flow_id,
	document = excluded.document,
	updated_at = excluded.updated_at`,
		sessionID, sess.BotID, sess.UserID, sess.FlowID, doc, formatTime(sess.UpdatedAt))
	if err != nil {
		return fmt.Errorf("sqlite save session: %w", err)
	}
	return nil
}

// Load returns the session.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM sessions WHERE session_id = ?`, sessionID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite load session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(doc, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.Variables == nil {
		sess.Variables = domain.Variables{}
	}
	return &sess, nil
}

// Delete removes the session.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("sqlite delete session: %w", err)
	}
	return nil
}

// List returns every session id.
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM sessions ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
