package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/botaas/flowengine/pkg/domain"
)

// SessionStore implements ports.SessionStore on PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// Save upserts the session.
func (s *SessionStore) Save(ctx context.Context, sessionID string, sess *domain.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO sessions (session_id, bot_id, user_id, flow_id, document, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (session_id) DO UPDATE SET
    bot_id = EXCLUDED.bot_id,
    user_id = EXCLUDED.user_id,
    flow_id = EXCLUDED.flow_id,
    document = EXCLUDED.document,
    updated_at = EXCLUDED.updated_at`,
		sessionID, string(sess.BotID), string(sess.UserID), string(sess.FlowID), doc, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres save session: %w", err)
	}
	return nil
}

// Load returns the session.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM sessions WHERE session_id = $1`, sessionID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres load session: %w", err)
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
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("postgres delete session: %w", err)
	}
	return nil
}

// List returns every session id.
func (s *SessionStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT session_id FROM sessions ORDER BY session_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres list sessions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres list sessions: %w", err)
	}
	return ids, nil
}
