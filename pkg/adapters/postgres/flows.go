package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/botaas/flowengine/pkg/domain"
)

// FlowStore implements ports.FlowStore on PostgreSQL.
type FlowStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

const flowColumns = `id, bot_id, is_active, is_default, document, created_at, updated_at`

func scanFlow(row pgx.Row) (*domain.Flow, error) {
	var (
		id, botID        string
		active, def      bool
		doc              []byte
		created, updated time.Time
	)
	if err := row.Scan(&id, &botID, &active, &def, &doc, &created, &updated); err != nil {
		return nil, err
	}
	var f domain.Flow
	if err := json.Unmarshal(doc, &f); err != nil {
		return nil, fmt.Errorf("decode flow %s: %w", id, err)
	}
	f.ID, f.BotID = domain.ID(id), domain.ID(botID)
	f.IsActive, f.IsDefault = active, def
	f.CreatedAt, f.UpdatedAt = created.UTC(), updated.UTC()
	return &f, nil
}

// Get returns one flow.
func (s *FlowStore) Get(ctx context.Context, botID, flowID domain.ID) (*domain.Flow, error) {
	f, err := scanFlow(s.pool.QueryRow(ctx, `SELECT `+flowColumns+` FROM flows WHERE bot_id = $1 AND id = $2`,
		string(botID), string(flowID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get flow: %w", err)
	}
	return f, nil
}

// GetDefault returns the active default flow.
func (s *FlowStore) GetDefault(ctx context.Context, botID domain.ID) (*domain.Flow, error) {
	f, err := scanFlow(s.pool.QueryRow(ctx, `SELECT `+flowColumns+` FROM flows
WHERE bot_id = $1 AND is_default AND is_active
LIMIT 1`, string(botID)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoDefaultFlow
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get default flow: %w", err)
	}
	return f, nil
}

// List returns the bot's flows in creation order.
func (s *FlowStore) List(ctx context.Context, botID domain.ID) ([]*domain.Flow, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+flowColumns+` FROM flows
WHERE bot_id = $1
ORDER BY created_at ASC, id ASC`, string(botID))
	if err != nil {
		return nil, fmt.Errorf("postgres list flows: %w", err)
	}
	defer rows.Close()

	flows := []*domain.Flow{}
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres list flows: %w", err)
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// Create inserts the flow.
func (s *FlowStore) Create(ctx context.Context, flow *domain.Flow) (*domain.Flow, error) {
	f := flow.Clone()
	if f.ID == "" {
		f.ID = domain.ID(ulid.Make().String())
	}
	now := domain.NextRevision(time.Time{}, s.now())
	f.CreatedAt, f.UpdatedAt = now, now

	doc, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if f.IsDefault {
			if _, err := tx.Exec(ctx, `UPDATE flows SET is_default = FALSE WHERE bot_id = $1`, string(f.BotID)); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO flows (id, bot_id, name, is_active, is_default, document, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			string(f.ID), string(f.BotID), f.Name, f.IsActive, f.IsDefault, doc, f.CreatedAt, f.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres create flow: %w", err)
	}
	return f, nil
}

// Update replaces the flow document.
func (s *FlowStore) Update(ctx context.Context, flow *domain.Flow) (*domain.Flow, error) {
	f := flow.Clone()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var prev time.Time
		var wasDefault bool
		err := tx.QueryRow(ctx, `SELECT created_at, updated_at, is_default FROM flows
WHERE bot_id = $1 AND id = $2
FOR UPDATE`, string(f.BotID), string(f.ID)).Scan(&f.CreatedAt, &prev, &wasDefault)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrFlowNotFound
		}
		if err != nil {
			return err
		}
		f.CreatedAt = f.CreatedAt.UTC()
		f.UpdatedAt = domain.NextRevision(prev.UTC(), s.now())
		f.IsDefault = f.IsDefault || wasDefault

		if f.IsDefault && !wasDefault {
			if _, err := tx.Exec(ctx, `UPDATE flows SET is_default = FALSE WHERE bot_id = $1`, string(f.BotID)); err != nil {
				return err
			}
		}
		doc, err := json.Marshal(f)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE flows
SET name = $1, is_active = $2, is_default = $3, document = $4, updated_at = $5
WHERE bot_id = $6 AND id = $7`,
			f.Name, f.IsActive, f.IsDefault, doc, f.UpdatedAt, string(f.BotID), string(f.ID))
		return err
	})
	if errors.Is(err, domain.ErrFlowNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("postgres update flow: %w", err)
	}
	return f, nil
}

// Delete removes the flow.
func (s *FlowStore) Delete(ctx context.Context, botID, flowID domain.ID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM flows WHERE bot_id = $1 AND id = $2`, string(botID), string(flowID))
	if err != nil {
		return fmt.Errorf("postgres delete flow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFlowNotFound
	}
	return nil
}

// SetDefault clears the bot's other defaults and flags flowID, in one transaction.
func (s *FlowStore) SetDefault(ctx context.Context, botID, flowID domain.ID) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE flows SET is_default = FALSE WHERE bot_id = $1 AND id <> $2`,
			string(botID), string(flowID)); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE flows SET is_default = TRUE WHERE bot_id = $1 AND id = $2`,
			string(botID), string(flowID))
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrFlowNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, domain.ErrFlowNotFound) {
		return fmt.Errorf("postgres set default flow: %w", err)
	}
	return err
}

// SetActive toggles the active flag.
func (s *FlowStore) SetActive(ctx context.Context, botID, flowID domain.ID, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE flows SET is_active = $1 WHERE bot_id = $2 AND id = $3`,
		active, string(botID), string(flowID))
	if err != nil {
		return fmt.Errorf("postgres set flow active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrFlowNotFound
	}
	return nil
}
