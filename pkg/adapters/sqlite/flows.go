package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/botaas/flowengine/pkg/domain"
)

// FlowStore implements ports.FlowStore on SQLite.
type FlowStore struct {
	db  *sql.DB
	now func() time.Time
}

const flowColumns = `id, bot_id, is_active, is_default, document, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFlow(row scanner) (*domain.Flow, error) {
	var (
		id, botID, created, updated string
		active, def                 bool
		doc                         []byte
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
	var err error
	if f.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &f, nil
}

// Get returns one flow.
func (s *FlowStore) Get(ctx context.Context, botID, flowID domain.ID) (*domain.Flow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM flows WHERE bot_id = ? AND id = ?`, botID, flowID)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get flow: %w", err)
	}
	return f, nil
}

// GetDefault returns the active default flow.
func (s *FlowStore) GetDefault(ctx context.Context, botID domain.ID) (*domain.Flow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM flows
WHERE bot_id = ? AND is_default = 1 AND is_active = 1
LIMIT 1`, botID)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNoDefaultFlow
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get default flow: %w", err)
	}
	return f, nil
}

// List returns the bot's flows in creation order.
func (s *FlowStore) List(ctx context.Context, botID domain.ID) ([]*domain.Flow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+flowColumns+` FROM flows
WHERE bot_id = ?
ORDER BY created_at ASC, id ASC`, botID)
	if err != nil {
		return nil, fmt.Errorf("sqlite list flows: %w", err)
	}
	defer rows.Close()

	flows := []*domain.Flow{}
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite list flows: %w", err)
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

	err = s.tx(ctx, func(tx *sql.Tx) error {
		if f.IsDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE flows SET is_default = 0 WHERE bot_id = ?`, f.BotID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO flows (id, bot_id, name, is_active, is_default, document, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.BotID, f.Name, f.IsActive, f.IsDefault, doc, formatTime(f.CreatedAt), formatTime(f.UpdatedAt))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite create flow: %w", err)
	}
	return f, nil
}

// Update replaces the flow document.
func (s *FlowStore) Update(ctx context.Context, flow *domain.Flow) (*domain.Flow, error) {
	f := flow.Clone()
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var created, updated string
		var wasDefault bool
		err := tx.QueryRowContext(ctx, `SELECT created_at, updated_at, is_default FROM flows WHERE bot_id = ? AND id = ?`,
			f.BotID, f.ID).Scan(&created, &updated, &wasDefault)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrFlowNotFound
		}
		if err != nil {
			return err
		}
		if f.CreatedAt, err = parseTime(created); err != nil {
			return err
		}
		prev, err := parseTime(updated)
		if err != nil {
			return err
		}
		f.UpdatedAt = domain.NextRevision(prev, s.now())
		f.IsDefault = f.IsDefault || wasDefault

		if f.IsDefault && !wasDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE flows SET is_default = 0 WHERE bot_id = ?`, f.BotID); err != nil {
				return err
			}
		}
		doc, err := json.Marshal(f)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE flows
SET name = ?, is_active = ?, is_default = ?, document = ?, updated_at = ?
WHERE bot_id = ? AND id = ?`,
			f.Name, f.IsActive, f.IsDefault, doc, formatTime(f.UpdatedAt), f.BotID, f.ID)
		return err
	})
	if errors.Is(err, domain.ErrFlowNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite update flow: %w", err)
	}
	return f, nil
}

// Delete removes the flow.
func (s *FlowStore) Delete(ctx context.Context, botID, flowID domain.ID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE bot_id = ? AND id = ?`, botID, flowID)
	if err != nil {
		return fmt.Errorf("sqlite delete flow: %w", err)
	}
	return requireRow(res)
}

// SetDefault clears the bot's other defaults and flags flowID, in one transaction.
func (s *FlowStore) SetDefault(ctx context.Context, botID, flowID domain.ID) error {
	err := s.tx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM flows WHERE bot_id = ? AND id = ?`, botID, flowID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrFlowNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE flows SET is_default = 0 WHERE bot_id = ?`, botID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE flows SET is_default = 1 WHERE bot_id = ? AND id = ?`, botID, flowID)
		return err
	})
	if err != nil && !errors.Is(err, domain.ErrFlowNotFound) {
		return fmt.Errorf("sqlite set default flow: %w", err)
	}
	return err
}

// SetActive toggles the active flag.
func (s *FlowStore) SetActive(ctx context.Context, botID, flowID domain.ID, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE flows SET is_active = ? WHERE bot_id = ? AND id = ?`, active, botID, flowID)
	if err != nil {
		return fmt.Errorf("sqlite set flow active: %w", err)
	}
	return requireRow(res)
}

func (s *FlowStore) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrFlowNotFound
	}
	return nil
}
