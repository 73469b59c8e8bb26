package ports

import (
	"context"

	"github.com/botaas/flowengine/pkg/domain"
)

// SessionStore persists conversation sessions.
type SessionStore interface {
	// Save persists the session under sessionID, replacing any previous value.
	Save(ctx context.Context, sessionID string, session *domain.Session) error

	// Load retrieves the session for sessionID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes the session. Deleting a missing session is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the ids of all stored sessions.
	List(ctx context.Context) ([]string, error)
}

// FlowRepository is the read side the engine needs.
type FlowRepository interface {
	// Get returns one flow of the bot or domain.ErrFlowNotFound.
	Get(ctx context.Context, botID, flowID domain.ID) (*domain.Flow, error)

	// GetDefault returns the bot's active default flow or domain.ErrNoDefaultFlow.
	GetDefault(ctx context.Context, botID domain.ID) (*domain.Flow, error)
}

// FlowStore adds the management operations the builder API exposes.
type FlowStore interface {
	FlowRepository

	// List returns the bot's flows ordered by creation time.
	List(ctx context.Context, botID domain.ID) ([]*domain.Flow, error)

	// Create stores a new flow. An empty ID is assigned by the store.
	// When the flow is marked default, the bot's other flows lose the flag.
	Create(ctx context.Context, flow *domain.Flow) (*domain.Flow, error)

	// Update replaces the flow's document and bumps UpdatedAt. It may make
	// the flow the default but never clears the flag; only SetDefault on
	// another flow or Delete does.
	Update(ctx context.Context, flow *domain.Flow) (*domain.Flow, error)

	// Delete removes the flow or returns domain.ErrFlowNotFound.
	Delete(ctx context.Context, botID, flowID domain.ID) error

	// SetDefault makes flowID the only default flow of the bot, atomically.
	SetDefault(ctx context.Context, botID, flowID domain.ID) error

	// SetActive toggles the flow's active flag.
	SetActive(ctx context.Context, botID, flowID domain.ID, active bool) error
}
