package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/botaas/flowengine/pkg/domain"
)

// FlowStore implements ports.FlowStore in memory.
type FlowStore struct {
	mu    sync.RWMutex
	flows map[domain.ID]map[domain.ID]*domain.Flow // bot -> flow id -> flow
	now   func() time.Time
}

// NewFlowStore creates an empty store, optionally seeded with flows.
func NewFlowStore(seed ...*domain.Flow) *FlowStore {
	s := &FlowStore{
		flows: make(map[domain.ID]map[domain.ID]*domain.Flow),
		now:   time.Now,
	}
	for _, f := range seed {
		_, _ = s.Create(context.Background(), f)
	}
	return s
}

func (s *FlowStore) lookup(botID, flowID domain.ID) (*domain.Flow, bool) {
	f, ok := s.flows[botID][flowID]
	return f, ok
}

// Get returns a copy of the flow.
func (s *FlowStore) Get(ctx context.Context, botID, flowID domain.ID) (*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.lookup(botID, flowID)
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	return f.Clone(), nil
}

// GetDefault returns the bot's active default flow.
func (s *FlowStore) GetDefault(ctx context.Context, botID domain.ID) (*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.flows[botID] {
		if f.IsDefault && f.IsActive {
			return f.Clone(), nil
		}
	}
	return nil, domain.ErrNoDefaultFlow
}

// List returns the bot's flows ordered by creation.
func (s *FlowStore) List(ctx context.Context, botID domain.ID) ([]*domain.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Flow, 0, len(s.flows[botID]))
	for _, f := range s.flows[botID] {
		out = append(out, f.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Create stores a copy of flow, assigning an id when empty.
func (s *FlowStore) Create(ctx context.Context, flow *domain.Flow) (*domain.Flow, error) {
	f := flow.Clone()
	if f.ID == "" {
		f.ID = domain.ID(ulid.Make().String())
	}
	now := domain.NextRevision(time.Time{}, s.now())
	f.CreatedAt = now
	f.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flows[f.BotID] == nil {
		s.flows[f.BotID] = make(map[domain.ID]*domain.Flow)
	}
	if f.IsDefault {
		s.clearDefault(f.BotID)
	}
	s.flows[f.BotID][f.ID] = f
	return f.Clone(), nil
}

// Update replaces the stored document, keeping CreatedAt and the default flag.
func (s *FlowStore) Update(ctx context.Context, flow *domain.Flow) (*domain.Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.lookup(flow.BotID, flow.ID)
	if !ok {
		return nil, domain.ErrFlowNotFound
	}
	f := flow.Clone()
	f.CreatedAt = prev.CreatedAt
	f.UpdatedAt = domain.NextRevision(prev.UpdatedAt, s.now())
	f.IsDefault = f.IsDefault || prev.IsDefault
	if f.IsDefault && !prev.IsDefault {
		s.clearDefault(f.BotID)
	}
	s.flows[f.BotID][f.ID] = f
	return f.Clone(), nil
}

// Delete removes the flow.
func (s *FlowStore) Delete(ctx context.Context, botID, flowID domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(botID, flowID); !ok {
		return domain.ErrFlowNotFound
	}
	delete(s.flows[botID], flowID)
	return nil
}

// SetDefault makes flowID the bot's only default.
func (s *FlowStore) SetDefault(ctx context.Context, botID, flowID domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.lookup(botID, flowID)
	if !ok {
		return domain.ErrFlowNotFound
	}
	s.clearDefault(botID)
	f.IsDefault = true
	return nil
}

// SetActive toggles the active flag.
func (s *FlowStore) SetActive(ctx context.Context, botID, flowID domain.ID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.lookup(botID, flowID)
	if !ok {
		return domain.ErrFlowNotFound
	}
	f.IsActive = active
	return nil
}

// clearDefault must be called with mu held.
func (s *FlowStore) clearDefault(botID domain.ID) {
	for _, f := range s.flows[botID] {
		f.IsDefault = false
	}
}
