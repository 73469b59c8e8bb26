package session_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/ports"
	"github.com/botaas/flowengine/pkg/session"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	data map[string]*domain.Session
	mu   sync.Mutex
}

func (s *SlowStore) Save(ctx context.Context, sessionID string, sess *domain.Session) error {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[string]*domain.Session)
	}
	s.data[sessionID] = sess.Clone()
	return nil
}

func (s *SlowStore) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.data[sessionID]; ok {
		return sess.Clone(), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *SlowStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *SlowStore) List(ctx context.Context) ([]string, error) {
	return nil, nil
}

func TestManager_TransactSerializesReadModifyWrite(t *testing.T) {
	manager := session.NewManager(&SlowStore{}, session.WithLockTimeout(10*time.Second))
	ctx := context.Background()
	id := "race-test"

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.Transact(ctx, id, func(_ context.Context, cur *domain.Session) (*domain.Session, error) {
				if cur == nil {
					cur = &domain.Session{ID: id, Variables: domain.Variables{"n": "0"}}
				}
				n, _ := strconv.Atoi(cur.Variables["n"])
				cur.Variables["n"] = strconv.Itoa(n + 1)
				return cur, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(writers), got.Variables["n"], "no update may be lost")
}

func TestManager_TransactErrorDoesNotSave(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()

	require.NoError(t, manager.Save(ctx, &domain.Session{ID: "s", CurrentNodeID: "a"}))

	boom := errors.New("boom")
	err := manager.Transact(ctx, "s", func(_ context.Context, cur *domain.Session) (*domain.Session, error) {
		cur.CurrentNodeID = "b"
		return cur, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := manager.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "a", got.CurrentNodeID)
}

func TestManager_LockTimeout(t *testing.T) {
	manager := session.NewManager(&SlowStore{}, session.WithLockTimeout(50*time.Millisecond))
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = manager.WithLock(ctx, "busy", func(context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err := manager.WithLock(ctx, "busy", func(context.Context) error { return nil })
	close(done)

	var timeout *domain.SessionLockTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "busy", timeout.SessionID)
}

func TestManager_DifferentSessionsDoNotBlock(t *testing.T) {
	manager := session.NewManager(&SlowStore{}, session.WithLockTimeout(50*time.Millisecond))
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = manager.WithLock(ctx, "a", func(context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	assert.NoError(t, manager.WithLock(ctx, "b", func(context.Context) error { return nil }))
}

type stubLocker struct {
	err      error
	unlocked bool
}

func (l *stubLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.err != nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return func(context.Context) error {
		l.unlocked = true
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("releases after fn", func(t *testing.T) {
		l := &stubLocker{}
		manager := session.NewManager(&SlowStore{}, session.WithLocker(l))
		require.NoError(t, manager.WithLock(ctx, "s", func(context.Context) error { return nil }))
		assert.True(t, l.unlocked)
	})

	t.Run("contended lock times out", func(t *testing.T) {
		l := &stubLocker{err: errors.New("held elsewhere")}
		manager := session.NewManager(&SlowStore{}, session.WithLocker(l), session.WithLockTimeout(20*time.Millisecond))
		err := manager.WithLock(ctx, "s", func(context.Context) error { return nil })
		var timeout *domain.SessionLockTimeoutError
		assert.ErrorAs(t, err, &timeout)
	})
}

func TestIDFor(t *testing.T) {
	a := session.IDFor("bot", "user")
	assert.Equal(t, a, session.IDFor("bot", "user"))
	assert.NotEqual(t, a, session.IDFor("bot", "other"))
	assert.NotEqual(t, a, session.IDFor("bot2", "user"))
	assert.Len(t, a, 36)
}
