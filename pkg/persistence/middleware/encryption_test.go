package middleware_test

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaas/flowengine/pkg/adapters/memory"
	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/persistence/middleware"
	"github.com/botaas/flowengine/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func sealed(t *testing.T, next ports.SessionStore, cfg middleware.EncryptionConfig) ports.SessionStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	require.NoError(t, err)
	return middleware.Chain(next, mw)
}

func sampleSession() *domain.Session {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.Session{
		ID:            "s1",
		BotID:         "7",
		UserID:        "u1",
		FlowID:        "f1",
		CurrentNodeID: "ask_email",
		Status:        domain.SessionActive,
		Variables:     domain.Variables{"email": "ana@example.com", "name": "Ana"},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunSessionStoreContract(t, sealed(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	ctx := context.Background()
	raw := memory.NewStore()
	store := sealed(t, raw, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	require.NoError(t, store.Save(ctx, "s1", sampleSession()))

	stored, err := raw.Load(ctx, "s1")
	require.NoError(t, err)
	assert.NotContains(t, stored.Variables, "email")
	assert.Contains(t, stored.Variables, middleware.EnvelopeKey)
	assert.Equal(t, "ask_email", stored.CurrentNodeID, "cursor stays readable")

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", loaded.Variables["email"])
	assert.Equal(t, domain.ID("f1"), loaded.FlowID)
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	ctx := context.Background()
	raw := memory.NewStore()
	oldKey, newKey := generateKey(t), generateKey(t)

	require.NoError(t, sealed(t, raw, middleware.EncryptionConfig{ActiveKey: oldKey}).Save(ctx, "s1", sampleSession()))

	rotated := sealed(t, raw, middleware.EncryptionConfig{ActiveKey: newKey, FallbackKeys: [][]byte{oldKey}})
	loaded, err := rotated.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", loaded.Variables["name"])

	_, err = sealed(t, raw, middleware.EncryptionConfig{ActiveKey: newKey}).Load(ctx, "s1")
	require.Error(t, err)
}

func TestEncryptionMiddleware_PlainSessionRejected(t *testing.T) {
	ctx := context.Background()
	raw := memory.NewStore()
	require.NoError(t, raw.Save(ctx, "s1", sampleSession()))

	_, err := sealed(t, raw, middleware.EncryptionConfig{ActiveKey: generateKey(t)}).Load(ctx, "s1")
	require.ErrorIs(t, err, middleware.ErrMissingEnvelope)
}

func TestNewEncryptionMiddleware_KeySize(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short")})
	require.Error(t, err)

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	require.Error(t, err)
}

func TestParseKeys(t *testing.T) {
	k1, k2 := generateKey(t), generateKey(t)
	cfg, err := middleware.ParseKeys(base64.StdEncoding.EncodeToString(k1), base64.StdEncoding.EncodeToString(k2))
	require.NoError(t, err)
	assert.Equal(t, k1, cfg.ActiveKey)
	assert.Equal(t, [][]byte{k2}, cfg.FallbackKeys)

	_, err = middleware.ParseKeys("%%%")
	require.Error(t, err)
}
