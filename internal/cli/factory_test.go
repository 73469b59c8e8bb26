package cli

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaas/flowengine/internal/config"
	"github.com/botaas/flowengine/internal/logging"
	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/persistence/middleware"
)

func chat(t *testing.T, app *App, text string) *domain.ExecutionResult {
	t.Helper()
	res, err := app.Engine.HandleInbound(context.Background(), domain.Inbound{BotID: "7", UserID: "u1", Text: text})
	require.NoError(t, err)
	return res
}

func seed(t *testing.T, app *App) {
	t.Helper()
	flow, err := ParseFlow([]byte(yamlFlow), ".yaml")
	require.NoError(t, err)
	_, err = app.Flows.Create(context.Background(), flow)
	require.NoError(t, err)
}

func TestBuild_Memory(t *testing.T) {
	app, err := Build(context.Background(), config.Default(), logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	seed(t, app)
	res := chat(t, app, "hello")
	assert.Equal(t, []string{"Welcome to Corner Store"}, res.Responses)
}

func TestBuild_SQLiteWithEncryptedSessions(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "flows.db")
	cfg.Sessions.EncryptionKey = base64.StdEncoding.EncodeToString(key)

	app, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	seed(t, app)
	chat(t, app, "hello")

	ids, err := app.Sessions.List(context.Background())
	require.NoError(t, err)
	require.Len(t, ids, 1)
	sess, err := app.Sessions.Load(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.Variables["user_id"])
	assert.NotContains(t, sess.Variables, middleware.EnvelopeKey)
}

func TestBuild_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Sessions.Backend = "redis"
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.Lock = true

	app, err := Build(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer app.Close()

	seed(t, app)
	chat(t, app, "hello")
	res := chat(t, app, "Help")
	assert.Equal(t, []string{"Bye"}, res.Responses)
	assert.True(t, res.Ended)
	assert.NotEmpty(t, mr.Keys())
}

func TestBuild_BadEncryptionKey(t *testing.T) {
	cfg := config.Default()
	cfg.Sessions.EncryptionKey = base64.StdEncoding.EncodeToString([]byte("too short"))
	_, err := Build(context.Background(), cfg, logging.NewNop())
	require.Error(t, err)
}
