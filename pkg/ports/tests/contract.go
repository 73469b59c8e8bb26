// Package tests holds reusable contract suites for flow storage adapters.
package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/ports"
)

func sampleFlow(botID domain.ID, name string) *domain.Flow {
	return &domain.Flow{
		BotID:    botID,
		Name:     name,
		IsActive: true,
		Nodes: []domain.Node{
			{ID: "s", Data: map[string]any{"type": "start"}},
			{ID: "m", Data: map[string]any{"type": "message", "content": "hello {{name}}"}, Position: &domain.Position{X: 10, Y: 20}},
		},
		Edges:     []domain.Edge{{ID: "e1", Source: "s", Target: "m"}},
		Variables: domain.Variables{"name": "friend"},
	}
}

// FlowStoreContractTest verifies that an adapter complies with ports.FlowStore.
// Each call should receive a fresh, empty store.
func FlowStoreContractTest(t *testing.T, store ports.FlowStore) {
	t.Helper()
	ctx := context.Background()
	const bot domain.ID = "contract-bot"

	created, err := store.Create(ctx, sampleFlow(bot, "first"))
	require.NoError(t, err)

	t.Run("Create_AssignsIdentity", func(t *testing.T) {
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.CreatedAt.IsZero())
		assert.False(t, created.UpdatedAt.IsZero())
	})

	t.Run("Get_RoundTrip", func(t *testing.T) {
		got, err := store.Get(ctx, bot, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "first", got.Name)
		assert.Equal(t, bot, got.BotID)
		require.Len(t, got.Nodes, 2)
		assert.Equal(t, "message", got.Nodes[1].Data["type"])
		require.NotNil(t, got.Nodes[1].Position)
		assert.InDelta(t, 20, got.Nodes[1].Position.Y, 1e-9)
		assert.Equal(t, "friend", got.Variables["name"])
	})

	t.Run("Get_NotFound", func(t *testing.T) {
		_, err := store.Get(ctx, bot, "missing")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)

		_, err = store.Get(ctx, "other-bot", created.ID)
		assert.ErrorIs(t, err, domain.ErrFlowNotFound, "flows are scoped by bot")
	})

	t.Run("GetDefault_None", func(t *testing.T) {
		_, err := store.GetDefault(ctx, bot)
		assert.ErrorIs(t, err, domain.ErrNoDefaultFlow)
	})

	second, err := store.Create(ctx, sampleFlow(bot, "second"))
	require.NoError(t, err)

	t.Run("SetDefault_IsExclusive", func(t *testing.T) {
		require.NoError(t, store.SetDefault(ctx, bot, created.ID))
		def, err := store.GetDefault(ctx, bot)
		require.NoError(t, err)
		assert.Equal(t, created.ID, def.ID)
		assert.True(t, def.IsDefault)

		require.NoError(t, store.SetDefault(ctx, bot, second.ID))
		def, err = store.GetDefault(ctx, bot)
		require.NoError(t, err)
		assert.Equal(t, second.ID, def.ID)

		first, err := store.Get(ctx, bot, created.ID)
		require.NoError(t, err)
		assert.False(t, first.IsDefault)
	})

	t.Run("SetDefault_Missing", func(t *testing.T) {
		err := store.SetDefault(ctx, bot, "missing")
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)

		def, err := store.GetDefault(ctx, bot)
		require.NoError(t, err)
		assert.Equal(t, second.ID, def.ID, "failed SetDefault must not clear the current default")
	})

	t.Run("SetActive_HidesDefault", func(t *testing.T) {
		require.NoError(t, store.SetActive(ctx, bot, second.ID, false))
		_, err := store.GetDefault(ctx, bot)
		assert.ErrorIs(t, err, domain.ErrNoDefaultFlow)

		require.NoError(t, store.SetActive(ctx, bot, second.ID, true))
		_, err = store.GetDefault(ctx, bot)
		assert.NoError(t, err)
	})

	t.Run("Update_BumpsRevision", func(t *testing.T) {
		got, err := store.Get(ctx, bot, created.ID)
		require.NoError(t, err)
		got.Name = "renamed"
		got.Nodes = got.Nodes[:1]
		got.Edges = nil

		updated, err := store.Update(ctx, got)
		require.NoError(t, err)
		assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
		assert.True(t, updated.CreatedAt.Equal(created.CreatedAt))

		again, err := store.Get(ctx, bot, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "renamed", again.Name)
		assert.Len(t, again.Nodes, 1)
	})

	t.Run("Update_Missing", func(t *testing.T) {
		f := sampleFlow(bot, "ghost")
		f.ID = "missing"
		_, err := store.Update(ctx, f)
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
	})

	t.Run("Update_KeepsDefault", func(t *testing.T) {
		def, err := store.GetDefault(ctx, bot)
		require.NoError(t, err)
		def.IsDefault = false
		def.Name = "resaved by the builder"

		updated, err := store.Update(ctx, def)
		require.NoError(t, err)
		assert.True(t, updated.IsDefault)

		still, err := store.GetDefault(ctx, bot)
		require.NoError(t, err)
		assert.Equal(t, def.ID, still.ID)
		assert.Equal(t, "resaved by the builder", still.Name)
	})

	t.Run("List", func(t *testing.T) {
		flows, err := store.List(ctx, bot)
		require.NoError(t, err)
		require.Len(t, flows, 2)
		assert.Equal(t, created.ID, flows[0].ID)
		assert.Equal(t, second.ID, flows[1].ID)

		none, err := store.List(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, bot, created.ID))
		_, err := store.Get(ctx, bot, created.ID)
		assert.ErrorIs(t, err, domain.ErrFlowNotFound)
		assert.ErrorIs(t, store.Delete(ctx, bot, created.ID), domain.ErrFlowNotFound)
	})
}
