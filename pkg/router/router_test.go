package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/graph"
)

func build(t *testing.T, nodes map[string]map[string]any, order []string, edges ...domain.Edge) *graph.Graph {
	t.Helper()
	flow := &domain.Flow{ID: "f"}
	for _, id := range order {
		flow.Nodes = append(flow.Nodes, domain.Node{ID: id, Data: nodes[id]})
	}
	flow.Edges = edges
	g, err := graph.Compile(flow)
	require.NoError(t, err)
	return g
}

func node(t *testing.T, g *graph.Graph, id string) *graph.Node {
	t.Helper()
	n, ok := g.Node(id)
	require.True(t, ok)
	return n
}

var (
	startData = map[string]any{"type": "start"}
	msgData   = map[string]any{"type": "message", "content": "pick"}
	endData   = map[string]any{"type": "end"}
)

func TestRoute_Message(t *testing.T) {
	g := build(t,
		map[string]map[string]any{"m": msgData, "a": endData, "a2": endData, "d": endData},
		[]string{"m", "a", "a2", "d"},
		domain.Edge{ID: "1", Source: "m", Target: "a", Label: "A"},
		domain.Edge{ID: "2", Source: "m", Target: "a2", Label: "A"},
		domain.Edge{ID: "3", Source: "m", Target: "d"},
	)
	m := node(t, g, "m")

	t.Run("duplicate labels take first edge", func(t *testing.T) {
		next, err := Route(g, m, "", Input{Text: "A"})
		require.NoError(t, err)
		assert.Equal(t, "a", next)
	})

	t.Run("button text matches", func(t *testing.T) {
		next, err := Route(g, m, "", Input{Text: "ignored", Button: "A"})
		require.NoError(t, err)
		assert.Equal(t, "a", next)
	})

	t.Run("labels are case sensitive and fall back to default", func(t *testing.T) {
		next, err := Route(g, m, "", Input{Text: "a"})
		require.NoError(t, err)
		assert.Equal(t, "d", next)
	})
}

func TestRoute_MessageNoMatch(t *testing.T) {
	g := build(t,
		map[string]map[string]any{"m": msgData, "a": endData},
		[]string{"m", "a"},
		domain.Edge{ID: "1", Source: "m", Target: "a", Label: "A"},
	)

	_, err := Route(g, node(t, g, "m"), "", Input{Text: "Z"})
	var nm *domain.NoMatchError
	require.ErrorAs(t, err, &nm)
	assert.Equal(t, "m", nm.NodeID)
	assert.Equal(t, "Z", nm.Input)
}

func TestRoute_NextLabelIsDefault(t *testing.T) {
	g := build(t,
		map[string]map[string]any{"m": msgData, "a": endData},
		[]string{"m", "a"},
		domain.Edge{ID: "1", Source: "m", Target: "a", Label: "Next"},
	)

	next, err := Route(g, node(t, g, "m"), "", Input{Text: "whatever"})
	require.NoError(t, err)
	assert.Equal(t, "a", next)
}

func TestRoute_EdgeConditionMatchesReply(t *testing.T) {
	g := build(t,
		map[string]map[string]any{"m": msgData, "y": endData, "n": endData},
		[]string{"m", "y", "n"},
		domain.Edge{ID: "1", Source: "m", Target: "y", Label: "Accept", Condition: "yes"},
		domain.Edge{ID: "2", Source: "m", Target: "n", Condition: "no"},
	)

	next, err := Route(g, node(t, g, "m"), "", Input{Text: "no"})
	require.NoError(t, err)
	assert.Equal(t, "n", next)
}

func TestRoute_Start(t *testing.T) {
	g := build(t,
		map[string]map[string]any{"s": startData, "help": endData, "main": endData},
		[]string{"s", "help", "main"},
		domain.Edge{ID: "1", Source: "s", Target: "help", Label: "/help"},
		domain.Edge{ID: "2", Source: "s", Target: "main", Label: "begin"},
	)
	s := node(t, g, "s")

	next, err := Route(g, s, domain.LabelNext, Input{Text: "/help"})
	require.NoError(t, err)
	assert.Equal(t, "help", next)

	next, err = Route(g, s, domain.LabelNext, Input{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "help", next, "start falls through to its first edge")
}

func TestRoute_Condition(t *testing.T) {
	cond := map[string]any{"type": "condition", "condition_type": "number"}
	g := build(t,
		map[string]map[string]any{"c": cond, "t": endData, "f": endData},
		[]string{"c", "t", "f"},
		domain.Edge{ID: "1", Source: "c", Target: "f", Label: "no", Condition: "false"},
		domain.Edge{ID: "2", Source: "c", Target: "t", Condition: "true"},
		domain.Edge{ID: "3", Source: "c", Target: "f", Condition: "true"},
	)
	c := node(t, g, "c")

	next, err := Route(g, c, "true", Input{Text: "true"})
	require.NoError(t, err)
	assert.Equal(t, "t", next)

	next, err = Route(g, c, "false", Input{})
	require.NoError(t, err)
	assert.Equal(t, "f", next)
}

func TestRoute_ConditionLabelOnlyEdges(t *testing.T) {
	cond := map[string]any{"type": "condition", "condition_type": "number"}
	g := build(t,
		map[string]map[string]any{"c": cond, "t": endData, "f": endData},
		[]string{"c", "t", "f"},
		domain.Edge{ID: "1", Source: "c", Target: "t", Label: "TRUE"},
		domain.Edge{ID: "2", Source: "c", Target: "f", Label: " false "},
	)
	c := node(t, g, "c")

	next, err := Route(g, c, "true", Input{})
	require.NoError(t, err)
	assert.Equal(t, "t", next)

	next, err = Route(g, c, "false", Input{})
	require.NoError(t, err)
	assert.Equal(t, "f", next)
}

func TestRoute_ConditionFieldBeatsLabel(t *testing.T) {
	cond := map[string]any{"type": "condition", "condition_type": "number"}
	g := build(t,
		map[string]map[string]any{"c": cond, "t": endData, "f": endData},
		[]string{"c", "t", "f"},
		domain.Edge{ID: "1", Source: "c", Target: "f", Label: "true"},
		domain.Edge{ID: "2", Source: "c", Target: "t", Condition: "true"},
		domain.Edge{ID: "3", Source: "c", Target: "f", Label: "yes", Condition: "false"},
	)
	c := node(t, g, "c")

	next, err := Route(g, c, "true", Input{})
	require.NoError(t, err)
	assert.Equal(t, "t", next, "an explicit condition wins over an earlier label-only edge")

	// An edge with a condition set is never matched by its label.
	_, err = Route(g, c, "yes", Input{})
	var cfg *domain.ConfigurationError
	require.ErrorAs(t, err, &cfg)
}

func TestRoute_ConditionMissingBranch(t *testing.T) {
	cond := map[string]any{"type": "condition", "condition_type": "number"}
	g := build(t,
		map[string]map[string]any{"c": cond, "t": endData},
		[]string{"c", "t"},
		domain.Edge{ID: "1", Source: "c", Target: "t", Condition: "true"},
	)

	_, err := Route(g, node(t, g, "c"), "false", Input{})
	var cfg *domain.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "c", cfg.NodeID)
}

func TestRoute_Action(t *testing.T) {
	action := map[string]any{"type": "action", "action_type": "log_event", "event_name": "x"}

	t.Run("single unconditional edge", func(t *testing.T) {
		g := build(t,
			map[string]map[string]any{"a": action, "n": endData},
			[]string{"a", "n"},
			domain.Edge{ID: "1", Source: "a", Target: "n", Label: "then"},
		)
		next, err := Route(g, node(t, g, "a"), domain.LabelDone, Input{})
		require.NoError(t, err)
		assert.Equal(t, "n", next)
	})

	t.Run("multiple unconditional edges", func(t *testing.T) {
		g := build(t,
			map[string]map[string]any{"a": action, "n": endData, "m": endData},
			[]string{"a", "n", "m"},
			domain.Edge{ID: "1", Source: "a", Target: "n"},
			domain.Edge{ID: "2", Source: "a", Target: "m"},
		)
		_, err := Route(g, node(t, g, "a"), domain.LabelDone, Input{})
		var cfg *domain.ConfigurationError
		require.ErrorAs(t, err, &cfg)
		assert.Contains(t, cfg.Reason, "2 unconditional edges")
	})

	t.Run("no edges terminates", func(t *testing.T) {
		g := build(t, map[string]map[string]any{"a": action}, []string{"a"})
		next, err := Route(g, node(t, g, "a"), domain.LabelDone, Input{})
		require.NoError(t, err)
		assert.Empty(t, next)
	})
}

func TestRoute_Webhook(t *testing.T) {
	hook := map[string]any{"type": "webhook", "url": "http://h"}

	g := build(t,
		map[string]map[string]any{"w": hook, "ok": endData, "bad": endData},
		[]string{"w", "ok", "bad"},
		domain.Edge{ID: "1", Source: "w", Target: "ok"},
		domain.Edge{ID: "2", Source: "w", Target: "bad", Condition: "error"},
	)
	w := node(t, g, "w")

	next, err := Route(g, w, domain.LabelSuccess, Input{})
	require.NoError(t, err)
	assert.Equal(t, "ok", next)

	next, err = Route(g, w, domain.LabelError, Input{})
	require.NoError(t, err)
	assert.Equal(t, "bad", next)
}

func TestRoute_WebhookErrorWithoutErrorEdge(t *testing.T) {
	hook := map[string]any{"type": "webhook", "url": "http://h"}
	g := build(t,
		map[string]map[string]any{"w": hook, "ok": endData},
		[]string{"w", "ok"},
		domain.Edge{ID: "1", Source: "w", Target: "ok"},
	)

	_, err := Route(g, node(t, g, "w"), domain.LabelError, Input{})
	var cfg *domain.ConfigurationError
	require.ErrorAs(t, err, &cfg)
	assert.Contains(t, cfg.Reason, `no "error" edge`)
}

func TestRoute_InteractiveWithoutEdgesEnds(t *testing.T) {
	g := build(t, map[string]map[string]any{"m": msgData}, []string{"m"})

	next, err := Route(g, node(t, g, "m"), "", Input{Text: "anything"})
	require.NoError(t, err)
	assert.Empty(t, next)
}
