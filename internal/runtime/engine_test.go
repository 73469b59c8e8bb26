package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/executor"
	"github.com/botaas/flowengine/pkg/graph"
	"github.com/botaas/flowengine/pkg/ports"
)

var fixedNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func compile(t *testing.T, doc string) *graph.Graph {
	t.Helper()
	var f domain.Flow
	require.NoError(t, json.Unmarshal([]byte(doc), &f))
	g, err := graph.Compile(&f)
	require.NoError(t, err)
	return g
}

func newEngine(opts ...Option) *Engine {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewEngine(executor.NewRegistry(executor.Dependencies{}), opts...)
}

func fresh(g *graph.Graph) *domain.Session {
	return &domain.Session{ID: "s1", BotID: "b1", UserID: "u1", FlowID: g.FlowID(), Status: domain.SessionActive, Variables: domain.Variables{}}
}

// assertStayed checks that a failed step kept the cursor and variables and
// only recorded the activity.
func assertStayed(t *testing.T, before, after *domain.Session) {
	t.Helper()
	assert.NotSame(t, before, after)
	assert.Equal(t, before.CurrentNodeID, after.CurrentNodeID)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.Variables, after.Variables)
	assert.Equal(t, fixedNow, after.UpdatedAt)
}

func say(text string) domain.Inbound { return domain.Inbound{BotID: "b1", UserID: "u1", Text: text} }

const pickFlow = `{
	"id": "pick",
	"nodes": [
		{"id": "start", "data": {"type": "start"}},
		{"id": "menu", "data": {"type": "message", "content": "Hi, pick one", "quick_replies": ["A", "B"]}},
		{"id": "endA", "data": {"type": "end", "content": "You picked A"}},
		{"id": "endB", "data": {"type": "end", "content": "You picked B"}}
	],
	"edges": [
		{"id": "e0", "source": "start", "target": "menu"},
		{"id": "e1", "source": "menu", "target": "endA", "label": "A"},
		{"id": "e2", "source": "menu", "target": "endB", "label": "B"}
	]
}`

func TestStep_PickScenario(t *testing.T) {
	g := compile(t, pickFlow)
	e := newEngine()
	ctx := context.Background()

	res, s1, err := e.Step(ctx, g, fresh(g), say("/start"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi, pick one"}, res.Responses)
	assert.Equal(t, []string{"A", "B"}, res.QuickReplies)
	assert.Equal(t, "menu", s1.CurrentNodeID)
	assert.False(t, res.Ended)

	res, s2, err := e.Step(ctx, g, s1, domain.Inbound{Text: "A", Button: "A"})
	require.NoError(t, err)
	assert.Equal(t, "You picked A", domain.NewExecutionResult(s2.ID, g.FlowID(), res).BotResponse)
	assert.True(t, res.Ended)
	assert.True(t, s2.Ended())
	assert.Empty(t, s2.CurrentNodeID)
	assert.Empty(t, res.QuickReplies)
}

func TestStep_NoMatchRepromptsWithoutAdvancing(t *testing.T) {
	g := compile(t, pickFlow)
	e := newEngine(WithFallbackMessage("Please use the buttons."))
	ctx := context.Background()

	_, waiting, err := e.Step(ctx, g, fresh(g), say("hi"))
	require.NoError(t, err)
	waiting.UpdatedAt = fixedNow.Add(-time.Hour)

	res, next, err := e.Step(ctx, g, waiting, say("C"))
	require.NoError(t, err)
	assert.True(t, res.NoMatch)
	assertStayed(t, waiting, next)
	assert.Equal(t, "menu", next.CurrentNodeID)
	assert.Equal(t, []string{"Please use the buttons.", "Hi, pick one"}, res.Responses)
	assert.Equal(t, []string{"A", "B"}, res.QuickReplies)
}

const numberFlow = `{
	"id": "num",
	"nodes": [
		{"id": "start", "data": {"type": "start"}},
		{"id": "ask", "data": {"type": "message", "content": "How old are you?"}},
		{"id": "check", "data": {"type": "condition", "conditionType": "number"}},
		{"id": "save", "data": {"type": "input", "variable_name": "city", "content": "Thanks! Which city?"}},
		{"id": "retry", "data": {"type": "message", "content": "Not a number, try again"}}
	],
	"edges": [
		{"source": "start", "target": "ask"},
		{"source": "ask", "target": "check"},
		{"source": "check", "target": "save", "condition": "true"},
		{"source": "check", "target": "retry", "condition": "false"},
		{"source": "retry", "target": "check"}
	]
}`

func TestStep_NumberCondition(t *testing.T) {
	g := compile(t, numberFlow)
	e := newEngine()
	ctx := context.Background()

	_, waiting, err := e.Step(ctx, g, fresh(g), say("hello"))
	require.NoError(t, err)
	require.Equal(t, "ask", waiting.CurrentNodeID)

	res, next, err := e.Step(ctx, g, waiting, say("42"))
	require.NoError(t, err)
	assert.Equal(t, "save", next.CurrentNodeID)
	assert.Equal(t, []string{"Thanks! Which city?"}, res.Responses)

	res, next, err = e.Step(ctx, g, waiting, say("abc"))
	require.NoError(t, err)
	assert.Equal(t, "retry", next.CurrentNodeID)
	assert.Equal(t, []string{"Not a number, try again"}, res.Responses)

	res, next, err = e.Step(ctx, g, next, say("7"))
	require.NoError(t, err)
	assert.Equal(t, "save", next.CurrentNodeID)

	res, next, err = e.Step(ctx, g, next, say("Oslo"))
	require.NoError(t, err)
	assert.True(t, res.Ended, "input with no outgoing edge ends the flow")
	assert.Equal(t, "Oslo", next.Variables["city"])
}

func TestStep_ChainRunsActionsAndInterpolates(t *testing.T) {
	g := compile(t, `{
		"id": "chain",
		"variables": {"greeting": "Hello"},
		"nodes": [
			{"id": "start", "data": {"type": "start"}},
			{"id": "set", "data": {"type": "action", "action_type": "set_variable", "variable_name": "name", "variable_value": "Ann"}},
			{"id": "msg", "data": {"type": "message", "content": "{{greeting}}, {{name}}! {{unknown}}"}}
		],
		"edges": [
			{"source": "start", "target": "set"},
			{"source": "set", "target": "msg"}
		]
	}`)
	sess := fresh(g)
	sess.Variables = g.Variables()

	res, next, err := newEngine().Step(context.Background(), g, sess, say("go"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello, Ann! {{unknown}}"}, res.Responses)
	assert.Equal(t, "Ann", next.Variables["name"])
	assert.NotContains(t, sess.Variables, "name", "input session must not be mutated")
	require.Len(t, res.SideEffects, 1)
	assert.Equal(t, domain.EffectSetVariable, res.SideEffects[0].Type)
	assert.Equal(t, fixedNow, next.UpdatedAt)
}

func TestStep_HopCap(t *testing.T) {
	var nodes, edges []string
	nodes = append(nodes, `{"id": "start", "data": {"type": "start"}}`)
	prev := "start"
	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("a%d", i)
		nodes = append(nodes, fmt.Sprintf(`{"id": %q, "data": {"type": "action", "action_type": "set_variable", "variable_name": "v", "variable_value": "%d"}}`, id, i))
		edges = append(edges, fmt.Sprintf(`{"source": %q, "target": %q}`, prev, id))
		prev = id
	}
	doc := `{"id": "long", "nodes": [` + join(nodes) + `], "edges": [` + join(edges) + `]}`
	g := compile(t, doc)

	sess := fresh(g)
	res, next, err := newEngine().Step(context.Background(), g, sess, say("x"))
	require.NoError(t, err)
	assertStayed(t, sess, next)
	assert.Equal(t, []string{DefaultErrorMessage}, res.Responses)
	require.NotEmpty(t, res.Errors)
	var cfg *domain.ConfigurationError
	require.ErrorAs(t, res.Errors[len(res.Errors)-1], &cfg)
	assert.Contains(t, cfg.Reason, "exceeded 25")
}

func TestStep_LoopWithinCapIsFine(t *testing.T) {
	g := compile(t, `{
		"id": "loop",
		"nodes": [
			{"id": "start", "data": {"type": "start"}},
			{"id": "a", "data": {"type": "action", "action_type": "set_variable", "variable_name": "v", "variable_value": "1"}},
			{"id": "b", "data": {"type": "end", "content": "done"}}
		],
		"edges": [{"source": "start", "target": "a"}, {"source": "a", "target": "b"}]
	}`)

	res, _, err := newEngine(WithMaxHops(2)).Step(context.Background(), g, fresh(g), say("x"))
	require.NoError(t, err)
	assert.True(t, res.Ended)
}

type notifier struct{ msgs []string }

func (n *notifier) NotifyOwner(_ context.Context, _ domain.ID, text string) error {
	n.msgs = append(n.msgs, text)
	return nil
}

func TestStep_ConfigurationErrorAbortsAndNotifies(t *testing.T) {
	g := compile(t, `{
		"id": "bad",
		"nodes": [
			{"id": "start", "data": {"type": "start"}},
			{"id": "ask", "data": {"type": "message", "content": "Say something"}},
			{"id": "re", "data": {"type": "condition", "condition_type": "regex", "condition_value": "(oops"}},
			{"id": "yes", "data": {"type": "end"}},
			{"id": "no", "data": {"type": "end"}}
		],
		"edges": [
			{"source": "start", "target": "ask"},
			{"source": "ask", "target": "re"},
			{"source": "re", "target": "yes", "condition": "true"},
			{"source": "re", "target": "no", "condition": "false"}
		]
	}`)
	n := &notifier{}
	e := newEngine(WithOwnerNotifier(n), WithErrorMessage("Oops."))
	ctx := context.Background()

	_, waiting, err := e.Step(ctx, g, fresh(g), say("hi"))
	require.NoError(t, err)
	waiting.UpdatedAt = fixedNow.Add(-time.Hour)

	res, next, err := e.Step(ctx, g, waiting, say("anything"))
	require.NoError(t, err)
	assertStayed(t, waiting, next)
	assert.Equal(t, []string{"Oops."}, res.Responses)
	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0], `node "re"`)
}

type failingHook struct{}

func (failingHook) Do(context.Context, ports.WebhookRequest) (*ports.WebhookResponse, error) {
	return nil, errors.New("connection refused")
}

func TestStep_WebhookErrorEdge(t *testing.T) {
	g := compile(t, `{
		"id": "hook",
		"nodes": [
			{"id": "start", "data": {"type": "start"}},
			{"id": "call", "data": {"type": "webhook", "url": "http://crm"}},
			{"id": "ok", "data": {"type": "end", "content": "saved"}},
			{"id": "ko", "data": {"type": "end", "content": "could not save"}}
		],
		"edges": [
			{"source": "start", "target": "call"},
			{"source": "call", "target": "ok", "condition": "success"},
			{"source": "call", "target": "ko", "condition": "error"}
		]
	}`)
	e := NewEngine(executor.NewRegistry(executor.Dependencies{Webhooks: failingHook{}}))

	res, _, err := e.Step(context.Background(), g, fresh(g), say("x"))
	require.NoError(t, err)
	assert.Equal(t, []string{"could not save"}, res.Responses)
	require.Len(t, res.Errors, 1)
	var se *domain.SideEffectError
	assert.ErrorAs(t, res.Errors[0], &se)
	assert.Equal(t, domain.StatusError, res.SideEffects[0].Status)
}

func TestStep_VanishedNodeRestarts(t *testing.T) {
	g := compile(t, pickFlow)
	sess := fresh(g)
	sess.CurrentNodeID = "deleted-node"

	res, next, err := newEngine().Step(context.Background(), g, sess, say("hi"))
	require.NoError(t, err)
	assert.Equal(t, "menu", next.CurrentNodeID)
	assert.Equal(t, []string{"Hi, pick one"}, res.Responses)
}

func TestStep_HooksAndSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	var entered, left []string
	var finished *domain.StepEvent
	hooks := domain.LifecycleHooks{
		OnNodeEnter:    func(_ context.Context, ev *domain.NodeEvent) { entered = append(entered, ev.NodeID) },
		OnNodeLeave:    func(_ context.Context, ev *domain.NodeEvent) { left = append(left, ev.NodeID) },
		OnStepFinished: func(_ context.Context, ev *domain.StepEvent) { finished = ev },
	}

	g := compile(t, pickFlow)
	_, _, err := newEngine(WithLifecycleHooks(hooks), WithTracer(tp.Tracer("test"))).
		Step(context.Background(), g, fresh(g), say("hi"))
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "menu"}, entered)
	assert.Equal(t, []string{"start", "menu"}, left)
	require.NotNil(t, finished)
	assert.Equal(t, domain.OutcomeAwaiting, finished.Outcome)
	assert.Equal(t, 2, finished.Hops)

	names := map[string]bool{}
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
	}
	assert.True(t, names["flowengine.step"])
	assert.True(t, names["node:start"])
	assert.True(t, names["node:menu"])
}

func TestStep_CanceledContext(t *testing.T) {
	g := compile(t, pickFlow)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newEngine().Step(ctx, g, fresh(g), say("hi"))
	assert.ErrorIs(t, err, context.Canceled)
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
