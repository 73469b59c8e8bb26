// Package executor implements the behavior of each node type.
//
// An executor reads the step context, mutates the working copy of the
// session and reports what it produced. Failed side effects are recorded in
// the Outcome rather than returned, so traversal continues on the node's
// "error" or "done" label. Only configuration problems are returned as
// errors; they abort the step.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/botaas/flowengine/internal/logging"
	"github.com/botaas/flowengine/pkg/condition"
	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/graph"
	"github.com/botaas/flowengine/pkg/ports"
)

// Context is the state one step threads through the executors.
type Context struct {
	// Session is the step's working copy; executors mutate it freely.
	Session *domain.Session
	Inbound domain.Inbound
	Now     time.Time
}

// Outcome is what executing a node produced.
type Outcome struct {
	Responses    []string
	QuickReplies []string
	SideEffects  []domain.SideEffect
	// Errors are surfaced, non-fatal problems (failed side effects).
	Errors      []error
	OutputLabel string
	AwaitsInput bool
	Terminal    bool
}

func (o *Outcome) effect(nodeID string, typ domain.SideEffectType, err error, detail string) {
	se := domain.SideEffect{NodeID: nodeID, Type: typ, Status: domain.StatusOK, Detail: detail}
	if err != nil {
		se.Status = domain.StatusError
		se.Detail = err.Error()
		o.Errors = append(o.Errors, &domain.SideEffectError{NodeID: nodeID, Effect: typ, Err: err})
	}
	o.SideEffects = append(o.SideEffects, se)
}

// Executor runs one node type.
type Executor interface {
	Execute(ctx context.Context, ec *Context, node *graph.Node) (Outcome, error)
}

// Dependencies are the collaborators node executors call out to. Nil
// collaborators make the corresponding side effects fail with a
// SideEffectError.
type Dependencies struct {
	Evaluator *condition.Evaluator
	Webhooks  ports.WebhookClient
	Admin     ports.ChatAdmin
	Mailer    ports.Mailer
	Notifier  ports.OwnerNotifier
	Events    ports.EventSink
	Logger    *slog.Logger
}

// Registry dispatches nodes to the executor for their type.
type Registry struct {
	executors map[domain.NodeType]Executor
	input     *inputExecutor
}

// NewRegistry wires every node type to its executor.
func NewRegistry(deps Dependencies) *Registry {
	if deps.Evaluator == nil {
		deps.Evaluator = condition.New()
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	input := &inputExecutor{evaluator: deps.Evaluator, logger: deps.Logger}
	return &Registry{
		input: input,
		executors: map[domain.NodeType]Executor{
			domain.NodeStart:     startExecutor{},
			domain.NodeMessage:   messageExecutor{},
			domain.NodeInput:     input,
			domain.NodeEnd:       endExecutor{},
			domain.NodeCondition: &conditionExecutor{evaluator: deps.Evaluator},
			domain.NodeAction:    &actionExecutor{deps: deps},
			domain.NodeWebhook:   &webhookExecutor{client: deps.Webhooks, logger: deps.Logger},
		},
	}
}

// Execute runs node.
func (r *Registry) Execute(ctx context.Context, ec *Context, node *graph.Node) (Outcome, error) {
	x, ok := r.executors[node.Type]
	if !ok {
		return Outcome{}, &domain.ConfigurationError{NodeID: node.ID, Reason: fmt.Sprintf("no executor for node type %q", node.Type)}
	}
	return x.Execute(ctx, ec, node)
}

// Capture applies a reply to the interactive node the session is waiting
// at. Input nodes validate and store it; message nodes take it as-is.
func (r *Registry) Capture(ec *Context, node *graph.Node) error {
	if node.Type != domain.NodeInput {
		return nil
	}
	return r.input.capture(ec, node)
}

// Prompt re-renders an interactive node without side effects.
func (r *Registry) Prompt(ec *Context, node *graph.Node) Outcome {
	switch d := node.Data.(type) {
	case domain.MessageData:
		return renderMessage(ec, d)
	case domain.InputData:
		return renderInput(ec, d)
	}
	return Outcome{}
}
