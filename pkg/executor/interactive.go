package executor

import (
	"context"
	"errors"
	"log/slog"

	"github.com/botaas/flowengine/pkg/condition"
	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/graph"
	"github.com/botaas/flowengine/pkg/interpolate"
)

type startExecutor struct{}

func (startExecutor) Execute(context.Context, *Context, *graph.Node) (Outcome, error) {
	return Outcome{OutputLabel: domain.LabelNext}, nil
}

type messageExecutor struct{}

func (messageExecutor) Execute(_ context.Context, ec *Context, node *graph.Node) (Outcome, error) {
	return renderMessage(ec, node.Data.(domain.MessageData)), nil
}

func renderMessage(ec *Context, d domain.MessageData) Outcome {
	out := Outcome{
		QuickReplies: interpolate.Strings(d.QuickReplies, ec.Session.Variables),
		AwaitsInput:  true,
	}
	if d.Content != "" {
		out.Responses = []string{interpolate.String(d.Content, ec.Session.Variables)}
	}
	return out
}

type inputExecutor struct {
	evaluator *condition.Evaluator
	logger    *slog.Logger
}

func (x *inputExecutor) Execute(_ context.Context, ec *Context, node *graph.Node) (Outcome, error) {
	return renderInput(ec, node.Data.(domain.InputData)), nil
}

func renderInput(ec *Context, d domain.InputData) Outcome {
	out := Outcome{AwaitsInput: true}
	if d.Content != "" {
		out.Responses = []string{interpolate.String(d.Content, ec.Session.Variables)}
	}
	return out
}

// capture stores the reply in the node's variable. A reply that fails the
// optional pattern is a NoMatchError so the node re-prompts.
func (x *inputExecutor) capture(ec *Context, node *graph.Node) error {
	d := node.Data.(domain.InputData)
	value := ec.Inbound.Input()

	if d.Pattern != "" {
		ok, err := x.evaluator.MatchPattern(d.Pattern, value)
		if err != nil {
			var cfg *domain.ConfigurationError
			if errors.As(err, &cfg) && cfg.NodeID == "" {
				cfg.NodeID = node.ID
			}
			return err
		}
		if !ok {
			x.logger.Debug("input rejected by pattern", "node_id", node.ID)
			return &domain.NoMatchError{NodeID: node.ID, Input: value}
		}
	}

	ec.Session.Variables[d.VariableName] = value
	return nil
}

type endExecutor struct{}

func (endExecutor) Execute(_ context.Context, ec *Context, node *graph.Node) (Outcome, error) {
	out := Outcome{Terminal: true}
	if d := node.Data.(domain.EndData); d.Content != "" {
		out.Responses = []string{interpolate.String(d.Content, ec.Session.Variables)}
	}
	return out, nil
}
