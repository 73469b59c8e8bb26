package executor

import (
	"context"
	"errors"

	"github.com/botaas/flowengine/pkg/condition"
	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/graph"
)

type conditionExecutor struct {
	evaluator *condition.Evaluator
}

func (x *conditionExecutor) Execute(ctx context.Context, ec *Context, node *graph.Node) (Outcome, error) {
	d := node.Data.(domain.ConditionData)

	input := ec.Inbound.Input()
	if d.InputSource == domain.SourceVariable {
		input = ec.Session.Variables[d.InputVariable]
	}

	res, err := x.evaluator.Evaluate(ctx, d, input, ec.Session.Variables)
	out := Outcome{OutputLabel: res.Label()}
	if err == nil {
		return out, nil
	}

	var cfg *domain.ConfigurationError
	if errors.As(err, &cfg) {
		cfg.NodeID = node.ID
		return out, cfg
	}
	var se *domain.SideEffectError
	if errors.As(err, &se) {
		se.NodeID = node.ID
		out.SideEffects = append(out.SideEffects, domain.SideEffect{
			NodeID: node.ID, Type: se.Effect, Status: domain.StatusError, Detail: se.Err.Error(),
		})
		out.Errors = append(out.Errors, se)
		return out, nil
	}
	return out, err
}
