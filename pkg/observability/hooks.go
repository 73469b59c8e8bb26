package observability

import (
	"context"
	"log/slog"

	"github.com/botaas/flowengine/pkg/domain"
)

// LogHooks writes every lifecycle event to logger. Node events go to Debug,
// failed side effects to Warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"session_id", e.SessionID, "node_id", e.NodeID, "node_type", e.NodeType)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_leave",
				"session_id", e.SessionID, "node_id", e.NodeID, "output", e.OutputLabel, "elapsed", e.Elapsed)
		},
		OnSideEffect: func(ctx context.Context, e *domain.SideEffectEvent) {
			level := slog.LevelInfo
			if e.Effect.Status == domain.StatusError {
				level = slog.LevelWarn
			}
			logger.Log(ctx, level, "side_effect",
				"session_id", e.SessionID, "node_id", e.Effect.NodeID,
				"type", e.Effect.Type, "status", e.Effect.Status, "detail", e.Effect.Detail)
		},
		OnStepFinished: func(ctx context.Context, e *domain.StepEvent) {
			logger.InfoContext(ctx, "step_finished",
				"session_id", e.SessionID, "bot_id", e.BotID, "flow_id", e.FlowID,
				"outcome", e.Outcome, "hops", e.Hops, "elapsed", e.Elapsed)
		},
	}
}

// Combine fans each event out to every non-nil callback, in order.
func Combine(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range all {
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chain(out.OnNodeLeave, h.OnNodeLeave)
		out.OnSideEffect = chain(out.OnSideEffect, h.OnSideEffect)
		out.OnStepFinished = chain(out.OnStepFinished, h.OnStepFinished)
	}
	return out
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
