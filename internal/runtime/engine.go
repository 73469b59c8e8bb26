// Package runtime walks a compiled flow graph for one inbound message.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/botaas/flowengine/internal/logging"
	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/executor"
	"github.com/botaas/flowengine/pkg/graph"
	"github.com/botaas/flowengine/pkg/ports"
	"github.com/botaas/flowengine/pkg/router"
)

const (
	// DefaultMaxHops caps non-interactive nodes visited in one step.
	DefaultMaxHops = 25
	// DefaultErrorMessage is shown when a step aborts on a configuration error.
	DefaultErrorMessage = "Something went wrong. Please try again later."
)

// Engine is the step executor. It is stateless and safe for concurrent use;
// callers serialize steps per session.
type Engine struct {
	registry     *executor.Registry
	maxHops      int
	fallback     string
	errorMessage string
	notifier     ports.OwnerNotifier
	hooks        domain.LifecycleHooks
	tracer       trace.Tracer
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithMaxHops sets the hop cap.
func WithMaxHops(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxHops = n
		}
	}
}

// WithFallbackMessage sets text sent before the re-prompt when a reply
// matches no edge.
func WithFallbackMessage(msg string) Option {
	return func(e *Engine) { e.fallback = msg }
}

// WithErrorMessage sets the text users see when a step aborts.
func WithErrorMessage(msg string) Option {
	return func(e *Engine) {
		if msg != "" {
			e.errorMessage = msg
		}
	}
}

// WithOwnerNotifier reports configuration errors to the bot owner.
func WithOwnerNotifier(n ports.OwnerNotifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(h domain.LifecycleHooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithTracer sets the tracer used for step and node spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine around the executor registry.
func NewEngine(registry *executor.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:     registry,
		maxHops:      DefaultMaxHops,
		errorMessage: DefaultErrorMessage,
		tracer:       otel.Tracer("github.com/botaas/flowengine"),
		logger:       logging.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Step handles one inbound message for sess on g. It returns the step's
// result and the session to persist. On a configuration error or a reply
// that matches no edge the returned session keeps sess's cursor and
// variables and only records the activity time; in every other case it is
// an advanced copy. The error return is reserved for cancellation.
func (e *Engine) Step(ctx context.Context, g *graph.Graph, sess *domain.Session, in domain.Inbound) (*domain.StepResult, *domain.Session, error) {
	started := e.now()
	ctx, span := e.tracer.Start(ctx, "flowengine.step", trace.WithAttributes(
		attribute.String("flowengine.session_id", sess.ID),
		attribute.String("flowengine.bot_id", string(sess.BotID)),
		attribute.String("flowengine.flow_id", string(g.FlowID())),
	))
	defer span.End()

	s := &stepper{
		engine: e,
		graph:  g,
		orig:   sess,
		ec: &executor.Context{
			Session: sess.Clone(),
			Inbound: in,
			Now:     started,
		},
		res:   &domain.StepResult{},
		input: router.Input{Text: in.Text, Button: in.Button},
	}
	if in.ChatID != "" {
		s.ec.Session.ChatID = in.ChatID
	}

	next, outcome, err := s.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.String("flowengine.outcome", string(outcome)),
		attribute.Int("flowengine.hops", s.res.Hops),
	)
	if outcome == domain.OutcomeConfigError {
		span.SetStatus(codes.Error, "configuration error")
	}

	if e.hooks.OnStepFinished != nil {
		e.hooks.OnStepFinished(ctx, &domain.StepEvent{
			EventBase: s.base(domain.EventStepFinished),
			Outcome:   outcome,
			Hops:      s.res.Hops,
			Elapsed:   e.now().Sub(started),
		})
	}
	return s.res, next, nil
}

type stepper struct {
	engine *Engine
	graph  *graph.Graph
	orig   *domain.Session
	ec     *executor.Context
	res    *domain.StepResult
	input  router.Input
}

func (s *stepper) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: s.engine.now(),
		Type:      t,
		SessionID: s.orig.ID,
		BotID:     s.orig.BotID,
		FlowID:    s.graph.FlowID(),
	}
}

func (s *stepper) run(ctx context.Context) (*domain.Session, domain.StepOutcome, error) {
	work := s.ec.Session
	cur := s.graph.Entry()

	if work.CurrentNodeID != "" {
		waiting, ok := s.graph.Node(work.CurrentNodeID)
		switch {
		case !ok:
			s.engine.logger.Warn("session points at a node that no longer exists; restarting flow",
				"session_id", work.ID, "node_id", work.CurrentNodeID)
		case waiting.Type.Interactive():
			next, err := s.resume(waiting)
			if err != nil {
				return s.fail(ctx, err)
			}
			if next == nil {
				return s.finish(work, nil), domain.OutcomeEnded, nil
			}
			cur = next
		default:
			cur = waiting
		}
	}

	chain := 0
	for cur != nil {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		s.res.Hops++
		if !cur.Type.Interactive() && cur.Type != domain.NodeEnd {
			chain++
		}
		if chain > s.engine.maxHops {
			return s.fail(ctx, &domain.ConfigurationError{
				NodeID: cur.ID,
				Reason: fmt.Sprintf("exceeded %d nodes in one step without waiting for input", s.engine.maxHops),
			})
		}

		out, err := s.execute(ctx, cur)
		if err != nil {
			return s.fail(ctx, err)
		}

		switch {
		case out.Terminal:
			return s.finish(work, nil), domain.OutcomeEnded, nil
		case out.AwaitsInput:
			return s.finish(work, cur), domain.OutcomeAwaiting, nil
		}

		nextID, err := router.Route(s.graph, cur, out.OutputLabel, s.input)
		if err != nil {
			return s.fail(ctx, err)
		}
		if nextID == "" {
			return s.finish(work, nil), domain.OutcomeEnded, nil
		}
		cur, _ = s.graph.Node(nextID)
	}

	return s.finish(work, nil), domain.OutcomeEnded, nil
}

// resume applies the reply to the node the session waits at and returns
// the node to continue from, or nil when the flow ends there.
func (s *stepper) resume(node *graph.Node) (*graph.Node, error) {
	if err := s.engine.registry.Capture(s.ec, node); err != nil {
		return nil, err
	}
	nextID, err := router.Route(s.graph, node, "", s.input)
	if err != nil {
		return nil, err
	}
	if nextID == "" {
		return nil, nil
	}
	next, _ := s.graph.Node(nextID)
	return next, nil
}

func (s *stepper) execute(ctx context.Context, node *graph.Node) (executor.Outcome, error) {
	hooks := s.engine.hooks
	started := s.engine.now()

	ctx, span := s.engine.tracer.Start(ctx, "node:"+node.ID, trace.WithAttributes(
		attribute.String("flowengine.node_id", node.ID),
		attribute.String("flowengine.node_type", string(node.Type)),
	))
	defer span.End()

	if hooks.OnNodeEnter != nil {
		hooks.OnNodeEnter(ctx, &domain.NodeEvent{
			EventBase: s.base(domain.EventNodeEnter),
			NodeID:    node.ID,
			NodeType:  node.Type,
		})
	}

	out, err := s.engine.registry.Execute(ctx, s.ec, node)
	s.merge(ctx, out)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if out.OutputLabel != "" {
		span.SetAttributes(attribute.String("flowengine.output_label", out.OutputLabel))
	}

	if hooks.OnNodeLeave != nil {
		hooks.OnNodeLeave(ctx, &domain.NodeEvent{
			EventBase:   s.base(domain.EventNodeLeave),
			NodeID:      node.ID,
			NodeType:    node.Type,
			OutputLabel: out.OutputLabel,
			Elapsed:     s.engine.now().Sub(started),
		})
	}
	return out, err
}

func (s *stepper) merge(ctx context.Context, out executor.Outcome) {
	s.res.Responses = append(s.res.Responses, out.Responses...)
	if len(out.QuickReplies) > 0 || out.AwaitsInput {
		s.res.QuickReplies = out.QuickReplies
	}
	s.res.SideEffects = append(s.res.SideEffects, out.SideEffects...)
	s.res.Errors = append(s.res.Errors, out.Errors...)

	if s.engine.hooks.OnSideEffect != nil {
		for _, se := range out.SideEffects {
			s.engine.hooks.OnSideEffect(ctx, &domain.SideEffectEvent{
				EventBase: s.base(domain.EventSideEffect),
				Effect:    se,
			})
		}
	}
}

// finish commits the working session. at is the interactive node the
// session now waits at, or nil when the conversation ended.
func (s *stepper) finish(work *domain.Session, at *graph.Node) *domain.Session {
	work.UpdatedAt = s.ec.Now
	if at == nil {
		work.Status = domain.SessionEnded
		work.CurrentNodeID = ""
		s.res.Ended = true
		s.res.QuickReplies = nil
	} else {
		work.Status = domain.SessionActive
		work.CurrentNodeID = at.ID
		s.res.CurrentNodeID = at.ID
	}
	return work
}

// fail handles a step that cannot advance. A NoMatchError re-prompts; any
// other problem is a configuration error that aborts the step. Either way
// the session stays where it was.
func (s *stepper) fail(ctx context.Context, err error) (*domain.Session, domain.StepOutcome, error) {
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}

	s.res.CurrentNodeID = s.orig.CurrentNodeID
	s.res.Ended = false

	var noMatch *domain.NoMatchError
	if errors.As(err, &noMatch) {
		node, _ := s.graph.Node(noMatch.NodeID)
		s.res.NoMatch = true
		s.res.Responses = nil
		s.res.QuickReplies = nil
		if s.engine.fallback != "" {
			s.res.Responses = append(s.res.Responses, s.engine.fallback)
		}
		if node != nil {
			prompt := s.engine.registry.Prompt(&executor.Context{Session: s.orig.Clone(), Inbound: s.ec.Inbound, Now: s.ec.Now}, node)
			s.res.Responses = append(s.res.Responses, prompt.Responses...)
			s.res.QuickReplies = prompt.QuickReplies
		}
		return s.touched(), domain.OutcomeNoMatch, nil
	}

	var cfg *domain.ConfigurationError
	if !errors.As(err, &cfg) {
		cfg = &domain.ConfigurationError{NodeID: s.orig.CurrentNodeID, Reason: "step failed", Err: err}
		err = cfg
	}

	s.engine.logger.Error("flow configuration error",
		"session_id", s.orig.ID,
		"bot_id", s.orig.BotID,
		"flow_id", s.graph.FlowID(),
		"node_id", cfg.NodeID,
		"error", err,
	)

	s.res.Responses = []string{s.engine.errorMessage}
	s.res.QuickReplies = nil
	s.res.Errors = append(s.res.Errors, err)

	if s.engine.notifier != nil {
		msg := fmt.Sprintf("Flow %s: %s", s.graph.FlowID(), err.Error())
		if nerr := s.engine.notifier.NotifyOwner(context.WithoutCancel(ctx), s.orig.BotID, msg); nerr != nil {
			s.engine.logger.Warn("failed to notify owner of configuration error", "bot_id", s.orig.BotID, "error", nerr)
		}
	}
	return s.touched(), domain.OutcomeConfigError, nil
}

// touched is the original session with only UpdatedAt moved to this step,
// so retries count as activity for the idle timeout.
func (s *stepper) touched() *domain.Session {
	out := s.orig.Clone()
	if s.ec.Now.After(out.UpdatedAt) {
		out.UpdatedAt = s.ec.Now
	}
	return out
}
