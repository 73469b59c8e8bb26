package flowengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/botaas/flowengine/internal/logging"
	"github.com/botaas/flowengine/internal/runtime"
	"github.com/botaas/flowengine/internal/sanitize"
	"github.com/botaas/flowengine/pkg/condition"
	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/executor"
	"github.com/botaas/flowengine/pkg/graph"
	"github.com/botaas/flowengine/pkg/ports"
	"github.com/botaas/flowengine/pkg/session"
)

// DefaultSessionTimeout is how long a session may sit idle before the next
// message starts over.
const DefaultSessionTimeout = 24 * time.Hour

// Engine is the high-level entry point. It resolves the flow for an inbound
// message, serializes work per session and runs one step of the conversation.
type Engine struct {
	flows    ports.FlowRepository
	sessions *session.Manager
	cache    *graph.Cache
	runtime  *runtime.Engine
	logger   *slog.Logger
	now      func() time.Time

	sessionTimeout time.Duration
	maxInputSize   int
}

type config struct {
	logger         *slog.Logger
	hooks          domain.LifecycleHooks
	tracer         trace.Tracer
	now            func() time.Time
	maxHops        int
	fallback       string
	errorMessage   string
	sessionTimeout time.Duration
	maxInputSize   int
	cacheSize      int
	cacheTTL       time.Duration
	regexTimeout   time.Duration

	webhooks   ports.WebhookClient
	classifier ports.ToxicityClassifier
	admin      ports.ChatAdmin
	mailer     ports.Mailer
	notifier   ports.OwnerNotifier
	events     ports.EventSink

	locker      ports.DistributedLocker
	lockTTL     time.Duration
	lockTimeout time.Duration
}

// Option defines a functional option for configuring the Engine.
type Option func(*config)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(c *config) { c.hooks = hooks }
}

// WithTracerProvider traces steps and nodes with a tracer from tp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracer = tp.Tracer("github.com/botaas/flowengine") }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithMaxHops bounds how many non-interactive nodes one message may run.
func WithMaxHops(n int) Option {
	return func(c *config) { c.maxHops = n }
}

// WithFallbackMessage sets the text shown before a re-prompt when a reply
// matches no edge.
func WithFallbackMessage(msg string) Option {
	return func(c *config) { c.fallback = msg }
}

// WithErrorMessage sets the reply sent when a flow is misconfigured.
func WithErrorMessage(msg string) Option {
	return func(c *config) { c.errorMessage = msg }
}

// WithSessionTimeout sets the idle period after which a session restarts.
// Zero disables idle resets.
func WithSessionTimeout(d time.Duration) Option {
	return func(c *config) { c.sessionTimeout = d }
}

// WithMaxInputSize limits inbound text, in bytes.
func WithMaxInputSize(n int) Option {
	return func(c *config) { c.maxInputSize = n }
}

// WithGraphCache sizes the compiled graph cache.
func WithGraphCache(size int, ttl time.Duration) Option {
	return func(c *config) {
		c.cacheSize = size
		c.cacheTTL = ttl
	}
}

// WithRegexTimeout bounds a single regex condition match.
func WithRegexTimeout(d time.Duration) Option {
	return func(c *config) { c.regexTimeout = d }
}

// WithWebhookClient sets the client used by webhook nodes.
func WithWebhookClient(w ports.WebhookClient) Option {
	return func(c *config) { c.webhooks = w }
}

// WithClassifier enables toxicity conditions.
func WithClassifier(cl ports.ToxicityClassifier) Option {
	return func(c *config) { c.classifier = cl }
}

// WithChatAdmin sets the moderation backend for ban and delete actions.
func WithChatAdmin(a ports.ChatAdmin) Option {
	return func(c *config) { c.admin = a }
}

// WithMailer sets the mail backend for send_email actions.
func WithMailer(m ports.Mailer) Option {
	return func(c *config) { c.mailer = m }
}

// WithOwnerNotifier sets where notify_owner actions and configuration
// errors are reported.
func WithOwnerNotifier(n ports.OwnerNotifier) Option {
	return func(c *config) { c.notifier = n }
}

// WithEventSink sets the analytics sink for log_event actions.
func WithEventSink(s ports.EventSink) Option {
	return func(c *config) { c.events = s }
}

// WithLocker adds a distributed lock around each step, for deployments
// with more than one replica.
func WithLocker(l ports.DistributedLocker) Option {
	return func(c *config) { c.locker = l }
}

// WithLockTTL sets how long a distributed lock outlives a crashed holder.
func WithLockTTL(d time.Duration) Option {
	return func(c *config) { c.lockTTL = d }
}

// WithLockTimeout bounds how long a message waits for its session.
func WithLockTimeout(d time.Duration) Option {
	return func(c *config) { c.lockTimeout = d }
}

// New wires an Engine over a flow repository and a session store.
func New(flows ports.FlowRepository, sessions ports.SessionStore, opts ...Option) *Engine {
	c := &config{
		now:            time.Now,
		sessionTimeout: DefaultSessionTimeout,
		maxInputSize:   sanitize.DefaultMaxInputSize,
		regexTimeout:   condition.DefaultRegexTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}

	evaluator := condition.New(
		condition.WithClassifier(c.classifier),
		condition.WithRegexTimeout(c.regexTimeout),
	)
	registry := executor.NewRegistry(executor.Dependencies{
		Evaluator: evaluator,
		Webhooks:  c.webhooks,
		Admin:     c.admin,
		Mailer:    c.mailer,
		Notifier:  c.notifier,
		Events:    c.events,
		Logger:    c.logger,
	})

	rtOpts := []runtime.Option{
		runtime.WithLogger(c.logger),
		runtime.WithLifecycleHooks(c.hooks),
		runtime.WithClock(c.now),
		runtime.WithOwnerNotifier(c.notifier),
	}
	if c.maxHops > 0 {
		rtOpts = append(rtOpts, runtime.WithMaxHops(c.maxHops))
	}
	if c.fallback != "" {
		rtOpts = append(rtOpts, runtime.WithFallbackMessage(c.fallback))
	}
	if c.errorMessage != "" {
		rtOpts = append(rtOpts, runtime.WithErrorMessage(c.errorMessage))
	}
	if c.tracer != nil {
		rtOpts = append(rtOpts, runtime.WithTracer(c.tracer))
	}

	smOpts := []session.Option{session.WithLogger(c.logger)}
	if c.locker != nil {
		smOpts = append(smOpts, session.WithLocker(c.locker), session.WithLockTTL(c.lockTTL))
	}
	if c.lockTimeout > 0 {
		smOpts = append(smOpts, session.WithLockTimeout(c.lockTimeout))
	}

	return &Engine{
		flows:          flows,
		sessions:       session.NewManager(sessions, smOpts...),
		cache:          graph.NewCache(c.cacheSize, c.cacheTTL),
		runtime:        runtime.NewEngine(registry, rtOpts...),
		logger:         c.logger,
		now:            c.now,
		sessionTimeout: c.sessionTimeout,
		maxInputSize:   c.maxInputSize,
	}
}

// Sessions exposes the session manager.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Validate compiles flow and returns the non-fatal warnings, or a
// *domain.InvalidFlowError listing every violation.
func (e *Engine) Validate(flow *domain.Flow) ([]string, error) {
	g, err := graph.Compile(flow)
	if err != nil {
		return nil, err
	}
	return g.Warnings(), nil
}

// ExecuteFlow runs message against a specific flow of the bot, the way the
// builder's test panel does. An empty sessionID derives one from the bot and
// user. The flow does not need to be active.
func (e *Engine) ExecuteFlow(ctx context.Context, botID, flowID domain.ID, message, userID, sessionID string) (*domain.ExecutionResult, error) {
	if flowID == "" {
		return nil, fmt.Errorf("flow id is required: %w", domain.ErrFlowNotFound)
	}
	return e.HandleInbound(ctx, domain.Inbound{
		BotID:     botID,
		FlowID:    flowID,
		UserID:    userID,
		SessionID: sessionID,
		Text:      message,
	})
}

// HandleInbound processes one chat message. Without an explicit FlowID the
// session continues on its own flow, or starts on the bot's default flow.
func (e *Engine) HandleInbound(ctx context.Context, in domain.Inbound) (*domain.ExecutionResult, error) {
	if in.BotID == "" {
		return nil, errors.New("bot id is required")
	}
	var err error
	if in.Text, err = sanitize.Input(in.Text, e.maxInputSize); err != nil {
		return nil, err
	}
	if in.Button, err = sanitize.Input(in.Button, e.maxInputSize); err != nil {
		return nil, err
	}

	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = session.IDFor(in.BotID, in.UserID)
	}
	in.SessionID = sessionID

	var result *domain.ExecutionResult
	err = e.sessions.Transact(ctx, sessionID, func(ctx context.Context, current *domain.Session) (*domain.Session, error) {
		flow, err := e.resolveFlow(ctx, in, current)
		if err != nil {
			return nil, err
		}
		g, err := e.cache.Get(flow)
		if err != nil {
			return nil, err
		}

		now := e.now()
		sess := current
		if reason := e.resetReason(current, flow, now); reason != "" {
			if current != nil {
				e.logger.Debug("starting new session",
					"session_id", sessionID, "bot_id", in.BotID, "flow_id", flow.ID, "reason", reason)
			}
			sess = domain.NewSession(sessionID, flow, in.UserID, now)
		}

		res, next, err := e.runtime.Step(ctx, g, sess, in)
		if err != nil {
			return nil, err
		}
		result = domain.NewExecutionResult(sessionID, flow.ID, res)
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// resolveFlow picks the flow a message runs on: the explicit flow, then the
// session's flow while it is in progress and still active, then the default.
func (e *Engine) resolveFlow(ctx context.Context, in domain.Inbound, current *domain.Session) (*domain.Flow, error) {
	if in.FlowID != "" {
		return e.flows.Get(ctx, in.BotID, in.FlowID)
	}

	if current != nil && !current.Ended() && current.BotID == in.BotID && current.FlowID != "" {
		flow, err := e.flows.Get(ctx, in.BotID, current.FlowID)
		switch {
		case err == nil && flow.IsActive:
			return flow, nil
		case err == nil, errors.Is(err, domain.ErrFlowNotFound):
			e.logger.Info("session flow unavailable, falling back to default",
				"session_id", current.ID, "flow_id", current.FlowID)
		default:
			return nil, err
		}
	}

	return e.flows.GetDefault(ctx, in.BotID)
}

// resetReason explains why current cannot continue on flow, or returns ""
// when it can.
func (e *Engine) resetReason(current *domain.Session, flow *domain.Flow, now time.Time) string {
	switch {
	case current == nil:
		return "new"
	case current.Ended():
		return "ended"
	case current.BotID != flow.BotID || current.FlowID != flow.ID:
		return "flow_changed"
	case e.sessionTimeout > 0 && now.Sub(current.UpdatedAt) > e.sessionTimeout:
		return "idle"
	}
	return ""
}
