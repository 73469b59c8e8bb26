// Package http exposes the flow engine over a REST API: flow management for
// the builder, the test-run endpoint and inbound chat delivery.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/botaas/flowengine/internal/logging"
	"github.com/botaas/flowengine/internal/sanitize"
	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/ports"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// Engine is the part of the flow engine the API drives.
type Engine interface {
	HandleInbound(ctx context.Context, in domain.Inbound) (*domain.ExecutionResult, error)
	ExecuteFlow(ctx context.Context, botID, flowID domain.ID, message, userID, sessionID string) (*domain.ExecutionResult, error)
	Validate(flow *domain.Flow) ([]string, error)
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server holds the handler dependencies.
type Server struct {
	engine  Engine
	flows   ports.FlowStore
	logger  *slog.Logger
	metrics http.Handler
}

// NewHandler builds the router.
func NewHandler(engine Engine, flows ports.FlowStore, opts ...Option) http.Handler {
	s := &Server{engine: engine, flows: flows, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/flows/{botID}", func(r chi.Router) {
		r.Get("/", s.listFlows)
		r.Post("/", s.createFlow)
		r.Route("/{flowID}", func(r chi.Router) {
			r.Get("/", s.getFlow)
			r.Put("/", s.updateFlow)
			r.Delete("/", s.deleteFlow)
			r.Post("/activate", s.setActive(true))
			r.Post("/deactivate", s.setActive(false))
			r.Post("/set-default", s.setDefault)
			r.Post("/execute", s.execute)
		})
	})
	r.Post("/bots/{botID}/messages", s.inbound)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type flowResponse struct {
	*domain.Flow
	Warnings []string `json:"warnings,omitempty"`
}

func (s *Server) listFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.flows.List(r.Context(), botID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

func (s *Server) getFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.flows.Get(r.Context(), botID(r), flowID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

func (s *Server) createFlow(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.readFlow(w, r)
	if !ok {
		return
	}
	warnings, ok := s.checkSavable(w, flow)
	if !ok {
		return
	}
	created, err := s.flows.Create(r.Context(), flow)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, flowResponse{Flow: created, Warnings: warnings})
}

func (s *Server) updateFlow(w http.ResponseWriter, r *http.Request) {
	prev, err := s.flows.Get(r.Context(), botID(r), flowID(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	flow, ok := s.readFlow(w, r)
	if !ok {
		return
	}
	flow.ID = prev.ID
	// The builder always sends is_default=false; the flag only moves through set-default.
	flow.IsDefault = flow.IsDefault || prev.IsDefault
	warnings, ok := s.checkSavable(w, flow)
	if !ok {
		return
	}
	updated, err := s.flows.Update(r.Context(), flow)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Flow: updated, Warnings: warnings})
}

// readFlow decodes a flow document for the bot in the path.
func (s *Server) readFlow(w http.ResponseWriter, r *http.Request) (*domain.Flow, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		writeProblem(w, http.StatusRequestEntityTooLarge, "body_too_large", err.Error())
		return nil, false
	}
	if err := checkFlowDocument(raw); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_document", err.Error())
		return nil, false
	}

	var flow domain.Flow
	if err := json.Unmarshal(raw, &flow); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_document", err.Error())
		return nil, false
	}
	flow.BotID = botID(r)
	return &flow, true
}

// checkSavable compiles flow. Drafts may be saved while invalid; an active
// or default flow must compile.
func (s *Server) checkSavable(w http.ResponseWriter, flow *domain.Flow) ([]string, bool) {
	warnings, err := s.engine.Validate(flow)
	if err != nil && (flow.IsActive || flow.IsDefault) {
		s.writeError(w, err)
		return nil, false
	}
	return warnings, true
}

func (s *Server) deleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := s.flows.Delete(r.Context(), botID(r), flowID(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if active {
			if _, ok := s.validStored(w, r); !ok {
				return
			}
		}
		if err := s.flows.SetActive(r.Context(), botID(r), flowID(r), active); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) setDefault(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.validStored(w, r); !ok {
		return
	}
	if err := s.flows.SetDefault(r.Context(), botID(r), flowID(r)); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validStored loads the addressed flow and refuses it if it does not compile.
func (s *Server) validStored(w http.ResponseWriter, r *http.Request) (*domain.Flow, bool) {
	flow, err := s.flows.Get(r.Context(), botID(r), flowID(r))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if _, err := s.engine.Validate(flow); err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return flow, true
}

type executeRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	res, err := s.engine.ExecuteFlow(r.Context(), botID(r), flowID(r), req.Message, req.UserID, req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type inboundRequest struct {
	UserID    domain.ID `json:"user_id"`
	ChatID    domain.ID `json:"chat_id"`
	MessageID domain.ID `json:"message_id"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Button    string    `json:"button"`
}

func (s *Server) inbound(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	res, err := s.engine.HandleInbound(r.Context(), domain.Inbound{
		BotID:     botID(r),
		UserID:    string(req.UserID),
		ChatID:    string(req.ChatID),
		MessageID: string(req.MessageID),
		SessionID: req.SessionID,
		Text:      req.Text,
		Button:    req.Button,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		s.logger.Warn("invalid request body", "path", r.URL.Path, "error", err)
		return false
	}
	return true
}

func botID(r *http.Request) domain.ID  { return domain.ID(chi.URLParam(r, "botID")) }
func flowID(r *http.Request) domain.ID { return domain.ID(chi.URLParam(r, "flowID")) }

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error      string             `json:"error"`
	Message    string             `json:"message"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		invalid *domain.InvalidFlowError
		timeout *domain.SessionLockTimeoutError
	)
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "invalid_flow", Message: err.Error(), Violations: invalid.Violations,
		})
	case errors.As(err, &timeout):
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusServiceUnavailable, "session_busy", err.Error())
	case errors.Is(err, domain.ErrFlowNotFound), errors.Is(err, domain.ErrNoDefaultFlow), errors.Is(err, domain.ErrSessionNotFound):
		writeProblem(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInputTooLarge):
		writeProblem(w, http.StatusRequestEntityTooLarge, "input_too_large", err.Error())
	case errors.Is(err, sanitize.ErrInvalidUTF8):
		writeProblem(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, context.Canceled):
		writeProblem(w, 499, "canceled", err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeProblem(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeProblem(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
