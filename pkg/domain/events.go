package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter    EventType = "node_enter"
	EventNodeLeave    EventType = "node_leave"
	EventSideEffect   EventType = "side_effect"
	EventStepFinished EventType = "step_finished"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	BotID     ID        `json:"bot_id"`
	FlowID    ID        `json:"flow_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID      string        `json:"node_id"`
	NodeType    NodeType      `json:"node_type"`
	OutputLabel string        `json:"output_label,omitempty"`
	Elapsed     time.Duration `json:"elapsed,omitempty"`
}

// SideEffectEvent is emitted once per attempted side effect.
type SideEffectEvent struct {
	EventBase
	Effect SideEffect `json:"effect"`
}

// StepOutcome classifies how a step finished.
type StepOutcome string

const (
	OutcomeAwaiting    StepOutcome = "awaiting_input"
	OutcomeEnded       StepOutcome = "ended"
	OutcomeNoMatch     StepOutcome = "no_match"
	OutcomeConfigError StepOutcome = "configuration_error"
)

// StepEvent is emitted when a step completes, successfully or not.
type StepEvent struct {
	EventBase
	Outcome StepOutcome   `json:"outcome"`
	Hops    int           `json:"hops"`
	Elapsed time.Duration `json:"elapsed"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter    func(context.Context, *NodeEvent)
	OnNodeLeave    func(context.Context, *NodeEvent)
	OnSideEffect   func(context.Context, *SideEffectEvent)
	OnStepFinished func(context.Context, *StepEvent)
}
