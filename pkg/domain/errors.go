package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// ErrFlowNotFound is returned when a flow does not exist for the bot.
var ErrFlowNotFound = errors.New("flow not found")

// ErrNoDefaultFlow is returned when a bot has no active default flow.
var ErrNoDefaultFlow = errors.New("bot has no active default flow")

// ErrFlowInactive is returned when a message targets a deactivated flow.
var ErrFlowInactive = errors.New("flow is not active")

// ErrInputTooLarge is returned when an inbound message exceeds the size limit.
var ErrInputTooLarge = errors.New("input exceeds maximum size")

// Violation is a single load-time problem found in a flow.
type Violation struct {
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	switch {
	case v.NodeID != "":
		return fmt.Sprintf("node %q: %s", v.NodeID, v.Message)
	case v.EdgeID != "":
		return fmt.Sprintf("edge %q: %s", v.EdgeID, v.Message)
	}
	return v.Message
}

// InvalidFlowError lists every violation found while loading a flow.
type InvalidFlowError struct {
	FlowID     ID
	Violations []Violation
}

func (e *InvalidFlowError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid flow %q: %d violation(s): %s", e.FlowID, len(parts), strings.Join(parts, "; "))
}

// ConfigurationError is an execution-time authoring mistake attributable to a node.
type ConfigurationError struct {
	NodeID string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error at node %q: %s", e.NodeID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NoMatchError means the user's reply matched no outgoing edge.
type NoMatchError struct {
	NodeID string
	Input  string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("no edge from node %q matches input %q", e.NodeID, e.Input)
}

// SideEffectError reports a failed external effect. It never aborts a step.
type SideEffectError struct {
	NodeID string
	Effect SideEffectType
	Err    error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("%s failed at node %q: %v", e.Effect, e.NodeID, e.Err)
}

func (e *SideEffectError) Unwrap() error { return e.Err }

// SessionLockTimeoutError means another step held the session lock too long.
// The inbound delivery is safe to retry.
type SessionLockTimeoutError struct {
	SessionID string
	Timeout   time.Duration
}

func (e *SessionLockTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for lock on session %q", e.Timeout, e.SessionID)
}
