package domain

import "strings"

// Inbound is one user message delivered to a bot.
type Inbound struct {
	BotID ID
	// FlowID pins a specific flow; empty means the bot's default flow.
	FlowID    ID
	UserID    string
	SessionID string
	ChatID    string
	MessageID string
	Text      string
	// Button is the text of a tapped quick reply, if any.
	Button string
}

// Input returns the value that routing and conditions see.
func (in Inbound) Input() string {
	if in.Button != "" {
		return in.Button
	}
	return in.Text
}

// SideEffectType names the kind of external effect.
type SideEffectType string

const (
	EffectSetVariable   SideEffectType = "set_variable"
	EffectSendEmail     SideEffectType = "send_email"
	EffectLogEvent      SideEffectType = "log_event"
	EffectNotifyOwner   SideEffectType = "notify_owner"
	EffectBanChatMember SideEffectType = "ban_chat_member"
	EffectDeleteMessage SideEffectType = "delete_message"
	EffectWebhook       SideEffectType = "webhook"
	EffectClassifier    SideEffectType = "toxicity_classifier"
)

// Side effect statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// SideEffect summarizes one effect attempted during a step.
type SideEffect struct {
	NodeID string         `json:"node_id"`
	Type   SideEffectType `json:"type"`
	Status string         `json:"status"`
	Detail string         `json:"detail,omitempty"`
}

// StepResult is what the runtime produced for one inbound message.
type StepResult struct {
	Responses     []string
	QuickReplies  []string
	SideEffects   []SideEffect
	Errors        []error
	CurrentNodeID string
	Ended         bool
	// NoMatch is set when the reply matched no edge and the node was re-prompted.
	NoMatch bool
	Hops    int
}

// ExecutionResult is the transport-facing result of handling a message.
type ExecutionResult struct {
	BotResponse        string       `json:"bot_response"`
	Responses          []string     `json:"responses"`
	QuickReplies       []string     `json:"quick_replies"`
	SessionID          string       `json:"session_id"`
	FlowID             ID           `json:"flow_id"`
	CurrentNodeID      string       `json:"current_node_id,omitempty"`
	Ended              bool         `json:"ended"`
	SideEffectsSummary []SideEffect `json:"side_effects_summary"`
	Errors             []string     `json:"errors,omitempty"`
}

// NewExecutionResult flattens a step result for transport.
func NewExecutionResult(sessionID string, flowID ID, r *StepResult) *ExecutionResult {
	out := &ExecutionResult{
		Responses:          append([]string{}, r.Responses...),
		QuickReplies:       append([]string{}, r.QuickReplies...),
		SessionID:          sessionID,
		FlowID:             flowID,
		CurrentNodeID:      r.CurrentNodeID,
		Ended:              r.Ended,
		SideEffectsSummary: append([]SideEffect{}, r.SideEffects...),
	}
	out.BotResponse = strings.Join(r.Responses, "\n\n")
	for _, err := range r.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}
