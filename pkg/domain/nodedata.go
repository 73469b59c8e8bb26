package domain

import "time"

// NodeType is the data.type discriminator of a node.
type NodeType string

const (
	NodeStart     NodeType = "start"
	NodeMessage   NodeType = "message"
	NodeCondition NodeType = "condition"
	NodeAction    NodeType = "action"
	NodeWebhook   NodeType = "webhook"
	NodeInput     NodeType = "input"
	NodeEnd       NodeType = "end"
)

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	switch t {
	case NodeStart, NodeMessage, NodeCondition, NodeAction, NodeWebhook, NodeInput, NodeEnd:
		return true
	}
	return false
}

// Interactive reports whether a node of this type pauses for user input.
func (t NodeType) Interactive() bool {
	return t == NodeMessage || t == NodeInput
}

// NodeData is the decoded payload of a node. The set of implementations is
// closed to this package.
type NodeData interface {
	Type() NodeType
	nodeData()
}

// StartData marks the flow entry.
type StartData struct{}

// MessageData sends content and waits for a reply.
type MessageData struct {
	Content      string
	QuickReplies []string
}

// ConditionType selects the predicate a condition node applies.
type ConditionType string

const (
	ConditionEquals     ConditionType = "equals"
	ConditionContains   ConditionType = "contains"
	ConditionNumber     ConditionType = "number"
	ConditionEmail      ConditionType = "email"
	ConditionPhone      ConditionType = "phone_number"
	ConditionDate       ConditionType = "date"
	ConditionRegex      ConditionType = "regex"
	ConditionToxicity   ConditionType = "toxicity"
	ConditionExpression ConditionType = "expression"
)

// InputSource says where a condition reads the value it tests.
type InputSource string

const (
	SourceMessage  InputSource = "message"
	SourceVariable InputSource = "variable"
)

// DefaultToxicitySensitivity applies when a toxicity condition sets none.
const DefaultToxicitySensitivity = 0.5

// ConditionData evaluates a predicate and routes on "true"/"false".
type ConditionData struct {
	ConditionType       ConditionType
	ConditionValue      string
	ToxicitySensitivity float64
	InputSource         InputSource
	InputVariable       string
}

// ActionType selects what an action node does.
type ActionType string

const (
	ActionSetVariable   ActionType = "set_variable"
	ActionSendEmail     ActionType = "send_email"
	ActionLogEvent      ActionType = "log_event"
	ActionNotifyOwner   ActionType = "notify_owner"
	ActionBanChatMember ActionType = "ban_chat_member"
	ActionDeleteMessage ActionType = "delete_message"
)

// DurationUnit is the unit of a ban duration.
type DurationUnit string

const (
	UnitMinutes DurationUnit = "minutes"
	UnitHours   DurationUnit = "hours"
	UnitDays    DurationUnit = "days"
	UnitWeeks   DurationUnit = "weeks"
	UnitMonths  DurationUnit = "months"
)

// ActionData performs one side effect and continues.
type ActionData struct {
	ActionType ActionType

	VariableName  string
	VariableValue string

	EmailTo      string
	EmailSubject string
	EmailBody    string

	EventName string
	EventData map[string]string

	Message string

	// DurationValue is nil for a permanent ban.
	DurationValue  *float64
	DurationUnit   DurationUnit
	RevokeMessages bool

	// MessageID targets delete_message; empty means the inbound message.
	MessageID string
}

// WebhookData calls an external HTTP endpoint.
type WebhookData struct {
	URL               string
	Method            string
	Headers           map[string]string
	Body              any
	ResponseVariables map[string]string
	Timeout           time.Duration
}

// InputData prompts and captures the next reply into a variable.
type InputData struct {
	VariableName string
	Content      string
	Pattern      string
}

// EndData terminates the conversation, optionally with a farewell.
type EndData struct {
	Content string
}

func (StartData) Type() NodeType     { return NodeStart }
func (MessageData) Type() NodeType   { return NodeMessage }
func (ConditionData) Type() NodeType { return NodeCondition }
func (ActionData) Type() NodeType    { return NodeAction }
func (WebhookData) Type() NodeType   { return NodeWebhook }
func (InputData) Type() NodeType     { return NodeInput }
func (EndData) Type() NodeType       { return NodeEnd }

func (StartData) nodeData()     {}
func (MessageData) nodeData()   {}
func (ConditionData) nodeData() {}
func (ActionData) nodeData()    {}
func (WebhookData) nodeData()   {}
func (InputData) nodeData()     {}
func (EndData) nodeData()       {}

// Output labels produced by non-condition executors.
const (
	LabelNext    = "next"
	LabelDone    = "done"
	LabelSuccess = "success"
	LabelError   = "error"
	LabelTrue    = "true"
	LabelFalse   = "false"
)
