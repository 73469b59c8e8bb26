// Package dto holds the wire shapes of node data as the builder writes them.
// They are decoded with mapstructure from the untyped data object and then
// validated before being turned into domain.NodeData.
package dto

// MessageData is the payload of a message node.
type MessageData struct {
	Content      string   `mapstructure:"content"`
	QuickReplies []string `mapstructure:"quick_replies"`
}

// ConditionData is the payload of a condition node. The builder has shipped
// both snake_case and camelCase keys for the type and value.
type ConditionData struct {
	ConditionType       string   `mapstructure:"condition_type"`
	ConditionTypeCamel  string   `mapstructure:"conditionType"`
	ConditionValue      string   `mapstructure:"condition_value"`
	ConditionValueCamel string   `mapstructure:"conditionValue"`
	ToxicitySensitivity *float64 `mapstructure:"toxicity_sensitivity" validate:"omitempty,gte=0,lte=1"`
	InputSource         string   `mapstructure:"input_source" validate:"omitempty,oneof=message variable"`
	InputVariable       string   `mapstructure:"input_variable" validate:"required_if=InputSource variable"`
}

// Type returns whichever spelling of the condition type is set.
func (c ConditionData) Type() string {
	if c.ConditionType != "" {
		return c.ConditionType
	}
	return c.ConditionTypeCamel
}

// Value returns whichever spelling of the condition value is set.
func (c ConditionData) Value() string {
	if c.ConditionValue != "" {
		return c.ConditionValue
	}
	return c.ConditionValueCamel
}

// ActionData is the payload of an action node.
type ActionData struct {
	ActionType string `mapstructure:"action_type" validate:"required,oneof=set_variable send_email log_event notify_owner ban_chat_member delete_message"`

	VariableName  string `mapstructure:"variable_name" validate:"required_if=ActionType set_variable"`
	VariableValue string `mapstructure:"variable_value"`
	Value         string `mapstructure:"value"`

	EmailTo      string `mapstructure:"email_to" validate:"required_if=ActionType send_email"`
	EmailSubject string `mapstructure:"email_subject"`
	EmailBody    string `mapstructure:"email_body"`

	EventName string         `mapstructure:"event_name"`
	EventData map[string]any `mapstructure:"event_data"`

	Message string `mapstructure:"message"`

	CustomDurationValue *float64 `mapstructure:"custom_duration_value"`
	CustomDurationUnit  string   `mapstructure:"custom_duration_unit" validate:"omitempty,oneof=minutes hours days weeks months"`
	RevokeMessages      bool     `mapstructure:"revoke_messages"`

	MessageID string `mapstructure:"message_id"`
}

// WebhookData is the payload of a webhook node. Headers, body and
// response_variables arrive either as JSON text from the form editor or as
// already-structured values.
type WebhookData struct {
	URL               string `mapstructure:"url"`
	WebhookURL        string `mapstructure:"webhookUrl"`
	Method            string `mapstructure:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE get post put patch delete"`
	Headers           any    `mapstructure:"headers"`
	Body              any    `mapstructure:"body"`
	ResponseVariables any    `mapstructure:"response_variables"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds" validate:"omitempty,min=1,max=30"`
}

// Endpoint returns the URL under either key.
func (w WebhookData) Endpoint() string {
	if w.URL != "" {
		return w.URL
	}
	return w.WebhookURL
}

// InputData is the payload of an input node.
type InputData struct {
	VariableName string `mapstructure:"variable_name" validate:"required"`
	Content      string `mapstructure:"content"`
	Pattern      string `mapstructure:"pattern"`
}

// EndData is the payload of an end node.
type EndData struct {
	Content string `mapstructure:"content"`
}
