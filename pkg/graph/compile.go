package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/botaas/flowengine/internal/dto"
	"github.com/botaas/flowengine/pkg/domain"
)

// DefaultWebhookTimeout applies when a webhook node sets no timeout_seconds.
const DefaultWebhookTimeout = 10 * time.Second

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Compile validates flow and builds its executable graph. All violations
// are collected and returned together as a *domain.InvalidFlowError.
func Compile(flow *domain.Flow) (*Graph, error) {
	if flow == nil {
		return nil, &domain.InvalidFlowError{Violations: []domain.Violation{{Message: "flow is nil"}}}
	}

	c := &compiler{
		g: &Graph{
			flowID:    flow.ID,
			botID:     flow.BotID,
			variables: flow.Variables.Clone(),
			nodes:     make(map[string]*Node, len(flow.Nodes)),
			outgoing:  make(map[string][]domain.Edge),
		},
	}

	if len(flow.Nodes) == 0 {
		c.fail(domain.Violation{Message: "flow has no nodes"})
	}

	var starts []*Node
	for i, raw := range flow.Nodes {
		n := c.node(i, raw)
		if n == nil {
			continue
		}
		if n.Type == domain.NodeStart {
			starts = append(starts, n)
		}
	}

	switch {
	case len(starts) == 1:
		c.g.entry = starts[0]
	case len(starts) > 1:
		ids := make([]string, len(starts))
		for i, s := range starts {
			ids[i] = s.ID
		}
		c.fail(domain.Violation{Message: fmt.Sprintf("flow has %d start nodes (%s); exactly one is allowed", len(starts), strings.Join(ids, ", "))})
	case len(c.g.order) > 0:
		c.g.entry = c.g.order[0]
		c.warn(fmt.Sprintf("flow has no start node; entering at first node %q", c.g.entry.ID))
	}

	for i, e := range flow.Edges {
		c.edge(i, e)
	}

	if len(c.violations) > 0 {
		return nil, &domain.InvalidFlowError{FlowID: flow.ID, Violations: c.violations}
	}

	for _, id := range c.g.Unreachable() {
		c.warn(fmt.Sprintf("node %q is unreachable from the entry", id))
	}
	for _, n := range c.g.order {
		if n.Type == domain.NodeEnd && len(c.g.outgoing[n.ID]) > 0 {
			c.warn(fmt.Sprintf("edges leaving end node %q are never followed", n.ID))
		}
	}
	return c.g, nil
}

type compiler struct {
	g          *Graph
	violations []domain.Violation
}

func (c *compiler) fail(v domain.Violation) { c.violations = append(c.violations, v) }

func (c *compiler) warn(msg string) { c.g.warnings = append(c.g.warnings, msg) }

func (c *compiler) node(i int, raw domain.Node) *Node {
	if raw.ID == "" {
		c.fail(domain.Violation{Message: fmt.Sprintf("node #%d has no id", i)})
		return nil
	}
	if _, dup := c.g.nodes[raw.ID]; dup {
		c.fail(domain.Violation{NodeID: raw.ID, Message: "duplicate node id"})
		return nil
	}

	typ := raw.Type()
	if !typ.Valid() {
		c.fail(domain.Violation{NodeID: raw.ID, Message: fmt.Sprintf("unknown node type %q", typ)})
		return nil
	}

	data, errs := decodeData(typ, raw.Data)
	for _, err := range errs {
		c.fail(domain.Violation{NodeID: raw.ID, Message: err.Error()})
	}
	if len(errs) > 0 {
		return nil
	}

	n := &Node{ID: raw.ID, Label: raw.Label, Type: typ, Data: data}
	c.g.nodes[n.ID] = n
	c.g.order = append(c.g.order, n)
	return n
}

func (c *compiler) edge(i int, e domain.Edge) {
	ref := e.ID
	if ref == "" {
		ref = fmt.Sprintf("#%d", i)
	}
	ok := true
	if e.Source == "" {
		c.fail(domain.Violation{EdgeID: ref, Message: "missing source"})
		ok = false
	} else if _, found := c.g.nodes[e.Source]; !found {
		c.fail(domain.Violation{EdgeID: ref, Message: fmt.Sprintf("source %q does not exist", e.Source)})
		ok = false
	}
	if e.Target == "" {
		c.fail(domain.Violation{EdgeID: ref, Message: "missing target"})
		ok = false
	} else if _, found := c.g.nodes[e.Target]; !found {
		c.fail(domain.Violation{EdgeID: ref, Message: fmt.Sprintf("target %q does not exist", e.Target)})
		ok = false
	}
	if ok {
		c.g.outgoing[e.Source] = append(c.g.outgoing[e.Source], e)
	}
}

func decodeData(typ domain.NodeType, raw map[string]any) (domain.NodeData, []error) {
	switch typ {
	case domain.NodeStart:
		return domain.StartData{}, nil

	case domain.NodeMessage:
		var w dto.MessageData
		if err := decodeWire(raw, &w); err != nil {
			return nil, []error{err}
		}
		return domain.MessageData{Content: w.Content, QuickReplies: w.QuickReplies}, nil

	case domain.NodeCondition:
		var w dto.ConditionData
		if err := decodeWire(raw, &w); err != nil {
			return nil, []error{err}
		}
		return conditionData(w)

	case domain.NodeAction:
		var w dto.ActionData
		if err := decodeWire(raw, &w); err != nil {
			return nil, []error{err}
		}
		return actionData(w), nil

	case domain.NodeWebhook:
		var w dto.WebhookData
		if err := decodeWire(raw, &w); err != nil {
			return nil, []error{err}
		}
		return webhookData(w)

	case domain.NodeInput:
		var w dto.InputData
		if err := decodeWire(raw, &w); err != nil {
			return nil, []error{err}
		}
		return domain.InputData{VariableName: w.VariableName, Content: w.Content, Pattern: w.Pattern}, nil

	case domain.NodeEnd:
		var w dto.EndData
		if err := decodeWire(raw, &w); err != nil {
			return nil, []error{err}
		}
		return domain.EndData{Content: w.Content}, nil
	}
	return nil, []error{fmt.Errorf("unknown node type %q", typ)}
}

// decodeWire maps the untyped data object onto a dto struct and validates it.
func decodeWire(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("malformed data: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fieldMessage(fe)
			}
			return errors.New(strings.Join(msgs, ", "))
		}
		return err
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", fe.Field(), fe.Param(), fe.Value())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag())
}

func conditionData(w dto.ConditionData) (domain.NodeData, []error) {
	d := domain.ConditionData{
		ConditionType:       domain.ConditionType(w.Type()),
		ConditionValue:      w.Value(),
		ToxicitySensitivity: domain.DefaultToxicitySensitivity,
		InputSource:         domain.InputSource(w.InputSource),
		InputVariable:       w.InputVariable,
	}
	if w.ToxicitySensitivity != nil {
		d.ToxicitySensitivity = *w.ToxicitySensitivity
	}
	if d.InputSource == "" {
		d.InputSource = domain.SourceMessage
	}

	var errs []error
	switch d.ConditionType {
	case "":
		errs = append(errs, errors.New("condition_type is required"))
	case domain.ConditionEquals, domain.ConditionContains, domain.ConditionNumber, domain.ConditionEmail,
		domain.ConditionPhone, domain.ConditionDate, domain.ConditionToxicity:
	case domain.ConditionRegex, domain.ConditionExpression:
		if strings.TrimSpace(d.ConditionValue) == "" {
			errs = append(errs, fmt.Errorf("condition_value is required for %s conditions", d.ConditionType))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown condition_type %q", d.ConditionType))
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return d, nil
}

func actionData(w dto.ActionData) domain.NodeData {
	d := domain.ActionData{
		ActionType:     domain.ActionType(w.ActionType),
		VariableName:   w.VariableName,
		VariableValue:  w.VariableValue,
		EmailTo:        w.EmailTo,
		EmailSubject:   w.EmailSubject,
		EmailBody:      w.EmailBody,
		EventName:      w.EventName,
		Message:        w.Message,
		DurationValue:  w.CustomDurationValue,
		DurationUnit:   domain.DurationUnit(w.CustomDurationUnit),
		RevokeMessages: w.RevokeMessages,
		MessageID:      w.MessageID,
	}
	if d.VariableValue == "" {
		d.VariableValue = w.Value
	}
	if d.DurationUnit == "" {
		d.DurationUnit = domain.UnitMinutes
	}
	if len(w.EventData) > 0 {
		d.EventData = make(map[string]string, len(w.EventData))
		for k, v := range w.EventData {
			d.EventData[k] = domain.Stringify(v)
		}
	}
	return d
}

func webhookData(w dto.WebhookData) (domain.NodeData, []error) {
	d := domain.WebhookData{
		URL:     strings.TrimSpace(w.Endpoint()),
		Method:  strings.ToUpper(w.Method),
		Timeout: DefaultWebhookTimeout,
	}
	if d.Method == "" {
		d.Method = "POST"
	}
	if w.TimeoutSeconds > 0 {
		d.Timeout = time.Duration(w.TimeoutSeconds) * time.Second
	}

	var errs []error
	if d.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}

	headers, err := parseJSONField(w.Headers)
	if err != nil {
		errs = append(errs, fmt.Errorf("headers: %w", err))
	} else if headers != nil {
		obj, ok := headers.(map[string]any)
		if !ok {
			errs = append(errs, errors.New("headers: must be a JSON object"))
		} else {
			d.Headers = make(map[string]string, len(obj))
			for k, v := range obj {
				d.Headers[k] = domain.Stringify(v)
			}
		}
	}

	body, err := parseJSONField(w.Body)
	if err != nil {
		errs = append(errs, fmt.Errorf("body: %w", err))
	} else {
		d.Body = body
	}

	vars, err := parseJSONField(w.ResponseVariables)
	if err != nil {
		errs = append(errs, fmt.Errorf("response_variables: %w", err))
	} else if vars != nil {
		obj, ok := vars.(map[string]any)
		if !ok {
			errs = append(errs, errors.New("response_variables: must be a JSON object of variable -> path"))
		} else {
			d.ResponseVariables = make(map[string]string, len(obj))
			for name, p := range obj {
				path, ok := p.(string)
				if !ok || path == "" {
					errs = append(errs, fmt.Errorf("response_variables: path for %q must be a non-empty string", name))
					continue
				}
				d.ResponseVariables[name] = path
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return d, nil
}

// parseJSONField accepts either JSON text from a form field or an already
// decoded value. Blank text means "not set".
func parseJSONField(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("malformed JSON: trailing data")
	}
	return out, nil
}
