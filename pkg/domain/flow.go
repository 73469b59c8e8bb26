package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Flow is a bot's conversation graph as stored by the builder.
type Flow struct {
	ID          ID        `json:"id"`
	BotID       ID        `json:"bot_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	IsDefault   bool      `json:"is_default"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	Triggers    []any     `json:"triggers,omitempty"`
	Variables   Variables `json:"variables,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Node is a vertex of the flow. Data holds the raw, type-tagged payload;
// it is decoded into a NodeData when the flow is compiled.
type Node struct {
	ID       string         `json:"id"`
	Label    string         `json:"label,omitempty"`
	Data     map[string]any `json:"data"`
	Position *Position      `json:"position,omitempty"`
}

// Type returns the raw data.type discriminator.
func (n Node) Type() NodeType {
	if n.Data == nil {
		return ""
	}
	s, _ := n.Data["type"].(string)
	return NodeType(s)
}

// Position is the canvas location of a node in the builder.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge connects two nodes. Label is what the author sees on the canvas and
// doubles as the button text for interactive nodes; Condition, when set,
// names the output label that selects the edge.
type Edge struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Label     string `json:"label,omitempty"`
	Condition string `json:"condition,omitempty"`
}

// Variables is a flat string map. Scalars of other JSON types are
// stringified on decode so that builder payloads like {"count": 0} load.
type Variables map[string]string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Variables) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*v = nil
		return nil
	}
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("variables must be an object: %w", err)
	}
	out := make(Variables, len(raw))
	for k, val := range raw {
		out[k] = Stringify(val)
	}
	*v = out
	return nil
}

// Clone returns an independent copy.
func (v Variables) Clone() Variables {
	if v == nil {
		return nil
	}
	out := make(Variables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Stringify renders a decoded JSON value as variable text. Strings are
// returned as-is, null becomes empty, composites are re-encoded as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Clone returns a deep copy of the flow document.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		cp := *f
		return &cp
	}
	var out Flow
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *f
		return &cp
	}
	return &out
}

// NextRevision returns the timestamp a flow edit should carry: now at
// microsecond precision, strictly after prev so cached graphs keyed on it
// are always invalidated.
func NextRevision(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if !now.After(prev) {
		now = prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}
