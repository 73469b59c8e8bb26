// Package router selects the outgoing edge a step follows.
//
// Edges are always considered in insertion order and the first match wins.
// Condition nodes route on their "true"/"false" output; interactive nodes
// route on the user's reply or tapped button and fall back to a default
// edge; action and webhook nodes follow their single unconditional edge
// unless an edge names their output label.
package router

import (
	"fmt"
	"strings"

	"github.com/botaas/flowengine/pkg/domain"
	"github.com/botaas/flowengine/pkg/graph"
)

// Input is what the user sent in the current step.
type Input struct {
	Text   string
	Button string
}

// Route returns the id of the next node, or "" when the node has no way
// forward and the conversation ends there.
func Route(g *graph.Graph, node *graph.Node, outputLabel string, in Input) (string, error) {
	edges := g.Outgoing(node.ID)

	switch node.Type {
	case domain.NodeEnd:
		return "", nil

	case domain.NodeCondition:
		return routeCondition(node, edges, outputLabel)

	case domain.NodeMessage, domain.NodeInput:
		if len(edges) == 0 {
			return "", nil
		}
		e, ok := matchReply(edges, in)
		if !ok {
			return "", &domain.NoMatchError{NodeID: node.ID, Input: reply(in)}
		}
		return e.Target, nil

	case domain.NodeStart:
		if len(edges) == 0 {
			return "", nil
		}
		if e, ok := matchReply(edges, in); ok {
			return e.Target, nil
		}
		return edges[0].Target, nil
	}

	return routeOutput(node, edges, outputLabel)
}

func routeCondition(node *graph.Node, edges []domain.Edge, label string) (string, error) {
	for _, e := range edges {
		if e.Condition == label {
			return e.Target, nil
		}
	}
	// The builder's save path has shipped edges with only a label.
	for _, e := range edges {
		if e.Condition == "" && strings.EqualFold(strings.TrimSpace(e.Label), label) {
			return e.Target, nil
		}
	}
	return "", &domain.ConfigurationError{
		NodeID: node.ID,
		Reason: fmt.Sprintf("condition node has no %q edge", label),
	}
}

// matchReply finds the first edge whose label or condition equals the reply
// text or the tapped button, else the first default edge.
func matchReply(edges []domain.Edge, in Input) (domain.Edge, bool) {
	for _, e := range edges {
		if matchesValue(e.Label, in) || matchesValue(e.Condition, in) {
			return e, true
		}
	}
	for _, e := range edges {
		if isDefault(e) {
			return e, true
		}
	}
	return domain.Edge{}, false
}

func matchesValue(v string, in Input) bool {
	if v == "" {
		return false
	}
	return v == in.Text || (in.Button != "" && v == in.Button)
}

// isDefault reports whether e matches any reply: no condition, and a blank
// or "Next" label.
func isDefault(e domain.Edge) bool {
	if e.Condition != "" {
		return false
	}
	label := strings.TrimSpace(e.Label)
	return label == "" || strings.EqualFold(label, domain.LabelNext)
}

// routeOutput handles action and webhook nodes.
func routeOutput(node *graph.Node, edges []domain.Edge, label string) (string, error) {
	if len(edges) == 0 {
		return "", nil
	}

	for _, e := range edges {
		if e.Condition == label {
			return e.Target, nil
		}
	}
	for _, e := range edges {
		if e.Condition == "" && e.Label == label {
			return e.Target, nil
		}
	}

	var unconditional []domain.Edge
	for _, e := range edges {
		if e.Condition == "" && !isOutputLabel(e.Label) {
			unconditional = append(unconditional, e)
		}
	}

	switch {
	case label == domain.LabelError:
		return "", &domain.ConfigurationError{
			NodeID: node.ID,
			Reason: `side effect failed and the node has no "error" edge`,
		}
	case len(unconditional) == 1:
		return unconditional[0].Target, nil
	case len(unconditional) > 1:
		return "", &domain.ConfigurationError{
			NodeID: node.ID,
			Reason: fmt.Sprintf("%d unconditional edges; expected exactly one", len(unconditional)),
		}
	}
	return "", &domain.ConfigurationError{
		NodeID: node.ID,
		Reason: fmt.Sprintf("no edge for output %q", label),
	}
}

func isOutputLabel(s string) bool {
	switch s {
	case domain.LabelSuccess, domain.LabelError, domain.LabelDone:
		return true
	}
	return false
}

func reply(in Input) string {
	if in.Button != "" {
		return in.Button
	}
	return in.Text
}
