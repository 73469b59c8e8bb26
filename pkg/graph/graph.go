// Package graph compiles a stored flow into an executable, validated graph.
//
// Compilation decodes every node's data into its typed form, builds the
// source -> edges adjacency index and reports all violations at once as a
// domain.InvalidFlowError. A compiled Graph is immutable and safe to share
// between concurrent steps.
package graph

import "github.com/botaas/flowengine/pkg/domain"

// Node is a compiled node.
type Node struct {
	ID    string
	Label string
	Type  domain.NodeType
	Data  domain.NodeData
}

// Graph is the compiled, read-only form of a flow.
type Graph struct {
	flowID    domain.ID
	botID     domain.ID
	variables domain.Variables
	entry     *Node
	order     []*Node
	nodes     map[string]*Node
	outgoing  map[string][]domain.Edge
	warnings  []string
}

// FlowID returns the id of the compiled flow.
func (g *Graph) FlowID() domain.ID { return g.flowID }

// BotID returns the owning bot.
func (g *Graph) BotID() domain.ID { return g.botID }

// Variables returns a copy of the flow's initial variables.
func (g *Graph) Variables() domain.Variables { return g.variables.Clone() }

// Entry returns the node a fresh session starts at.
func (g *Graph) Entry() *Node { return g.entry }

// Node looks a node up by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns the nodes in author order.
func (g *Graph) Nodes() []*Node { return g.order }

// Outgoing returns the edges leaving id in insertion order.
func (g *Graph) Outgoing(id string) []domain.Edge { return g.outgoing[id] }

// Warnings lists non-fatal findings such as unreachable nodes.
func (g *Graph) Warnings() []string { return g.warnings }
