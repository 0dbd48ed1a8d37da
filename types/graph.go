package types

import (
	"github.com/juju/errors"
)

// Node is a single executable vertex of a recipe graph.
type Node struct {
	ID     string
	Kind   NodeKind
	Config Data
}

// Edge connects Source to Target. An empty Condition means the edge
// activates unconditionally once the source completes.
type Edge struct {
	Source    string
	Target    string
	Condition string
}

// Graph is the validated workflow DAG. It is built once per run and is
// immutable during execution; routing state lives in the runner, not here.
type Graph struct {
	Name string

	nodes map[string]*Node
	order []string

	out map[string][]*Edge
	in  map[string][]*Edge
}

func NewGraph(name string) *Graph {
	return &Graph{
		Name:  name,
		nodes: make(map[string]*Node),
		out:   make(map[string][]*Edge),
		in:    make(map[string][]*Edge),
	}
}

func (g *Graph) AddNode(node *Node) error {
	if node == nil || node.ID == "" {
		return errors.BadRequestf("node id is required")
	}
	if _, exists := g.nodes[node.ID]; exists {
		return errors.AlreadyExistsf("node: %s", node.ID)
	}
	if node.Config == nil {
		node.Config = Data{}
	}
	g.nodes[node.ID] = node
	g.order = append(g.order, node.ID)
	return nil
}

func (g *Graph) AddEdge(edge *Edge) error {
	if _, exists := g.nodes[edge.Source]; !exists {
		return errors.NotFoundf("edge source: %s", edge.Source)
	}
	if _, exists := g.nodes[edge.Target]; !exists {
		return errors.NotFoundf("edge target: %s", edge.Target)
	}
	g.out[edge.Source] = append(g.out[edge.Source], edge)
	g.in[edge.Target] = append(g.in[edge.Target], edge)
	return nil
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Node(id string) (*Node, bool) {
	n, exists := g.nodes[id]
	return n, exists
}

// NodeIDs returns node ids in insertion order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

func (g *Graph) OutEdges(id string) []*Edge {
	return g.out[id]
}

func (g *Graph) InEdges(id string) []*Edge {
	return g.in[id]
}

func (g *Graph) Predecessors(id string) []string {
	preds := make([]string, 0, len(g.in[id]))
	for _, e := range g.in[id] {
		preds = append(preds, e.Source)
	}
	return preds
}

func (g *Graph) Successors(id string) []string {
	succs := make([]string, 0, len(g.out[id]))
	for _, e := range g.out[id] {
		succs = append(succs, e.Target)
	}
	return succs
}
