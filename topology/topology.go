// Package topology builds validated workflow graphs and computes their
// execution layering. Validation distinguishes cycles from disconnected
// islands so callers can surface each as its own error kind.
package topology

import (
	"sort"

	"github.com/juju/errors"

	"github.com/coreason/maco/types"
)

// BuildGraph translates a manifest into the internal graph and validates it.
// Per-type manifest fields live in each node's generic config map so the
// runner never needs concrete node-type schemas.
func BuildGraph(manifest *types.Manifest) (*types.Graph, error) {
	if manifest == nil {
		return nil, errors.BadRequestf("manifest is required")
	}

	graph := types.NewGraph(manifest.Name)
	for _, node := range manifest.Nodes {
		kind := node.Type
		if kind == "" {
			kind = types.KindDefault
		}
		config := node.Config
		if config == nil {
			config = types.Data{}
		}
		if err := graph.AddNode(&types.Node{ID: node.ID, Kind: kind, Config: config}); err != nil {
			return nil, errors.Trace(err)
		}
	}
	for _, edge := range manifest.Edges {
		e := &types.Edge{Source: edge.Source, Target: edge.Target, Condition: edge.Condition}
		if err := graph.AddEdge(e); err != nil {
			return nil, errors.Trace(err)
		}
	}

	if err := ValidateGraph(graph); err != nil {
		return nil, errors.Trace(err)
	}
	return graph, nil
}

// ValidateGraph fails with CycleError when the graph is not a DAG, and with
// IslandError when a non-empty graph is not weakly connected.
func ValidateGraph(graph *types.Graph) error {
	if _, err := peelLayers(graph); err != nil {
		return errors.Trace(err)
	}
	if graph.Len() > 0 && !weaklyConnected(graph) {
		return types.NewIslandErrorf("workflow graph contains disconnected islands")
	}
	return nil
}

// ExecutionLayers returns the topological generations of the graph: layer k
// holds exactly the nodes whose predecessors all live in layers < k. Node
// order within a layer is sorted so event sequences are deterministic.
func ExecutionLayers(graph *types.Graph) ([][]string, error) {
	layers, err := peelLayers(graph)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return layers, nil
}

func peelLayers(graph *types.Graph) ([][]string, error) {
	indegree := make(map[string]int, graph.Len())
	for _, id := range graph.NodeIDs() {
		indegree[id] = len(graph.InEdges(id))
	}

	ready := make([]string, 0)
	for _, id := range graph.NodeIDs() {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	layers := make([][]string, 0)
	seen := 0
	for len(ready) > 0 {
		sort.Strings(ready)
		layer := ready
		layers = append(layers, layer)
		seen += len(layer)

		ready = nil
		for _, id := range layer {
			for _, succ := range graph.Successors(id) {
				if indegree[succ]--; indegree[succ] == 0 {
					ready = append(ready, succ)
				}
			}
		}
	}

	if seen != graph.Len() {
		return nil, types.NewCycleErrorf("workflow graph contains a cycle")
	}
	return layers, nil
}

func weaklyConnected(graph *types.Graph) bool {
	ids := graph.NodeIDs()
	if len(ids) == 0 {
		return true
	}

	visited := make(map[string]bool, len(ids))
	queue := []string{ids[0]}
	visited[ids[0]] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		neighbors := append(graph.Successors(id), graph.Predecessors(id)...)
		for _, n := range neighbors {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return len(visited) == len(ids)
}
