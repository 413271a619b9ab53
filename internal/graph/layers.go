package graph

// DependsOnFromEdges derives each node's dependency list from the incoming
// edge set. Dependency lists are a derived view of the edges, never
// hand-maintained, so the two representations cannot diverge.
func DependsOnFromEdges(p *Plan) map[string][]string {
	deps := make(map[string][]string, len(p.Nodes))
	for _, n := range p.Nodes {
		deps[n.ID] = nil
	}
	for _, e := range p.Edges {
		deps[e.Target] = append(deps[e.Target], e.Source)
	}
	return deps
}

// ExecutionLayers computes topological layers over the dependency edges:
// layer 0 holds nodes with no dependencies, layer N nodes whose dependencies
// all live in earlier layers. This mirrors how the orchestrator schedules a
// plan and is what the console shows as the execution order preview. When
// the graph contains a cycle the remaining nodes are emitted as one final
// layer so the function always terminates; Validate is the component that
// rejects cyclic plans.
func ExecutionLayers(p *Plan) [][]string {
	deps := DependsOnFromEdges(p)
	pending := make(map[string][]string, len(deps))
	for id, d := range deps {
		pending[id] = d
	}

	done := make(map[string]struct{}, len(pending))
	var layers [][]string
	for len(done) < len(pending) {
		var layer []string
		for _, n := range p.Nodes {
			if _, ok := done[n.ID]; ok {
				continue
			}
			ready := true
			for _, dep := range pending[n.ID] {
				if _, ok := done[dep]; !ok {
					ready = false
					break
				}
			}
			if ready {
				layer = append(layer, n.ID)
			}
		}
		if len(layer) == 0 {
			for _, n := range p.Nodes {
				if _, ok := done[n.ID]; !ok {
					layer = append(layer, n.ID)
				}
			}
			layers = append(layers, layer)
			break
		}
		layers = append(layers, layer)
		for _, id := range layer {
			done[id] = struct{}{}
		}
	}
	return layers
}

// NodeDepth returns each node's dependency depth (longest path from a root).
// The reconciler uses it for the deterministic fallback layout when the
// server supplies no position.
func NodeDepth(p *Plan) map[string]int {
	depth := make(map[string]int, len(p.Nodes))
	for i, layer := range ExecutionLayers(p) {
		for _, id := range layer {
			depth[id] = i
		}
	}
	return depth
}
