package graph

// Unreachable returns the ids of nodes that cannot be reached from the entry,
// in author order.
func (g *Graph) Unreachable() []string {
	if g.entry == nil {
		return nil
	}
	visited := map[string]bool{}
	queue := []string{g.entry.ID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, e := range g.outgoing[id] {
			if !visited[e.Target] {
				queue = append(queue, e.Target)
			}
		}
	}

	var out []string
	for _, n := range g.order {
		if !visited[n.ID] {
			out = append(out, n.ID)
		}
	}
	return out
}
