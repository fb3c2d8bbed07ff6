package taskgraph

// TopologicalOrder orders a subset of the graph so every task follows its
// in-subset dependencies. Edges to tasks outside the subset are ignored.
// The order is computed fresh on every call.
func (g *Graph) TopologicalOrder(subset []string) ([]string, error) {
	for _, name := range subset {
		if !g.Has(name) {
			return nil, invalid(ErrInvalidTask, name, "task '%s' not found in graph", name)
		}
	}
	return KahnOrder(subset, g.DependenciesOf)
}

// KahnOrder applies Kahn's algorithm to names. The ready queue is FIFO and
// seeded in the order of names, so the result is deterministic. If some names
// cannot be ordered a *CycleError is returned.
func KahnOrder(names []string, depsOf func(string) []string) ([]string, error) {
	inSubset := make(map[string]bool, len(names))
	for _, n := range names {
		inSubset[n] = true
	}

	indegree := make(map[string]int, len(names))
	dependents := make(map[string][]string, len(names))
	for _, n := range names {
		for _, dep := range depsOf(n) {
			if !inSubset[dep] {
				continue
			}
			indegree[n]++
			dependents[dep] = append(dependents[dep], n)
		}
	}

	queue := make([]string, 0, len(names))
	for _, n := range names {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(names))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, d := range dependents[n] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(order) < len(names) {
		placed := make(map[string]bool, len(order))
		for _, n := range order {
			placed[n] = true
		}
		var remaining []string
		for _, n := range names {
			if !placed[n] {
				remaining = append(remaining, n)
			}
		}
		return nil, &CycleError{Ordered: order, Remaining: remaining}
	}
	return order, nil
}
