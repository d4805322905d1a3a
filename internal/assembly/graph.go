package assembly

import (
	"sort"

	"openmatch/internal/solution"
)

// buildGraph turns each tree's depends_on edges into prerequisite adjacency.
// graph[id] lists the trees that must complete before id can be produced.
// Edges pointing at ids not present in trees are returned in missing instead
// of entering the graph, so a damaged solution cannot wedge the scheduler.
func buildGraph(trees []*solution.SupplyTree) (graph map[string][]string, missing []string) {
	known := make(map[string]bool, len(trees))
	for _, t := range trees {
		known[t.ID] = true
	}
	graph = make(map[string][]string)
	for _, t := range trees {
		for _, dep := range t.DependsOn {
			if !known[dep] {
				missing = append(missing, dep)
				continue
			}
			graph[t.ID] = append(graph[t.ID], dep)
		}
	}
	for id := range graph {
		graph[id] = dedupSorted(graph[id])
	}
	return graph, missing
}

const (
	colorWhite = iota
	colorGrey
	colorBlack
)

// detectCycle runs a three-colour depth-first search over the prerequisite
// graph. Roots are visited in sorted order so the same input always reports
// the same cycle. Returns the cycle path, closed on the repeated id, or nil.
func detectCycle(ids []string, graph map[string][]string) []string {
	color := make(map[string]int, len(ids))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = colorGrey
		path = append(path, id)
		for _, dep := range graph[id] {
			switch color[dep] {
			case colorGrey:
				for i, p := range path {
					if p == dep {
						cycle = append(cycle, path[i:]...)
						cycle = append(cycle, dep)
						return true
					}
				}
				// dep is grey so it is on the path; unreachable.
				cycle = []string{dep, id, dep}
				return true
			case colorWhite:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = colorBlack
		return false
	}

	for _, id := range ids {
		if color[id] == colorWhite {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// layerStages performs Kahn layering over the prerequisite graph. Stage 0
// holds every tree with no prerequisites; each later stage holds the trees
// whose prerequisites all completed in earlier stages. Trees within a stage
// are sorted by id. If some trees never become ready the graph still holds a
// cycle and the leftovers are reported.
func layerStages(ids []string, graph map[string][]string) ([][]string, error) {
	indegree := make(map[string]int, len(ids))
	dependents := make(map[string][]string)
	for _, id := range ids {
		indegree[id] = len(graph[id])
		for _, dep := range graph[id] {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var current []string
	for _, id := range ids {
		if indegree[id] == 0 {
			current = append(current, id)
		}
	}

	var stages [][]string
	processed := 0
	for len(current) > 0 {
		sort.Strings(current)
		stages = append(stages, current)
		processed += len(current)

		var next []string
		for _, done := range current {
			for _, waiting := range dependents[done] {
				indegree[waiting]--
				if indegree[waiting] == 0 {
					next = append(next, waiting)
				}
			}
		}
		current = next
	}

	if processed != len(ids) {
		var leftover []string
		for _, id := range ids {
			if indegree[id] > 0 {
				leftover = append(leftover, id)
			}
		}
		return nil, &CircularDependencyError{Cycle: leftover}
	}
	return stages, nil
}

func dedupSorted(in []string) []string {
	if len(in) == 0 {
		return in
	}
	sort.Strings(in)
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
