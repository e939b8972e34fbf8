package domain

// ComputeSuffixWeights returns, for every stage, the maximum sum of stage
// weights over all suffix paths starting at it. A suffix path follows any
// transition, never visits a stage twice and ends at an end stage, whose
// weight is included. Stages without a suffix path get no entry.
//
// Acyclic graphs are solved by a longest-path pass in reverse topological
// order. Graphs containing a cycle fall back to enumerating suffix paths.
func ComputeSuffixWeights(stages []*Stage) map[StageID]int {
	g := newStageGraph(stages)
	order, acyclic := g.topologicalOrder()
	if !acyclic {
		return weightsFromPaths(g, enumerateSuffixPaths(g))
	}

	weights := make(map[StageID]int, len(stages))
	for i := len(order) - 1; i >= 0; i-- {
		s := g.byID[order[i]]
		if s.IsEndStage() {
			weights[s.id] = s.weight
			continue
		}
		best, found := 0, false
		for _, t := range g.succ[s.id] {
			if w, ok := weights[t]; ok && (!found || w > best) {
				best, found = w, true
			}
		}
		if found {
			weights[s.id] = s.weight + best
		}
	}
	return weights
}

// SuffixPaths enumerates every suffix path of the graph, keyed by the first
// stage of the path. The enumeration is exponential in the worst case; use
// it for diagnostics, not on hot paths.
func SuffixPaths(stages []*Stage) map[StageID][][]StageID {
	return enumerateSuffixPaths(newStageGraph(stages))
}

// PathWeight sums the weights of the stages on a path
func PathWeight(stages []*Stage, path []StageID) int {
	byID := make(map[StageID]*Stage, len(stages))
	for _, s := range stages {
		byID[s.id] = s
	}
	total := 0
	for _, id := range path {
		if s, ok := byID[id]; ok {
			total += s.weight
		}
	}
	return total
}

type stageGraph struct {
	order []*Stage
	byID  map[StageID]*Stage
	succ  map[StageID][]StageID
	pred  map[StageID][]StageID
}

func newStageGraph(stages []*Stage) *stageGraph {
	g := &stageGraph{
		order: stages,
		byID:  make(map[StageID]*Stage, len(stages)),
		succ:  make(map[StageID][]StageID, len(stages)),
		pred:  make(map[StageID][]StageID, len(stages)),
	}
	for _, s := range stages {
		g.byID[s.id] = s
	}
	for _, s := range stages {
		for _, t := range s.Targets() {
			if _, ok := g.byID[t]; !ok {
				continue
			}
			g.succ[s.id] = append(g.succ[s.id], t)
			g.pred[t] = append(g.pred[t], s.id)
		}
	}
	return g
}

// topologicalOrder runs Kahn's algorithm. The second result is false if the
// graph contains a cycle.
func (g *stageGraph) topologicalOrder() ([]StageID, bool) {
	indegree := make(map[StageID]int, len(g.order))
	for _, s := range g.order {
		indegree[s.id] = len(g.pred[s.id])
	}
	var queue, order []StageID
	for _, s := range g.order {
		if indegree[s.id] == 0 {
			queue = append(queue, s.id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, t := range g.succ[id] {
			indegree[t]--
			if indegree[t] == 0 {
				queue = append(queue, t)
			}
		}
	}
	return order, len(order) == len(g.order)
}

// enumerateSuffixPaths seeds one path per end stage and keeps prepending
// predecessors that are not yet on the path until no new path appears.
func enumerateSuffixPaths(g *stageGraph) map[StageID][][]StageID {
	paths := make(map[StageID][][]StageID)

	var pending [][]StageID
	for _, s := range g.order {
		if s.IsEndStage() {
			pending = append(pending, []StageID{s.id})
		}
	}

	for len(pending) > 0 {
		var next [][]StageID
		for _, path := range pending {
			first := path[0]
			paths[first] = append(paths[first], path)
			for _, p := range g.pred[first] {
				if containsStage(path, p) {
					continue
				}
				longer := make([]StageID, 0, len(path)+1)
				longer = append(longer, p)
				longer = append(longer, path...)
				next = append(next, longer)
			}
		}
		pending = next
	}
	return paths
}

func weightsFromPaths(g *stageGraph, paths map[StageID][][]StageID) map[StageID]int {
	weights := make(map[StageID]int, len(paths))
	for first, list := range paths {
		best := 0
		for _, path := range list {
			sum := 0
			for _, id := range path {
				sum += g.byID[id].weight
			}
			if sum > best {
				best = sum
			}
		}
		weights[first] = best
	}
	return weights
}

func containsStage(path []StageID, id StageID) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}
