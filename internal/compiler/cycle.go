package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// DependencyCycle is a set of artifacts that (transitively) require each
// other. Such artifacts can never all become ready, so cycles are fatal.
type DependencyCycle struct {
	Path    []string `json:"path"` // ["a", "b", "a"]
	Message string   `json:"message"`
}

// FindDependencyCycles runs Tarjan's SCC algorithm over the artifact
// "requires" graph. Every SCC with more than one node, or a single node
// requiring itself, is reported. Output order is deterministic.
//
// References to undeclared artifacts are ignored here; Validate reports them.
func FindDependencyCycles(artifacts []ArtifactDoc) []DependencyCycle {
	graph := buildRequiresGraph(artifacts)

	var cycles []DependencyCycle
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	slices.SortFunc(cycles, func(a, b DependencyCycle) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return cycles
}

// dependencyGraph maps artifact id → artifacts it requires.
type dependencyGraph map[string][]string

func buildRequiresGraph(artifacts []ArtifactDoc) dependencyGraph {
	graph := make(dependencyGraph, len(artifacts))
	for _, a := range artifacts {
		if a.ID == "" {
			continue
		}
		if graph[a.ID] == nil {
			graph[a.ID] = []string{}
		}
	}
	for _, a := range artifacts {
		if a.ID == "" {
			continue
		}
		for _, req := range a.Requires {
			if _, declared := graph[req]; declared {
				graph[a.ID] = append(graph[a.ID], req)
			}
		}
		slices.Sort(graph[a.ID])
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are stable across runs.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// Root of an SCC: pop it off the stack
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func sccToCycle(scc []string, graph dependencyGraph) DependencyCycle {
	if len(scc) == 1 {
		id := scc[0]
		return DependencyCycle{
			Path:    []string{id, id},
			Message: fmt.Sprintf("artifact %q requires itself", id),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return DependencyCycle{
		Path:    path,
		Message: fmt.Sprintf("artifact dependency cycle: %s", strings.Join(path, " -> ")),
	}
}

// reconstructCyclePath returns the shortest cycle through the SCC's first
// (smallest) member, found by breadth-first search inside the SCC.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, neighbor := range graph[current] {
			if !members[neighbor] {
				continue
			}
			if neighbor == start {
				var rev []string
				for n := current; n != ""; n = parent[n] {
					rev = append(rev, n)
				}
				slices.Reverse(rev)
				return append(rev, start)
			}
			if _, seen := parent[neighbor]; !seen {
				parent[neighbor] = current
				queue = append(queue, neighbor)
			}
		}
	}

	return []string{start}
}
