// Package workflow runs small fixed pipelines of named steps over a shared
// state map.
package workflow

import (
	"context"
	"errors"
	"fmt"
)

// State is the shared record threaded through a run. Nodes add and overwrite
// keys; nothing is ever deleted.
type State map[string]any

// NodeFunc computes a partial state from the full accumulated state.
type NodeFunc func(ctx context.Context, s State) (State, error)

type Node struct {
	Name string
	Run  NodeFunc
}

// Edge means To runs after From.
type Edge struct {
	From string
	To   string
}

// Graph is a named set of nodes and "runs after" edges with one entry and one
// finish node.
type Graph struct {
	Name   string
	Nodes  []Node
	Edges  []Edge
	Entry  string
	Finish string
}

var ErrInvalidGraph = errors.New("invalid workflow graph")

func invalid(graph, format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidGraph, graph, fmt.Sprintf(format, args...))
}

// order validates g and returns node indexes in execution order. Ready nodes
// are taken in declaration order, which keeps fan-in siblings deterministic.
func order(g Graph) ([]int, error) {
	if g.Name == "" {
		return nil, invalid(g.Name, "graph has no name")
	}
	if len(g.Nodes) == 0 {
		return nil, invalid(g.Name, "graph has no nodes")
	}

	index := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		if n.Name == "" {
			return nil, invalid(g.Name, "node %d has no name", i)
		}
		if n.Run == nil {
			return nil, invalid(g.Name, "node %q has no function", n.Name)
		}
		if _, dup := index[n.Name]; dup {
			return nil, invalid(g.Name, "duplicate node %q", n.Name)
		}
		index[n.Name] = i
	}

	entry, ok := index[g.Entry]
	if !ok {
		return nil, invalid(g.Name, "unknown entry node %q", g.Entry)
	}
	finish, ok := index[g.Finish]
	if !ok {
		return nil, invalid(g.Name, "unknown finish node %q", g.Finish)
	}

	succ := make([][]int, len(g.Nodes))
	pred := make([][]int, len(g.Nodes))
	indegree := make([]int, len(g.Nodes))
	seen := make(map[Edge]bool, len(g.Edges))
	for _, e := range g.Edges {
		from, ok := index[e.From]
		if !ok {
			return nil, invalid(g.Name, "edge references unknown node %q", e.From)
		}
		to, ok := index[e.To]
		if !ok {
			return nil, invalid(g.Name, "edge references unknown node %q", e.To)
		}
		if from == to {
			return nil, invalid(g.Name, "node %q depends on itself", e.From)
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		succ[from] = append(succ[from], to)
		pred[to] = append(pred[to], from)
		indegree[to]++
	}

	if indegree[entry] != 0 {
		return nil, invalid(g.Name, "entry node %q has predecessors", g.Entry)
	}

	done := make([]bool, len(g.Nodes))
	remaining := append([]int(nil), indegree...)
	out := make([]int, 0, len(g.Nodes))
	for len(out) < len(g.Nodes) {
		next := -1
		for i := range g.Nodes {
			if !done[i] && remaining[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, invalid(g.Name, "graph contains a cycle")
		}
		done[next] = true
		out = append(out, next)
		for _, s := range succ[next] {
			remaining[s]--
		}
	}

	// Every node must lead to finish, otherwise its output would be dropped.
	reaches := make([]bool, len(g.Nodes))
	reaches[finish] = true
	stack := []int{finish}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range pred[n] {
			if !reaches[p] {
				reaches[p] = true
				stack = append(stack, p)
			}
		}
	}
	for i, ok := range reaches {
		if !ok {
			return nil, invalid(g.Name, "node %q does not lead to finish node %q", g.Nodes[i].Name, g.Finish)
		}
	}

	return out, nil
}
