package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context, State) (State, error) { return State{}, nil }

func nodes(names ...string) []Node {
	out := make([]Node, 0, len(names))
	for _, n := range names {
		out = append(out, Node{Name: n, Run: noop})
	}
	return out
}

func names(g Graph, idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.Nodes[i].Name)
	}
	return out
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name     string
		graph    Graph
		expected []string
	}{
		{
			name: "linear",
			graph: Graph{
				Name:   "linear",
				Nodes:  nodes("a", "b", "c"),
				Edges:  []Edge{{"a", "b"}, {"b", "c"}},
				Entry:  "a",
				Finish: "c",
			},
			expected: []string{"a", "b", "c"},
		},
		{
			name: "fan-in follows declaration order",
			graph: Graph{
				Name:   "fan-in",
				Nodes:  nodes("profile", "produce", "plan", "format"),
				Edges:  []Edge{{"produce", "plan"}, {"profile", "plan"}, {"plan", "format"}},
				Entry:  "profile",
				Finish: "format",
			},
			expected: []string{"profile", "produce", "plan", "format"},
		},
		{
			name: "fan-out and fan-in",
			graph: Graph{
				Name:   "diamond",
				Nodes:  nodes("items", "env", "nutrition", "combine"),
				Edges:  []Edge{{"items", "nutrition"}, {"items", "env"}, {"nutrition", "combine"}, {"env", "combine"}},
				Entry:  "items",
				Finish: "combine",
			},
			expected: []string{"items", "env", "nutrition", "combine"},
		},
		{
			name: "declared out of order",
			graph: Graph{
				Name:   "reversed",
				Nodes:  nodes("c", "b", "a"),
				Edges:  []Edge{{"a", "b"}, {"b", "c"}},
				Entry:  "a",
				Finish: "c",
			},
			expected: []string{"a", "b", "c"},
		},
		{
			name: "duplicate edges are ignored",
			graph: Graph{
				Name:   "dup-edge",
				Nodes:  nodes("a", "b"),
				Edges:  []Edge{{"a", "b"}, {"a", "b"}},
				Entry:  "a",
				Finish: "b",
			},
			expected: []string{"a", "b"},
		},
		{
			name: "single node",
			graph: Graph{
				Name:   "single",
				Nodes:  nodes("only"),
				Entry:  "only",
				Finish: "only",
			},
			expected: []string{"only"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := order(tt.graph)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, names(tt.graph, got))
		})
	}
}

func TestOrderRejectsInvalidGraphs(t *testing.T) {
	tests := []struct {
		name     string
		graph    Graph
		contains string
	}{
		{
			name:     "no name",
			graph:    Graph{Nodes: nodes("a"), Entry: "a", Finish: "a"},
			contains: "no name",
		},
		{
			name:     "no nodes",
			graph:    Graph{Name: "g"},
			contains: "no nodes",
		},
		{
			name:     "duplicate node",
			graph:    Graph{Name: "g", Nodes: nodes("a", "a"), Entry: "a", Finish: "a"},
			contains: "duplicate node",
		},
		{
			name:     "missing function",
			graph:    Graph{Name: "g", Nodes: []Node{{Name: "a"}}, Entry: "a", Finish: "a"},
			contains: "no function",
		},
		{
			name:     "unknown entry",
			graph:    Graph{Name: "g", Nodes: nodes("a"), Entry: "x", Finish: "a"},
			contains: "unknown entry",
		},
		{
			name:     "unknown finish",
			graph:    Graph{Name: "g", Nodes: nodes("a"), Entry: "a", Finish: "x"},
			contains: "unknown finish",
		},
		{
			name:     "unknown edge target",
			graph:    Graph{Name: "g", Nodes: nodes("a"), Edges: []Edge{{"a", "ghost"}}, Entry: "a", Finish: "a"},
			contains: "unknown node",
		},
		{
			name:     "self loop",
			graph:    Graph{Name: "g", Nodes: nodes("a", "b"), Edges: []Edge{{"a", "a"}, {"a", "b"}}, Entry: "a", Finish: "b"},
			contains: "depends on itself",
		},
		{
			name: "cycle",
			graph: Graph{
				Name:   "g",
				Nodes:  nodes("a", "b", "c", "d"),
				Edges:  []Edge{{"a", "b"}, {"b", "c"}, {"c", "b"}, {"c", "d"}},
				Entry:  "a",
				Finish: "d",
			},
			contains: "cycle",
		},
		{
			name:     "entry with predecessors",
			graph:    Graph{Name: "g", Nodes: nodes("a", "b", "c"), Edges: []Edge{{"a", "b"}, {"b", "c"}}, Entry: "b", Finish: "c"},
			contains: "has predecessors",
		},
		{
			name:     "node that does not reach finish",
			graph:    Graph{Name: "g", Nodes: nodes("a", "b", "dangling"), Edges: []Edge{{"a", "b"}, {"a", "dangling"}}, Entry: "a", Finish: "b"},
			contains: `"dangling" does not lead`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := order(tt.graph)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidGraph)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestStateHelpers(t *testing.T) {
	s := State{"b": 1, "a": "x"}
	s.Merge(State{"a": "y", "c": true})
	assert.Equal(t, State{"a": "y", "b": 1, "c": true}, s)
	assert.Equal(t, []string{"a", "b", "c"}, s.Keys())

	clone := s.Clone()
	clone["d"] = 1
	assert.NotContains(t, s, "d")

	v, err := Get[string](s, "a")
	require.NoError(t, err)
	assert.Equal(t, "y", v)

	_, err = Get[string](s, "b")
	assert.ErrorContains(t, err, "is int")

	_, err = Get[int](s, "missing")
	assert.ErrorContains(t, err, "no \"missing\"")
}
