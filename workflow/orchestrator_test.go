package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodbridge"
)

// recordingLogger captures logged steps.
type recordingLogger struct {
	mu    sync.Mutex
	steps []foodbridge.StepLog
}

func (l *recordingLogger) LogStep(step foodbridge.StepLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
	return nil
}

func (l *recordingLogger) nodes() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.steps))
	for _, s := range l.steps {
		out = append(out, s.Node)
	}
	return out
}

// tracingGraph records execution order and writes name=true for each node.
func tracingGraph(name string, trace *[]string) Graph {
	node := func(n string) Node {
		return Node{Name: n, Run: func(_ context.Context, s State) (State, error) {
			*trace = append(*trace, n)
			return State{n: true, "last": n}, nil
		}}
	}
	return Graph{
		Name:   name,
		Nodes:  []Node{node("a"), node("b"), node("c")},
		Edges:  []Edge{{"a", "c"}, {"b", "c"}},
		Entry:  "a",
		Finish: "c",
	}
}

func TestOrchestrator_Run(t *testing.T) {
	var trace []string
	logger := &recordingLogger{}
	o := New(WithRunLogger(logger))
	require.NoError(t, o.Define(tracingGraph("g", &trace)))

	input := State{"seed": 1}
	res, err := o.Run(context.Background(), "g", input)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, trace)
	assert.Equal(t, State{"c": true, "last": "c"}, res.Output)
	assert.Equal(t, State{"seed": 1, "a": true, "b": true, "c": true, "last": "c"}, res.State)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, State{"seed": 1}, input, "input must not be mutated")

	assert.Equal(t, []string{"a", "b", "c"}, logger.nodes())
	assert.Equal(t, 3, logger.steps[2].Sequence)
	assert.Equal(t, []string{"a", "b", "last", "seed"}, logger.steps[2].InputKeys)
	assert.Equal(t, []string{"c", "last"}, logger.steps[2].OutputKeys)
}

func TestOrchestrator_NodesSeeAccumulatedState(t *testing.T) {
	var seen State
	o := New()
	require.NoError(t, o.Define(Graph{
		Name: "acc",
		Nodes: []Node{
			{Name: "first", Run: func(context.Context, State) (State, error) { return State{"x": 1}, nil }},
			{Name: "second", Run: func(_ context.Context, s State) (State, error) {
				seen = s
				return State{"x": 2}, nil
			}},
		},
		Edges:  []Edge{{"first", "second"}},
		Entry:  "first",
		Finish: "second",
	}))

	res, err := o.Run(context.Background(), "acc", State{"in": "v"})
	require.NoError(t, err)
	assert.Equal(t, State{"in": "v", "x": 1}, seen)
	assert.Equal(t, 2, res.State["x"], "last write wins")
}

func TestOrchestrator_UnknownWorkflow(t *testing.T) {
	var trace []string
	o := New()
	require.NoError(t, o.Define(tracingGraph("g", &trace)))

	_, err := o.Run(context.Background(), "nope", State{})
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
	assert.Contains(t, err.Error(), `"nope"`)
	assert.Empty(t, trace)
}

func TestOrchestrator_NodeErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	var ran []string
	logger := &recordingLogger{}
	o := New(WithRunLogger(logger))
	require.NoError(t, o.Define(Graph{
		Name: "failing",
		Nodes: []Node{
			{Name: "ok", Run: func(context.Context, State) (State, error) {
				ran = append(ran, "ok")
				return State{"partial": true}, nil
			}},
			{Name: "bad", Run: func(context.Context, State) (State, error) {
				ran = append(ran, "bad")
				return nil, boom
			}},
			{Name: "never", Run: func(context.Context, State) (State, error) {
				ran = append(ran, "never")
				return nil, nil
			}},
		},
		Edges:  []Edge{{"ok", "bad"}, {"bad", "never"}},
		Entry:  "ok",
		Finish: "never",
	}))

	res, err := o.Run(context.Background(), "failing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "failing", nodeErr.Workflow)
	assert.Equal(t, "bad", nodeErr.Node)

	assert.Equal(t, Result{}, res)
	assert.Equal(t, []string{"ok", "bad"}, ran)
	require.Len(t, logger.steps, 2)
	assert.Equal(t, "boom", logger.steps[1].Error)
}

func TestOrchestrator_CanceledContext(t *testing.T) {
	var trace []string
	o := New()
	require.NoError(t, o.Define(tracingGraph("g", &trace)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, "g", State{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, trace)
}

func TestOrchestrator_Define(t *testing.T) {
	var trace []string
	o := New()
	require.NoError(t, o.Define(tracingGraph("one", &trace)))
	require.NoError(t, o.Define(tracingGraph("two", &trace)))

	err := o.Define(tracingGraph("one", &trace))
	assert.ErrorIs(t, err, ErrAlreadyDefined)

	err = o.Define(Graph{Name: "broken", Nodes: nodes("a"), Entry: "a", Finish: "z"})
	assert.ErrorIs(t, err, ErrInvalidGraph)

	assert.Equal(t, []string{"one", "two"}, o.Names())
}

func TestOrchestrator_ConcurrentRuns(t *testing.T) {
	o := New()
	require.NoError(t, o.Define(Graph{
		Name: "echo",
		Nodes: []Node{{Name: "echo", Run: func(_ context.Context, s State) (State, error) {
			return State{"out": s["in"]}, nil
		}}},
		Entry:  "echo",
		Finish: "echo",
	}))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := o.Run(context.Background(), "echo", State{"in": i})
			assert.NoError(t, err)
			assert.Equal(t, i, res.Output["out"])
		}()
	}
	wg.Wait()
}
