package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"foodbridge"
)

var (
	ErrUnknownWorkflow = errors.New("unknown workflow")
	ErrAlreadyDefined  = errors.New("workflow already defined")
)

// NodeError reports the node that aborted a run.
type NodeError struct {
	Workflow string
	Node     string
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("workflow %q: node %q: %v", e.Workflow, e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Result is the outcome of a run. Output is what the finish node returned;
// State is everything accumulated during the run.
type Result struct {
	RunID  string
	Output State
	State  State
}

type compiled struct {
	graph Graph
	order []int
}

// Orchestrator holds the defined graphs and runs them. Graphs are defined
// once at start-up; runs are independent and may execute concurrently.
type Orchestrator struct {
	mu     sync.RWMutex
	graphs map[string]*compiled

	logger foodbridge.RunLogger
	tracer trace.Tracer

	runs     metric.Int64Counter
	failures metric.Int64Counter
	nodes    metric.Int64Counter
	duration metric.Float64Histogram
}

type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	logger foodbridge.RunLogger
	tracer trace.Tracer
	meter  metric.Meter
}

// WithRunLogger records every executed node.
func WithRunLogger(l foodbridge.RunLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *orchestratorOptions) { o.tracer = t }
}

func WithMeter(m metric.Meter) Option {
	return func(o *orchestratorOptions) { o.meter = m }
}

func New(opts ...Option) *Orchestrator {
	o := orchestratorOptions{
		logger: foodbridge.NewNoOpRunLogger(),
		tracer: otel.Tracer(foodbridge.TracerNameWorkflow),
		meter:  otel.Meter(foodbridge.MeterNameWorkflow),
	}
	for _, opt := range opts {
		opt(&o)
	}

	runs, _ := o.meter.Int64Counter("workflow_runs_total",
		metric.WithDescription("Total number of workflow runs started"))
	failures, _ := o.meter.Int64Counter("workflow_runs_failed_total",
		metric.WithDescription("Total number of workflow runs that failed"))
	nodes, _ := o.meter.Int64Counter("workflow_nodes_total",
		metric.WithDescription("Total number of workflow nodes executed"))
	duration, _ := o.meter.Float64Histogram("workflow_run_duration_seconds",
		metric.WithDescription("Duration of workflow runs in seconds"))

	return &Orchestrator{
		graphs:   make(map[string]*compiled),
		logger:   o.logger,
		tracer:   o.tracer,
		runs:     runs,
		failures: failures,
		nodes:    nodes,
		duration: duration,
	}
}

// Define validates g and registers it under g.Name.
func (o *Orchestrator) Define(g Graph) error {
	ord, err := order(g)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.graphs[g.Name]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyDefined, g.Name)
	}
	o.graphs[g.Name] = &compiled{graph: g, order: ord}

	slog.Info("WORKFLOW: Defined", "workflow", g.Name, "nodes", len(g.Nodes))
	return nil
}

// Names returns the defined workflow names sorted.
func (o *Orchestrator) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Sorted(maps.Keys(o.graphs))
}

func (o *Orchestrator) lookup(name string) (*compiled, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.graphs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}
	return c, nil
}

// Run executes the named workflow over a copy of input. Nodes run one at a
// time in topological order and each sees the full accumulated state. The
// first node error aborts the run.
func (o *Orchestrator) Run(ctx context.Context, name string, input State) (Result, error) {
	c, err := o.lookup(name)
	if err != nil {
		slog.Error("WORKFLOW: Unknown workflow", "workflow", name)
		return Result{}, err
	}

	runID := uuid.NewString()
	wfAttr := metric.WithAttributes(attribute.String("workflow", name))

	ctx, span := o.tracer.Start(ctx, "workflow.Run", trace.WithAttributes(
		attribute.String("workflow", name),
		attribute.String("run_id", runID),
	))
	defer span.End()

	o.runs.Add(ctx, 1, wfAttr)
	start := time.Now()
	defer func() {
		o.duration.Record(ctx, time.Since(start).Seconds(), wfAttr)
	}()

	slog.Info("WORKFLOW: Starting run", "workflow", name, "run_id", runID, "input_keys", input.Keys())

	state := input.Clone()
	if state == nil {
		state = State{}
	}

	var output State
	for seq, idx := range c.order {
		node := c.graph.Nodes[idx]

		if err := ctx.Err(); err != nil {
			o.fail(ctx, name, span, err)
			return Result{}, &NodeError{Workflow: name, Node: node.Name, Err: err}
		}

		partial, err := o.runNode(ctx, name, runID, seq+1, node, state)
		if err != nil {
			o.fail(ctx, name, span, err)
			slog.Error("WORKFLOW: Node failed", "workflow", name, "node", node.Name, "error", err)
			return Result{}, &NodeError{Workflow: name, Node: node.Name, Err: err}
		}

		state.Merge(partial)
		if node.Name == c.graph.Finish {
			output = partial
		}
	}

	if output == nil {
		output = State{}
	}

	slog.Info("WORKFLOW: Run completed", "workflow", name, "run_id", runID,
		"duration_ms", time.Since(start).Milliseconds(), "output_keys", output.Keys())
	return Result{RunID: runID, Output: output, State: state}, nil
}

func (o *Orchestrator) runNode(ctx context.Context, workflow, runID string, seq int, node Node, state State) (State, error) {
	ctx, span := o.tracer.Start(ctx, "workflow.Node."+node.Name, trace.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("node", node.Name),
		attribute.Int("sequence", seq),
	))
	defer span.End()

	step := foodbridge.StepLog{
		RunID:     runID,
		Workflow:  workflow,
		Node:      node.Name,
		Sequence:  seq,
		Timestamp: time.Now(),
		InputKeys: state.Keys(),
	}

	// Nodes receive a copy of the state.
	partial, err := node.Run(ctx, state.Clone())
	step.DurationMS = time.Since(step.Timestamp).Milliseconds()
	o.nodes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("node", node.Name),
	))

	if err != nil {
		step.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "node failed")
	} else {
		step.OutputKeys = partial.Keys()
	}

	if lerr := o.logger.LogStep(step); lerr != nil {
		slog.Warn("WORKFLOW: Failed to log step", "node", node.Name, "error", lerr)
	}
	return partial, err
}

func (o *Orchestrator) fail(ctx context.Context, workflow string, span trace.Span, err error) {
	o.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflow)))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
