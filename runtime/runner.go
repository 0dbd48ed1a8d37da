// Package runtime is the workflow execution engine: a layered, concurrency
// bounded scheduler that routes execution dynamically on node outputs and
// emits every scheduling decision as a telemetry event.
package runtime

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/coreason/maco/council"
	"github.com/coreason/maco/events"
	"github.com/coreason/maco/resolver"
	"github.com/coreason/maco/topology"
	"github.com/coreason/maco/types"
	"github.com/coreason/maco/utils"
)

// Runner executes validated workflow graphs. A single Runner is safe for
// concurrent use; every Start gets its own routing state and semaphore.
type Runner struct {
	opts     *types.RunnerOptions
	handlers map[types.NodeKind]nodeHandler
	fallback nodeHandler
}

func NewRunner(opts ...types.RunnerOption) (*Runner, error) {
	options := types.NewRunnerOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.MaxParallel <= 0 {
		return nil, errors.BadRequestf("max parallel must be positive, got %d", options.MaxParallel)
	}

	handlers, fallback := newHandlerTable(council.NewStrategy(options.VoterTimeout))
	return &Runner{opts: options, handlers: handlers, fallback: fallback}, nil
}

// RunParams is everything one run needs.
type RunParams struct {
	Graph   *types.Graph
	Context *types.ExecutionContext
	// Snapshot maps node ids to previously computed outputs. Nodes present
	// here are restored without invoking any handler.
	Snapshot types.Data
	// Inputs are seeded into the output universe before layer 0, so node
	// configs can reference run inputs exactly like prior node outputs.
	Inputs types.Data
}

// Start validates the graph and launches the coordinating goroutine. The
// returned Execution exposes the event stream; the caller must either drain
// it or call Cancel.
func (r *Runner) Start(ctx context.Context, params RunParams) (*Execution, error) {
	if params.Graph == nil {
		return nil, errors.BadRequestf("graph is required")
	}
	if params.Context == nil {
		return nil, errors.BadRequestf("execution context is required")
	}
	if err := topology.ValidateGraph(params.Graph); err != nil {
		return nil, errors.Trace(err)
	}
	layers, err := topology.ExecutionLayers(params.Graph)
	if err != nil {
		return nil, errors.Trace(err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	exec := &Execution{
		runID:  uuid.NewString(),
		events: make(chan *events.GraphEvent, r.opts.EventBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go r.coordinate(runCtx, exec, params, layers)
	return exec, nil
}

type edgeKey struct {
	source string
	target string
}

// runState is the shared routing state of one run. Only the coordinating
// goroutine ever writes it; child tasks return results instead.
type runState struct {
	graph     *types.Graph
	outputs   types.Data
	activated map[edgeKey]bool
	skipped   map[string]bool
}

func newRunState(graph *types.Graph, inputs types.Data) *runState {
	st := &runState{
		graph:     graph,
		outputs:   make(types.Data, graph.Len()+len(inputs)),
		activated: make(map[edgeKey]bool),
		skipped:   make(map[string]bool),
	}
	for k, v := range inputs {
		st.outputs[k] = v
	}
	return st
}

type nodeResult struct {
	id     string
	output any
	err    error
}

// coordinate is the single goroutine that owns all shared routing state.
// It fans node execution out per layer and fans results back in before any
// routing decision is made.
func (r *Runner) coordinate(ctx context.Context, exec *Execution, params RunParams, layers [][]string) {
	defer close(exec.done)
	defer close(exec.events)

	st := newRunState(params.Graph, params.Inputs)
	defer func() {
		exec.setOutputs(st.outputs)
	}()

	var sequence int64
	emit := func(ev *events.GraphEvent) bool {
		ev.Sequence = atomic.AddInt64(&sequence, 1)
		select {
		case exec.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	sem := semaphore.NewWeighted(int64(r.opts.MaxParallel))

	// NODE_INIT for every node up front lets a consumer pre-render the
	// whole graph before anything executes.
	for _, layer := range layers {
		for _, id := range layer {
			node, _ := st.graph.Node(id)
			if !emit(events.NewNodeInit(exec.runID, id, node.Kind)) {
				exec.setErr(errors.Trace(ctx.Err()))
				return
			}
		}
	}

	for i, layer := range layers {
		restored, toRun := st.partition(layer, params.Snapshot)
		if len(restored) == 0 && len(toRun) == 0 {
			continue
		}
		log.Debugf("run %s layer %d: restore=%d execute=%d", exec.runID, i, len(restored), len(toRun))

		for _, id := range restored {
			st.outputs[id] = params.Snapshot[id]
			if !emit(events.NewNodeRestored(exec.runID, id, st.outputs[id])) {
				exec.setErr(errors.Trace(ctx.Err()))
				return
			}
		}

		results := r.executeLayer(ctx, sem, exec.runID, toRun, st, params.Context, emit)

		executed := make([]string, 0, len(results))
		var failed *nodeResult
		for idx := range results {
			res := &results[idx]
			if res.err != nil {
				if failed == nil {
					failed = res
				}
				continue
			}
			st.outputs[res.id] = res.output
			executed = append(executed, res.id)
		}

		if ctx.Err() != nil {
			exec.setErr(errors.Trace(ctx.Err()))
			return
		}
		if failed != nil {
			// siblings already finished above, so the snapshot reflects
			// every output the run produced before aborting
			snapshot := sanitizeSnapshot(st.outputs)
			emit(events.NewError(exec.runID, failed.id, failed.err.Error(), errors.ErrorStack(failed.err), snapshot))
			exec.setErr(types.NewHandlerError(failed.id, failed.err))
			return
		}

		if !r.routeLayer(st, exec.runID, append(restored, executed...), emit) {
			exec.setErr(errors.Trace(ctx.Err()))
			return
		}
	}
}

// executeLayer runs every to-run node of a layer concurrently. Children are
// pure: they return a nodeResult and never touch shared routing state.
func (r *Runner) executeLayer(ctx context.Context, sem *semaphore.Weighted, runID string, toRun []string, st *runState, execCtx *types.ExecutionContext, emit emitFn) []nodeResult {
	results := make([]nodeResult, len(toRun))

	var g errgroup.Group
	for i, id := range toRun {
		i, id := i, id
		node, _ := st.graph.Node(id)
		g.Go(func() error {
			output, err := r.executeNode(ctx, sem, runID, node, st.outputs, execCtx, emit)
			results[i] = nodeResult{id: id, output: output, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) executeNode(ctx context.Context, sem *semaphore.Weighted, runID string, node *types.Node, outputs types.Data, execCtx *types.ExecutionContext, emit emitFn) (output any, retErr error) {
	defer func() {
		if rec := recover(); rec != nil {
			retErr = errors.Errorf("panic in node %s: %v", node.ID, rec)
		}
	}()

	if !emit(events.NewNodeStart(runID, node.ID)) {
		return nil, errors.Trace(ctx.Err())
	}

	// the semaphore bounds the handler-dispatch critical section only;
	// event emission is never held under it
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Trace(err)
	}
	resolved := resolver.Resolve(node.Config, outputs)
	handler, exists := r.handlers[node.Kind]
	if !exists {
		handler = r.fallback
	}
	output, err := handler.Execute(ctx, &handlerEnv{
		runID:   runID,
		node:    node,
		config:  resolved,
		execCtx: execCtx,
		emit:    emit,
	})
	sem.Release(1)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if !emit(events.NewNodeDone(runID, node.ID, output)) {
		return output, errors.Trace(ctx.Err())
	}
	return output, nil
}

// routeLayer evaluates every outgoing edge of the layer's resolved nodes.
// Activations are decided for the whole layer before any pruning runs, so a
// re-convergent target is never pruned on a sibling it has not heard from.
func (r *Runner) routeLayer(st *runState, runID string, processed []string, emit emitFn) bool {
	pruneTargets := make([]string, 0)
	for _, id := range processed {
		output, exists := st.outputs[id]
		if !exists {
			continue
		}
		for _, edge := range st.graph.OutEdges(id) {
			if edgeActivates(edge, output, st.outputs) {
				st.activated[edgeKey{edge.Source, edge.Target}] = true
				if !emit(events.NewEdgeActive(runID, edge.Source, edge.Target)) {
					return false
				}
			} else {
				pruneTargets = append(pruneTargets, edge.Target)
			}
		}
	}

	for _, target := range utils.UniqueSlice(pruneTargets) {
		if !r.pruneBranch(st, target, runID, emit) {
			return false
		}
	}
	return true
}

// edgeActivates decides whether an edge fires given its source output. An
// unconditional edge always fires; a templated condition is evaluated as a
// boolean expression; anything else is matched by stringified equality.
func edgeActivates(edge *types.Edge, output any, outputs types.Data) bool {
	if edge.Condition == "" {
		return true
	}
	if strings.Contains(edge.Condition, "{{") {
		return resolver.EvaluateBoolean(edge.Condition, outputs)
	}
	return utils.Stringify(output) == edge.Condition
}

// partition splits a layer into restored nodes and to-run nodes. Nodes with
// no activated incoming edge (and no snapshot entry) are left alone; the
// pruning pass decides their fate once all their predecessors are resolved.
func (st *runState) partition(layer []string, snapshot types.Data) (restored, toRun []string) {
	for _, id := range layer {
		if st.skipped[id] {
			continue
		}
		if snapshot != nil {
			if _, exists := snapshot[id]; exists {
				restored = append(restored, id)
				continue
			}
		}

		preds := st.graph.Predecessors(id)
		if len(preds) == 0 {
			// root nodes always run
			toRun = append(toRun, id)
			continue
		}
		for _, pred := range preds {
			if st.activated[edgeKey{pred, id}] {
				toRun = append(toRun, id)
				break
			}
		}
	}
	return restored, toRun
}
