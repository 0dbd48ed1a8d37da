// Package maco executes agent workflow graphs: manifests of typed nodes
// wired by conditional edges, run layer by layer with dynamic routing,
// resume snapshots and a streamed event protocol.
package maco

import (
	"context"
	"sync"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/coreason/maco/events"
	"github.com/coreason/maco/runtime"
	"github.com/coreason/maco/store"
	"github.com/coreason/maco/store/mem"
	"github.com/coreason/maco/store/postgres"
	"github.com/coreason/maco/topology"
	"github.com/coreason/maco/types"
)

// Engine is the top-level facade: it owns the store used for snapshots and
// audit records and a runner shared by all executions.
type Engine struct {
	store  store.Store
	sink   events.Sink
	runner *runtime.Runner
}

func NewEngine(opts ...types.EngineOption) (*Engine, error) {
	options := types.NewEngineOptions()
	for _, opt := range opts {
		opt(options)
	}

	var st store.Store
	switch {
	case options.Postgres != nil:
		pg, err := postgres.NewPostgresStore(options.Postgres)
		if err != nil {
			return nil, errors.Trace(err)
		}
		st = pg
	case options.MemStore:
		st = mem.NewMemStore()
	default:
		return nil, errors.BadRequestf("no store configured")
	}

	runner, err := runtime.NewRunner(
		types.WithMaxParallel(options.Runner.MaxParallel),
		types.WithEventBuffer(options.Runner.EventBuffer),
		types.WithVoterTimeout(options.Runner.VoterTimeout),
	)
	if err != nil {
		return nil, errors.Trace(err)
	}

	return &Engine{
		store:  st,
		sink:   events.NewStoreSink(st),
		runner: runner,
	}, nil
}

// NewEngineWithStore builds an engine on a caller-provided store, e.g. a
// shared postgres pool wrapped by NewPostgresStoreWithDB.
func NewEngineWithStore(st store.Store, opts ...types.RunnerOption) (*Engine, error) {
	if st == nil {
		return nil, errors.BadRequestf("store is required")
	}
	runner, err := runtime.NewRunner(opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Engine{store: st, sink: events.NewStoreSink(st), runner: runner}, nil
}

// Run is the live handle on a workflow started through the engine. Events
// must be drained; the channel closes once the run has finished and its
// snapshot and audit record have been persisted.
type Run struct {
	runID     string
	requestID string
	events    chan *events.GraphEvent
	exec      *runtime.Execution

	mu  sync.Mutex
	err error
}

func (r *Run) RunID() string {
	return r.runID
}

// Events streams the run's events in sequence order.
func (r *Run) Events() <-chan *events.GraphEvent {
	return r.events
}

// Err reports the run's terminal error. Only meaningful once the event
// stream has closed.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Outputs returns everything the run produced. Only meaningful once the
// event stream has closed.
func (r *Run) Outputs() types.Data {
	return r.exec.Outputs()
}

// Cancel aborts the underlying execution. The event stream still closes
// normally and the partial outputs are snapshotted for a later resume.
func (r *Run) Cancel() {
	r.exec.Cancel()
}

// ExecuteRecipe validates the manifest, resumes from any snapshot stored
// under requestID and starts the run. A failed run leaves a fresh snapshot
// behind; a successful one clears it. The full event history is written to
// the audit sink either way.
func (e *Engine) ExecuteRecipe(ctx context.Context, requestID string, manifest *types.Manifest, inputs types.Data, execCtx *types.ExecutionContext) (*Run, error) {
	if requestID == "" {
		return nil, errors.BadRequestf("request id is required")
	}

	graph, err := topology.BuildGraph(manifest)
	if err != nil {
		return nil, errors.Trace(err)
	}

	snapshot, err := runtime.LoadSnapshot(ctx, e.store, requestID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if snapshot != nil {
		log.Infof("resuming request %s from snapshot with %d entries", requestID, len(snapshot))
	}

	exec, err := e.runner.Start(ctx, runtime.RunParams{
		Graph:    graph,
		Context:  execCtx,
		Snapshot: snapshot,
		Inputs:   inputs,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	run := &Run{
		runID:     exec.RunID(),
		requestID: requestID,
		events:    make(chan *events.GraphEvent),
		exec:      exec,
	}
	go e.finalize(run, manifest, inputs, execCtx)
	return run, nil
}

// finalize forwards the execution's events while recording history, then
// persists the run outcome. Persistence uses a background context so a
// cancelled run still leaves its snapshot behind.
func (e *Engine) finalize(run *Run, manifest *types.Manifest, inputs types.Data, execCtx *types.ExecutionContext) {
	defer close(run.events)

	history := make([]*events.GraphEvent, 0, 64)
	for ev := range run.exec.Events() {
		history = append(history, ev)
		run.events <- ev
	}

	runErr := run.exec.Err()
	run.mu.Lock()
	run.err = runErr
	run.mu.Unlock()

	ctx := context.Background()
	if runErr != nil {
		if err := runtime.SaveSnapshot(ctx, e.store, run.requestID, run.exec.Outputs()); err != nil {
			log.Errorf("failed to save snapshot for request %s: %v", run.requestID, err)
		}
	} else {
		if err := runtime.RemoveSnapshot(ctx, e.store, run.requestID); err != nil {
			log.Errorf("failed to remove snapshot for request %s: %v", run.requestID, err)
		}
	}

	traceID := ""
	if execCtx != nil {
		traceID = execCtx.TraceID
	}
	if err := e.sink.Log(ctx, traceID, run.runID, manifest, inputs, history); err != nil {
		log.Errorf("failed to persist audit record for run %s: %v", run.runID, err)
	}
}

// SubmitFeedback resolves the pending feedback future of a suspended HUMAN
// node. Returns false when the node already received feedback.
func (e *Engine) SubmitFeedback(execCtx *types.ExecutionContext, nodeID string, value any) (bool, error) {
	if execCtx == nil || execCtx.Feedback == nil {
		return false, errors.BadRequestf("execution context has no feedback channel")
	}
	return execCtx.Feedback.SetResult(nodeID, value), nil
}

// AuditRecord reads back the persisted event history of a finished run.
func (e *Engine) AuditRecord(ctx context.Context, runID string) (*events.AuditRecord, error) {
	record, err := events.LoadAuditRecord(ctx, e.store, runID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return record, nil
}
