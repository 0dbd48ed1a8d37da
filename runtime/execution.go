package runtime

import (
	"context"
	"sync"

	"github.com/coreason/maco/events"
	"github.com/coreason/maco/types"
)

// Execution is the live handle on a started run. The event channel closes
// when the run finishes, after which Err and Outputs report the outcome.
type Execution struct {
	runID  string
	events chan *events.GraphEvent
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	err     error
	outputs types.Data
}

func (e *Execution) RunID() string {
	return e.runID
}

// Events is the run's ordered event stream. With an unbuffered channel a
// slow consumer backpressures the engine.
func (e *Execution) Events() <-chan *events.GraphEvent {
	return e.events
}

// Done closes when the run has fully finished, failed or been cancelled.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Err reports the run's terminal error, nil on success. Only meaningful
// once the event stream has closed.
func (e *Execution) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Outputs returns every output produced before the run ended, including
// seeded inputs and restored values. Only meaningful once Done is closed.
func (e *Execution) Outputs() types.Data {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outputs
}

// Cancel aborts the run and blocks until the coordinator has shut down.
func (e *Execution) Cancel() {
	e.cancel()
	<-e.done
}

func (e *Execution) setErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

func (e *Execution) setOutputs(outputs types.Data) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs = outputs.Clone()
}
