package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coreason/maco/events"
	"github.com/coreason/maco/topology"
	"github.com/coreason/maco/types"
)

func newRunnerForTest(t *testing.T, opts ...types.RunnerOption) *Runner {
	r, err := NewRunner(opts...)
	assert.Nil(t, err)
	return r
}

func buildGraphForTest(t *testing.T, manifest *types.Manifest) *types.Graph {
	graph, err := topology.BuildGraph(manifest)
	assert.Nil(t, err)
	return graph
}

func newExecContext() *types.ExecutionContext {
	return &types.ExecutionContext{
		UserID:   "user-1",
		TraceID:  "trace-1",
		Feedback: NewFeedbackManager(),
	}
}

// drainEvents consumes the stream to completion on a side goroutine so the
// coordinator is never blocked on an unbuffered send.
func drainEvents(exec *Execution) <-chan []*events.GraphEvent {
	out := make(chan []*events.GraphEvent, 1)
	go func() {
		history := make([]*events.GraphEvent, 0, 32)
		for ev := range exec.Events() {
			history = append(history, ev)
		}
		out <- history
	}()
	return out
}

func eventsOfType(history []*events.GraphEvent, et events.EventType) []*events.GraphEvent {
	matched := make([]*events.GraphEvent, 0)
	for _, ev := range history {
		if ev.Type == et {
			matched = append(matched, ev)
		}
	}
	return matched
}

func countEvents(history []*events.GraphEvent, et events.EventType, nodeID string) int {
	n := 0
	for _, ev := range history {
		if ev.Type == et && ev.NodeID == nodeID {
			n++
		}
	}
	return n
}

type mockTools struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]any
	errs    map[string]error

	delay   time.Duration
	running int32
	peak    int32
}

func (m *mockTools) Execute(ctx context.Context, name string, args types.Data) (any, error) {
	cur := atomic.AddInt32(&m.running, 1)
	defer atomic.AddInt32(&m.running, -1)
	for {
		peak := atomic.LoadInt32(&m.peak)
		if cur <= peak || atomic.CompareAndSwapInt32(&m.peak, peak, cur) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
	result := m.results[name]
	err := m.errs[name]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (m *mockTools) callCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

type mockAgent struct {
	mu      sync.Mutex
	prompts []string
	content string
	err     error
}

func (m *mockAgent) Invoke(ctx context.Context, prompt string, config types.Data) (*types.AgentResponse, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	return &types.AgentResponse{Content: m.content}, nil
}

type streamingAgent struct {
	mockAgent

	chunks   []string
	setupErr error
}

func (s *streamingAgent) Stream(ctx context.Context, prompt string, config types.Data) (<-chan string, error) {
	if s.setupErr != nil {
		return nil, s.setupErr
	}
	ch := make(chan string, len(s.chunks))
	for _, c := range s.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func TestLinearRun(t *testing.T) {
	manifest := &types.Manifest{
		Name: "linear",
		Nodes: []types.ManifestNode{
			{ID: "a", Config: types.Data{"mock_output": "alpha"}},
			{ID: "b", Config: types.Data{"mock_output": "beta"}},
			{ID: "c", Config: types.Data{"mock_output": "gamma"}},
		},
		Edges: []types.ManifestEdge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
		},
	}

	runner := newRunnerForTest(t)
	exec, err := runner.Start(context.Background(), RunParams{
		Graph:   buildGraphForTest(t, manifest),
		Context: newExecContext(),
	})
	assert.Nil(t, err)
	history := <-drainEvents(exec)
	assert.Nil(t, exec.Err())

	outputs := exec.Outputs()
	assert.Equal(t, "alpha", outputs["a"])
	assert.Equal(t, "beta", outputs["b"])
	assert.Equal(t, "gamma", outputs["c"])

	assert.Equal(t, 3, len(eventsOfType(history, events.NodeInit)))
	assert.Equal(t, 3, len(eventsOfType(history, events.NodeStart)))
	assert.Equal(t, 3, len(eventsOfType(history, events.NodeDone)))
	assert.Equal(t, 2, len(eventsOfType(history, events.EdgeActive)))
	assert.Equal(t, 0, len(eventsOfType(history, events.Error)))

	// sequence ids are strictly increasing across the whole stream
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].Sequence > history[i-1].Sequence)
	}
	// b cannot finish before a did
	doneA := -1
	doneB := -1
	for i, ev := range history {
		if ev.Type == events.NodeDone && ev.NodeID == "a" {
			doneA = i
		}
		if ev.Type == events.NodeDone && ev.NodeID == "b" {
			doneB = i
		}
	}
	assert.True(t, doneA >= 0 && doneB > doneA)
}

func TestConditionalRouting(t *testing.T) {
	manifest := &types.Manifest{
		Name: "cond",
		Nodes: []types.ManifestNode{
			{ID: "a", Config: types.Data{"mock_output": "x"}},
			{ID: "b", Config: types.Data{"mock_output": "took-b"}},
			{ID: "c", Config: types.Data{"mock_output": "took-c"}},
		},
		Edges: []types.ManifestEdge{
			{Source: "a", Target: "b", Condition: "x"},
			{Source: "a", Target: "c", Condition: "y"},
		},
	}

	runner := newRunnerForTest(t)
	exec, err := runner.Start(context.Background(), RunParams{
		Graph:   buildGraphForTest(t, manifest),
		Context: newExecContext(),
	})
	assert.Nil(t, err)
	history := <-drainEvents(exec)
	assert.Nil(t, exec.Err())

	outputs := exec.Outputs()
	assert.Equal(t, "took-b", outputs["b"])
	_, cRan := outputs["c"]
	assert.False(t, cRan)

	assert.Equal(t, 1, countEvents(history, events.NodeDone, "b"))
	assert.Equal(t, 0, countEvents(history, events.NodeStart, "c"))
	assert.Equal(t, 1, countEvents(history, events.NodeSkipped, "c"))

	// the failed edge never produced an activation event
	for _, ev := range eventsOfType(history, events.EdgeActive) {
		target, _ := ev.Payload.GetString("target")
		assert.NotEqual(t, "c", target)
	}
}

func TestTemplatedCondition(t *testing.T) {
	manifest := &types.Manifest{
		Name: "templated",
		Nodes: []types.ManifestNode{
			{ID: "score", Config: types.Data{"mock_output": map[string]any{"value": 80}}},
			{ID: "high", Config: types.Data{"mock_output": "promoted"}},
			{ID: "low", Config: types.Data{"mock_output": "demoted"}},
		},
		Edges: []types.ManifestEdge{
			{Source: "score", Target: "high", Condition: "{{ score.value > 50 }}"},
			{Source: "score", Target: "low", Condition: "{{ score.value <= 50 }}"},
		},
	}

	runner := newRunnerForTest(t)
	exec, err := runner.Start(context.Background(), RunParams{
		Graph:   buildGraphForTest(t, manifest),
		Context: newExecContext(),
	})
	assert.Nil(t, err)
	history := <-drainEvents(exec)
	assert.Nil(t, exec.Err())

	assert.Equal(t, "promoted", exec.Outputs()["high"])
	assert.Equal(t, 1, countEvents(history, events.NodeSkipped, "low"))
}

func TestDiamondReconvergence(t *testing.T) {
	// one branch of the diamond is pruned; the join must still run off the
	// surviving branch
	manifest := &types.Manifest{
		Name: "diamond",
		Nodes: []types.ManifestNode{
			{ID: "a", Config: types.Data{"mock_output": "yes"}},
			{ID: "b", Config: types.Data{"mock_output": "from-b"}},
			{ID: "c", Config: types.Data{"mock_output": "from-c"}},
			{ID: "d", Config: types.Data{"mock_output": "joined"}},
		},
		Edges: []types.ManifestEdge{
			{Source: "a", Target: "b", Condition: "yes"},
			{Source: "a", Target: "c", Condition: "no"},
			{Source: "b", Target: "d"},
			{Source: "c", Target: "d"},
		},
	}

	runner := newRunnerForTest(t)
	exec, err := runner.Start(context.Background(), RunParams{
		Graph:   buildGraphForTest(t, manifest),
		Context: newExecContext(),
	})
	assert.Nil(t, err)
	history := <-drainEvents(exec)
	assert.Nil(t, exec.Err())

	assert.Equal(t, "joined", exec.Outputs()["d"])
	assert.Equal(t, 1, countEvents(history, events.NodeSkipped, "c"))
	assert.Equal(t, 0, countEvents(history, events.NodeSkipped, "d"))
	assert.Equal(t, 1, countEvents(history, events.NodeDone, "d"))
}

func TestPruneCascade(t *testing.T) {
	manifest := &types.Manifest{
		Name: "cascade",
		Nodes: []types.ManifestNode{
			{ID: "a", Config: types.Data{"mock_output": "left"}},
			{ID: "b", Config: types.Data{"mock_output": "b-out"}},
			{ID: "c", Config: types.Data{"mock_output": "c-out"}},
			{ID: "d", Config: types.Data{"mock_output": "d-out"}},
		},
		Edges: []types.ManifestEdge{
			{Source: "a", Target: "b", Condition: "right"},
			{Source: "b", Target: "c"},
			{Source: "c", Target: "d"},
		},
	}

	runner := newRunnerForTest(t)
	exec, err := runner.Start(context.Background(), RunParams{
		Graph:   buildGraphForTest(t, manifest),
		Context: newExecContext(),
	})
	assert.Nil(t, err)
	history := <-drainEvents(exec)
	assert.Nil(t, exec.Err())

	assert.Equal(t, 1, countEvents(history, events.NodeSkipped, "b"))
	assert.Equal(t, 1, countEvents(history, events.NodeSkipped, "c"))
	assert.Equal(t, 1, countEvents(history, events.NodeSkipped, "d"))
	assert.Equal(t, 1, len(eventsOfType(history, events.NodeDone)))
}

func TestTemplateResolutionAcrossLayers(t *testing.T) {
	tools := &mockTools{results: map[string]any{"search": "moon landing"}}
	execCtx := newExecContext()
	execCtx.Tools = tools

	manifest := &types.Manifest{
		Name: "resolve",
		Nodes: []types.ManifestNode{
			{ID: "fetch", Type: types.KindTool, Config: types.Data{"tool_name": "search"}},
			{ID: "report", Config: types.Data{"mock_output": "topic: {{ fetch }}"}},
		},
		Edges: []types.ManifestEdge{
			{Source: "fetch", Target: "report"},
		},
	}

	runner := newRunnerForTest(t)
	exec, err := runner.Start(context.Background(), RunParams{
		Graph:   buildGraphForTest(t, manifest),
		Context: execCtx,
		Inputs:  types.Data{"query": "apollo"},
	})
	assert.Nil(t, err)
	<-drainEvents(exec)
	assert.Nil(t, exec.Err())

	assert.Equal(t, 1, tools.callCount("search"))
	assert.Equal(t, "topic: moon landing", exec.Outputs()["report"])
	// run inputs stay visible in the output universe
	assert.Equal(t, "apollo", exec.Outputs()["query"])
}

func TestStartValidation(t *testing.T) {
	runner := newRunnerForTest(t)

	_, err := runner.Start(context.Background(), RunParams{Context: newExecContext()})
	assert.NotNil(t, err)

	graph := buildGraphForTest(t, &types.Manifest{
		Name:  "one",
		Nodes: []types.ManifestNode{{ID: "a"}},
	})
	_, err = runner.Start(context.Background(), RunParams{Graph: graph})
	assert.NotNil(t, err)

	_, err = NewRunner(types.WithMaxParallel(0))
	assert.NotNil(t, err)
}
