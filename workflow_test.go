package maco

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	mevents "github.com/coreason/maco/events"
	"github.com/coreason/maco/runtime"
	"github.com/coreason/maco/store"
	"github.com/coreason/maco/store/mem"
	"github.com/coreason/maco/types"
)

type e2eTools struct {
	mu      sync.Mutex
	calls   map[string]int
	results map[string]any
	errs    map[string]error
}

func (m *e2eTools) Execute(ctx context.Context, name string, args types.Data) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
	if err := m.errs[name]; err != nil {
		return nil, err
	}
	return m.results[name], nil
}

type e2eAgent struct {
	mu      sync.Mutex
	content string
	voters  map[string]string
}

func (a *e2eAgent) Invoke(ctx context.Context, prompt string, config types.Data) (*types.AgentResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if model, _ := config.GetString("model"); model != "" && model != "judge" {
		return &types.AgentResponse{Content: a.voters[model]}, nil
	}
	return &types.AgentResponse{Content: a.content}, nil
}

func newTestEngine(t *testing.T) (*Engine, store.Store) {
	s := mem.NewMemStore()
	engine, err := NewEngineWithStore(s)
	assert.Nil(t, err)
	return engine, s
}

func collectRun(run *Run) []*mevents.GraphEvent {
	history := make([]*mevents.GraphEvent, 0, 32)
	for ev := range run.Events() {
		history = append(history, ev)
	}
	return history
}

func countRunEvents(history []*mevents.GraphEvent, et mevents.EventType, nodeID string) int {
	n := 0
	for _, ev := range history {
		if ev.Type == et && ev.NodeID == nodeID {
			n++
		}
	}
	return n
}

func TestEngineExecuteRecipe(t *testing.T) {
	engine, s := newTestEngine(t)
	tools := &e2eTools{results: map[string]any{"search": "eclipse dates"}}

	manifest := &types.Manifest{
		Name: "research",
		Nodes: []types.ManifestNode{
			{ID: "fetch", Type: types.KindTool, Config: types.Data{"tool_name": "search"}},
			{ID: "summarize", Config: types.Data{"mock_output": "summary of {{ fetch }}"}},
		},
		Edges: []types.ManifestEdge{
			{Source: "fetch", Target: "summarize"},
		},
	}
	execCtx := &types.ExecutionContext{UserID: "user-1", TraceID: "trace-1", Tools: tools}

	run, err := engine.ExecuteRecipe(context.Background(), "req-1", manifest, types.Data{"topic": "eclipses"}, execCtx)
	assert.Nil(t, err)
	assert.True(t, len(run.RunID()) > 0)

	history := collectRun(run)
	assert.Nil(t, run.Err())
	assert.Equal(t, "summary of eclipse dates", run.Outputs()["summarize"])

	// success clears the resume snapshot and persists the audit trail
	snapshot, err := runtime.LoadSnapshot(context.Background(), s, "req-1")
	assert.Nil(t, err)
	assert.Nil(t, snapshot)

	record, err := engine.AuditRecord(context.Background(), run.RunID())
	assert.Nil(t, err)
	assert.NotNil(t, record)
	assert.Equal(t, "trace-1", record.TraceID)
	assert.Equal(t, "research", record.Manifest.Name)
	assert.Equal(t, len(history), len(record.Events))
}

func TestEngineResumeAfterFailure(t *testing.T) {
	engine, s := newTestEngine(t)
	tools := &e2eTools{
		results: map[string]any{"gather": "collected"},
		errs:    map[string]error{"flaky": errors.New("transient outage")},
	}

	manifest := &types.Manifest{
		Name: "flaky-pipeline",
		Nodes: []types.ManifestNode{
			{ID: "gather", Type: types.KindTool, Config: types.Data{"tool_name": "gather"}},
			{ID: "process", Type: types.KindTool, Config: types.Data{"tool_name": "flaky"}},
		},
		Edges: []types.ManifestEdge{
			{Source: "gather", Target: "process"},
		},
	}
	execCtx := &types.ExecutionContext{UserID: "user-1", Tools: tools}

	run, err := engine.ExecuteRecipe(context.Background(), "req-2", manifest, nil, execCtx)
	assert.Nil(t, err)
	collectRun(run)
	assert.True(t, types.IsHandlerError(run.Err()))

	snapshot, err := runtime.LoadSnapshot(context.Background(), s, "req-2")
	assert.Nil(t, err)
	assert.Equal(t, "collected", snapshot["gather"])
	assert.Equal(t, 1, tools.calls["gather"])

	// the outage clears; the retry must not redo the finished work
	tools.mu.Lock()
	delete(tools.errs, "flaky")
	tools.results["flaky"] = "processed"
	tools.mu.Unlock()

	run, err = engine.ExecuteRecipe(context.Background(), "req-2", manifest, nil, execCtx)
	assert.Nil(t, err)
	history := collectRun(run)
	assert.Nil(t, run.Err())

	assert.Equal(t, 1, countRunEvents(history, mevents.NodeRestored, "gather"))
	assert.Equal(t, 0, countRunEvents(history, mevents.NodeStart, "gather"))
	assert.Equal(t, 1, tools.calls["gather"])
	assert.Equal(t, "processed", run.Outputs()["process"])

	snapshot, err = runtime.LoadSnapshot(context.Background(), s, "req-2")
	assert.Nil(t, err)
	assert.Nil(t, snapshot)
}

func TestEngineCouncilRecipe(t *testing.T) {
	engine, _ := newTestEngine(t)
	agent := &e2eAgent{
		content: "final consensus",
		voters:  map[string]string{"gpt": "vote a", "claude": "vote b"},
	}

	manifest := &types.Manifest{
		Name: "council",
		Nodes: []types.ManifestNode{
			{ID: "deliberate", Type: types.KindCouncil, Config: types.Data{
				"prompt": "pick one",
				"voters": []any{"gpt", "claude"},
			}},
		},
	}
	execCtx := &types.ExecutionContext{UserID: "user-1", Agents: agent}

	run, err := engine.ExecuteRecipe(context.Background(), "req-3", manifest, nil, execCtx)
	assert.Nil(t, err)
	history := collectRun(run)
	assert.Nil(t, run.Err())

	assert.Equal(t, "final consensus", run.Outputs()["deliberate"])
	assert.Equal(t, 1, countRunEvents(history, mevents.CouncilVote, "deliberate"))
}

func TestEngineHumanGate(t *testing.T) {
	engine, _ := newTestEngine(t)
	execCtx := &types.ExecutionContext{
		UserID:   "user-1",
		Feedback: runtime.NewFeedbackManager(),
	}

	manifest := &types.Manifest{
		Name: "approval",
		Nodes: []types.ManifestNode{
			{ID: "draft", Config: types.Data{"mock_output": "draft text"}},
			{ID: "gate", Type: types.KindHuman},
			{ID: "publish", Config: types.Data{"mock_output": "published: {{ gate }}"}},
		},
		Edges: []types.ManifestEdge{
			{Source: "draft", Target: "gate"},
			{Source: "gate", Target: "publish"},
		},
	}

	run, err := engine.ExecuteRecipe(context.Background(), "req-4", manifest, nil, execCtx)
	assert.Nil(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		ok, err := engine.SubmitFeedback(execCtx, "gate", "approved")
		assert.Nil(t, err)
		assert.True(t, ok)
	}()
	collectRun(run)
	assert.Nil(t, run.Err())
	assert.Equal(t, "published: approved", run.Outputs()["publish"])
}

func TestEngineRejectsInvalidRecipe(t *testing.T) {
	engine, _ := newTestEngine(t)
	execCtx := &types.ExecutionContext{UserID: "user-1"}

	cyclic := &types.Manifest{
		Name:  "cyclic",
		Nodes: []types.ManifestNode{{ID: "a"}, {ID: "b"}},
		Edges: []types.ManifestEdge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}
	_, err := engine.ExecuteRecipe(context.Background(), "req-5", cyclic, nil, execCtx)
	assert.True(t, types.IsCycleError(err))

	_, err = engine.ExecuteRecipe(context.Background(), "", &types.Manifest{}, nil, execCtx)
	assert.NotNil(t, err)
}

func TestNewEngineDefaults(t *testing.T) {
	engine, err := NewEngine()
	assert.Nil(t, err)
	assert.NotNil(t, engine)
}
