package types

import "context"

// AgentResponse is the wrapper returned by agent invocations. Content is the
// textual answer; Metadata is capability-specific.
type AgentResponse struct {
	Content  string
	Metadata Data
}

// AgentExecutor invokes a model/agent capability.
type AgentExecutor interface {
	Invoke(ctx context.Context, prompt string, config Data) (*AgentResponse, error)
}

// StreamingAgentExecutor is optionally implemented by agent executors that
// can deliver incremental chunks. A setup error returned by Stream makes the
// caller fall back to single-shot Invoke.
type StreamingAgentExecutor interface {
	AgentExecutor

	Stream(ctx context.Context, prompt string, config Data) (<-chan string, error)
}

// ToolExecutor invokes a named tool with resolved arguments.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args Data) (any, error)
}

// ToolResponse is the structured content-list result shape some tool
// capabilities return. The runner unwraps the first textual entry.
type ToolResponse struct {
	Content []ToolContent
}

type ToolContent struct {
	Text string
}

// FeedbackFuture resolves once when an external feedback signal arrives.
type FeedbackFuture interface {
	Done() <-chan struct{}
	Value() any
}

// FeedbackChannel routes human-gate approvals to suspended nodes by node id.
type FeedbackChannel interface {
	Create(nodeID string) FeedbackFuture
	Get(nodeID string) (FeedbackFuture, bool)
	SetResult(nodeID string, value any) bool
}

// ExecutionContext is the per-run, read-mostly bundle of caller identity and
// capability handles. The runner never mutates it.
type ExecutionContext struct {
	UserID  string
	TraceID string
	Secrets map[string]string

	Tools    ToolExecutor
	Agents   AgentExecutor
	Feedback FeedbackChannel
}
