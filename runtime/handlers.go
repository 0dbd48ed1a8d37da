package runtime

import (
	"context"
	"strings"

	"github.com/juju/errors"

	"github.com/coreason/maco/council"
	"github.com/coreason/maco/events"
	"github.com/coreason/maco/types"
	"github.com/coreason/maco/utils"
)

const (
	defaultLLMPrompt     = "Analyze this."
	defaultCouncilPrompt = "Please analyze."
)

// emitFn sends an event to the run's stream. It returns false when the run
// was cancelled and the event could not be delivered.
type emitFn func(*events.GraphEvent) bool

// handlerEnv is everything a node handler may need: the resolved config,
// the capability handles and a way to emit intermediate events.
type handlerEnv struct {
	runID   string
	node    *types.Node
	config  types.Data
	execCtx *types.ExecutionContext
	emit    emitFn
}

// nodeHandler executes the logic of one node kind.
type nodeHandler interface {
	Execute(ctx context.Context, env *handlerEnv) (any, error)
}

func newHandlerTable(strategy *council.Strategy) (map[types.NodeKind]nodeHandler, nodeHandler) {
	handlers := map[types.NodeKind]nodeHandler{
		types.KindTool:    &toolHandler{},
		types.KindLLM:     &llmHandler{},
		types.KindCouncil: &councilHandler{strategy: strategy},
		types.KindHuman:   &humanHandler{},
	}
	return handlers, &defaultHandler{}
}

// toolHandler invokes the tool capability and unwraps content-list results
// to their first textual entry.
type toolHandler struct{}

func (h *toolHandler) Execute(ctx context.Context, env *handlerEnv) (any, error) {
	toolName, _ := env.config.GetString("tool_name")
	if toolName == "" {
		return nil, nil
	}
	if env.execCtx == nil || env.execCtx.Tools == nil {
		return nil, types.NewPreconditionErrorf("node %s: tool executor is not configured", env.node.ID)
	}

	args, _ := env.config.GetData("args")
	result, err := env.execCtx.Tools.Execute(ctx, toolName, args)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return unwrapToolResult(result), nil
}

func unwrapToolResult(result any) any {
	switch r := result.(type) {
	case nil:
		return nil
	case *types.ToolResponse:
		if r == nil || len(r.Content) == 0 {
			return ""
		}
		return r.Content[0].Text
	case types.ToolResponse:
		if len(r.Content) == 0 {
			return ""
		}
		return r.Content[0].Text
	case string:
		return r
	}
	return utils.Stringify(result)
}

// llmHandler invokes the agent capability, preferring the streaming surface
// when the executor implements it. A stream setup error falls back to the
// single-shot call; an empty stream that closes cleanly is empty output.
type llmHandler struct{}

func (h *llmHandler) Execute(ctx context.Context, env *handlerEnv) (any, error) {
	if env.execCtx == nil || env.execCtx.Agents == nil {
		return nil, types.NewPreconditionErrorf("node %s: agent executor is not configured", env.node.ID)
	}

	prompt := h.resolvePrompt(env.config)

	if streamer, ok := env.execCtx.Agents.(types.StreamingAgentExecutor); ok {
		chunks, err := streamer.Stream(ctx, prompt, env.config)
		if err == nil {
			var sb strings.Builder
			for chunk := range chunks {
				sb.WriteString(chunk)
				if !env.emit(events.NewNodeStream(env.runID, env.node.ID, chunk)) {
					return nil, errors.Trace(ctx.Err())
				}
			}
			return sb.String(), nil
		}
		// setup failed, fall back to single-shot invocation
	}

	resp, err := env.execCtx.Agents.Invoke(ctx, prompt, env.config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return resp.Content, nil
}

func (h *llmHandler) resolvePrompt(config types.Data) string {
	if prompt, exists := config.GetString("prompt"); exists && prompt != "" {
		return prompt
	}
	if args, exists := config.GetData("args"); exists {
		if prompt, exists := args.GetString("prompt"); exists && prompt != "" {
			return prompt
		}
	}
	return defaultLLMPrompt
}

// councilHandler delegates to the consensus strategy and emits the
// per-voter vote map before returning the consensus as the node output.
type councilHandler struct {
	strategy *council.Strategy
}

func (h *councilHandler) Execute(ctx context.Context, env *handlerEnv) (any, error) {
	prompt, _ := env.config.GetString("prompt")
	if prompt == "" {
		prompt = defaultCouncilPrompt
	}

	voters, _ := env.config.GetStringSlice("voters")
	strategyName, _ := env.config.GetString("strategy")
	config := council.Config{Voters: voters, Strategy: strategyName}

	result, err := h.strategy.Execute(ctx, prompt, config, env.execCtx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	if !env.emit(events.NewCouncilVote(env.runID, env.node.ID, result.IndividualVotes)) {
		return nil, errors.Trace(ctx.Err())
	}
	return result.Consensus, nil
}

// humanHandler suspends until external feedback for this node id arrives.
// This is the one intentional indefinite-blocking point in the engine;
// timeout policy belongs to the caller.
type humanHandler struct{}

func (h *humanHandler) Execute(ctx context.Context, env *handlerEnv) (any, error) {
	if env.execCtx == nil || env.execCtx.Feedback == nil {
		return nil, types.NewPreconditionErrorf("node %s: feedback channel is not configured", env.node.ID)
	}

	future := env.execCtx.Feedback.Create(env.node.ID)
	select {
	case <-ctx.Done():
		return nil, errors.Trace(ctx.Err())
	case <-future.Done():
		return future.Value(), nil
	}
}

// defaultHandler serves unknown node kinds: a no-op returning the configured
// placeholder value, for nodes whose semantics live in external systems.
type defaultHandler struct{}

func (h *defaultHandler) Execute(ctx context.Context, env *handlerEnv) (any, error) {
	value, _ := env.config.Get("mock_output")
	return value, nil
}
