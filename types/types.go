package types

// NodeKind tags a node with the handler responsible for executing it.
// Unknown kinds fall through to the default handler.
type NodeKind string

const (
	KindTool    NodeKind = "TOOL"
	KindLLM     NodeKind = "LLM"
	KindCouncil NodeKind = "COUNCIL"
	KindHuman   NodeKind = "HUMAN"
	KindDefault NodeKind = "DEFAULT"
)

type NodeStatus int32

const (
	Pending  NodeStatus = 1
	Running  NodeStatus = 2
	Done     NodeStatus = 3
	Restored NodeStatus = 4
	Skipped  NodeStatus = 5
	Errored  NodeStatus = 9
)

func (s NodeStatus) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Done:
		return "DONE"
	case Restored:
		return "RESTORED"
	case Skipped:
		return "SKIPPED"
	case Errored:
		return "ERROR"
	}
	return "NONE"
}
