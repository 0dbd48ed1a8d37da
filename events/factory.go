package events

import (
	"time"

	"github.com/coreason/maco/types"
	"github.com/coreason/maco/utils"
)

func newEvent(eventType EventType, runID, nodeID string, payload types.Data, visual map[string]string) *GraphEvent {
	return &GraphEvent{
		Type:      eventType,
		RunID:     runID,
		NodeID:    nodeID,
		Timestamp: time.Now(),
		Payload:   payload,
		Visual:    visual,
	}
}

func NewNodeInit(runID, nodeID string, kind types.NodeKind) *GraphEvent {
	payload := types.Data{
		"node_id":   nodeID,
		"node_type": string(kind),
		"status":    types.Pending.String(),
	}
	return newEvent(NodeInit, runID, nodeID, payload, map[string]string{"state": "IDLE", "color": "#GREY"})
}

func NewNodeStart(runID, nodeID string) *GraphEvent {
	payload := types.Data{
		"node_id":    nodeID,
		"status":     types.Running.String(),
		"visual_cue": "PULSE",
	}
	return newEvent(NodeStart, runID, nodeID, payload, map[string]string{"state": "PULSING", "anim": "BREATHE"})
}

func NewNodeStream(runID, nodeID, chunk string) *GraphEvent {
	payload := types.Data{
		"node_id": nodeID,
		"chunk":   chunk,
	}
	return newEvent(NodeStream, runID, nodeID, payload, map[string]string{"state": "STREAMING"})
}

func NewNodeDone(runID, nodeID string, output any) *GraphEvent {
	summary := "Completed"
	if output != nil {
		summary = utils.Stringify(output)
	}
	payload := types.Data{
		"node_id":        nodeID,
		"output_summary": summary,
		"status":         "SUCCESS",
		"visual_cue":     "GREEN_GLOW",
	}
	return newEvent(NodeDone, runID, nodeID, payload, map[string]string{"state": "SOLID", "color": "#GREEN"})
}

func NewNodeRestored(runID, nodeID string, output any) *GraphEvent {
	payload := types.Data{
		"node_id":        nodeID,
		"output_summary": utils.Stringify(output),
		"status":         types.Restored.String(),
		"visual_cue":     "INSTANT_GREEN",
	}
	return newEvent(NodeRestored, runID, nodeID, payload, map[string]string{"state": "RESTORED", "color": "#00FF00"})
}

func NewNodeSkipped(runID, nodeID string) *GraphEvent {
	payload := types.Data{
		"node_id": nodeID,
		"status":  types.Skipped.String(),
	}
	return newEvent(NodeSkipped, runID, nodeID, payload, map[string]string{"state": "SKIPPED", "color": "#GREY"})
}

// NewEdgeActive associates the edge event with its source node.
func NewEdgeActive(runID, source, target string) *GraphEvent {
	payload := types.Data{
		"source":          source,
		"target":          target,
		"animation_speed": "FAST",
	}
	return newEvent(EdgeActive, runID, source, payload, map[string]string{"flow_speed": "FAST", "particle": "DOT"})
}

func NewCouncilVote(runID, nodeID string, votes map[string]string) *GraphEvent {
	payload := types.Data{
		"node_id": nodeID,
		"votes":   votes,
	}
	return newEvent(CouncilVote, runID, nodeID, payload, map[string]string{"widget": "VOTING_BOOTH"})
}

// NewError carries the failure message, a stack rendering and a sanitized
// snapshot of the outputs accumulated before the failure.
func NewError(runID, nodeID, message, stack string, snapshot types.Data) *GraphEvent {
	payload := types.Data{
		"node_id":        nodeID,
		"error_message":  message,
		"stack_trace":    stack,
		"input_snapshot": snapshot,
	}
	return newEvent(Error, runID, nodeID, payload, map[string]string{"state": "ERROR", "color": "#RED"})
}
