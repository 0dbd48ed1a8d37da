// Package events defines the closed telemetry vocabulary emitted by the
// workflow runner and the factory that stamps every event consistently.
package events

import (
	"time"

	"github.com/coreason/maco/types"
)

type EventType string

const (
	NodeInit     EventType = "NODE_INIT"
	NodeStart    EventType = "NODE_START"
	NodeStream   EventType = "NODE_STREAM"
	NodeDone     EventType = "NODE_DONE"
	NodeRestored EventType = "NODE_RESTORED"
	NodeSkipped  EventType = "NODE_SKIPPED"
	EdgeActive   EventType = "EDGE_ACTIVE"
	CouncilVote  EventType = "COUNCIL_VOTE"
	Error        EventType = "ERROR"
)

// GraphEvent is the unit of observability. Events are immutable once emitted
// and totally ordered within a run by Sequence, assigned at emission.
type GraphEvent struct {
	Type      EventType         `json:"event_type"`
	RunID     string            `json:"run_id"`
	NodeID    string            `json:"node_id"`
	Timestamp time.Time         `json:"timestamp"`
	Sequence  int64             `json:"sequence_id"`
	Payload   types.Data        `json:"payload"`
	Visual    map[string]string `json:"visual_metadata"`
}
