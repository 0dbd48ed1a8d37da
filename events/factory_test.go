package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/coreason/maco/types"
	"github.com/coreason/maco/utils"
)

func TestNodeLifecycleEvents(t *testing.T) {
	init := NewNodeInit("run-1", "n1", types.KindLLM)
	assert.Equal(t, NodeInit, init.Type)
	assert.Equal(t, "run-1", init.RunID)
	assert.Equal(t, "n1", init.NodeID)
	nodeType, _ := init.Payload.GetString("node_type")
	assert.Equal(t, "LLM", nodeType)
	status, _ := init.Payload.GetString("status")
	assert.Equal(t, "PENDING", status)
	assert.Equal(t, "IDLE", init.Visual["state"])
	assert.False(t, init.Timestamp.IsZero())
	assert.True(t, time.Since(init.Timestamp) < time.Minute)

	start := NewNodeStart("run-1", "n1")
	status, _ = start.Payload.GetString("status")
	assert.Equal(t, "RUNNING", status)
	cue, _ := start.Payload.GetString("visual_cue")
	assert.Equal(t, "PULSE", cue)

	done := NewNodeDone("run-1", "n1", map[string]any{"k": 1})
	summary, _ := done.Payload.GetString("output_summary")
	assert.Equal(t, utils.Stringify(map[string]any{"k": 1}), summary)

	doneNil := NewNodeDone("run-1", "n1", nil)
	summary, _ = doneNil.Payload.GetString("output_summary")
	assert.Equal(t, "Completed", summary)

	restored := NewNodeRestored("run-1", "n1", "cached")
	status, _ = restored.Payload.GetString("status")
	assert.Equal(t, "RESTORED", status)
	cue, _ = restored.Payload.GetString("visual_cue")
	assert.Equal(t, "INSTANT_GREEN", cue)

	skipped := NewNodeSkipped("run-1", "n1")
	status, _ = skipped.Payload.GetString("status")
	assert.Equal(t, "SKIPPED", status)
}

func TestEdgeActiveBelongsToSource(t *testing.T) {
	ev := NewEdgeActive("run-1", "src", "dst")
	assert.Equal(t, EdgeActive, ev.Type)
	assert.Equal(t, "src", ev.NodeID)
	source, _ := ev.Payload.GetString("source")
	target, _ := ev.Payload.GetString("target")
	assert.Equal(t, "src", source)
	assert.Equal(t, "dst", target)
}

func TestCouncilVoteEvent(t *testing.T) {
	votes := map[string]string{"gpt": "a", "claude": "b"}
	ev := NewCouncilVote("run-1", "council", votes)
	assert.Equal(t, CouncilVote, ev.Type)
	assert.Equal(t, votes, ev.Payload["votes"])
}

func TestErrorEvent(t *testing.T) {
	snapshot := types.Data{"a": "out"}
	ev := NewError("run-1", "bad", "it broke", "stack...", snapshot)
	assert.Equal(t, Error, ev.Type)
	msg, _ := ev.Payload.GetString("error_message")
	assert.Equal(t, "it broke", msg)
	got, _ := ev.Payload.GetData("input_snapshot")
	assert.Equal(t, snapshot, got)
}

func TestEventSerialization(t *testing.T) {
	ev := NewNodeDone("run-1", "n1", "output")
	ev.Sequence = 7

	b, err := utils.Serialize(ev)
	assert.Nil(t, err)
	assert.Contains(t, string(b), `"sequence_id":7`)
	assert.Contains(t, string(b), `"visual_metadata"`)

	decoded := &GraphEvent{}
	assert.Nil(t, utils.Unserialize(b, decoded))
	assert.Equal(t, NodeDone, decoded.Type)
	assert.Equal(t, int64(7), decoded.Sequence)
}
