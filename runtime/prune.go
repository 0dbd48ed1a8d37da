package runtime

import (
	log "github.com/sirupsen/logrus"

	"github.com/coreason/maco/events"
	"github.com/coreason/maco/utils"
)

// pruneBranch marks nodeID skipped when no path to it can still activate,
// then cascades into its successors. A node with any pending predecessor is
// left alone; a later layer's routing pass revisits it. Returns false only
// when the run was cancelled mid-emission.
func (r *Runner) pruneBranch(st *runState, nodeID, runID string, emit emitFn) bool {
	if st.skipped[nodeID] {
		return true
	}

	for _, pred := range st.graph.Predecessors(nodeID) {
		if st.skipped[pred] {
			continue
		}
		if _, completed := st.outputs[pred]; !completed {
			// predecessor still pending, its edge may yet activate
			return true
		}
		if st.activated[edgeKey{pred, nodeID}] {
			return true
		}
	}

	st.skipped[nodeID] = true
	log.Debugf("run %s: pruned node %s", runID, nodeID)
	if !emit(events.NewNodeSkipped(runID, nodeID)) {
		return false
	}

	for _, succ := range utils.UniqueSlice(st.graph.Successors(nodeID)) {
		if !r.pruneBranch(st, succ, runID, emit) {
			return false
		}
	}
	return true
}
