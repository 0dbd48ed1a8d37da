package runtime

import (
	"context"

	"github.com/juju/errors"

	"github.com/coreason/maco/store"
	"github.com/coreason/maco/types"
	"github.com/coreason/maco/utils"
)

// SnapshotPath prefixes every persisted resume snapshot key.
const SnapshotPath = "/snapshot/"

// SaveSnapshot persists the outputs of a failed run under requestID so a
// retry can resume past the completed nodes.
func SaveSnapshot(ctx context.Context, st store.Store, requestID string, outputs types.Data) error {
	data, err := utils.Serialize(outputs)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(st.Set(ctx, SnapshotPath, requestID, data))
}

// LoadSnapshot returns the stored snapshot for requestID, nil when absent.
func LoadSnapshot(ctx context.Context, st store.Store, requestID string) (types.Data, error) {
	data, err := st.Get(ctx, SnapshotPath, requestID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if data == nil {
		return nil, nil
	}

	var snapshot types.Data
	if err := utils.Unserialize(data, &snapshot); err != nil {
		return nil, errors.Trace(err)
	}
	return snapshot, nil
}

// RemoveSnapshot clears the snapshot for requestID after a successful run.
func RemoveSnapshot(ctx context.Context, st store.Store, requestID string) error {
	return errors.Trace(st.Remove(ctx, SnapshotPath, requestID))
}
