package events

import (
	"context"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/coreason/maco/store"
	"github.com/coreason/maco/types"
	"github.com/coreason/maco/utils"
)

const AuditPath = "/audit/"

// Sink receives the complete, ordered event history of a finished run.
type Sink interface {
	Log(ctx context.Context, traceID, runID string, manifest *types.Manifest, inputs types.Data, history []*GraphEvent) error
}

// AuditRecord is the persisted form of one workflow execution.
type AuditRecord struct {
	TraceID  string          `json:"trace_id"`
	RunID    string          `json:"run_id"`
	Manifest *types.Manifest `json:"manifest,omitempty"`
	Inputs   types.Data      `json:"inputs,omitempty"`
	Events   []*GraphEvent   `json:"events"`
}

var (
	_ Sink = &StoreSink{}
)

// StoreSink persists audit records under AuditPath keyed by run id.
type StoreSink struct {
	store store.Store
}

func NewStoreSink(s store.Store) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) Log(ctx context.Context, traceID, runID string, manifest *types.Manifest, inputs types.Data, history []*GraphEvent) error {
	record := &AuditRecord{
		TraceID:  traceID,
		RunID:    runID,
		Manifest: manifest,
		Inputs:   inputs,
		Events:   history,
	}
	b, err := utils.Serialize(record)
	if err != nil {
		return errors.Trace(err)
	}
	if err := s.store.Set(ctx, AuditPath, runID, b); err != nil {
		return errors.Annotatef(err, "failed to persist audit record for run %s", runID)
	}
	log.Debugf("audit record persisted: trace=%s run=%s events=%d", traceID, runID, len(history))
	return nil
}

// LoadAuditRecord reads back a persisted audit record, or nil when absent.
func LoadAuditRecord(ctx context.Context, s store.Store, runID string) (*AuditRecord, error) {
	b, err := s.Get(ctx, AuditPath, runID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if b == nil {
		return nil, nil
	}
	record := &AuditRecord{}
	if err := utils.Unserialize(b, record); err != nil {
		return nil, errors.Trace(err)
	}
	return record, nil
}
