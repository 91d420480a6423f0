package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/procureflow/procureflow/internal/db/models"
	"github.com/procureflow/procureflow/internal/telemetry"
)

// Validation failure taxonomy. Callers match with errors.Is; each failure is
// fatal to the triggering request — an audit obligation is never silently
// dropped.
var (
	ErrInvalidActor       = errors.New("invalid actor")
	ErrInvalidActionType  = errors.New("invalid action type")
	ErrInvalidDescription = errors.New("invalid description")
	ErrInvalidMetadata    = errors.New("invalid metadata")
)

// Store is the persistence seam for the recorder. *repositories.AuditRepository
// satisfies it; tests substitute a stub.
type Store interface {
	CreateAuditRecord(ctx context.Context, rec *models.AuditRecord) error
}

// EnqueueFunc receives a snapshot of a freshly persisted audit record for
// asynchronous classification. Implementations must be non-blocking; the
// recorder treats the hand-off as fire-and-forget.
type EnqueueFunc func(rec models.AuditRecord)

// Recorder validates and persists audit records, then hands each persisted
// record to the anomaly queue. The enqueue dependency is injected at
// construction so the recorder works standalone (nil enqueue is a no-op) and
// there is no import cycle between the writer and the processor.
type Recorder struct {
	store   Store
	enqueue EnqueueFunc
}

// NewRecorder creates a Recorder. enqueue may be nil, in which case persisted
// records are simply not scheduled for classification.
func NewRecorder(store Store, enqueue EnqueueFunc) *Recorder {
	return &Recorder{store: store, enqueue: enqueue}
}

// Record validates and persists one immutable audit record, returning it with
// the store-assigned id and timestamp.
//
// Validation order: actor, action type, description, metadata. Failures are
// reported with the sentinel errors above and nothing is persisted.
//
// On successful persistence only, a snapshot of the record is handed to the
// enqueue function. That hand-off can never fail the call: the audit write is
// already durable, and classification is best-effort relative to the audit
// guarantee. Enqueue panics are recovered and logged.
func (r *Recorder) Record(ctx context.Context, actorID int64, action ActionType, description string, metadata map[string]interface{}) (*models.AuditRecord, error) {
	if actorID < models.SystemActor {
		return nil, fmt.Errorf("%w: actor id %d (must be a user id or the system actor)", ErrInvalidActor, actorID)
	}
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidActionType, action)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: description must be non-empty", ErrInvalidDescription)
	}
	if metadata != nil {
		if _, err := json.Marshal(metadata); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
		}
	}

	rec := &models.AuditRecord{
		ActorID:     actorID,
		ActionType:  string(action),
		Description: description,
		Metadata:    metadata,
	}

	if err := r.store.CreateAuditRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist audit record: %w", err)
	}

	telemetry.AuditRecordsTotal.WithLabelValues(rec.ActionType).Inc()

	r.scheduleClassification(*rec)

	return rec, nil
}

// scheduleClassification hands the persisted record to the anomaly queue.
// Failures stop here: the record is durable and the caller has already been
// told the write succeeded.
func (r *Recorder) scheduleClassification(rec models.AuditRecord) {
	if r.enqueue == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("audit: enqueue for classification panicked",
				"record_id", rec.ID, "panic", p)
		}
	}()
	r.enqueue(rec)
}
