package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/procureflow/procureflow/internal/db/models"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var errDB = errors.New("database unavailable")

// fakeStore records created audit records and assigns ids.
type fakeStore struct {
	records []*models.AuditRecord
	nextID  int64
	failErr error
}

func (s *fakeStore) CreateAuditRecord(_ context.Context, rec *models.AuditRecord) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.nextID++
	rec.ID = s.nextID
	s.records = append(s.records, rec)
	return nil
}

// ---------------------------------------------------------------------------
// Validation taxonomy
// ---------------------------------------------------------------------------

func TestRecord_ValidInput(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil)

	rec, err := r.Record(context.Background(), 7, ActionLogin, "user alice logged in",
		map[string]interface{}{"status": "success"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID != 1 {
		t.Errorf("expected store-assigned id 1, got %d", rec.ID)
	}
	if rec.ActorID != 7 {
		t.Errorf("actor id = %d, want 7", rec.ActorID)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(store.records))
	}
}

func TestRecord_SystemActorAllowed(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil)

	rec, err := r.Record(context.Background(), models.SystemActor, ActionLogin,
		"failed login attempt for username: bob", map[string]interface{}{"status": "failed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ActorID != models.SystemActor {
		t.Errorf("actor id = %d, want system actor %d", rec.ActorID, models.SystemActor)
	}
}

func TestRecord_InvalidActor(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil)

	_, err := r.Record(context.Background(), -1, ActionLogin, "x", nil)
	if !errors.Is(err, ErrInvalidActor) {
		t.Errorf("expected ErrInvalidActor, got %v", err)
	}
	if len(store.records) != 0 {
		t.Error("nothing must be persisted on validation failure")
	}
}

func TestRecord_InvalidActionType(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil)

	_, err := r.Record(context.Background(), 1, ActionType("SELF_DESTRUCT"), "x", nil)
	if !errors.Is(err, ErrInvalidActionType) {
		t.Errorf("expected ErrInvalidActionType, got %v", err)
	}
	if len(store.records) != 0 {
		t.Error("nothing must be persisted on validation failure")
	}
}

func TestRecord_InvalidDescription(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil)

	for _, desc := range []string{"", "   ", "\t\n"} {
		_, err := r.Record(context.Background(), 1, ActionLogout, desc, nil)
		if !errors.Is(err, ErrInvalidDescription) {
			t.Errorf("description %q: expected ErrInvalidDescription, got %v", desc, err)
		}
	}
	if len(store.records) != 0 {
		t.Error("nothing must be persisted on validation failure")
	}
}

func TestRecord_InvalidMetadata(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil)

	// A channel is not JSON-serialisable.
	_, err := r.Record(context.Background(), 1, ActionCreateOrder, "order #1 created",
		map[string]interface{}{"ch": make(chan int)})
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("expected ErrInvalidMetadata, got %v", err)
	}
	if len(store.records) != 0 {
		t.Error("nothing must be persisted on validation failure")
	}
}

func TestRecord_DescriptionTrimmed(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, nil)

	rec, err := r.Record(context.Background(), 1, ActionCreateProduct, "  new product  ", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Description != "new product" {
		t.Errorf("description = %q, want trimmed %q", rec.Description, "new product")
	}
}

func TestRecord_StoreError(t *testing.T) {
	store := &fakeStore{failErr: errDB}
	enqueued := 0
	r := NewRecorder(store, func(models.AuditRecord) { enqueued++ })

	_, err := r.Record(context.Background(), 1, ActionDeleteUser, "user 5 deleted", nil)
	if err == nil {
		t.Fatal("expected error from failing store")
	}
	if enqueued != 0 {
		t.Error("nothing must be enqueued when persistence fails")
	}
}

// ---------------------------------------------------------------------------
// Enqueue hand-off
// ---------------------------------------------------------------------------

func TestRecord_EnqueuesSnapshotOnSuccess(t *testing.T) {
	store := &fakeStore{}
	var got []models.AuditRecord
	r := NewRecorder(store, func(rec models.AuditRecord) { got = append(got, rec) })

	rec, err := r.Record(context.Background(), 3, ActionApproveOrder, "order #9 approved", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 enqueued snapshot, got %d", len(got))
	}
	if got[0].ID != rec.ID {
		t.Errorf("snapshot id = %d, want %d", got[0].ID, rec.ID)
	}
}

func TestRecord_EnqueuePanicDoesNotFailWrite(t *testing.T) {
	store := &fakeStore{}
	r := NewRecorder(store, func(models.AuditRecord) { panic("queue exploded") })

	rec, err := r.Record(context.Background(), 2, ActionRejectOrder, "order #4 rejected", nil)
	if err != nil {
		t.Fatalf("audit write must succeed even when enqueue panics, got %v", err)
	}
	if rec == nil || rec.ID == 0 {
		t.Error("expected a persisted record with an id")
	}
}

func TestRecord_NilEnqueueIsNoop(t *testing.T) {
	r := NewRecorder(&fakeStore{}, nil)
	if _, err := r.Record(context.Background(), 1, ActionUpdateUser, "user 2 renamed", nil); err != nil {
		t.Fatalf("recorder must work standalone without an enqueue hook: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Action enumeration
// ---------------------------------------------------------------------------

func TestActionType_Valid(t *testing.T) {
	for _, a := range AllActions() {
		if !a.Valid() {
			t.Errorf("action %q should be valid", a)
		}
	}
	for _, a := range []ActionType{"", "login", "DROP_TABLE", "CREATE_ORDER "} {
		if a.Valid() {
			t.Errorf("action %q should be invalid", a)
		}
	}
}
