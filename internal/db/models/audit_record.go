// Package models defines the persistence-layer types for ProcureFlow's audit
// trail: the immutable AuditRecord and the classifier-produced
// ClassificationResult joined onto it.
package models

import "time"

// SystemActor is the reserved actor id for audit entries with no authenticated
// user, such as a failed login attempt before identity is known. It is a real
// value, never NULL: every persisted record names an actor.
const SystemActor int64 = 0

// AuditRecord represents one immutable audit log entry. Rows are only ever
// inserted; id and created_at are assigned by the store.
type AuditRecord struct {
	ID          int64                  `json:"id" db:"id"`
	ActorID     int64                  `json:"actor_id" db:"actor_id"`
	ActionType  string                 `json:"action_type" db:"action_type"`
	Description string                 `json:"description" db:"description"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"` // JSONB; nil when absent
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
}

// AuditRecordWithResult is the read-side left join of an audit record and its
// classification verdict. Classification is nil when the record has not been
// scored (yet, or ever) — callers must distinguish that from a "normal"
// verdict.
type AuditRecordWithResult struct {
	AuditRecord
	Classification *ClassificationResult `json:"classification"`
}
