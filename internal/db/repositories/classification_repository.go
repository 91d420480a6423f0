// classification_repository.go implements ClassificationRepository, the owner
// of classifier verdicts. Writes go through a single idempotent upsert keyed
// on the unique audit_record_id, so repeated classification of the same record
// leaves exactly one row reflecting the last completed call.
package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/procureflow/procureflow/internal/db/models"
)

// ClassificationRepository handles classification result database operations
type ClassificationRepository struct {
	db *sqlx.DB
}

// NewClassificationRepository creates a new ClassificationRepository
func NewClassificationRepository(db *sqlx.DB) *ClassificationRepository {
	return &ClassificationRepository{db: db}
}

// Upsert writes or replaces the verdict for a single audit record. Concurrent
// upserts for the same record are last-write-wins.
func (r *ClassificationRepository) Upsert(ctx context.Context, result *models.ClassificationResult) error {
	query := `
		INSERT INTO classification_results (audit_record_id, anomaly_score, is_anomaly, model_name, analyzed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (audit_record_id) DO UPDATE SET
			anomaly_score = EXCLUDED.anomaly_score,
			is_anomaly    = EXCLUDED.is_anomaly,
			model_name    = EXCLUDED.model_name,
			analyzed_at   = EXCLUDED.analyzed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		result.AuditRecordID,
		result.AnomalyScore,
		result.IsAnomaly,
		result.ModelName,
		result.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert classification result for record %d: %w", result.AuditRecordID, err)
	}

	return nil
}

// GetByAuditRecordID retrieves the verdict for an audit record.
// Returns (nil, nil) when the record has not been classified.
func (r *ClassificationRepository) GetByAuditRecordID(ctx context.Context, auditRecordID int64) (*models.ClassificationResult, error) {
	query := `
		SELECT id, audit_record_id, anomaly_score, is_anomaly, model_name, analyzed_at
		FROM classification_results
		WHERE audit_record_id = $1
	`

	result := &models.ClassificationResult{}
	err := r.db.GetContext(ctx, result, query, auditRecordID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get classification result for record %d: %w", auditRecordID, err)
	}

	return result, nil
}
