// audit_repository.go implements AuditRepository, the only writer of audit
// records. Reads left-join the classification verdict so callers can tell
// "not yet scored" (nil) apart from "scored as normal".
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/procureflow/procureflow/internal/db/models"
)

// AuditRepository handles audit record database operations
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AuditFilters contains filters for querying audit records
type AuditFilters struct {
	ActorID    *int64
	ActionType *string
	StartDate  *time.Time
	EndDate    *time.Time
}

// CreateAuditRecord inserts a new audit record and fills in the store-assigned
// id and created_at. The row is immutable from this point on.
func (r *AuditRepository) CreateAuditRecord(ctx context.Context, rec *models.AuditRecord) error {
	// Marshal metadata to JSONB; absent metadata is stored as NULL, never as
	// an empty object that would hide missing data. The arg must be a nil
	// interface, not a nil []byte: the driver encodes a nil []byte as a
	// zero-length value, which Postgres rejects as jsonb.
	var metadataArg interface{}
	if rec.Metadata != nil {
		metadataJSON, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadataArg = metadataJSON
	}

	query := `
		INSERT INTO audit_records (actor_id, action_type, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		rec.ActorID,
		rec.ActionType,
		rec.Description,
		metadataArg,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	return nil
}

const auditJoinColumns = `
	a.id, a.actor_id, a.action_type, a.description, a.metadata, a.created_at,
	c.anomaly_score, c.is_anomaly, c.model_name, c.analyzed_at
`

// ListWithResults retrieves audit records with their classification verdicts
// left-joined, newest first, with optional filters and pagination. Records
// without a verdict carry a nil Classification.
func (r *AuditRepository) ListWithResults(ctx context.Context, filters AuditFilters, limit, offset int) ([]*models.AuditRecordWithResult, int, error) {
	countQuery := `SELECT COUNT(*) FROM audit_records a WHERE 1=1`
	query := `
		SELECT ` + auditJoinColumns + `
		FROM audit_records a
		LEFT JOIN classification_results c ON c.audit_record_id = a.id
		WHERE 1=1
	`

	args := make([]interface{}, 0)
	paramIndex := 1

	if filters.ActorID != nil {
		countQuery += fmt.Sprintf(` AND a.actor_id = $%d`, paramIndex)
		query += fmt.Sprintf(` AND a.actor_id = $%d`, paramIndex)
		args = append(args, *filters.ActorID)
		paramIndex++
	}

	if filters.ActionType != nil {
		countQuery += fmt.Sprintf(` AND a.action_type = $%d`, paramIndex)
		query += fmt.Sprintf(` AND a.action_type = $%d`, paramIndex)
		args = append(args, *filters.ActionType)
		paramIndex++
	}

	if filters.StartDate != nil {
		countQuery += fmt.Sprintf(` AND a.created_at >= $%d`, paramIndex)
		query += fmt.Sprintf(` AND a.created_at >= $%d`, paramIndex)
		args = append(args, *filters.StartDate)
		paramIndex++
	}

	if filters.EndDate != nil {
		countQuery += fmt.Sprintf(` AND a.created_at <= $%d`, paramIndex)
		query += fmt.Sprintf(` AND a.created_at <= $%d`, paramIndex)
		args = append(args, *filters.EndDate)
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit records: %w", err)
	}

	query += fmt.Sprintf(` ORDER BY a.created_at DESC, a.id DESC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	records := make([]*models.AuditRecordWithResult, 0)
	for rows.Next() {
		rec, err := scanAuditRecordWithResult(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}

	return records, total, rows.Err()
}

// GetWithResult retrieves a single audit record by id, with its verdict
// left-joined. Returns (nil, nil) when no such record exists.
func (r *AuditRepository) GetWithResult(ctx context.Context, id int64) (*models.AuditRecordWithResult, error) {
	query := `
		SELECT ` + auditJoinColumns + `
		FROM audit_records a
		LEFT JOIN classification_results c ON c.audit_record_id = a.id
		WHERE a.id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit record %d: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanAuditRecordWithResult(rows)
}

// scanAuditRecordWithResult scans one joined row. The classification columns
// are all NULL or all present, so is_anomaly validity decides whether a
// verdict is attached.
func scanAuditRecordWithResult(rows *sql.Rows) (*models.AuditRecordWithResult, error) {
	rec := &models.AuditRecordWithResult{}
	var metadataJSON []byte
	var score sql.NullFloat64
	var isAnomaly sql.NullBool
	var modelName sql.NullString
	var analyzedAt sql.NullTime

	err := rows.Scan(
		&rec.ID,
		&rec.ActorID,
		&rec.ActionType,
		&rec.Description,
		&metadataJSON,
		&rec.CreatedAt,
		&score,
		&isAnomaly,
		&modelName,
		&analyzedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit record: %w", err)
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata for record %d: %w", rec.ID, err)
		}
	}

	if isAnomaly.Valid {
		rec.Classification = &models.ClassificationResult{
			AuditRecordID: rec.ID,
			AnomalyScore:  score.Float64,
			IsAnomaly:     isAnomaly.Bool,
			ModelName:     modelName.String,
			AnalyzedAt:    analyzedAt.Time,
		}
	}

	return rec, nil
}
