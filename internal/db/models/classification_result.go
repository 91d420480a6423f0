package models

import "time"

// ClassificationResult is the anomaly verdict for a single audit record,
// one-to-one by AuditRecordID (unique constraint). It is mutable only via
// upsert: a later successful classification for the same record overwrites the
// earlier one.
type ClassificationResult struct {
	ID            int64     `json:"-" db:"id"`
	AuditRecordID int64     `json:"audit_record_id" db:"audit_record_id"`
	AnomalyScore  float64   `json:"anomaly_score" db:"anomaly_score"`
	IsAnomaly     bool      `json:"is_anomaly" db:"is_anomaly"`
	ModelName     string    `json:"model_name" db:"model_name"`
	AnalyzedAt    time.Time `json:"analyzed_at" db:"analyzed_at"`
}
