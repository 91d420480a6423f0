// Package auditlog implements the HTTP face of the audit pipeline: event
// ingestion for the procurement services (the mutating route handlers live in
// their own services and report here) and the admin-facing read path that
// joins classifier verdicts onto the trail.
package auditlog

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/procureflow/procureflow/internal/audit"
	"github.com/procureflow/procureflow/internal/db/repositories"
)

// Handlers handles audit log endpoints
type Handlers struct {
	recorder  *audit.Recorder
	auditRepo *repositories.AuditRepository
}

// NewHandlers creates a new Handlers instance
func NewHandlers(recorder *audit.Recorder, auditRepo *repositories.AuditRepository) *Handlers {
	return &Handlers{recorder: recorder, auditRepo: auditRepo}
}

// createEventRequest is the ingestion payload. ActorID is a pointer so a
// missing field is distinguishable from the system actor (0) — an absent actor
// is a validation failure, never a silent coercion.
type createEventRequest struct {
	ActorID     *int64                 `json:"actor_id"`
	ActionType  string                 `json:"action_type"`
	Description string                 `json:"description"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// CreateEventHandler records one audit event.
// POST /api/v1/audit-events
func (h *Handlers) CreateEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if req.ActorID == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "actor_id is required (use 0 for system-attributed actions)",
				"code":  "InvalidActor",
			})
			return
		}

		rec, err := h.recorder.Record(c.Request.Context(),
			*req.ActorID, audit.ActionType(req.ActionType), req.Description, req.Metadata)
		if err != nil {
			if code, ok := validationCode(err); ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": code})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record audit event"})
			return
		}

		c.JSON(http.StatusCreated, rec)
	}
}

// validationCode maps the recorder's validation taxonomy to stable API codes.
func validationCode(err error) (string, bool) {
	switch {
	case errors.Is(err, audit.ErrInvalidActor):
		return "InvalidActor", true
	case errors.Is(err, audit.ErrInvalidActionType):
		return "InvalidActionType", true
	case errors.Is(err, audit.ErrInvalidDescription):
		return "InvalidDescription", true
	case errors.Is(err, audit.ErrInvalidMetadata):
		return "InvalidMetadata", true
	default:
		return "", false
	}
}

// ListHandler lists audit records with their classification verdicts,
// newest first. Records not yet scored carry "classification": null.
// GET /api/v1/audit-logs?actor_id=&action=&start_date=&end_date=&page=&per_page=
func (h *Handlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 200 {
			perPage = 50
		}
		offset := (page - 1) * perPage

		filters, err := parseFilters(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logs, total, err := h.auditRepo.ListWithResults(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// GetHandler returns a single audit record with its verdict.
// GET /api/v1/audit-logs/:id
func (h *Handlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audit log id"})
			return
		}

		rec, err := h.auditRepo.GetWithResult(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get audit log"})
			return
		}
		if rec == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "audit log not found"})
			return
		}

		c.JSON(http.StatusOK, rec)
	}
}

func parseFilters(c *gin.Context) (repositories.AuditFilters, error) {
	var filters repositories.AuditFilters

	if v := c.Query("actor_id"); v != "" {
		actorID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filters, errors.New("invalid actor_id filter")
		}
		filters.ActorID = &actorID
	}

	if v := c.Query("action"); v != "" {
		filters.ActionType = &v
	}

	if v := c.Query("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, errors.New("invalid start_date filter (expected RFC3339)")
		}
		filters.StartDate = &t
	}

	if v := c.Query("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filters, errors.New("invalid end_date filter (expected RFC3339)")
		}
		filters.EndDate = &t
	}

	return filters, nil
}
