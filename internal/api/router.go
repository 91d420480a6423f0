// Package api wires together the HTTP routes and the anomaly pipeline for the
// ProcureFlow backend.
//
// Route grouping:
//   - /health is unauthenticated so load balancers and orchestrators can probe
//     liveness without credentials.
//   - /api/v1/audit-events requires a valid bearer token: every procurement
//     service reports its mutating actions here.
//   - /api/v1/audit-logs additionally requires the admin role — the audit
//     trail with anomaly verdicts is a security-team view.
//
// NewRouter also assembles the pipeline itself (queue, classifier client,
// recorder, background processor) because the recorder's enqueue hook and the
// processor must share the same queue instance. The processor is returned
// inside BackgroundServices so cmd/server can stop it after the HTTP listener
// has drained.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/procureflow/procureflow/internal/anomaly"
	"github.com/procureflow/procureflow/internal/api/auditlog"
	"github.com/procureflow/procureflow/internal/audit"
	"github.com/procureflow/procureflow/internal/auth"
	"github.com/procureflow/procureflow/internal/config"
	"github.com/procureflow/procureflow/internal/db/models"
	"github.com/procureflow/procureflow/internal/db/repositories"
	"github.com/procureflow/procureflow/internal/middleware"
	"github.com/procureflow/procureflow/internal/safego"
)

// BackgroundServices holds references to background goroutines that must be
// stopped during graceful shutdown. The caller (cmd/server) calls Shutdown()
// after the HTTP server has drained so in-flight requests can still enqueue.
type BackgroundServices struct {
	processor     *anomaly.Processor
	cancelContext context.CancelFunc
}

// Shutdown stops the anomaly processor, letting an in-flight drain finish.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.processor != nil {
		bg.processor.Stop()
	}
	if bg.cancelContext != nil {
		bg.cancelContext()
	}
}

// NewRouter builds the Gin engine and the anomaly pipeline behind it.
func NewRouter(cfg *config.Config, database *sql.DB) (*gin.Engine, *BackgroundServices) {
	sqlxDB := sqlx.NewDb(database, "postgres")

	auditRepo := repositories.NewAuditRepository(sqlxDB)
	classificationRepo := repositories.NewClassificationRepository(sqlxDB)

	queue := anomaly.NewQueue(cfg.Anomaly.QueueCapacity)
	classifier := anomaly.NewClient(cfg.Anomaly.ServiceURL, cfg.Anomaly.HealthTimeout, cfg.Anomaly.ClassifyTimeout)

	// The recorder gets its enqueue hook here rather than importing the queue:
	// the writer stays usable standalone and the hand-off stays fire-and-forget.
	recorder := audit.NewRecorder(auditRepo, func(rec models.AuditRecord) {
		if !queue.Enqueue(rec) {
			slog.Warn("anomaly queue full, classification skipped", "record_id", rec.ID)
		}
	})

	bg := &BackgroundServices{}
	if cfg.Anomaly.Enabled {
		processor := anomaly.NewProcessor(queue, classifier, classificationRepo, &cfg.Anomaly)
		ctx, cancel := context.WithCancel(context.Background())
		bg.processor = processor
		bg.cancelContext = cancel
		safego.Go(func() { processor.Start(ctx) })
	} else {
		slog.Info("anomaly processor disabled; audit records will not be scored")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())

	router.GET("/health", healthHandler(database, classifier, cfg.Anomaly.HealthTimeout))

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	handlers := auditlog.NewHandlers(recorder, auditRepo)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(verifier))
	{
		v1.POST("/audit-events", handlers.CreateEventHandler())

		adminOnly := v1.Group("")
		adminOnly.Use(middleware.RequireRole(auth.RoleAdmin))
		{
			adminOnly.GET("/audit-logs", handlers.ListHandler())
			adminOnly.GET("/audit-logs/:id", handlers.GetHandler())
		}
	}

	return router, bg
}

// healthHandler reports liveness. The database must answer a ping; the
// classifier's state is reported but does not fail the probe, because the
// audit trail keeps working (unscored) while the classifier is down.
func healthHandler(database *sql.DB, classifier *anomaly.Client, healthTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		if err := database.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":             "ok",
			"classifier_healthy": classifier.HealthCheck(ctx),
		})
	}
}
