package anomaly

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/procureflow/procureflow/internal/config"
	"github.com/procureflow/procureflow/internal/db/models"
	"github.com/procureflow/procureflow/internal/telemetry"
)

// Classifier is the client seam used by the processor. *Client satisfies it;
// tests substitute stubs.
type Classifier interface {
	HealthCheck(ctx context.Context) bool
	Classify(ctx context.Context, logID int64, logText string, timestamp time.Time) *Verdict
}

// ResultStore is the verdict persistence seam.
// *repositories.ClassificationRepository satisfies it.
type ResultStore interface {
	Upsert(ctx context.Context, result *models.ClassificationResult) error
}

// Processor is the single consumer of the classification queue. On a fixed
// interval (plus an immediate kick at startup) it drains a bounded batch,
// health-gates the cycle, classifies each item, and upserts verdicts. Failed
// items are re-queued with a delay up to a retry limit, then dropped with a
// terminal log line.
//
// At most one drain runs at a time, enforced by a mutex taken with TryLock so
// overlapping ticker ticks (or a slow classifier) never cause two concurrent
// drains.
type Processor struct {
	queue   *Queue
	client  Classifier
	results ResultStore

	interval   time.Duration
	batchSize  int
	maxRetries int
	retryDelay time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
	// draining is held for the whole of a drain cycle. Stop acquires it to
	// wait for the drain in flight: stopping cancels the timer only, it never
	// preempts classifier calls already underway.
	draining sync.Mutex
}

// NewProcessor creates a Processor bound to the given queue, classifier, and
// result store, tuned by the anomaly config section.
func NewProcessor(queue *Queue, client Classifier, results ResultStore, cfg *config.AnomalyConfig) *Processor {
	return &Processor{
		queue:      queue,
		client:     client,
		results:    results,
		interval:   cfg.ProcessInterval,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		stopChan:   make(chan struct{}),
	}
}

// Start runs the processing loop until ctx is cancelled or Stop is called.
// It drains once immediately, then on every tick. Run it under safego.Go.
func (p *Processor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	slog.Info("anomaly processor started",
		"interval", p.interval, "batch_size", p.batchSize, "max_retries", p.maxRetries)

	// Immediate first drain so records queued before startup are not stuck
	// waiting out a full interval.
	p.drain(ctx)

	for {
		select {
		case <-ticker.C:
			p.drain(ctx)
		case <-p.stopChan:
			slog.Info("anomaly processor stopped")
			return
		case <-ctx.Done():
			slog.Info("anomaly processor context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit and waits for an in-flight drain to finish.
// Queued items are left in place; they are lost with the process, which is the
// documented durability contract for this queue.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	p.draining.Lock()
	p.draining.Unlock() //nolint:staticcheck // acquired only to wait out an in-flight drain
}

// drain runs one cycle: health-gate, dequeue a bounded batch, classify each
// item in FIFO order. It is a no-op when a drain is already running or the
// queue is empty.
func (p *Processor) drain(ctx context.Context) {
	if !p.draining.TryLock() {
		return
	}
	defer p.draining.Unlock()

	if p.queue.Len() == 0 {
		return
	}

	healthy := p.client.HealthCheck(ctx)
	if healthy {
		telemetry.ClassifierHealthy.Set(1)
	} else {
		telemetry.ClassifierHealthy.Set(0)
		// Nothing is dequeued: the whole cycle is skipped and every item keeps
		// its place until the classifier comes back.
		slog.Warn("classifier unhealthy, skipping drain cycle", "queued", p.queue.Len())
		return
	}

	batch := p.queue.DequeueBatch(p.batchSize, time.Now())
	if len(batch) == 0 {
		return
	}

	cycleID := uuid.New().String()
	start := time.Now()
	slog.Debug("drain cycle started", "cycle_id", cycleID, "batch", len(batch))

	for _, item := range batch {
		p.processItem(ctx, item)
	}

	telemetry.DrainDuration.Observe(time.Since(start).Seconds())
	slog.Debug("drain cycle finished",
		"cycle_id", cycleID, "batch", len(batch), "duration", time.Since(start))
}

// processItem classifies one item and persists the verdict. Any failure —
// nil verdict or upsert error — routes the item to the retry path; the item
// always lands in exactly one of the succeeded or retry buckets.
func (p *Processor) processItem(ctx context.Context, item *Item) {
	rec := item.Record
	text := FormatLogText(rec)

	verdict := p.client.Classify(ctx, rec.ID, text, rec.CreatedAt)
	if verdict == nil {
		p.retryItem(item, "classify failed")
		return
	}

	result := &models.ClassificationResult{
		AuditRecordID: rec.ID,
		AnomalyScore:  verdict.AnomalyScore,
		IsAnomaly:     verdict.IsAnomaly,
		ModelName:     verdict.ModelName,
		AnalyzedAt:    time.Now().UTC(),
	}

	if err := p.results.Upsert(ctx, result); err != nil {
		slog.Warn("failed to persist classification result",
			"record_id", rec.ID, "error", err)
		p.retryItem(item, "upsert failed")
		return
	}

	label := "normal"
	if verdict.IsAnomaly {
		label = "anomaly"
		slog.Warn("anomalous audit record detected",
			"record_id", rec.ID, "score", verdict.AnomalyScore, "model", verdict.ModelName)
	}
	telemetry.ClassificationsTotal.WithLabelValues(label).Inc()
}

// retryItem re-queues the item with an incremented failure count and a delay,
// or drops it once the count reaches the retry limit: an item that has failed
// maxRetries times never appears in another drain. A drop is terminal and
// logged once — the audit record is unaffected, only its anomaly score stays
// absent.
func (p *Processor) retryItem(item *Item, reason string) {
	item.RetryCount++
	if item.RetryCount >= p.maxRetries {
		telemetry.ClassificationDropsTotal.Inc()
		slog.Error("classification abandoned after max retries",
			"record_id", item.Record.ID, "failures", item.RetryCount, "reason", reason)
		return
	}

	item.NextRetryAt = time.Now().Add(p.retryDelay)
	p.queue.Requeue(item)
	telemetry.ClassificationRetriesTotal.Inc()
	slog.Debug("classification re-queued",
		"record_id", item.Record.ID, "retry", item.RetryCount, "next_retry_at", item.NextRetryAt)
}
