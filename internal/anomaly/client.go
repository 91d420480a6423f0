package anomaly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Default call timeouts. Health checks must fail fast so a down classifier
// only costs a drain cycle 2 seconds; classify calls get much longer because
// the remote model is legitimately slow under load.
const (
	DefaultHealthTimeout   = 2 * time.Second
	DefaultClassifyTimeout = 30 * time.Second

	// perItemBatchTimeout is added to the base classify timeout for every
	// item in a batch call.
	perItemBatchTimeout = 2 * time.Second
)

// Client is a stateless HTTP client for the anomaly detection service. Every
// method converts every failure mode — timeout, connection refused, non-2xx
// status, malformed JSON — into its documented false/nil/empty outcome; no
// network error ever propagates to the caller. The retry/drop policy lives in
// the processor, not here.
type Client struct {
	baseURL string

	healthClient   *http.Client // short timeout: fail fast when the service is down
	classifyClient *http.Client // long timeout: the model may be slow
	batchClient    *http.Client // no fixed timeout: bounded per call, scaled by batch size

	classifyTimeout time.Duration
}

// NewClient creates a classifier client for the given base URL. Zero timeouts
// select the defaults.
func NewClient(baseURL string, healthTimeout, classifyTimeout time.Duration) *Client {
	if healthTimeout <= 0 {
		healthTimeout = DefaultHealthTimeout
	}
	if classifyTimeout <= 0 {
		classifyTimeout = DefaultClassifyTimeout
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		healthClient:    &http.Client{Timeout: healthTimeout},
		classifyClient:  &http.Client{Timeout: classifyTimeout},
		batchClient:     &http.Client{},
		classifyTimeout: classifyTimeout,
	}
}

// analyzeRequest is the wire shape of POST /analyze-log and each element of
// POST /analyze-batch.
type analyzeRequest struct {
	LogID     int64  `json:"log_id"`
	LogText   string `json:"log_text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Verdict is one classification outcome as returned by the service, augmented
// with the text that was analyzed and the measured call latency.
type Verdict struct {
	LogID        int64   `json:"log_id"`
	AnomalyScore float64 `json:"anomaly_score"`
	IsAnomaly    bool    `json:"is_anomaly"`
	ModelName    string  `json:"model_name"`

	// Augmented locally, not part of the wire response.
	LogText string        `json:"-"`
	Latency time.Duration `json:"-"`
}

// healthResponse is the wire shape of GET /health.
type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// HealthCheck reports whether the classifier is reachable AND has its model
// loaded. Any error — network, timeout, non-2xx, malformed body — yields
// false; it never returns an error.
func (c *Client) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := c.healthClient.Do(req)
	if err != nil {
		slog.Debug("classifier health check failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		slog.Debug("classifier health check returned malformed body", "error", err)
		return false
	}

	return health.ModelLoaded
}

// Classify sends one log line for classification. On any failure it returns
// nil; the caller decides whether to retry or drop. On success the verdict is
// augmented with the original text and the measured latency.
func (c *Client) Classify(ctx context.Context, logID int64, logText string, timestamp time.Time) *Verdict {
	body := analyzeRequest{LogID: logID, LogText: logText}
	if !timestamp.IsZero() {
		body.Timestamp = timestamp.UTC().Format(time.RFC3339)
	}

	start := time.Now()
	verdict := &Verdict{}
	if err := c.post(ctx, c.classifyClient, "/analyze-log", body, verdict); err != nil {
		slog.Warn("classify call failed", "log_id", logID, "error", err)
		return nil
	}

	verdict.LogText = logText
	verdict.Latency = time.Since(start)
	return verdict
}

// ClassifyBatch sends a list of log lines in one call. The timeout scales with
// the batch size. On any failure it returns an empty slice: partial-batch
// failure is total batch failure at this layer — per-item retry policy is the
// processor's job.
func (c *Client) ClassifyBatch(ctx context.Context, items []BatchItem) []Verdict {
	if len(items) == 0 {
		return nil
	}

	reqs := make([]analyzeRequest, 0, len(items))
	for _, it := range items {
		r := analyzeRequest{LogID: it.LogID, LogText: it.LogText}
		if !it.Timestamp.IsZero() {
			r.Timestamp = it.Timestamp.UTC().Format(time.RFC3339)
		}
		reqs = append(reqs, r)
	}

	timeout := c.classifyTimeout + time.Duration(len(items))*perItemBatchTimeout
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var verdicts []Verdict
	if err := c.post(ctx, c.batchClient, "/analyze-batch", reqs, &verdicts); err != nil {
		slog.Warn("batch classify call failed", "items", len(items), "error", err)
		return nil
	}
	return verdicts
}

// BatchItem is one entry of a batch classification request.
type BatchItem struct {
	LogID     int64
	LogText   string
	Timestamp time.Time
}

// post marshals body, POSTs it, and decodes a 2xx JSON response into out.
func (c *Client) post(ctx context.Context, client *http.Client, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(snippet))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
