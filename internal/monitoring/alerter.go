package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/config"
	"github.com/sells-group/farm-ledger/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBatchFailureRate AlertType = "batch_failure_rate"
	AlertReviewBacklog    AlertType = "review_backlog"
	AlertParseFailures    AlertType = "parse_failures"
)

// minBatchSize is the smallest batch whose failure rate is worth alerting on.
const minBatchSize = 5

// Alert is a single webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates batch summaries and ledger snapshots against the
// configured thresholds and delivers alerts to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether alerts have somewhere to go.
func (a *Alerter) Enabled() bool { return a.cfg.WebhookURL != "" }

// EvaluateBatch checks one ingest batch. Duplicates are excluded from the
// denominator since they never reach extraction.
func (a *Alerter) EvaluateBatch(s *model.Summary) []Alert {
	if s == nil || a.cfg.FailureRateThreshold <= 0 {
		return nil
	}
	processed := s.Total - s.Duplicate
	if processed < minBatchSize {
		return nil
	}
	rate := float64(s.Failed) / float64(processed)
	if rate <= a.cfg.FailureRateThreshold {
		return nil
	}
	return []Alert{{
		Type:     AlertBatchFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("Ingest failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d processed)",
			rate*100, a.cfg.FailureRateThreshold*100, s.Failed, processed),
		Details: map[string]any{
			"failure_rate": rate,
			"threshold":    a.cfg.FailureRateThreshold,
			"failed":       s.Failed,
			"processed":    processed,
			"manual":       s.Manual,
		},
		Timestamp: time.Now().UTC(),
	}}
}

// Evaluate checks a ledger snapshot.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if n := a.cfg.ReviewBacklogThreshold; n > 0 && snap.PendingManualCount > n {
		alerts = append(alerts, Alert{
			Type:     AlertReviewBacklog,
			Severity: "medium",
			Message: fmt.Sprintf("%d invoices awaiting manual review (threshold %d)",
				snap.PendingManualCount, n),
			Details: map[string]any{
				"pending_manual_count": snap.PendingManualCount,
				"pending_manual_cents": snap.PendingManualCents,
				"threshold":            n,
			},
			Timestamp: now,
		})
	}

	if n := a.cfg.ParseFailureThreshold; n > 0 && snap.ParseFailureCount > n {
		alerts = append(alerts, Alert{
			Type:     AlertParseFailures,
			Severity: "high",
			Message: fmt.Sprintf("%d invoices failed parsing (threshold %d)",
				snap.ParseFailureCount, n),
			Details: map[string]any{
				"parse_failure_count": snap.ParseFailureCount,
				"threshold":           n,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts each alert to the webhook and returns how many were
// delivered. Delivery failures are logged, not returned.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if !a.Enabled() || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.post(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// NotifyBatch evaluates s and sends any resulting alerts.
func (a *Alerter) NotifyBatch(ctx context.Context, s *model.Summary) int {
	return a.SendAlerts(ctx, a.EvaluateBatch(s))
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
