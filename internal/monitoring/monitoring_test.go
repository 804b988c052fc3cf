package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farm-ledger/internal/config"
	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/store"
)

type summaryFunc func(ctx context.Context) (*store.LedgerSummary, error)

func (f summaryFunc) Summary(ctx context.Context) (*store.LedgerSummary, error) { return f(ctx) }

func fixedSummary(sum store.LedgerSummary) summaryFunc {
	return func(context.Context) (*store.LedgerSummary, error) { return &sum, nil }
}

// webhook records every alert posted to it.
type webhook struct {
	mu     sync.Mutex
	alerts []Alert
	status int
}

func newWebhook(t *testing.T, status int) (*webhook, *httptest.Server) {
	t.Helper()
	h := &webhook{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var a Alert
		if err := json.NewDecoder(r.Body).Decode(&a); err == nil {
			h.mu.Lock()
			h.alerts = append(h.alerts, a)
			h.mu.Unlock()
		}
		w.WriteHeader(h.status)
	}))
	t.Cleanup(srv.Close)
	return h, srv
}

func (h *webhook) received() []Alert {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Alert(nil), h.alerts...)
}

func TestCollect(t *testing.T) {
	c := NewCollector(fixedSummary(store.LedgerSummary{
		ConfirmedCount:     10,
		PendingManualCount: 3,
		PendingManualCents: 45000,
		ParseFailureCount:  2,
	}))

	snap, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.PendingManualCount)
	assert.Equal(t, int64(45000), snap.PendingManualCents)
	assert.Equal(t, 2, snap.ParseFailureCount)
	assert.Equal(t, 10, snap.ConfirmedCount)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollect_Error(t *testing.T) {
	c := NewCollector(summaryFunc(func(context.Context) (*store.LedgerSummary, error) {
		return nil, errors.New("db down")
	}))
	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: ledger summary")
}

func TestEvaluateBatch(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{FailureRateThreshold: 0.25})

	tests := []struct {
		name    string
		summary *model.Summary
		want    int
	}{
		{"nil summary", nil, 0},
		{"below minimum batch", &model.Summary{Total: 4, Failed: 4}, 0},
		{"under threshold", &model.Summary{Total: 10, Auto: 8, Failed: 2}, 0},
		{"duplicates excluded", &model.Summary{Total: 12, Duplicate: 8, Auto: 1, Failed: 3}, 0},
		{"over threshold", &model.Summary{Total: 10, Auto: 5, Manual: 1, Failed: 4}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, a.EvaluateBatch(tt.summary), tt.want)
		})
	}

	alerts := a.EvaluateBatch(&model.Summary{Total: 10, Auto: 5, Manual: 1, Failed: 4})
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertBatchFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0%")
	assert.Equal(t, 10, alerts[0].Details["processed"])
}

func TestEvaluateBatch_Disabled(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Empty(t, a.EvaluateBatch(&model.Summary{Total: 10, Failed: 10}))
}

func TestEvaluate(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{ReviewBacklogThreshold: 5, ParseFailureThreshold: 2})

	assert.Empty(t, a.Evaluate(&Snapshot{PendingManualCount: 5, ParseFailureCount: 2}))

	alerts := a.Evaluate(&Snapshot{PendingManualCount: 6, ParseFailureCount: 3})
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertReviewBacklog, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "6 invoices awaiting manual review")
	assert.Equal(t, AlertParseFailures, alerts[1].Type)
	assert.Contains(t, alerts[1].Message, "3 invoices failed parsing")
}

func TestEvaluate_ZeroThresholdsDisable(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.Empty(t, a.Evaluate(&Snapshot{PendingManualCount: 1000, ParseFailureCount: 1000}))
}

func TestSendAlerts(t *testing.T) {
	hook, srv := newWebhook(t, http.StatusOK)
	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL, FailureRateThreshold: 0.1})
	require.True(t, a.Enabled())

	sent := a.NotifyBatch(context.Background(), &model.Summary{Total: 5, Failed: 5})
	assert.Equal(t, 1, sent)

	got := hook.received()
	require.Len(t, got, 1)
	assert.Equal(t, AlertBatchFailureRate, got[0].Type)
}

func TestSendAlerts_WebhookError(t *testing.T) {
	_, srv := newWebhook(t, http.StatusInternalServerError)
	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertReviewBacklog, Severity: "medium"}})
	assert.Equal(t, 0, sent)
}

func TestSendAlerts_NoWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})
	assert.False(t, a.Enabled())
	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertReviewBacklog}}))
}

func TestChecker_Check(t *testing.T) {
	hook, srv := newWebhook(t, http.StatusOK)

	var mu sync.Mutex
	sum := store.LedgerSummary{PendingManualCount: 8}
	reader := summaryFunc(func(context.Context) (*store.LedgerSummary, error) {
		mu.Lock()
		defer mu.Unlock()
		s := sum
		return &s, nil
	})
	set := func(n int) {
		mu.Lock()
		sum.PendingManualCount = n
		mu.Unlock()
	}

	c := NewChecker(NewCollector(reader),
		NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL, ReviewBacklogThreshold: 5}), time.Minute)
	ctx := context.Background()

	assert.Equal(t, 1, c.Check(ctx), "first breach alerts")
	assert.Equal(t, 0, c.Check(ctx), "unchanged backlog is not repeated")

	set(9)
	assert.Equal(t, 1, c.Check(ctx), "growth alerts again")

	set(2)
	assert.Equal(t, 0, c.Check(ctx), "recovered")

	set(9)
	assert.Equal(t, 1, c.Check(ctx), "relapse alerts again")

	got := hook.received()
	require.Len(t, got, 3)
	for _, a := range got {
		assert.Equal(t, AlertReviewBacklog, a.Type)
	}
}

func TestChecker_CollectError(t *testing.T) {
	reader := summaryFunc(func(context.Context) (*store.LedgerSummary, error) {
		return nil, errors.New("db down")
	})
	c := NewChecker(NewCollector(reader), NewAlerter(config.MonitoringConfig{ReviewBacklogThreshold: 1}), time.Minute)
	assert.Equal(t, 0, c.Check(context.Background()))
}

func TestChecker_DefaultInterval(t *testing.T) {
	c := NewChecker(NewCollector(fixedSummary(store.LedgerSummary{})), NewAlerter(config.MonitoringConfig{}), 0)
	assert.Equal(t, defaultInterval, c.interval)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	c := NewChecker(NewCollector(fixedSummary(store.LedgerSummary{})),
		NewAlerter(config.MonitoringConfig{}), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
