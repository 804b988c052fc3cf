package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farm-ledger/internal/config"
	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/monitoring"
)

type stubProcessor struct {
	summary *model.Summary
}

func (s stubProcessor) ProcessFile(_ context.Context, path string) model.Outcome {
	return model.Outcome{File: path, Status: model.OutcomeSuccess}
}

func (s stubProcessor) ProcessBatch(context.Context, string) (*model.Summary, error) {
	return s.summary, nil
}

func TestAlertingProcessor(t *testing.T) {
	var posts atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	proc := alertingProcessor{
		Processor: stubProcessor{summary: &model.Summary{Total: 6, Auto: 1, Failed: 5}},
		alerter:   monitoring.NewAlerter(config.MonitoringConfig{WebhookURL: hook.URL, FailureRateThreshold: 0.5}),
	}

	s, err := proc.ProcessBatch(context.Background(), "invoices")
	require.NoError(t, err)
	assert.Equal(t, 5, s.Failed)
	assert.Equal(t, int32(1), posts.Load())

	out := proc.ProcessFile(context.Background(), "a.pdf")
	assert.Equal(t, model.OutcomeSuccess, out.Status)
	assert.Equal(t, int32(1), posts.Load())
}

func TestStartMonitoring_Disabled(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })
	cfg = &config.Config{}

	proc := stubProcessor{}
	got := startMonitoring(context.Background(), &ledgerEnv{}, proc)
	assert.Equal(t, proc, got)
}
