package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/monitoring"
	"github.com/sells-group/farm-ledger/internal/server"
)

// notifyBatch sends a failure-rate alert for s when a webhook is configured.
func notifyBatch(ctx context.Context, s *model.Summary) {
	a := monitoring.NewAlerter(cfg.Monitoring)
	if !a.Enabled() {
		return
	}
	a.NotifyBatch(ctx, s)
}

// alertingProcessor alerts on every batch it runs.
type alertingProcessor struct {
	server.Processor
	alerter *monitoring.Alerter
}

func (p alertingProcessor) ProcessBatch(ctx context.Context, dir string) (*model.Summary, error) {
	s, err := p.Processor.ProcessBatch(ctx, dir)
	if s != nil {
		p.alerter.NotifyBatch(ctx, s)
	}
	return s, err
}

// startMonitoring wraps proc with batch alerts and starts the backlog
// checker in the background. Both are no-ops without a webhook.
func startMonitoring(ctx context.Context, env *ledgerEnv, proc server.Processor) server.Processor {
	alerter := monitoring.NewAlerter(cfg.Monitoring)
	if !alerter.Enabled() {
		return proc
	}
	checker := monitoring.NewChecker(monitoring.NewCollector(env.Store), alerter,
		time.Duration(cfg.Monitoring.CheckIntervalSecs)*time.Second)
	go checker.Run(ctx)
	zap.L().Info("monitoring enabled",
		zap.Float64("failure_rate_threshold", cfg.Monitoring.FailureRateThreshold),
		zap.Int("review_backlog_threshold", cfg.Monitoring.ReviewBacklogThreshold),
	)
	return alertingProcessor{Processor: proc, alerter: alerter}
}
