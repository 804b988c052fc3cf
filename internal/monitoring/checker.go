package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const defaultInterval = 5 * time.Minute

// Checker polls the ledger on an interval and alerts on backlog growth.
// An alert type fires again only after its count changes, so a stuck
// backlog is reported once rather than every tick.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	last      map[AlertType]int
}

// NewChecker creates a background checker. A non-positive interval falls
// back to five minutes.
func NewChecker(collector *Collector, alerter *Alerter, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		last:      make(map[AlertType]int),
	}
}

// Run blocks until ctx is cancelled, checking once per interval.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs a single collect/evaluate/send cycle and returns the number of
// alerts sent.
func (c *Checker) Check(ctx context.Context) int {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx)
	if err != nil {
		log.Error("monitoring: failed to collect ledger summary", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	active := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		active[a.Type] = true
		n := countFor(a.Type, snap)
		if prev, ok := c.last[a.Type]; ok && prev == n {
			continue
		}
		c.last[a.Type] = n
		fresh = append(fresh, a)
	}
	// Forget types that recovered so a relapse alerts again.
	for t := range c.last {
		if !active[t] {
			delete(c.last, t)
		}
	}

	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts")
		return 0
	}
	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return sent
}

func countFor(t AlertType, snap *Snapshot) int {
	switch t {
	case AlertReviewBacklog:
		return snap.PendingManualCount
	case AlertParseFailures:
		return snap.ParseFailureCount
	}
	return 0
}
