// Package monitoring watches ingest health and posts webhook alerts when a
// batch fails too often or the review backlog grows past its threshold.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farm-ledger/internal/store"
)

// Snapshot is a point-in-time view of the ledger's review and failure load.
type Snapshot struct {
	PendingManualCount int       `json:"pending_manual_count"`
	PendingManualCents int64     `json:"pending_manual_cents"`
	ParseFailureCount  int       `json:"parse_failure_count"`
	ConfirmedCount     int       `json:"confirmed_count"`
	CollectedAt        time.Time `json:"collected_at"`
}

// SummaryReader is the store method the collector needs.
type SummaryReader interface {
	Summary(ctx context.Context) (*store.LedgerSummary, error)
}

// Collector reads snapshots from the ledger store.
type Collector struct {
	store SummaryReader
}

// NewCollector creates a collector over st.
func NewCollector(st SummaryReader) *Collector {
	return &Collector{store: st}
}

// Collect reads the current ledger summary.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	sum, err := c.store.Summary(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: ledger summary")
	}
	return &Snapshot{
		PendingManualCount: sum.PendingManualCount,
		PendingManualCents: sum.PendingManualCents,
		ParseFailureCount:  sum.ParseFailureCount,
		ConfirmedCount:     sum.ConfirmedCount,
		CollectedAt:        time.Now().UTC(),
	}, nil
}
