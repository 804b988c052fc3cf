package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farm-ledger/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicateFingerprint is returned when a non-failed document with the
	// same content fingerprint already exists.
	ErrDuplicateFingerprint = eris.New("store: duplicate content fingerprint")
	// ErrDuplicateInvoiceKey is returned when a non-duplicate transaction with
	// the same invoice key already exists.
	ErrDuplicateInvoiceKey = eris.New("store: duplicate invoice key")
)

// TransactionFilter narrows ListTransactions.
type TransactionFilter struct {
	FarmID      string                  `json:"farm_id,omitempty"`
	Status      model.TransactionStatus `json:"status,omitempty"`
	ParseFailed bool                    `json:"parse_failed,omitempty"`
	Limit       int                     `json:"limit,omitempty"`
}

// FarmRef is a seeded farm id and display name.
type FarmRef struct {
	FarmID      string `json:"farm_id"`
	DisplayName string `json:"display_name"`
}

// LedgerSummary aggregates confirmed and pending totals.
type LedgerSummary struct {
	ConfirmedCents     int64 `json:"confirmed_cents"`
	PendingManualCents int64 `json:"pending_manual_cents"`
	ConfirmedCount     int   `json:"confirmed_count"`
	PendingManualCount int   `json:"pending_manual_count"`
	ParseFailureCount  int   `json:"parse_failure_count"`
}

// FarmTotal is the confirmed spend for one farm.
type FarmTotal struct {
	FarmID     string `json:"farm_id"`
	FarmName   string `json:"farm_name"`
	TotalCents int64  `json:"total_cents"`
	Count      int    `json:"txn_count"`
}

// ParseFailureGroup counts transactions per parse status and reason.
type ParseFailureGroup struct {
	ParseStatus string `json:"parse_status"`
	Reason      string `json:"parse_failure_reason"`
	Count       int    `json:"count"`
	SampleDocID string `json:"sample_doc_id"`
}

// Store defines the persistence interface for the invoice ledger.
type Store interface {
	// Documents
	InsertDocument(ctx context.Context, doc *model.Document) error
	MarkDocumentFailed(ctx context.Context, docID string) error
	GetDocument(ctx context.Context, docID string) (*model.Document, error)
	FindDocumentByFingerprint(ctx context.Context, fingerprint string) (*model.Document, error)
	ActiveFingerprints(ctx context.Context) (map[string]string, error)

	// Transactions
	InsertTransaction(ctx context.Context, tx *model.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*model.Transaction, error)
	GetTransactionByDocID(ctx context.Context, docID string) (*model.Transaction, error)
	FindByInvoiceKey(ctx context.Context, invoiceKey string) (*model.Transaction, error)
	InvoiceKeys(ctx context.Context) (map[string]string, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	AssignFarm(ctx context.Context, id int64, farmID, farmName string, vendorKey *string) error
	AttributionHistory(ctx context.Context) ([]model.Transaction, error)

	// Audit trail
	InsertTaggingEvent(ctx context.Context, ev *model.TaggingEvent) error
	ListTaggingEvents(ctx context.Context, docID string) ([]model.TaggingEvent, error)
	EnqueueReview(ctx context.Context, item *model.ReviewQueueItem) error
	ListReviewQueue(ctx context.Context, status string) ([]model.ReviewQueueItem, error)
	ResolveReview(ctx context.Context, docID string) error
	InsertDecision(ctx context.Context, d *model.ReviewDecision) error
	ListDecisions(ctx context.Context, docID string) ([]model.ReviewDecision, error)
	InsertLineItems(ctx context.Context, items []model.StoredLineItem) error
	ListLineItems(ctx context.Context, docID string) ([]model.StoredLineItem, error)

	// Farms and projections
	SeedFarms(ctx context.Context, farms []model.Farm) error
	ListFarms(ctx context.Context) ([]FarmRef, error)
	Summary(ctx context.Context) (*LedgerSummary, error)
	FarmTotals(ctx context.Context) ([]FarmTotal, error)
	ParseFailures(ctx context.Context) ([]ParseFailureGroup, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
