package model

import "time"

// TransactionStatus is the terminal state of an ingested document.
type TransactionStatus string

const (
	StatusAuto          TransactionStatus = "auto"
	StatusManual        TransactionStatus = "manual"
	StatusPendingManual TransactionStatus = "pending_manual"
	StatusDuplicate     TransactionStatus = "duplicate"
	StatusFailed        TransactionStatus = "failed"
)

// Parse statuses recorded on transactions.
const (
	ParseStatusSuccess          = "success"
	ParseStatusInvalidJSON      = "invalid_json"
	ParseStatusValidationFailed = "validation_failed"
)

// Document is one ingested PDF and its extracted text.
type Document struct {
	DocID              string    `json:"doc_id"`
	FileName           string    `json:"file_name"`
	FilePath           string    `json:"file_path"`
	RawTextHash        string    `json:"raw_text_hash"`
	RawText            string    `json:"raw_text"`
	ContentFingerprint string    `json:"content_fingerprint"`
	ExtractedAt        time.Time `json:"extracted_at"`
}

// Transaction is a ledger row for one document.
type Transaction struct {
	ID                 int64             `json:"id"`
	DocID              string            `json:"doc_id"`
	FarmID             *string           `json:"farm_id"`
	FarmName           *string           `json:"farm_name"`
	VendorKey          *string           `json:"vendor_key"`
	VendorName         *string           `json:"vendor_name"`
	InvoiceNumber      *string           `json:"invoice_number"`
	InvoiceDate        *string           `json:"invoice_date"`
	DueDate            *string           `json:"due_date"`
	ServiceAddress     *string           `json:"service_address"`
	AccountNumber      *string           `json:"account_number"`
	TotalCents         *int64            `json:"total_cents"`
	Status             TransactionStatus `json:"status"`
	ParseStatus        *string           `json:"parse_status"`
	ParseFailureReason *string           `json:"parse_failure_reason"`
	DuplicateDetected  bool              `json:"duplicate_detected"`
	DuplicateReason    *string           `json:"duplicate_reason"`
	DuplicateOf        *string           `json:"duplicate_of"`
	Confidence         *float64          `json:"confidence"`
	NeedsManualReview  bool              `json:"needs_manual_review"`
	ManualOverride     bool              `json:"manual_override"`
	InvoiceKey         *string           `json:"invoice_key"`
	ContentFingerprint *string           `json:"content_fingerprint"`
	FailureReason      *string           `json:"failure_reason"`
	CreatedAt          time.Time         `json:"created_at"`
}

// TaggingEvent is the audit record of one classification.
type TaggingEvent struct {
	DocID        string         `json:"doc_id"`
	Stage        string         `json:"stage"`
	Confidence   float64        `json:"confidence"`
	TopCandidate *TagCandidate  `json:"top_candidate"`
	Candidates   []TagCandidate `json:"candidates"`
	Reason       string         `json:"reason"`
	Features     map[string]any `json:"features"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Tagging event stages.
const (
	TagStageDynamicRule   = "dynamic_rule"
	TagStageDeterministic = "deterministic"
)

// ReviewQueueItem is a document waiting for a human farm assignment.
type ReviewQueueItem struct {
	ID                   int64          `json:"id"`
	DocID                string         `json:"doc_id"`
	FileName             string         `json:"file_name"`
	ExtractedTextPreview string         `json:"extracted_text_preview"`
	Candidates           []TagCandidate `json:"candidates"`
	Confidence           float64        `json:"confidence"`
	Reason               string         `json:"reason"`
	Status               string         `json:"status"`
	CreatedAt            time.Time      `json:"created_at"`
}

// Review queue statuses.
const (
	ReviewOpen     = "open"
	ReviewResolved = "resolved"
)

// ReviewDecision is an append-only record of a manual farm assignment.
type ReviewDecision struct {
	DocID              string    `json:"doc_id"`
	ContentFingerprint string    `json:"content_fingerprint"`
	InvoiceKey         *string   `json:"invoice_key"`
	SelectedFarmID     string    `json:"selected_farm_id"`
	SelectedFarmName   string    `json:"selected_farm_name"`
	DecisionSource     string    `json:"decision_source"`
	Notes              *string   `json:"notes"`
	CreatedAt          time.Time `json:"created_at"`
}

// StoredLineItem is a persisted invoice line.
type StoredLineItem struct {
	DocID       string `json:"doc_id"`
	LineNumber  int    `json:"line_number"`
	Description string `json:"description"`
	AmountCents *int64 `json:"amount_cents"`
}
