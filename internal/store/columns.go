package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farm-ledger/internal/model"
)

const documentColumns = `doc_id, file_name, file_path, raw_text_hash, raw_text, content_fingerprint, extracted_at`

const transactionColumns = `id, doc_id, farm_id, farm_name, vendor_key, vendor_name, invoice_number,
	invoice_date, due_date, service_address, account_number, total_cents, status, parse_status,
	parse_failure_reason, duplicate_detected, duplicate_reason, duplicate_of, confidence,
	needs_manual_review, manual_override, invoice_key, content_fingerprint, failure_reason, created_at`

const transactionInsertColumns = `doc_id, farm_id, farm_name, vendor_key, vendor_name, invoice_number,
	invoice_date, due_date, service_address, account_number, total_cents, status, parse_status,
	parse_failure_reason, duplicate_detected, duplicate_reason, duplicate_of, confidence,
	needs_manual_review, manual_override, invoice_key, content_fingerprint, failure_reason,
	created_at, updated_at`

// Projection queries are shared by both backends; boolean columns are
// compared with NOT so they read the same on SQLite integers and Postgres
// booleans.
const summaryQuery = `
SELECT
  CAST(COALESCE(SUM(CASE WHEN NOT duplicate_detected AND status IN ('auto', 'manual') THEN total_cents ELSE 0 END), 0) AS BIGINT),
  CAST(COALESCE(SUM(CASE WHEN NOT duplicate_detected AND status = 'pending_manual' THEN total_cents ELSE 0 END), 0) AS BIGINT),
  COUNT(CASE WHEN NOT duplicate_detected AND status IN ('auto', 'manual') THEN 1 END),
  COUNT(CASE WHEN NOT duplicate_detected AND status = 'pending_manual' THEN 1 END),
  COUNT(CASE WHEN COALESCE(parse_status, '') != 'success' THEN 1 END)
FROM transactions`

const farmTotalsQuery = `
SELECT
  t.farm_id,
  COALESCE(MAX(f.display_name), MAX(t.farm_name), t.farm_id),
  CAST(COALESCE(SUM(t.total_cents), 0) AS BIGINT) AS total_cents,
  COUNT(*)
FROM transactions t
LEFT JOIN farms f ON t.farm_id = f.farm_id
WHERE NOT t.duplicate_detected
  AND t.status IN ('auto', 'manual')
  AND t.farm_id IS NOT NULL
GROUP BY t.farm_id
ORDER BY total_cents DESC, t.farm_id`

const parseFailuresQuery = `
SELECT COALESCE(parse_status, ''), COALESCE(parse_failure_reason, ''), COUNT(*), MIN(doc_id)
FROM transactions
WHERE parse_status IS NULL OR parse_status != 'success'
GROUP BY parse_status, parse_failure_reason
ORDER BY COUNT(*) DESC, 1, 2`

func transactionArgs(tx *model.Transaction) []any {
	return []any{
		tx.DocID, tx.FarmID, tx.FarmName, tx.VendorKey, tx.VendorName, tx.InvoiceNumber,
		tx.InvoiceDate, tx.DueDate, tx.ServiceAddress, tx.AccountNumber, tx.TotalCents,
		string(tx.Status), tx.ParseStatus, tx.ParseFailureReason, tx.DuplicateDetected,
		tx.DuplicateReason, tx.DuplicateOf, tx.Confidence, tx.NeedsManualReview,
		tx.ManualOverride, tx.InvoiceKey, tx.ContentFingerprint, tx.FailureReason,
		tx.CreatedAt, tx.CreatedAt,
	}
}

func transactionDest(tx *model.Transaction) []any {
	return []any{
		&tx.ID, &tx.DocID, &tx.FarmID, &tx.FarmName, &tx.VendorKey, &tx.VendorName, &tx.InvoiceNumber,
		&tx.InvoiceDate, &tx.DueDate, &tx.ServiceAddress, &tx.AccountNumber, &tx.TotalCents,
		&tx.Status, &tx.ParseStatus, &tx.ParseFailureReason, &tx.DuplicateDetected,
		&tx.DuplicateReason, &tx.DuplicateOf, &tx.Confidence, &tx.NeedsManualReview,
		&tx.ManualOverride, &tx.InvoiceKey, &tx.ContentFingerprint, &tx.FailureReason,
		&tx.CreatedAt,
	}
}

func listLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

func nonNilCandidates(c []model.TagCandidate) []model.TagCandidate {
	if c == nil {
		return []model.TagCandidate{}
	}
	return c
}

// marshalTaggingEvent encodes the JSON columns. A missing top candidate or
// feature map is stored as NULL.
func marshalTaggingEvent(ev *model.TaggingEvent) (top, candidates, features *string, err error) {
	enc := func(v any) (*string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal tagging event")
		}
		s := string(b)
		return &s, nil
	}
	if ev.TopCandidate != nil {
		if top, err = enc(ev.TopCandidate); err != nil {
			return nil, nil, nil, err
		}
	}
	if candidates, err = enc(nonNilCandidates(ev.Candidates)); err != nil {
		return nil, nil, nil, err
	}
	if ev.Features != nil {
		if features, err = enc(ev.Features); err != nil {
			return nil, nil, nil, err
		}
	}
	return top, candidates, features, nil
}

func unmarshalTaggingEvent(ev *model.TaggingEvent, top, candidates, features []byte) error {
	if len(top) > 0 {
		ev.TopCandidate = &model.TagCandidate{}
		if err := json.Unmarshal(top, ev.TopCandidate); err != nil {
			return eris.Wrap(err, "store: unmarshal top candidate")
		}
	}
	if err := json.Unmarshal(candidates, &ev.Candidates); err != nil {
		return eris.Wrap(err, "store: unmarshal candidates")
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &ev.Features); err != nil {
			return eris.Wrap(err, "store: unmarshal features")
		}
	}
	return nil
}
