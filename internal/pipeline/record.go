package pipeline

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/atomicfile"
	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/validate"
)

// baseTransaction returns the fields every ledger row for d shares,
// whatever its final status. Farm attribution is left empty; see attribute.
func (p *Pipeline) baseTransaction(d *document) *model.Transaction {
	tx := &model.Transaction{
		DocID:              d.docID,
		ContentFingerprint: model.StrPtr(d.fingerprint),
		CreatedAt:          p.now(),
	}
	if d.tag != nil {
		conf := d.tag.Confidence
		tx.Confidence = &conf
		tx.NeedsManualReview = d.tag.NeedsManualReview
	}
	return tx
}

// attribute sets the farm on tx from a confident tag. Rows that still need
// review stay unattributed until a reviewer resolves them; the candidates
// live on the review queue item and the tagging events.
func attribute(tx *model.Transaction, tag *model.TagResult) {
	if tag == nil || tag.NeedsManualReview || tag.TopCandidate == nil {
		return
	}
	tx.FarmID = model.StrPtr(tag.TopCandidate.FarmID)
	tx.FarmName = model.StrPtr(tag.TopCandidate.FarmName)
}

// fillPayload copies the parsed invoice fields onto tx. Dates are stored
// as YYYY-MM-DD when they parse and as written otherwise.
func fillPayload(tx *model.Transaction, pl *model.InvoicePayload) {
	tx.VendorName = pl.VendorName
	tx.InvoiceNumber = pl.InvoiceNumber
	tx.InvoiceDate = isoOrRaw(pl.InvoiceDate)
	tx.DueDate = isoOrRaw(pl.DueDate)
	tx.ServiceAddress = pl.ServiceAddress
	tx.AccountNumber = pl.AccountNumber
}

func isoOrRaw(s *string) *string {
	if iso := validate.ISODate(s); iso != nil {
		return iso
	}
	return s
}

// resolveVendorKey returns the key of the farm's vendor whose configured
// name appears in vendorName, case-insensitively.
func resolveVendorKey(farm model.Farm, vendorName string) string {
	lower := strings.ToLower(vendorName)
	if lower == "" {
		return ""
	}
	keys := make([]string, 0, len(farm.Vendors))
	for k := range farm.Vendors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := strings.ToLower(strings.TrimSpace(farm.Vendors[k].Name))
		if name != "" && strings.Contains(lower, name) {
			return k
		}
	}
	return ""
}

func lineItems(docID string, items []model.LineItem) []model.StoredLineItem {
	out := make([]model.StoredLineItem, 0, len(items))
	for i, it := range items {
		li := model.StoredLineItem{DocID: docID, LineNumber: i + 1, Description: it.Description}
		if it.Amount != nil {
			if cents, err := validate.TotalToCents(*it.Amount); err == nil {
				li.AmountCents = &cents
			}
		}
		out = append(out, li)
	}
	return out
}

// textPreview truncates text to limit runes, marking the cut with "...".
func textPreview(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}

type structuredInvoice struct {
	DocID          string           `json:"doc_id"`
	FarmID         *string          `json:"farm_id"`
	FarmName       *string          `json:"farm_name"`
	VendorKey      *string          `json:"vendor_key"`
	VendorName     *string          `json:"vendor_name"`
	InvoiceNumber  *string          `json:"invoice_number"`
	InvoiceDate    *string          `json:"invoice_date"`
	DueDate        *string          `json:"due_date"`
	TotalCents     *int64           `json:"total_cents"`
	ServiceAddress *string          `json:"service_address"`
	AccountNumber  *string          `json:"account_number"`
	InvoiceKey     *string          `json:"invoice_key"`
	Confidence     *float64         `json:"confidence"`
	LineItems      []model.LineItem `json:"line_items"`
}

// writeStructured saves the finalized invoice as <stem>.json under the
// structured outputs directory. Write failures are logged; the ledger row
// is already committed.
func (p *Pipeline) writeStructured(d *document, tx *model.Transaction) string {
	dir := p.cfg.Paths.StructuredOutputs
	if dir == "" {
		return ""
	}
	stem := strings.TrimSuffix(d.fileName, filepath.Ext(d.fileName))
	out := filepath.Join(dir, stem+".json")

	items := d.payload.LineItems
	if items == nil {
		items = []model.LineItem{}
	}
	doc := structuredInvoice{
		DocID:          d.docID,
		FarmID:         tx.FarmID,
		FarmName:       tx.FarmName,
		VendorKey:      tx.VendorKey,
		VendorName:     tx.VendorName,
		InvoiceNumber:  tx.InvoiceNumber,
		InvoiceDate:    tx.InvoiceDate,
		DueDate:        tx.DueDate,
		TotalCents:     tx.TotalCents,
		ServiceAddress: tx.ServiceAddress,
		AccountNumber:  tx.AccountNumber,
		InvoiceKey:     tx.InvoiceKey,
		Confidence:     tx.Confidence,
		LineItems:      items,
	}
	if err := atomicfile.WriteJSON(out, doc); err != nil {
		d.log.Warn("pipeline: write structured output failed", zap.String("path", out), zap.Error(err))
		return ""
	}
	return out
}
