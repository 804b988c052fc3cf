package model

// LineItem is a single parsed invoice line.
type LineItem struct {
	Description string   `json:"description"`
	Amount      *float64 `json:"amount"`
}

// InvoicePayload holds the structured fields parsed from invoice text.
// Missing fields are nil.
type InvoicePayload struct {
	VendorName     *string    `json:"vendor_name"`
	InvoiceNumber  *string    `json:"invoice_number"`
	InvoiceDate    *string    `json:"invoice_date"`
	DueDate        *string    `json:"due_date"`
	TotalAmount    *float64   `json:"total_amount"`
	ServiceAddress *string    `json:"service_address"`
	AccountNumber  *string    `json:"account_number"`
	LineItems      []LineItem `json:"line_items"`

	// RawTotal preserves the total as the model emitted it, so string
	// amounts like "(50.00)" reach the cents normalizer intact.
	RawTotal any `json:"-"`
}

// Str dereferences an optional string.
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
