// Package validate checks parsed invoice payloads before they reach the
// ledger and converts totals to exact integer cents.
package validate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/farm-ledger/internal/model"
)

// Failure reasons recorded as parse_failure_reason.
const (
	ReasonMissingRequiredField = "missing_required_field"
	ReasonInvalidDateFormat    = "invalid_date_format"
	ReasonInvalidAmount        = "invalid_amount"
	ReasonZeroAmount           = "zero_amount"
)

// dateLayouts are the accepted invoice_date formats. Day and month accept
// one or two digits.
var dateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"2/1/2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

var currencyTokens = []string{"$", "€", "£", "¥", "USD", "EUR", "GBP"}

// TotalToCents converts a raw total (string, number, or json.Number text)
// to integer cents using decimal arithmetic with half-up rounding.
// Commas and currency markers are stripped; a parenthesized or leading '-'
// amount is negative.
func TotalToCents(raw any) (int64, error) {
	var s string
	switch v := raw.(type) {
	case nil:
		return 0, eris.New("validate: total_amount cannot be null")
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case fmt.Stringer:
		s = v.String()
	default:
		return 0, eris.Errorf("validate: unsupported total_amount type %T", raw)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return 0, eris.New("validate: total_amount cannot be empty")
	}

	cleaned := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	for _, tok := range currencyTokens {
		cleaned = strings.TrimSpace(strings.ReplaceAll(cleaned, tok, ""))
	}

	negative := false
	switch {
	case strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")"):
		negative = true
		cleaned = strings.TrimSpace(cleaned[1 : len(cleaned)-1])
	case strings.HasPrefix(cleaned, "-"):
		negative = true
		cleaned = strings.TrimSpace(cleaned[1:])
	}
	if cleaned == "" {
		return 0, eris.New("validate: total_amount empty after cleanup")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, eris.Wrapf(err, "validate: invalid total_amount %q", s)
	}
	if negative {
		d = d.Neg()
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

// ParseDate parses an invoice date in any accepted layout.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ISODate returns raw as YYYY-MM-DD when it parses, else nil.
func ISODate(raw *string) *string {
	if raw == nil {
		return nil
	}
	t, ok := ParseDate(*raw)
	if !ok {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}

// Result is the outcome of validating one payload.
type Result struct {
	Valid      bool
	Reason     string
	TotalCents int64
}

// Payload validates the required fields, the invoice date, and the total.
func Payload(p *model.InvoicePayload) Result {
	if p == nil {
		return Result{Reason: ReasonMissingRequiredField}
	}
	for _, s := range []*string{p.VendorName, p.InvoiceNumber, p.InvoiceDate} {
		if s == nil || strings.TrimSpace(*s) == "" {
			return Result{Reason: ReasonMissingRequiredField}
		}
	}
	total := p.RawTotal
	if total == nil && p.TotalAmount != nil {
		total = *p.TotalAmount
	}
	if total == nil {
		return Result{Reason: ReasonMissingRequiredField}
	}

	if _, ok := ParseDate(*p.InvoiceDate); !ok {
		return Result{Reason: ReasonInvalidDateFormat}
	}

	cents, err := TotalToCents(total)
	if err != nil {
		return Result{Reason: ReasonInvalidAmount}
	}
	if cents == 0 {
		return Result{Reason: ReasonZeroAmount}
	}
	return Result{Valid: true, TotalCents: cents}
}
