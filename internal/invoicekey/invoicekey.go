// Package invoicekey derives the deterministic key used to detect the same
// invoice arriving twice under different scans.
package invoicekey

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/normalize"
)

// Tier names the strongest identifying fields a key was built from.
type Tier string

const (
	TierAccountInvoice Tier = "A"
	TierAccountDate    Tier = "B"
	TierAddressDate    Tier = "C"
)

// AmountCents converts a parsed total to integer cents, rounding half away
// from zero on the decimal value rather than the binary float.
func AmountCents(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}

// Resolve returns the invoice key for payload and the tier it came from.
// It returns "" when vendorKey or payload is missing or no tier's fields
// are all present. Tiers are tried strictly in order A, B, C.
func Resolve(vendorKey string, payload *model.InvoicePayload) (string, Tier) {
	if vendorKey == "" || payload == nil {
		return "", ""
	}

	account := strings.TrimSpace(model.Str(payload.AccountNumber))
	invoice := strings.TrimSpace(model.Str(payload.InvoiceNumber))
	date := strings.TrimSpace(model.Str(payload.InvoiceDate))
	address := strings.TrimSpace(model.Str(payload.ServiceAddress))
	hasAmount := payload.TotalAmount != nil

	switch {
	case account != "" && invoice != "":
		return join(vendorKey,
			"acct:"+normalize.Identifier(account),
			"inv:"+normalize.Identifier(invoice),
		), TierAccountInvoice
	case account != "" && date != "" && hasAmount:
		return join(vendorKey,
			"acct:"+normalize.Identifier(account),
			"date:"+date,
			"amt_cents:"+cents(*payload.TotalAmount),
		), TierAccountDate
	case address != "" && date != "" && hasAmount:
		return join(vendorKey,
			"addr:"+normalize.Address(address),
			"date:"+date,
			"amt_cents:"+cents(*payload.TotalAmount),
		), TierAddressDate
	}
	return "", ""
}

func cents(amount float64) string {
	return strconv.FormatInt(AmountCents(amount), 10)
}

func join(parts ...string) string {
	return strings.Join(parts, "|")
}
