package validate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farm-ledger/internal/model"
)

func TestTotalToCents(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"dollar with comma", "$1,234.56", 123456},
		{"parentheses negative", "(50.00)", -5000},
		{"leading minus", "-12.5", -1250},
		{"currency code", "USD 10", 1000},
		{"euro", "€7.99", 799},
		{"half up", "0.005", 1},
		{"float", 1234.56, 123456},
		{"int", 42, 4200},
		{"json number", json.Number("19.99"), 1999},
		{"whitespace", "  3.10 ", 310},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TotalToCents(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTotalToCents_Invalid(t *testing.T) {
	for _, in := range []any{nil, "", "   ", "$", "()", "abc", "1.2.3", []int{1}} {
		_, err := TotalToCents(in)
		assert.Error(t, err, "%v", in)
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2024-03-01", "03/01/2024", "31/01/2024", "3/1/2024", "March 1, 2024", "march 1, 2024", "Mar 1, 2024"} {
		_, ok := ParseDate(s)
		assert.True(t, ok, s)
	}
	for _, s := range []string{"", "2024/03/01", "1 March 2024", "13/13/2024"} {
		_, ok := ParseDate(s)
		assert.False(t, ok, s)
	}
}

func TestISODate(t *testing.T) {
	assert.Equal(t, "2024-03-01", *ISODate(model.StrPtr("03/01/2024")))
	assert.Nil(t, ISODate(model.StrPtr("soon")))
	assert.Nil(t, ISODate(nil))
}

func validPayload() *model.InvoicePayload {
	total := 120.5
	return &model.InvoicePayload{
		VendorName:    model.StrPtr("PG&E"),
		InvoiceNumber: model.StrPtr("INV-1"),
		InvoiceDate:   model.StrPtr("2024-02-10"),
		TotalAmount:   &total,
	}
}

func TestPayload_Valid(t *testing.T) {
	r := Payload(validPayload())
	assert.True(t, r.Valid)
	assert.Empty(t, r.Reason)
	assert.Equal(t, int64(12050), r.TotalCents)
}

func TestPayload_RawTotalPreferred(t *testing.T) {
	p := validPayload()
	p.RawTotal = "(50.00)"
	r := Payload(p)
	assert.True(t, r.Valid)
	assert.Equal(t, int64(-5000), r.TotalCents)
}

func TestPayload_Failures(t *testing.T) {
	missingVendor := validPayload()
	missingVendor.VendorName = model.StrPtr("  ")

	missingTotal := validPayload()
	missingTotal.TotalAmount = nil

	badDate := validPayload()
	badDate.InvoiceDate = model.StrPtr("next tuesday")

	badAmount := validPayload()
	badAmount.RawTotal = "ten dollars"

	emptyAmount := validPayload()
	emptyAmount.RawTotal = ""

	blankAmount := validPayload()
	blankAmount.RawTotal = "  "

	zero := validPayload()
	zero.RawTotal = "$0.00"

	tests := []struct {
		name string
		p    *model.InvoicePayload
		want string
	}{
		{"nil", nil, ReasonMissingRequiredField},
		{"blank vendor", missingVendor, ReasonMissingRequiredField},
		{"no total", missingTotal, ReasonMissingRequiredField},
		{"bad date", badDate, ReasonInvalidDateFormat},
		{"bad amount", badAmount, ReasonInvalidAmount},
		{"empty amount", emptyAmount, ReasonInvalidAmount},
		{"blank amount", blankAmount, ReasonInvalidAmount},
		{"zero", zero, ReasonZeroAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Payload(tt.p)
			assert.False(t, r.Valid)
			assert.Equal(t, tt.want, r.Reason)
		})
	}
}
