package reinforce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farm-ledger/internal/model"
)

func farms() *model.FarmsConfig {
	return &model.FarmsConfig{Farms: []model.Farm{
		{
			ID:   "north",
			Name: "North Ranch",
			Vendors: map[string]model.VendorConfig{
				"pge": {Name: "Pacific Gas and Electric", Keywords: []string{"PG&E"}, Accounts: []string{"111-222"}},
			},
		},
		{
			ID:   "south",
			Name: "South Farm",
			Vendors: map[string]model.VendorConfig{
				"pge":   {Name: "Pacific Gas and Electric", Identifiers: []string{"333"}},
				"water": {Name: "Valley Water District"},
			},
		},
	}}
}

func newSynth() *Synthesizer {
	s := NewSynthesizer(farms())
	s.nowFunc = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestPropose_ServiceAndKeywordProposals(t *testing.T) {
	c := Correction{
		DocID:    "doc-1",
		FarmID:   "south",
		FarmName: "South Farm",
		Transaction: model.Transaction{
			VendorKey:          model.StrPtr("pge"),
			AccountNumber:      model.StrPtr("999-000"),
			ServiceAddress:     model.StrPtr("12 Levee Rd, Fresno CA"),
			InvoiceNumber:      model.StrPtr("INV-7"),
			ContentFingerprint: model.StrPtr("sha256:abc"),
		},
		OCRText: "PG&E statement for South Farm",
	}

	props := newSynth().Propose(c, nil, nil)
	require.Len(t, props, 2)

	svc := props[0]
	assert.Equal(t, []string{"12 levee rd", "fresno ca"}, svc.ServiceAddressContains)
	assert.Empty(t, svc.KeywordsAny)
	assert.Equal(t, "pge", svc.VendorKey)
	assert.Equal(t, "999-000", svc.AccountNumber)
	assert.Equal(t, "south", svc.FarmID)
	assert.Equal(t, "INV-7", model.Str(svc.InvoiceNumber))
	assert.Equal(t, 100, svc.EffectivePriority())
	assert.Equal(t, "2025-03-01T12:00:00Z", svc.CreatedAt)
	require.NotNil(t, svc.Evidence)
	assert.Equal(t, "doc-1", svc.Evidence.DocID)
	assert.Equal(t, "sha256:abc", svc.Evidence.ContentFingerprint)
	assert.Regexp(t, `^rule_[0-9a-f]{12}$`, svc.RuleID)

	kw := props[1]
	assert.Equal(t, []string{"south"}, kw.KeywordsAny)
	assert.Empty(t, kw.ServiceAddressContains)
	assert.NotEqual(t, svc.RuleID, kw.RuleID)
}

func TestPropose_BareRuleWithoutCollision(t *testing.T) {
	c := Correction{
		DocID:  "doc-2",
		FarmID: "south",
		Transaction: model.Transaction{
			VendorKey:     model.StrPtr("pge"),
			AccountNumber: model.StrPtr("999-000"),
		},
		OCRText: "electric service",
	}

	props := newSynth().Propose(c, nil, nil)
	require.Len(t, props, 1)
	assert.False(t, props[0].HasDisambiguator())
	assert.Equal(t, "south", props[0].FarmID)
}

func TestPropose_CollisionRequiresDisambiguator(t *testing.T) {
	history := []model.Transaction{
		{FarmID: model.StrPtr("south"), VendorKey: model.StrPtr("pge"), AccountNumber: model.StrPtr("111222")},
	}
	c := Correction{
		DocID:  "doc-3",
		FarmID: "south",
		Transaction: model.Transaction{
			VendorKey:     model.StrPtr("pge"),
			AccountNumber: model.StrPtr("111-222"),
		},
		OCRText: "electric service",
	}

	assert.Empty(t, newSynth().Propose(c, nil, history))

	c.Transaction.ServiceAddress = model.StrPtr("40 Almond Rd")
	props := newSynth().Propose(c, nil, history)
	require.Len(t, props, 1)
	assert.Equal(t, []string{"40 almond rd"}, props[0].ServiceAddressContains)
}

func TestPropose_MissingAccount(t *testing.T) {
	c := Correction{
		FarmID:      "south",
		Transaction: model.Transaction{VendorKey: model.StrPtr("pge")},
		OCRText:     "no numbers here",
	}
	assert.Nil(t, newSynth().Propose(c, nil, nil))
}

func TestPropose_FallsBackToOCRText(t *testing.T) {
	c := Correction{
		DocID:   "doc-4",
		FarmID:  "north",
		OCRText: "Pacific Gas and Electric\nAccount Number: 5566-77\nService for 40 Almond Rd",
	}

	props := newSynth().Propose(c, nil, nil)
	require.Len(t, props, 1)
	assert.Equal(t, "pge", props[0].VendorKey)
	assert.Equal(t, "5566-77", props[0].AccountNumber)
	assert.Equal(t, []string{"service for 40 almond rd"}, props[0].ServiceAddressContains)
}

func TestInferVendorKey(t *testing.T) {
	assert.Equal(t, "pge", InferVendorKey("Pacific Gas and Electric bill", farms()))
	assert.Equal(t, "water", InferVendorKey("valley water district", farms()))
	assert.Equal(t, "", InferVendorKey("unknown vendor", farms()))
	assert.Equal(t, "", InferVendorKey("anything", nil))
}

func TestInferVendorKey_TieReturnsEmpty(t *testing.T) {
	cfg := &model.FarmsConfig{Farms: []model.Farm{{
		ID: "f",
		Vendors: map[string]model.VendorConfig{
			"a": {Name: "Alpha Supply"},
			"b": {Name: "Beta Supply"},
		},
	}}}
	assert.Equal(t, "", InferVendorKey("alpha supply and beta supply", cfg))
}

func TestExtractAccountNumber(t *testing.T) {
	cases := map[string]string{
		"Account Number: 5566-77":  "5566-77",
		"ACCOUNT # 12345":          "12345",
		"Acct: AB-1234":            "ab-1234",
		"account no 1234 and more": "1234",
		"invoice 1234":             "",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ExtractAccountNumber(in))
		})
	}
}

func TestExtractServiceAddressHint(t *testing.T) {
	text := "Invoice\n  12 Levee Rd  \nPO Box 9\nMain Street\nTotal 10"
	assert.Equal(t, "12 Levee Rd, PO Box 9", ExtractServiceAddressHint(text))
	assert.Equal(t, "", ExtractServiceAddressHint("nothing useful"))
}

func TestServiceDisambiguators(t *testing.T) {
	got := ServiceDisambiguators("12 Levee  Rd; Fresno, CA, 12 levee rd, Kings County, Extra Segment")
	assert.Equal(t, []string{"12 levee rd", "fresno", "kings county"}, got)
	assert.Nil(t, ServiceDisambiguators(""))
}

func TestKeywordDisambiguators(t *testing.T) {
	got := KeywordDisambiguators("Almond Orchard Farms", "almond_orchard", "Almond orchard invoice")
	assert.Equal(t, []string{"almond", "orchard"}, got)

	assert.Empty(t, KeywordDisambiguators("Ranch Expenses", "ranch", "ranch expenses"))
}

func TestBillToTokens(t *testing.T) {
	assert.Equal(t, []string{"bill", "north", "ranch", "llc"}, BillToTokens("Bill To: North Ranch LLC, north", 400))
	assert.Equal(t, []string{"abc"}, BillToTokens("abc defgh", 3))
}

func TestDescribe(t *testing.T) {
	p := model.DynamicRule{
		VendorKey:              "pge",
		AccountNumber:          "111",
		FarmID:                 "north",
		ServiceAddressContains: []string{"levee rd"},
	}
	assert.Equal(t, "vendor_key=pge AND account=111 AND service_address_contains=[levee rd] -> north (priority: 100)", Describe(p))
}
