package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farm-ledger/internal/config"
	"github.com/sells-group/farm-ledger/internal/dedup"
	"github.com/sells-group/farm-ledger/internal/model"
	ocrmocks "github.com/sells-group/farm-ledger/internal/ocr/mocks"
	"github.com/sells-group/farm-ledger/internal/parser"
	parsermocks "github.com/sells-group/farm-ledger/internal/parser/mocks"
	"github.com/sells-group/farm-ledger/internal/rules"
	"github.com/sells-group/farm-ledger/internal/store"
)

const (
	northText = "PG&E Statement\nService at 123 Main St\nAccount 555\nInvoice INV-9\nBalance due $1,234.56"
	lowText   = "Statement for walnut orchard supplies"
)

type harness struct {
	p      *Pipeline
	st     *store.SQLiteStore
	ext    *ocrmocks.MockExtractor
	parser *parsermocks.MockParser
	dir    string
	outDir string
}

func testFarms() *model.FarmsConfig {
	return &model.FarmsConfig{Farms: []model.Farm{
		{
			ID:          "north",
			Name:        "North Farm",
			Identifiers: []string{"123 Main St"},
			Keywords:    []string{"walnut"},
			Vendors: map[string]model.VendorConfig{
				"pge": {Name: "PG&E", Identifiers: []string{"PGE-ACCT-1"}},
			},
		},
		{
			ID:          "south",
			Name:        "South Farm",
			Identifiers: []string{"9 Oak Rd"},
		},
	}}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base := t.TempDir()

	st, err := store.NewSQLite(filepath.Join(base, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	cfg := &config.Config{}
	cfg.OCR.MaxPages = 3
	cfg.Ingest.ManualReviewThreshold = 0.85
	cfg.Paths.StructuredOutputs = filepath.Join(base, "structured")

	h := &harness{
		st:     st,
		ext:    ocrmocks.NewMockExtractor(t),
		parser: parsermocks.NewMockParser(t),
		dir:    filepath.Join(base, "invoices"),
		outDir: cfg.Paths.StructuredOutputs,
	}
	require.NoError(t, os.MkdirAll(h.dir, 0o755))

	h.p = New(cfg, st, h.ext, h.parser, testFarms(), rules.NewFileStore(filepath.Join(base, "dynamic_rules.json")))
	n := 0
	h.p.newID = func() string {
		n++
		return fmt.Sprintf("doc-%d", n)
	}
	require.NoError(t, h.p.Prepare(context.Background()))
	return h
}

func (h *harness) pdf(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4\n"), 0o644))
	return path
}

func strp(s string) *string { return &s }

// sibling returns a second pipeline over st sharing h's mocks, prepared
// now, whose documents are named with prefix.
func (h *harness) sibling(t *testing.T, st store.Store, prefix string) *Pipeline {
	t.Helper()
	p := New(h.p.cfg, st, h.ext, h.parser, testFarms(), nil)
	n := 0
	p.newID = func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
	require.NoError(t, p.Prepare(context.Background()))
	return p
}

// failingQueueStore is a SQLite store whose review queue rejects writes.
type failingQueueStore struct{ *store.SQLiteStore }

func (failingQueueStore) EnqueueReview(context.Context, *model.ReviewQueueItem) error {
	return errors.New("queue unavailable")
}


func pgePayload() *model.InvoicePayload {
	return &model.InvoicePayload{
		VendorName:     strp("PG&E"),
		InvoiceNumber:  strp("INV-9"),
		InvoiceDate:    strp("03/01/2024"),
		AccountNumber:  strp("555"),
		ServiceAddress: strp("123 Main St"),
		RawTotal:       "$1,234.56",
		LineItems:      []model.LineItem{{Description: "Electric"}},
	}
}

func TestProcessFile_Auto(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	path := h.pdf(t, "pge-march.pdf")

	h.ext.On("ExtractText", mock.Anything, path, 3).Return("  "+northText+"\n", nil).Once()
	h.parser.On("Parse", mock.Anything, northText).Return(pgePayload(), nil).Once()

	out := h.p.ProcessFile(ctx, path)
	assert.Equal(t, model.OutcomeSuccess, out.Status)
	assert.Equal(t, "doc-1", out.DocID)
	assert.Equal(t, "north", out.FarmID)
	assert.Equal(t, "pge|acct:555|inv:inv9", out.InvoiceKey)
	require.NotNil(t, out.Confidence)
	assert.Equal(t, 0.95, *out.Confidence)
	assert.Equal(t, filepath.Join(h.outDir, "pge-march.json"), out.OutputPath)
	assert.FileExists(t, out.OutputPath)

	tx, err := h.st.GetTransactionByDocID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAuto, tx.Status)
	assert.Equal(t, int64(123456), *tx.TotalCents)
	assert.Equal(t, "2024-03-01", *tx.InvoiceDate)
	assert.Equal(t, "pge", *tx.VendorKey)
	assert.Equal(t, "North Farm", *tx.FarmName)
	assert.Equal(t, model.ParseStatusSuccess, *tx.ParseStatus)

	events, err := h.st.ListTaggingEvents(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.TagStageDeterministic, events[0].Stage)

	items, err := h.st.ListLineItems(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Electric", items[0].Description)

	queue, err := h.st.ListReviewQueue(ctx, model.ReviewOpen)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestProcessFile_SkippedDuplicateContent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.pdf(t, "a.pdf")
	second := h.pdf(t, "a-copy.pdf")

	h.ext.On("ExtractText", mock.Anything, first, 3).Return(northText, nil).Once()
	// Same content up to case and punctuation.
	h.ext.On("ExtractText", mock.Anything, second, 3).Return("pg&e statement service at 123 main st. account 555 invoice inv-9 balance due $1,234.56", nil).Once()
	h.parser.On("Parse", mock.Anything, mock.Anything).Return(pgePayload(), nil).Once()

	assert.Equal(t, model.OutcomeSuccess, h.p.ProcessFile(ctx, first).Status)

	out := h.p.ProcessFile(ctx, second)
	assert.Equal(t, model.OutcomeSkippedDuplicate, out.Status)
	assert.Equal(t, ReasonContentFingerprintDuplicate, out.Reason)
	assert.Equal(t, "doc-1", out.DuplicateOf)
	assert.True(t, out.Succeeded())

	txs, err := h.st.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestProcessFile_SkippedDuplicateAfterRestart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	path := h.pdf(t, "a.pdf")

	h.ext.On("ExtractText", mock.Anything, path, 3).Return(northText, nil).Twice()
	h.parser.On("Parse", mock.Anything, mock.Anything).Return(pgePayload(), nil).Once()
	assert.Equal(t, model.OutcomeSuccess, h.p.ProcessFile(ctx, path).Status)

	// A fresh pipeline over the same store learns the fingerprint from storage.
	p2 := New(h.p.cfg, h.st, h.ext, h.parser, testFarms(), nil)
	p2.newID = func() string { return "doc-99" }
	require.NoError(t, p2.Prepare(ctx))

	out := p2.ProcessFile(ctx, path)
	assert.Equal(t, model.OutcomeSkippedDuplicate, out.Status)
	assert.Equal(t, "doc-1", out.DuplicateOf)
}

func TestProcessFile_InvoiceKeyDuplicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.pdf(t, "scan-1.pdf")
	second := h.pdf(t, "scan-2.pdf")

	h.ext.On("ExtractText", mock.Anything, first, 3).Return(northText, nil).Once()
	h.ext.On("ExtractText", mock.Anything, second, 3).Return(northText+"\nPage 1 of 1", nil).Once()
	h.parser.On("Parse", mock.Anything, mock.Anything).Return(pgePayload(), nil).Twice()

	require.Equal(t, model.OutcomeSuccess, h.p.ProcessFile(ctx, first).Status)

	out := h.p.ProcessFile(ctx, second)
	assert.Equal(t, model.OutcomeDuplicate, out.Status)
	assert.Equal(t, ReasonInvoiceKeyDuplicate, out.Reason)
	assert.Equal(t, "doc-1", out.DuplicateOf)
	assert.Equal(t, "invoice_key", out.DuplicateBasis)
	assert.True(t, out.Succeeded())

	stub, err := h.st.GetTransactionByDocID(ctx, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDuplicate, stub.Status)
	assert.True(t, stub.DuplicateDetected)
	assert.Equal(t, "doc-1", *stub.DuplicateOf)
	assert.Equal(t, "pge|acct:555|inv:inv9", *stub.InvoiceKey)

	orig, err := h.st.FindByInvoiceKey(ctx, "pge|acct:555|inv:inv9")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", orig.DocID)
}

func TestProcessFile_InvoiceKeyDuplicateStaleIndex(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.pdf(t, "scan-1.pdf")
	second := h.pdf(t, "scan-2.pdf")

	// other indexed the store before doc-1 existed, so only the unique
	// constraint can catch its copy.
	other := h.sibling(t, h.st, "other")

	h.ext.On("ExtractText", mock.Anything, first, 3).Return(northText, nil).Once()
	h.ext.On("ExtractText", mock.Anything, second, 3).Return(northText+"\nPage 1 of 1", nil).Once()
	h.parser.On("Parse", mock.Anything, mock.Anything).Return(pgePayload(), nil).Twice()

	require.Equal(t, model.OutcomeSuccess, h.p.ProcessFile(ctx, first).Status)

	out := other.ProcessFile(ctx, second)
	assert.Equal(t, model.OutcomeDuplicate, out.Status)
	assert.Equal(t, ReasonInvoiceKeyDuplicate, out.Reason)
	assert.Equal(t, "doc-1", out.DuplicateOf)
	assert.Equal(t, "other-1", out.DocID)

	stub, err := h.st.GetTransactionByDocID(ctx, "other-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDuplicate, stub.Status)
	assert.Equal(t, "doc-1", *stub.DuplicateOf)

	owner, ok := other.index.Lookup(dedup.BasisInvoiceKey, "pge|acct:555|inv:inv9")
	assert.True(t, ok, "the constraint hit refreshes the index")
	assert.Equal(t, "doc-1", owner)
}

func TestProcessFile_InvoiceKeyDuplicateWithdrawsReview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.pdf(t, "scan-1.pdf")
	second := h.pdf(t, "walnut.pdf")
	other := h.sibling(t, h.st, "other")

	h.ext.On("ExtractText", mock.Anything, first, 3).Return(northText, nil).Once()
	h.ext.On("ExtractText", mock.Anything, second, 3).Return(lowText, nil).Once()
	h.parser.On("Parse", mock.Anything, mock.Anything).Return(pgePayload(), nil).Twice()

	require.Equal(t, model.OutcomeSuccess, h.p.ProcessFile(ctx, first).Status)

	out := other.ProcessFile(ctx, second)
	assert.Equal(t, model.OutcomeDuplicate, out.Status)
	assert.Equal(t, "doc-1", out.DuplicateOf)

	open, err := h.st.ListReviewQueue(ctx, model.ReviewOpen)
	require.NoError(t, err)
	assert.Empty(t, open, "a duplicate never waits for review")
}

func TestProcessFile_PendingRowsStayUnattributed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	path := h.pdf(t, "walnut.pdf")

	// The walnut keyword guesses north at low confidence; the payload
	// carries a real vendor and account.
	h.ext.On("ExtractText", mock.Anything, path, 3).Return(lowText, nil).Once()
	h.parser.On("Parse", mock.Anything, lowText).Return(pgePayload(), nil).Once()

	out := h.p.ProcessFile(ctx, path)
	require.Equal(t, model.OutcomeManualReview, out.Status)

	tx, err := h.st.GetTransactionByDocID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingManual, tx.Status)
	assert.Equal(t, "pge", model.Str(tx.VendorKey))
	assert.Equal(t, "555", model.Str(tx.AccountNumber))
	assert.Nil(t, tx.FarmID)
	assert.Nil(t, tx.FarmName)

	history, err := h.st.AttributionHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	south := model.DynamicRule{VendorKey: "pge", AccountNumber: "555", FarmID: "south"}
	assert.False(t, rules.CheckAccountCollision("pge", "555", testFarms(), []model.DynamicRule{south}, history))
}

func TestProcessFile_ReviewQueueFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	path := h.pdf(t, "walnut.pdf")
	broken := h.sibling(t, failingQueueStore{h.st}, "broken")

	h.ext.On("ExtractText", mock.Anything, path, 3).Return(lowText, nil).Twice()
	h.parser.On("Parse", mock.Anything, lowText).Return(pgePayload(), nil).Twice()

	out := broken.ProcessFile(ctx, path)
	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.Equal(t, StageFinalize, out.Stage)
	assert.Equal(t, ReasonUnexpected, out.Reason)

	all, err := h.st.ListTransactions(ctx, store.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1, "one ledger row per document")
	assert.Equal(t, "broken-1", all[0].DocID)
	assert.Equal(t, model.StatusFailed, all[0].Status)

	keys, err := h.st.InvoiceKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	_, held := broken.index.Lookup(dedup.BasisInvoiceKey, "pge|acct:555|inv:inv9")
	assert.False(t, held)

	// The document was released, so a healthy run takes it to review.
	out = h.p.ProcessFile(ctx, path)
	assert.Equal(t, model.OutcomeManualReview, out.Status)
	assert.Empty(t, out.DuplicateOf)
}

func TestProcessFile_ManualReview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	path := h.pdf(t, "walnut.pdf")

	h.ext.On("ExtractText", mock.Anything, path, 3).Return(lowText, nil).Once()
	h.parser.On("Parse", mock.Anything, lowText).Return(&model.InvoicePayload{
		VendorName:    strp("Orchard Supply"),
		InvoiceNumber: strp("77"),
		InvoiceDate:   strp("2024-02-10"),
		RawTotal:      "(50.00)",
	}, nil).Once()

	out := h.p.ProcessFile(ctx, path)
	assert.Equal(t, model.OutcomeManualReview, out.Status)
	assert.Empty(t, out.FarmID, "attribution waits for a reviewer")
	assert.True(t, out.Succeeded())

	tx, err := h.st.GetTransactionByDocID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingManual, tx.Status)
	assert.True(t, tx.NeedsManualReview)
	assert.Nil(t, tx.FarmID)
	assert.Nil(t, tx.FarmName)
	assert.Equal(t, int64(-5000), *tx.TotalCents)
	assert.Nil(t, tx.InvoiceKey, "no vendor key means no invoice key")

	queue, err := h.st.ListReviewQueue(ctx, model.ReviewOpen)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "doc-1", queue[0].DocID)
	assert.Equal(t, lowText, queue[0].ExtractedTextPreview)
	assert.NotEmpty(t, queue[0].Candidates)

	_, err = os.Stat(filepath.Join(h.outDir, "walnut.json"))
	assert.True(t, os.IsNotExist(err), "structured output is only written for auto invoices")
}

func TestProcessFile_ParseFailureTakesPrecedenceOverReview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	path := h.pdf(t, "walnut.pdf")

	h.ext.On("ExtractText", mock.Anything, path, 3).Return(lowText, nil).Twice()
	h.parser.On("Parse", mock.Anything, lowText).
		Return(nil, &parser.ParseError{Category: parser.CategoryNoJSON, Detail: "no JSON object found"}).Once()

	out := h.p.ProcessFile(ctx, path)
	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.Equal(t, StageParse, out.Stage)
	assert.Equal(t, ReasonLLMParsingFailed, out.Reason)
	assert.Equal(t, parser.CategoryNoJSON, out.Code)
	assert.False(t, out.Succeeded())

	tx, err := h.st.GetTransactionByDocID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, tx.Status)
	assert.Equal(t, model.ParseStatusInvalidJSON, *tx.ParseStatus)
	assert.Contains(t, *tx.FailureReason, ReasonLLMParsingFailed)

	queue, err := h.st.ListReviewQueue(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, queue)

	// The failed document released its fingerprint, so a rerun retries it.
	h.parser.On("Parse", mock.Anything, lowText).Return(&model.InvoicePayload{
		VendorName:    strp("Orchard Supply"),
		InvoiceNumber: strp("77"),
		InvoiceDate:   strp("2024-02-10"),
		RawTotal:      "12.00",
	}, nil).Once()
	out = h.p.ProcessFile(ctx, path)
	assert.Equal(t, model.OutcomeManualReview, out.Status)
	assert.Equal(t, "doc-2", out.DocID)
}

func TestProcessFile_ValidationFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	path := h.pdf(t, "pge.pdf")

	payload := pgePayload()
	payload.RawTotal = "abc"
	h.ext.On("ExtractText", mock.Anything, path, 3).Return(northText, nil).Once()
	h.parser.On("Parse", mock.Anything, northText).Return(payload, nil).Once()

	out := h.p.ProcessFile(ctx, path)
	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.Equal(t, ReasonValidationFailed, out.Reason)
	assert.Equal(t, "invalid_amount", out.Code)

	tx, err := h.st.GetTransactionByDocID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.ParseStatusValidationFailed, *tx.ParseStatus)
	assert.Equal(t, "invalid_amount", *tx.ParseFailureReason)
	assert.Equal(t, "INV-9", *tx.InvoiceNumber)
	assert.Nil(t, tx.FarmID)

	failures, err := h.st.ParseFailures(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "invalid_amount", failures[0].Reason)
}

func TestProcessFile_PathValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	out := h.p.ProcessFile(ctx, filepath.Join(h.dir, "missing.pdf"))
	assert.Equal(t, model.OutcomeFailed, out.Status)
	assert.Equal(t, ReasonPathValidation, out.Reason)

	txt := filepath.Join(h.dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("hi"), 0o644))
	out = h.p.ProcessFile(ctx, txt)
	assert.Equal(t, ReasonPathValidation, out.Reason)

	h.ext.AssertNotCalled(t, "ExtractText", mock.Anything, mock.Anything, mock.Anything)

	txs, err := h.st.ListTransactions(ctx, store.TransactionFilter{Status: model.StatusFailed})
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestProcessFile_ExtractionFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	broken := h.pdf(t, "broken.pdf")
	blank := h.pdf(t, "blank.pdf")

	h.ext.On("ExtractText", mock.Anything, broken, 3).Return("", assert.AnError).Once()
	h.ext.On("ExtractText", mock.Anything, blank, 3).Return("   \n", nil).Once()

	out := h.p.ProcessFile(ctx, broken)
	assert.Equal(t, ReasonVisionExtractionFailed, out.Reason)
	assert.Equal(t, StageExtract, out.Stage)

	out = h.p.ProcessFile(ctx, blank)
	assert.Equal(t, ReasonEmptyExtraction, out.Reason)

	h.parser.AssertNotCalled(t, "Parse", mock.Anything, mock.Anything)
}

func TestProcessBatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.pdf(t, "a.pdf")
	b := h.pdf(t, "b.PDF")
	c := h.pdf(t, "c.pdf")
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, "readme.txt"), []byte("x"), 0o644))

	h.ext.On("ExtractText", mock.Anything, a, 3).Return(northText, nil).Once()
	h.ext.On("ExtractText", mock.Anything, b, 3).Return(lowText, nil).Once()
	h.ext.On("ExtractText", mock.Anything, c, 3).Return("", assert.AnError).Once()
	h.parser.On("Parse", mock.Anything, northText).Return(pgePayload(), nil).Once()
	h.parser.On("Parse", mock.Anything, lowText).Return(&model.InvoicePayload{
		VendorName:    strp("Orchard Supply"),
		InvoiceNumber: strp("77"),
		InvoiceDate:   strp("2024-02-10"),
		RawTotal:      "10",
	}, nil).Once()

	summary, err := h.p.ProcessBatch(ctx, h.dir)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Auto)
	assert.Equal(t, 1, summary.Manual)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "a.pdf", summary.Outcomes[0].File)
}

func TestProcessBatch_MissingDir(t *testing.T) {
	h := newHarness(t)
	summary, err := h.p.ProcessBatch(context.Background(), filepath.Join(h.dir, "nope"))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
}

func TestProcessBatch_Cancelled(t *testing.T) {
	h := newHarness(t)
	h.pdf(t, "a.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := h.p.ProcessBatch(ctx, h.dir)
	require.Error(t, err)
	assert.Equal(t, 0, summary.Total)
}

func TestResolveVendorKey(t *testing.T) {
	farm := testFarms().Farms[0]
	assert.Equal(t, "pge", resolveVendorKey(farm, "pg&e pacific"))
	assert.Equal(t, "", resolveVendorKey(farm, "Acme"))
	assert.Equal(t, "", resolveVendorKey(farm, ""))
}

func TestTextPreview(t *testing.T) {
	assert.Equal(t, "abc", textPreview("abc", 5))
	assert.Equal(t, "ab...", textPreview("abcd", 2))
}

func TestStageErrorMessage(t *testing.T) {
	se := &StageError{Stage: StageParse, Reason: ReasonValidationFailed, Code: "zero_amount"}
	assert.Equal(t, "pipeline: parse: validation_failed(zero_amount)", se.Error())

	se = stageErr(StageExtract, ReasonVisionExtractionFailed, assert.AnError)
	assert.ErrorIs(t, se, assert.AnError)
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"invoice_01.pdf", true},
		{"PGE-2024.PDF", true},
		{"notes.txt", false},
		{"../escape.pdf", false},
		{"with space.pdf", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeFileName(tt.name), tt.name)
	}
}
