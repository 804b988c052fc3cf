package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/dedup"
	"github.com/sells-group/farm-ledger/internal/invoicekey"
	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/normalize"
	"github.com/sells-group/farm-ledger/internal/parser"
	"github.com/sells-group/farm-ledger/internal/rules"
	"github.com/sells-group/farm-ledger/internal/store"
	"github.com/sells-group/farm-ledger/internal/validate"
)

// document carries what is known about one PDF as it moves through the
// stages.
type document struct {
	docID       string
	path        string
	fileName    string
	text        string
	fingerprint string
	recorded    bool

	tag      *model.TagResult
	tagStage string

	payload *model.InvoicePayload
	cents   int64
	log     *zap.Logger
}

// ProcessFile runs one PDF through every stage and returns its outcome.
// Failures are recorded as failed transactions, never returned.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (out model.Outcome) {
	d := &document{docID: p.newID(), path: path, fileName: filepath.Base(path)}
	d.log = zap.L().With(zap.String("doc_id", d.docID), zap.String("file", d.fileName))

	defer func() {
		if r := recover(); r != nil {
			out = p.fail(ctx, d, stageErr(StageFinalize, ReasonUnexpected, eris.Errorf("panic: %v", r)))
		}
	}()

	if err := validatePath(path); err != nil {
		return p.fail(ctx, d, stageErr(StageValidate, ReasonPathValidation, err))
	}

	text, err := p.extractor.ExtractText(ctx, path, p.cfg.OCR.MaxPages)
	if err != nil {
		return p.fail(ctx, d, stageErr(StageExtract, ReasonVisionExtractionFailed, err))
	}
	d.text = strings.TrimSpace(text)
	if d.text == "" {
		return p.fail(ctx, d, stageErr(StageExtract, ReasonEmptyExtraction, nil))
	}

	if dup, err := p.recordDocument(ctx, d); err != nil {
		return p.fail(ctx, d, err)
	} else if dup != nil {
		return *dup
	}

	if err := p.classify(ctx, d); err != nil {
		return p.fail(ctx, d, err)
	}

	// Parse failures take precedence over manual review: a document that
	// cannot be parsed is failed even when attribution is also uncertain.
	if err := p.parse(ctx, d); err != nil {
		return p.fail(ctx, d, err)
	}

	out, serr := p.finalize(ctx, d)
	if serr != nil {
		return p.fail(ctx, d, serr)
	}
	return out
}

func validatePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return eris.Wrapf(err, "file not found: %s", path)
	}
	if info.IsDir() {
		return eris.Errorf("not a file: %s", path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return eris.Errorf("file must be a PDF: %s", path)
	}
	return nil
}

// recordDocument claims the content fingerprint. It returns a
// skipped_duplicate outcome when another document already holds it.
func (p *Pipeline) recordDocument(ctx context.Context, d *document) (*model.Outcome, *StageError) {
	d.fingerprint = normalize.ContentFingerprint(d.text)

	if owner, ok := p.index.Lookup(dedup.BasisFingerprint, d.fingerprint); ok {
		return p.skipped(d, owner), nil
	}

	doc := &model.Document{
		DocID:              d.docID,
		FileName:           d.fileName,
		FilePath:           d.path,
		RawTextHash:        normalize.RawTextHash(d.text),
		RawText:            d.text,
		ContentFingerprint: d.fingerprint,
		ExtractedAt:        p.now(),
	}
	err := p.store.InsertDocument(ctx, doc)
	if errors.Is(err, store.ErrDuplicateFingerprint) {
		owner := ""
		if existing, ferr := p.store.FindDocumentByFingerprint(ctx, d.fingerprint); ferr == nil {
			owner = existing.DocID
			p.index.Add(dedup.BasisFingerprint, d.fingerprint, owner)
		}
		return p.skipped(d, owner), nil
	}
	if err != nil {
		return nil, stageErr(StageFingerprint, ReasonUnexpected, err)
	}

	d.recorded = true
	p.index.Add(dedup.BasisFingerprint, d.fingerprint, d.docID)
	return nil, nil
}

func (p *Pipeline) skipped(d *document, owner string) *model.Outcome {
	d.log.Info("pipeline: skipped duplicate content",
		zap.String("status", model.OutcomeSkippedDuplicate),
		zap.String("duplicate_of", owner),
	)
	return &model.Outcome{
		File:           d.fileName,
		Status:         model.OutcomeSkippedDuplicate,
		Stage:          StageFingerprint,
		Reason:         ReasonContentFingerprintDuplicate,
		DuplicateOf:    owner,
		DuplicateBasis: string(dedup.BasisFingerprint),
	}
}

func (p *Pipeline) classify(ctx context.Context, d *document) *StageError {
	var dynamic []model.DynamicRule
	if p.rules != nil {
		doc, err := p.rules.Load()
		if err != nil {
			return stageErr(StageClassify, ReasonFarmTaggingFailed, err)
		}
		dynamic = doc.Rules
	}

	res, stage, err := evaluate(rules.NewEngine(dynamic, p.farms), d.text)
	if err != nil {
		return stageErr(StageClassify, ReasonFarmTaggingFailed, err)
	}
	if res.Confidence < p.cfg.Ingest.ManualReviewThreshold || res.TopCandidate == nil {
		res.NeedsManualReview = true
	}
	d.tag, d.tagStage = res, stage

	ev := &model.TaggingEvent{
		DocID:        d.docID,
		Stage:        stage,
		Confidence:   res.Confidence,
		TopCandidate: res.TopCandidate,
		Candidates:   res.TopN(auditCandidates),
		Reason:       res.Reason,
		Features: map[string]any{
			"text_chars":          len(d.text),
			"candidate_count":     len(res.AllCandidates),
			"needs_manual_review": res.NeedsManualReview,
			"review_threshold":    p.cfg.Ingest.ManualReviewThreshold,
		},
		CreatedAt: p.now(),
	}
	if err := p.store.InsertTaggingEvent(ctx, ev); err != nil {
		return stageErr(StageClassify, ReasonUnexpected, err)
	}

	d.log.Debug("pipeline: classified",
		zap.String("stage", stage),
		zap.String("farm_id", res.TopFarmID()),
		zap.Float64("confidence", res.Confidence),
		zap.String("reason", res.Reason),
	)
	return nil
}

func evaluate(engine *rules.Engine, text string) (res *model.TagResult, stage string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("attribution panicked: %v", r)
		}
	}()
	res, stage = engine.Evaluate(text)
	if res == nil {
		return nil, "", eris.New("attribution produced no result")
	}
	return res, stage, nil
}

func (p *Pipeline) parse(ctx context.Context, d *document) *StageError {
	payload, err := p.parser.Parse(ctx, d.text)
	if err != nil {
		se := stageErr(StageParse, ReasonLLMParsingFailed, err)
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			se.Code = perr.Category
		}
		return se
	}

	res := validate.Payload(payload)
	if !res.Valid {
		d.payload = payload
		return &StageError{Stage: StageParse, Reason: ReasonValidationFailed, Code: res.Reason}
	}

	amount := float64(res.TotalCents) / 100
	payload.TotalAmount = &amount
	d.payload, d.cents = payload, res.TotalCents
	return nil
}

func (p *Pipeline) finalize(ctx context.Context, d *document) (model.Outcome, *StageError) {
	tx := p.baseTransaction(d)
	attribute(tx, d.tag)
	farm, _ := p.farms.Lookup(d.tag.TopFarmID())
	vendorKey := resolveVendorKey(farm, model.Str(d.payload.VendorName))
	tx.VendorKey = model.StrPtr(vendorKey)

	fillPayload(tx, d.payload)
	cents := d.cents
	tx.TotalCents = &cents
	parseStatus := model.ParseStatusSuccess
	tx.ParseStatus = &parseStatus

	key, tier := invoicekey.Resolve(vendorKey, d.payload)
	tx.InvoiceKey = model.StrPtr(key)

	tx.Status = model.StatusAuto
	if d.tag.NeedsManualReview {
		tx.Status = model.StatusPendingManual
	}

	if owner, ok := p.index.Lookup(dedup.BasisInvoiceKey, key); ok {
		return p.recordDuplicate(ctx, d, tx, owner)
	}

	// The queue item goes in first so a pending row never exists without
	// one; it is closed again if the row cannot be written.
	pending := tx.Status == model.StatusPendingManual
	if pending {
		item := &model.ReviewQueueItem{
			DocID:                d.docID,
			FileName:             d.fileName,
			ExtractedTextPreview: textPreview(d.text, previewChars),
			Candidates:           d.tag.TopN(auditCandidates),
			Confidence:           d.tag.Confidence,
			Reason:               d.tag.Reason,
			Status:               model.ReviewOpen,
			CreatedAt:            p.now(),
		}
		if err := p.store.EnqueueReview(ctx, item); err != nil {
			return model.Outcome{}, stageErr(StageFinalize, ReasonUnexpected, err)
		}
	}

	err := p.store.InsertTransaction(ctx, tx)
	if err != nil && pending {
		p.withdrawReview(ctx, d)
	}
	if errors.Is(err, store.ErrDuplicateInvoiceKey) {
		return p.recordDuplicate(ctx, d, tx, "")
	}
	if err != nil {
		return model.Outcome{}, stageErr(StageFinalize, ReasonUnexpected, err)
	}
	p.index.Add(dedup.BasisInvoiceKey, key, d.docID)

	if err := p.store.InsertLineItems(ctx, lineItems(d.docID, d.payload.LineItems)); err != nil {
		d.log.Warn("pipeline: store line items failed", zap.Error(err))
	}

	out := model.Outcome{
		File:       d.fileName,
		DocID:      d.docID,
		FarmID:     model.Str(tx.FarmID),
		Confidence: tx.Confidence,
		InvoiceKey: key,
	}
	if pending {
		out.Status = model.OutcomeManualReview
		out.Reason = d.tag.Reason
	} else {
		out.Status = model.OutcomeSuccess
		out.OutputPath = p.writeStructured(d, tx)
	}

	d.log.Info("pipeline: finalized",
		zap.String("status", string(tx.Status)),
		zap.String("farm_id", out.FarmID),
		zap.Float64("confidence", d.tag.Confidence),
		zap.String("invoice_key_tier", string(tier)),
	)
	return out, nil
}

// withdrawReview closes the queue item opened for d when its transaction
// could not be recorded.
func (p *Pipeline) withdrawReview(ctx context.Context, d *document) {
	if err := p.store.ResolveReview(ctx, d.docID); err != nil {
		d.log.Error("pipeline: withdraw review item", zap.Error(err))
	}
}

// recordDuplicate stores a duplicate stub pointing at the document that
// owns the invoice key. owner may be empty, in which case it is looked up.
func (p *Pipeline) recordDuplicate(ctx context.Context, d *document, tx *model.Transaction, owner string) (model.Outcome, *StageError) {
	key := model.Str(tx.InvoiceKey)
	if owner == "" {
		orig, err := p.store.FindByInvoiceKey(ctx, key)
		if err != nil {
			return model.Outcome{}, stageErr(StageFinalize, ReasonUnexpected, eris.Wrapf(err, "look up original for %s", key))
		}
		owner = orig.DocID
		p.index.Add(dedup.BasisInvoiceKey, key, owner)
	}

	reason := string(dedup.BasisInvoiceKey)
	tx.Status = model.StatusDuplicate
	tx.DuplicateDetected = true
	tx.DuplicateReason = &reason
	tx.DuplicateOf = &owner
	tx.NeedsManualReview = false
	if err := p.store.InsertTransaction(ctx, tx); err != nil {
		return model.Outcome{}, stageErr(StageFinalize, ReasonUnexpected, err)
	}

	d.log.Info("pipeline: duplicate invoice",
		zap.String("status", model.OutcomeDuplicate),
		zap.String("invoice_key", key),
		zap.String("duplicate_of", owner),
	)
	return model.Outcome{
		File:           d.fileName,
		DocID:          d.docID,
		Status:         model.OutcomeDuplicate,
		Stage:          StageFinalize,
		Reason:         ReasonInvoiceKeyDuplicate,
		FarmID:         model.Str(tx.FarmID),
		Confidence:     tx.Confidence,
		InvoiceKey:     key,
		DuplicateOf:    owner,
		DuplicateBasis: reason,
	}, nil
}

// fail records a failed transaction for d, releases its fingerprint so a
// later run can retry it, and returns the failed outcome.
func (p *Pipeline) fail(ctx context.Context, d *document, se *StageError) model.Outcome {
	tx := p.baseTransaction(d)
	tx.Status = model.StatusFailed
	failure := se.Reason
	if se.Code != "" {
		failure += ": " + se.Code
	}
	if se.Err != nil {
		failure += ": " + se.Err.Error()
	}
	tx.FailureReason = &failure

	switch se.Reason {
	case ReasonLLMParsingFailed:
		status := model.ParseStatusInvalidJSON
		tx.ParseStatus = &status
		tx.ParseFailureReason = model.StrPtr(se.Code)
	case ReasonValidationFailed:
		status := model.ParseStatusValidationFailed
		tx.ParseStatus = &status
		tx.ParseFailureReason = model.StrPtr(se.Code)
		if d.payload != nil {
			fillPayload(tx, d.payload)
		}
	}

	if err := p.store.InsertTransaction(ctx, tx); err != nil {
		d.log.Error("pipeline: record failed transaction", zap.Error(err))
	}
	if d.recorded {
		if err := p.store.MarkDocumentFailed(ctx, d.docID); err != nil {
			d.log.Error("pipeline: mark document failed", zap.Error(err))
		}
		p.index.Remove(dedup.BasisFingerprint, d.fingerprint)
	}

	fields := []zap.Field{
		zap.String("stage", se.Stage),
		zap.String("status", model.OutcomeFailed),
		zap.String("reason", se.Reason),
		zap.String("code", se.Code),
	}
	if se.Err != nil {
		fields = append(fields, zap.Error(se.Err))
		if p.Verbose {
			fields = append(fields, zap.String("trace", eris.ToString(se.Err, true)))
		}
	}
	d.log.Error("pipeline: document failed", fields...)

	out := model.Outcome{
		File:   d.fileName,
		Status: model.OutcomeFailed,
		Stage:  se.Stage,
		Reason: se.Reason,
		Code:   se.Code,
		FarmID: model.Str(tx.FarmID),
	}
	if d.recorded || d.text != "" {
		out.DocID = d.docID
	}
	out.Confidence = tx.Confidence
	return out
}
