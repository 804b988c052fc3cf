// Package review resolves documents parked for manual farm assignment and
// feeds each correction back into the dynamic rule set.
package review

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/reinforce"
	"github.com/sells-group/farm-ledger/internal/rules"
	"github.com/sells-group/farm-ledger/internal/store"
)

// Decision sources recorded on review decisions.
const (
	SourceManualReview = "manual_review"
	SourceAPI          = "api"
)

// billToChars is how much of the document head is tokenized for bill-to
// rules.
const billToChars = 400

var (
	// ErrUnknownFarm is returned when the selected farm is not configured.
	ErrUnknownFarm = eris.New("review: unknown farm")
	// ErrMissingFingerprint is returned when the transaction cannot be tied
	// back to its document content.
	ErrMissingFingerprint = eris.New("review: transaction has no content fingerprint")
)

// Service applies manual farm assignments.
type Service struct {
	store store.Store
	farms *model.FarmsConfig
	rules *rules.FileStore
	synth *reinforce.Synthesizer

	now func() time.Time
}

// NewService creates a review Service.
func NewService(st store.Store, farms *model.FarmsConfig, ruleStore *rules.FileStore) *Service {
	return &Service{
		store: st,
		farms: farms,
		rules: ruleStore,
		synth: reinforce.NewSynthesizer(farms),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Open returns the unresolved review queue in arrival order.
func (s *Service) Open(ctx context.Context) ([]model.ReviewQueueItem, error) {
	items, err := s.store.ListReviewQueue(ctx, model.ReviewOpen)
	if err != nil {
		return nil, eris.Wrap(err, "review: list queue")
	}
	return items, nil
}

// Request describes one manual assignment. Exactly one of TxID or DocID
// identifies the transaction.
type Request struct {
	TxID   int64
	DocID  string
	FarmID string

	// Reinforce proposes vendor+account rules from the correction.
	Reinforce bool
	// BillTo appends a bill-to-contains-all rule built from the head of
	// the document text.
	BillTo bool
	// Accept filters proposals before they are written. Nil accepts all.
	Accept func(model.DynamicRule) bool

	DryRun bool
	Source string
	Notes  string
}

// Result reports what a resolution did, or would do in a dry run.
type Result struct {
	Transaction  *model.Transaction   `json:"transaction"`
	Decision     model.ReviewDecision `json:"decision"`
	Proposals    []model.DynamicRule  `json:"proposals"`
	AddedRules   []string             `json:"added_rules"`
	KnownRules   []string             `json:"known_rules"`
	BillToTokens []string             `json:"bill_to_tokens,omitempty"`
	BillToAdded  bool                 `json:"bill_to_added"`
	DryRun       bool                 `json:"dry_run"`
}

// Resolve assigns req.FarmID to the transaction, records the decision,
// closes its queue item and writes any accepted rules.
func (s *Service) Resolve(ctx context.Context, req Request) (*Result, error) {
	farm, ok := s.farms.Lookup(req.FarmID)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownFarm, "review: farm %q", req.FarmID)
	}

	tx, err := s.transaction(ctx, req)
	if err != nil {
		return nil, err
	}
	if model.Str(tx.ContentFingerprint) == "" {
		return nil, eris.Wrapf(ErrMissingFingerprint, "review: transaction %d", tx.ID)
	}

	source := req.Source
	if source == "" {
		source = SourceManualReview
	}
	res := &Result{
		Transaction: tx,
		DryRun:      req.DryRun,
		Decision: model.ReviewDecision{
			DocID:              tx.DocID,
			ContentFingerprint: model.Str(tx.ContentFingerprint),
			InvoiceKey:         tx.InvoiceKey,
			SelectedFarmID:     farm.ID,
			SelectedFarmName:   farm.DisplayName(),
			DecisionSource:     source,
			Notes:              model.StrPtr(strings.TrimSpace(req.Notes)),
			CreatedAt:          s.now(),
		},
	}

	text := s.documentText(ctx, tx.DocID)
	var existing []model.DynamicRule
	if req.Reinforce || req.BillTo {
		doc, err := s.rules.Load()
		if err != nil {
			return nil, eris.Wrap(err, "review: load rules")
		}
		existing = doc.Rules
	}

	if req.Reinforce {
		history, err := s.store.AttributionHistory(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "review: attribution history")
		}
		for _, p := range s.synth.Propose(reinforce.Correction{
			DocID:       tx.DocID,
			FarmID:      farm.ID,
			FarmName:    farm.DisplayName(),
			Transaction: *tx,
			OCRText:     text,
		}, existing, history) {
			if req.Accept == nil || req.Accept(p) {
				res.Proposals = append(res.Proposals, p)
			}
		}
	}
	if req.BillTo {
		res.BillToTokens = reinforce.BillToTokens(text, billToChars)
	}

	log := zap.L().With(zap.String("doc_id", tx.DocID), zap.Int64("tx_id", tx.ID), zap.String("farm_id", farm.ID))

	if req.DryRun {
		known := make(map[string]bool, len(existing))
		for _, r := range existing {
			if r.RuleID != "" {
				known[r.RuleID] = true
			}
		}
		for _, p := range res.Proposals {
			if known[p.RuleID] {
				res.KnownRules = append(res.KnownRules, p.RuleID)
			} else {
				res.AddedRules = append(res.AddedRules, p.RuleID)
			}
		}
		log.Info("review: dry run", zap.Int("proposals", len(res.Proposals)))
		return res, nil
	}

	if err := s.store.AssignFarm(ctx, tx.ID, farm.ID, farm.DisplayName(), nil); err != nil {
		return nil, eris.Wrapf(err, "review: assign farm to transaction %d", tx.ID)
	}
	if err := s.store.InsertDecision(ctx, &res.Decision); err != nil {
		return nil, eris.Wrap(err, "review: record decision")
	}
	if err := s.store.ResolveReview(ctx, tx.DocID); err != nil {
		return nil, eris.Wrap(err, "review: close queue item")
	}

	for _, p := range res.Proposals {
		created, id, err := s.rules.Upsert(p)
		if err != nil {
			return nil, eris.Wrap(err, "review: write rule")
		}
		if created {
			res.AddedRules = append(res.AddedRules, id)
			log.Info("review: added dynamic rule", zap.String("rule_id", id), zap.String("rule", reinforce.Describe(p)))
		} else {
			res.KnownRules = append(res.KnownRules, id)
		}
	}
	if len(res.BillToTokens) > 0 {
		added, err := s.rules.AppendBillToContainsAll(farm.ID, res.BillToTokens)
		if err != nil {
			return nil, eris.Wrap(err, "review: write bill-to rule")
		}
		res.BillToAdded = added
	}

	if updated, err := s.store.GetTransaction(ctx, tx.ID); err == nil {
		res.Transaction = updated
	}
	log.Info("review: resolved",
		zap.Int("rules_added", len(res.AddedRules)),
		zap.Bool("bill_to_added", res.BillToAdded),
	)
	return res, nil
}

func (s *Service) transaction(ctx context.Context, req Request) (*model.Transaction, error) {
	var (
		tx  *model.Transaction
		err error
	)
	switch {
	case req.TxID != 0:
		tx, err = s.store.GetTransaction(ctx, req.TxID)
	case req.DocID != "":
		tx, err = s.store.GetTransactionByDocID(ctx, req.DocID)
	default:
		return nil, eris.New("review: transaction id or doc id is required")
	}
	if err != nil {
		return nil, eris.Wrap(err, "review: load transaction")
	}
	return tx, nil
}

// documentText returns the stored extraction text, or "" when the
// document row is gone.
func (s *Service) documentText(ctx context.Context, docID string) string {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zap.L().Warn("review: load document text", zap.String("doc_id", docID), zap.Error(err))
		}
		return ""
	}
	return doc.RawText
}
