// Package pipeline runs invoice PDFs through extraction, attribution,
// parsing, validation and deduplication, and records each outcome in the
// ledger.
package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/config"
	"github.com/sells-group/farm-ledger/internal/dedup"
	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/ocr"
	"github.com/sells-group/farm-ledger/internal/parser"
	"github.com/sells-group/farm-ledger/internal/rules"
	"github.com/sells-group/farm-ledger/internal/store"
)

const (
	previewChars    = 500
	auditCandidates = 5
)

var (
	safeNameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	pdfMagic   = []byte("%PDF-")
)

// SafeFileName reports whether name is a plain PDF file name that can be
// placed in the invoices directory as-is.
func SafeFileName(name string) bool {
	return safeNameRe.MatchString(name) && name != "." && name != ".." &&
		strings.EqualFold(filepath.Ext(name), ".pdf")
}

// HasPDFHeader reports whether data starts with the PDF magic bytes.
func HasPDFHeader(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}

// Pipeline processes invoices one at a time. It is safe to call
// ProcessFile from several goroutines; the store's unique constraints
// settle any race the in-memory index misses.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	extractor ocr.Extractor
	parser    parser.Parser
	farms     *model.FarmsConfig
	rules     *rules.FileStore
	index     *dedup.Index

	// Verbose logs eris stack traces for stage failures.
	Verbose bool

	newID func() string
	now   func() time.Time
}

// New creates a Pipeline. Call Prepare before the first document.
func New(
	cfg *config.Config,
	st store.Store,
	extractor ocr.Extractor,
	p parser.Parser,
	farms *model.FarmsConfig,
	ruleStore *rules.FileStore,
) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		store:     st,
		extractor: extractor,
		parser:    p,
		farms:     farms,
		rules:     ruleStore,
		index:     dedup.New(),
		newID:     uuid.NewString,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Prepare seeds the farm table and rebuilds the dedup index from storage.
func (p *Pipeline) Prepare(ctx context.Context) error {
	if err := p.store.SeedFarms(ctx, p.farms.Farms); err != nil {
		return eris.Wrap(err, "pipeline: seed farms")
	}
	if err := p.index.Rebuild(ctx, p.store); err != nil {
		return eris.Wrap(err, "pipeline: rebuild dedup index")
	}
	fps, keys := p.index.Len()
	zap.L().Info("pipeline: dedup index ready",
		zap.Int("fingerprints", fps),
		zap.Int("invoice_keys", keys),
	)
	return nil
}

// ListPDFs returns the .pdf files directly under dir in name order. A
// missing directory yields no files.
func ListPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read invoices dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// ProcessBatch processes every PDF in dir. Per-document failures are
// counted, never returned; only a cancelled context stops the batch early.
func (p *Pipeline) ProcessBatch(ctx context.Context, dir string) (*model.Summary, error) {
	files, err := ListPDFs(dir)
	if err != nil {
		return nil, err
	}

	summary := &model.Summary{Outcomes: []model.Outcome{}}
	if len(files) == 0 {
		zap.L().Info("pipeline: no PDF files found", zap.String("dir", dir))
		return summary, nil
	}

	zap.L().Info("pipeline: starting batch", zap.String("dir", dir), zap.Int("files", len(files)))
	start := time.Now()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, eris.Wrap(err, "pipeline: batch cancelled")
		}
		summary.Add(p.ProcessFile(ctx, f))
	}

	zap.L().Info("pipeline: batch complete",
		zap.Int("total", summary.Total),
		zap.Int("auto", summary.Auto),
		zap.Int("manual", summary.Manual),
		zap.Int("duplicate", summary.Duplicate),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return summary, nil
}
