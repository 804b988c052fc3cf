// Package ocr turns invoice PDFs into plain text.
package ocr

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farm-ledger/internal/config"
	"github.com/sells-group/farm-ledger/internal/resilience"
	"github.com/sells-group/farm-ledger/pkg/anthropic"
)

// Extractor extracts text content from PDF files, reading at most maxPages
// pages.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string, maxPages int) (string, error)
}

// ExtractionError reports a provider failure while extracting text.
type ExtractionError struct {
	Provider string
	Path     string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("ocr: %s extraction failed for %s: %v", e.Provider, e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewExtractor creates an Extractor based on config. client is required for
// the anthropic provider only.
func NewExtractor(cfg *config.Config, client anthropic.Client, guard *resilience.Guard) (Extractor, error) {
	switch cfg.OCR.Provider {
	case "anthropic", "":
		if client == nil {
			return nil, eris.New("ocr: anthropic provider requires a client")
		}
		return NewClaudeVision(client, cfg.Anthropic.VisionModel, cfg.Anthropic.MaxTokens, guard), nil
	case "local", "pdftotext":
		return NewPdfToText(cfg.OCR.PdfToTextPath), nil
	case "mistral":
		if cfg.OCR.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires ocr.mistral_key")
		}
		m := NewMistralOCR(cfg.OCR.MistralKey, cfg.OCR.MistralModel)
		m.guard = guard
		return m, nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.OCR.Provider)
	}
}
