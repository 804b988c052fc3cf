package ocr

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/resilience"
	"github.com/sells-group/farm-ledger/pkg/anthropic"
)

const visionSystemPrompt = `You are an OCR engine. Extract all visible text from the invoice exactly as written.

Critical requirements:
- Preserve all numbers exactly (account numbers, invoice numbers, amounts)
- Preserve addresses and identifiers exactly
- Maintain reasonable formatting where helpful
- If text is unclear or unreadable, omit it rather than guess
- Output plain text only - no markdown formatting, no explanations, no JSON`

const visionUserPrompt = "Extract all visible text from this invoice as plain text."

// ClaudeVision extracts text by sending the PDF to Claude as a document block.
type ClaudeVision struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	guard     *resilience.Guard
}

// NewClaudeVision creates a ClaudeVision extractor. guard may be nil.
func NewClaudeVision(client anthropic.Client, model string, maxTokens int64, guard *resilience.Guard) *ClaudeVision {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &ClaudeVision{client: client, model: model, maxTokens: maxTokens, guard: guard}
}

// ExtractText sends the first maxPages pages of the PDF to the vision model.
func (v *ClaudeVision) ExtractText(ctx context.Context, pdfPath string, maxPages int) (string, error) {
	data, pages, err := LoadPages(pdfPath, maxPages)
	if err != nil {
		return "", &ExtractionError{Provider: "anthropic", Path: pdfPath, Err: err}
	}

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       v.model,
		MaxTokens:   v.maxTokens,
		System:      []anthropic.SystemBlock{{Text: visionSystemPrompt}},
		Temperature: &temp,
		Messages:    []anthropic.Message{anthropic.UserPDF(data, visionUserPrompt)},
	}

	resp, err := resilience.Call(ctx, v.guard, "vision", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := v.client.CreateMessage(ctx, req)
		return resp, resilience.ClassifyStatus(err, anthropic.StatusCode(err))
	})
	if err != nil {
		return "", &ExtractionError{Provider: "anthropic", Path: pdfPath, Err: err}
	}

	resp.Usage.Log(v.model, "vision")
	if resp.Truncated() {
		zap.L().Warn("vision transcription hit the token limit",
			zap.String("file", pdfPath),
			zap.Int64("max_tokens", v.maxTokens),
		)
	}
	zap.L().Debug("vision extraction complete",
		zap.String("file", pdfPath),
		zap.Int("pages", pages),
		zap.String("stop_reason", resp.StopReason),
	)
	return Sanitize(resp.Text()), nil
}
