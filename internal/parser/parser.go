// Package parser turns extracted invoice text into structured fields with
// one LLM call, retrying once with a repair prompt when the model's output
// is not a JSON object.
package parser

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/resilience"
	"github.com/sells-group/farm-ledger/pkg/anthropic"
)

const systemPrompt = `You are a financial document extraction engine.

You are given OCR text from a billing document. It may be a utility bill, contractor invoice,
vendor portal export, email-forwarded invoice, accounting export, or bank feed attachment.

Extract the following fields and return STRICT JSON only with this exact schema:
{
  "vendor_name": string | null,
  "invoice_number": string | null,
  "invoice_date": string | null,
  "due_date": string | null,
  "total_amount": number | null,
  "service_address": string | null,
  "account_number": string | null,
  "line_items": [{"description": string, "amount": number | null}]
}

Field rules:
- Do not invent values. Use null when truly unavailable.
- line_items lists printed charge lines in order; use an empty array when there are none.
- total_amount must be numeric or null.
- Prefer the payable amount as total_amount:
  1) BALANCE DUE / AMOUNT DUE
  2) TOTAL DUE / CURRENT CHARGES
  3) TOTAL
- If both TOTAL and BALANCE DUE are present and BALANCE DUE is clearly payable now, use BALANCE DUE.
- Recognize label variants such as INVOICE #, INVOICE NO, ACCOUNT NO, ACCT, STATEMENT DATE.
- Return raw JSON only. No markdown, no comments, no extra keys.`

const repairInstruction = "Your previous response was not valid JSON. " +
	"Return ONLY one valid JSON object matching the required schema. " +
	"No markdown, no prose, no code fences."

// Parser extracts structured invoice fields from text.
type Parser interface {
	Parse(ctx context.Context, text string) (*model.InvoicePayload, error)
}

// ParseError is returned when the model output cannot be turned into a
// payload, or the model call itself fails.
type ParseError struct {
	Category string
	Detail   string
	Preview  string
	Err      error
}

// Parse error categories.
const (
	CategoryEmpty       = "empty"
	CategoryInvalidJSON = "invalid-json"
	CategoryNoJSON      = "no-json"
	CategoryAPI         = "api"
)

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parser: [%s] %s: %v", e.Category, e.Detail, e.Err)
	}
	return fmt.Sprintf("parser: [%s] %s preview='%s'", e.Category, e.Detail, e.Preview)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LLMParser parses invoice text with a Claude model.
type LLMParser struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	guard     *resilience.Guard
}

// New creates an LLMParser. guard may be nil.
func New(client anthropic.Client, model string, maxTokens int64, guard *resilience.Guard) *LLMParser {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &LLMParser{client: client, model: model, maxTokens: maxTokens, guard: guard}
}

// Parse runs one structured parse request and, if its output is not a JSON
// object, one repair request quoting the rejected output.
func (p *LLMParser) Parse(ctx context.Context, text string) (*model.InvoicePayload, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Category: CategoryEmpty, Detail: "OCR text is empty; cannot parse structured invoice fields"}
	}

	raw, err := p.request(ctx, "Extract structured invoice summary data from this OCR text.\n\nOCR_TEXT:\n"+text)
	if err != nil {
		return nil, err
	}

	obj, perr := decodeObject(raw)
	if perr != nil {
		zap.L().Debug("structured parse returned invalid JSON, retrying with repair prompt",
			zap.String("category", perr.Category),
			zap.String("preview", perr.Preview),
		)
		repair := fmt.Sprintf("%s\n\nOCR_TEXT:\n%s\n\nPREVIOUS_RESPONSE_PREVIEW:\n%s",
			repairInstruction, text, preview(raw, previewLimit))
		raw, err = p.request(ctx, repair)
		if err != nil {
			return nil, err
		}
		obj, perr = decodeObject(raw)
		if perr != nil {
			return nil, perr
		}
	}

	return toPayload(obj), nil
}

func (p *LLMParser) request(ctx context.Context, prompt string) (string, error) {
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      anthropic.CachedSystem(systemPrompt),
		Temperature: &temp,
		Messages:    []anthropic.Message{anthropic.UserText(prompt)},
	}

	resp, err := resilience.Call(ctx, p.guard, "structured_parse", func(ctx context.Context) (*anthropic.MessageResponse, error) {
		resp, err := p.client.CreateMessage(ctx, req)
		return resp, resilience.ClassifyStatus(err, anthropic.StatusCode(err))
	})
	if err != nil {
		return "", &ParseError{Category: CategoryAPI, Detail: "structured parse request failed", Err: err}
	}
	resp.Usage.Log(p.model, "structured_parse")
	return strings.TrimSpace(resp.Text()), nil
}
