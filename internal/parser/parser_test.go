package parser

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farm-ledger/pkg/anthropic"
	"github.com/sells-group/farm-ledger/pkg/anthropic/mocks"
)

func textResponse(s string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Blocks: []anthropic.TextBlock{{Type: "text", Text: s}}}
}

func userPrompt(req anthropic.MessageRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[0].Content
}

func TestParse_Success(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "parse-model" &&
			len(req.System) == 1 && req.System[0].CacheControl != nil &&
			strings.Contains(userPrompt(req), "OCR_TEXT:\nPG&E statement")
	})).Return(textResponse(`{
		"vendor_name": " PG&E ",
		"invoice_number": "INV-9",
		"invoice_date": "2024-03-01",
		"due_date": "",
		"total_amount": 1234.56,
		"service_address": "123 Main St",
		"account_number": null,
		"line_items": [{"description": "Electric", "amount": 1200.00}, {"description": "", "amount": 1}, "junk"]
	}`), nil).Once()

	p := New(client, "parse-model", 0, nil)
	got, err := p.Parse(context.Background(), "PG&E statement")
	require.NoError(t, err)

	assert.Equal(t, "PG&E", *got.VendorName)
	assert.Equal(t, "INV-9", *got.InvoiceNumber)
	assert.Nil(t, got.DueDate)
	assert.Nil(t, got.AccountNumber)
	require.NotNil(t, got.TotalAmount)
	assert.InDelta(t, 1234.56, *got.TotalAmount, 1e-9)
	assert.Equal(t, json.Number("1234.56"), got.RawTotal)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, "Electric", got.LineItems[0].Description)
}

func TestParse_RepairRetry(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return !strings.Contains(userPrompt(req), "PREVIOUS_RESPONSE_PREVIEW")
	})).Return(textResponse("I could not find the fields, sorry."), nil).Once()
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		prompt := userPrompt(req)
		return strings.HasPrefix(prompt, repairInstruction) &&
			strings.Contains(prompt, "PREVIOUS_RESPONSE_PREVIEW:\nI could not find the fields, sorry.")
	})).Return(textResponse("```json\n{\"vendor_name\": \"Acme\", \"total_amount\": \"(50.00)\"}\n```"), nil).Once()

	p := New(client, "parse-model", 1024, nil)
	got, err := p.Parse(context.Background(), "Acme invoice")
	require.NoError(t, err)
	assert.Equal(t, "Acme", *got.VendorName)
	assert.Equal(t, "(50.00)", got.RawTotal)
	assert.Nil(t, got.TotalAmount)
}

func TestParse_RepairFails(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("[1, 2]"), nil).Twice()

	p := New(client, "parse-model", 1024, nil)
	_, err := p.Parse(context.Background(), "Acme invoice")
	require.Error(t, err)

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, CategoryInvalidJSON, perr.Category)
	assert.Contains(t, err.Error(), "preview='[1, 2]'")
}

func TestParse_EmptyText(t *testing.T) {
	p := New(mocks.NewMockClient(t), "parse-model", 1024, nil)
	_, err := p.Parse(context.Background(), "  \n")

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, CategoryEmpty, perr.Category)
}

func TestParse_APIError(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	p := New(client, "parse-model", 1024, nil)
	_, err := p.Parse(context.Background(), "Acme invoice")

	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, CategoryAPI, perr.Category)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		category string
		vendor   string
	}{
		{name: "plain", raw: `{"vendor_name":"A"}`, vendor: "A"},
		{name: "fenced", raw: "```\n{\"vendor_name\":\"B\"}\n```", vendor: "B"},
		{name: "prose around", raw: "Here you go: {\"vendor_name\":\"C\"} hope it helps", vendor: "C"},
		{name: "empty", raw: "   ", category: CategoryEmpty},
		{name: "no object", raw: "nothing here", category: CategoryNoJSON},
		{name: "array", raw: `["a"]`, category: CategoryInvalidJSON},
		{name: "broken", raw: `{"vendor_name": }`, category: CategoryInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, perr := decodeObject(tt.raw)
			if tt.category != "" {
				require.NotNil(t, perr)
				assert.Equal(t, tt.category, perr.Category)
				return
			}
			require.Nil(t, perr)
			assert.Equal(t, tt.vendor, obj["vendor_name"])
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, `a\nb\rc`, preview("a\nb\rc", 300))

	long := strings.Repeat("x", 310)
	got := preview(long, 300)
	assert.True(t, strings.HasSuffix(got, "...(truncated)"))
	assert.Len(t, got, 300+len("...(truncated)"))
}

func TestToPayloadStringTotal(t *testing.T) {
	p := toPayload(map[string]any{"total_amount": "12.50", "invoice_number": json.Number("1001")})
	require.NotNil(t, p.TotalAmount)
	assert.InDelta(t, 12.5, *p.TotalAmount, 1e-9)
	assert.Equal(t, "12.50", p.RawTotal)
	assert.Equal(t, "1001", *p.InvoiceNumber)
	assert.Empty(t, p.LineItems)
}
