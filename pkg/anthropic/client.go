// Package anthropic wraps the Anthropic Messages API for invoice text
// extraction and structured parsing.
package anthropic

import (
	"context"
	"strings"
)

// Client sends one Messages API request. The vision extractor and the
// structured parser share a single implementation.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is a single-turn request.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64
}

// SystemBlock is a system prompt block. A non-empty CacheTTL ("5m" or "1h")
// marks it as a prompt-cache breakpoint.
type SystemBlock struct {
	Text     string
	CacheTTL string
}

// CachedSystem returns instructions as a single system block cached for
// five minutes, long enough to span a batch of invoices.
func CachedSystem(text string) []SystemBlock {
	return []SystemBlock{{Text: text, CacheTTL: "5m"}}
}

// Message is one conversational turn. A non-nil PDF is sent as a base64
// document block ahead of the text.
type Message struct {
	Role    string
	Content string
	PDF     []byte
}

// UserText builds a text-only user turn.
func UserText(text string) Message {
	return Message{Role: "user", Content: text}
}

// UserPDF builds a user turn carrying an invoice PDF and its instruction.
func UserPDF(pdf []byte, instruction string) Message {
	return Message{Role: "user", Content: instruction, PDF: pdf}
}

// MessageResponse carries the text blocks and usage of a reply.
type MessageResponse struct {
	Model      string
	Blocks     []TextBlock
	StopReason string
	Usage      TokenUsage
}

// TextBlock is one content block of a reply.
type TextBlock struct {
	Type string
	Text string
}

// Text concatenates the text blocks of the response.
func (r *MessageResponse) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range r.Blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// Truncated reports whether the reply stopped at the token limit. A
// truncated transcription is missing the end of the invoice, usually the
// totals.
func (r *MessageResponse) Truncated() bool {
	return r != nil && r.StopReason == "max_tokens"
}
