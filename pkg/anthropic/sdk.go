package anthropic

import (
	"context"
	"encoding/base64"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

type sdkClient struct {
	client sdk.Client
}

// NewClient returns a Client backed by the official SDK. SDK retries are
// off; callers retry through a resilience guard.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &sdkClient{client: sdk.NewClient(opts...)}
}

// StatusCode returns the HTTP status of an API error in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  make([]sdk.MessageParam, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, messageParam(m))
	}
	for _, b := range req.System {
		params.System = append(params.System, systemParam(b))
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return toResponse(msg), nil
}

func messageParam(m Message) sdk.MessageParam {
	var blocks []sdk.ContentBlockParamUnion
	if m.PDF != nil {
		blocks = append(blocks, sdk.NewDocumentBlock(sdk.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(m.PDF),
		}))
	}
	blocks = append(blocks, sdk.NewTextBlock(m.Content))
	if m.Role == "assistant" {
		return sdk.NewAssistantMessage(blocks...)
	}
	return sdk.NewUserMessage(blocks...)
}

func systemParam(b SystemBlock) sdk.TextBlockParam {
	p := sdk.TextBlockParam{Text: b.Text}
	if b.CacheTTL != "" {
		cc := sdk.NewCacheControlEphemeralParam()
		cc.TTL = sdk.CacheControlEphemeralTTL(b.CacheTTL)
		p.CacheControl = cc
	}
	return p
}

func toResponse(msg *sdk.Message) *MessageResponse {
	resp := &MessageResponse{
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Blocks:     make([]TextBlock, 0, len(msg.Content)),
		Usage: TokenUsage{
			InputTokens:      msg.Usage.InputTokens,
			OutputTokens:     msg.Usage.OutputTokens,
			CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:  msg.Usage.CacheReadInputTokens,
		},
	}
	for _, b := range msg.Content {
		resp.Blocks = append(resp.Blocks, TextBlock{Type: b.Type, Text: b.Text})
	}
	return resp
}
