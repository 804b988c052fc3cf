package anthropic

import "go.uber.org/zap"

// TokenUsage tracks token consumption for one request.
type TokenUsage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

type price struct {
	input, output float64 // USD per million tokens
}

var prices = map[string]price{
	"claude-haiku-4-5-20251001":  {input: 1.00, output: 5.00},
	"claude-sonnet-4-5-20250929": {input: 3.00, output: 15.00},
}

// Cost estimates the USD cost of the usage for model. Unknown models cost 0.
// Cache writes bill at 1.25x input and cache reads at 0.1x.
func (u TokenUsage) Cost(model string) float64 {
	p, ok := prices[model]
	if !ok {
		return 0
	}
	const mtok = 1e6
	return float64(u.InputTokens)/mtok*p.input +
		float64(u.OutputTokens)/mtok*p.output +
		float64(u.CacheWriteTokens)/mtok*p.input*1.25 +
		float64(u.CacheReadTokens)/mtok*p.input*0.1
}

// Log records usage at debug level for a pipeline stage.
func (u TokenUsage) Log(model, stage string) {
	zap.L().Debug("anthropic usage",
		zap.String("model", model),
		zap.String("stage", stage),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheWriteTokens),
		zap.Int64("cache_read_tokens", u.CacheReadTokens),
		zap.Float64("estimated_cost_usd", u.Cost(model)),
	)
}
