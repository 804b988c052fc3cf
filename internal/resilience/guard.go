package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Guard paces, retries, and circuit-breaks calls to one external provider.
// A nil *Guard calls straight through.
type Guard struct {
	service string
	limiter *rate.Limiter
	breaker *CircuitBreaker
	retry   RetryConfig
}

// NewGuard creates a Guard. requestsPerMinute <= 0 disables pacing.
func NewGuard(service string, requestsPerMinute int, retry RetryConfig, circuit CircuitBreakerConfig) *Guard {
	g := &Guard{service: service, retry: retry}
	if requestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	if circuit.OnStateChange == nil {
		circuit.OnStateChange = func(from, to CircuitState) {
			zap.L().Warn("circuit breaker state change",
				zap.String("service", service),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	if circuit.ShouldTrip == nil {
		circuit.ShouldTrip = IsTransient
	}
	g.breaker = NewCircuitBreaker(circuit)
	return g
}

// Call runs fn under the guard. operation names the call in retry logs.
func Call[T any](ctx context.Context, g *Guard, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	retry := g.retry
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(g.service, operation)
	}
	return DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, eris.Wrapf(err, "resilience: %s rate limit wait", g.service)
			}
		}
		return ExecuteVal(ctx, g.breaker, fn)
	})
}
