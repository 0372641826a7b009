package providers

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/shanefrancis93/anchor-research/types"
)

// RateLimited wraps a driver so that chat and embedding calls are paced to
// at most requestsPerMinute. A non-positive limit returns the driver
// unchanged. Branches of the same run share the wrapped driver, so the
// limiter paces them collectively.
func RateLimited(d Driver, requestsPerMinute int) Driver {
	if requestsPerMinute <= 0 {
		return d
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	limited := &rateLimitedDriver{inner: d, limiter: limiter}

	if emb, ok := d.(Embedder); ok {
		return &rateLimitedEmbedder{rateLimitedDriver: limited, embedder: emb}
	}
	return limited
}

type rateLimitedDriver struct {
	inner   Driver
	limiter *rate.Limiter
}

func (r *rateLimitedDriver) ID() string    { return r.inner.ID() }
func (r *rateLimitedDriver) Model() string { return r.inner.Model() }

func (r *rateLimitedDriver) Chat(ctx context.Context, req ChatRequest) (types.TurnOutcome, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return types.TurnOutcome{}, err
	}
	return r.inner.Chat(ctx, req)
}

func (r *rateLimitedDriver) CalculateCost(tokensIn, tokensOut int) types.CostInfo {
	return r.inner.CalculateCost(tokensIn, tokensOut)
}

func (r *rateLimitedDriver) Close() error {
	return r.inner.Close()
}

// rateLimitedEmbedder preserves the Embedder capability of the wrapped
// driver. Embedding calls count against the same limiter as chat calls.
type rateLimitedEmbedder struct {
	*rateLimitedDriver
	embedder Embedder
}

func (r *rateLimitedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.embedder.Embed(ctx, text)
}
