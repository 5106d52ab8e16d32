package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type throttled struct {
	next    Client
	limiter *rate.Limiter
}

// Throttle limits calls to next at rps requests per second. Non-positive
// rps returns next unchanged.
func Throttle(next Client, rps float64, burst int) Client {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &throttled{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *throttled) Name() string { return t.next.Name() }

func (t *throttled) Generate(ctx context.Context, req Request) (Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limit: %w", err)
	}
	return t.next.Generate(ctx, req)
}
