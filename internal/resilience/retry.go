// Package resilience adapts the teacher's retry/circuit-breaker/rate-limiter
// primitives to the one place the dataflow core still allows retrying an
// operation: outbound distributed-transport sends. The core itself never
// retries step execution (spec: "No automatic retries").
package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
)

// Retry executes fn with exponential backoff and full jitter, up to
// attempts times. It is meant for transient wire-send failures, not for
// step or get failures, which the dataflow core itself never retries.
func Retry[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}
	cur := delay
	var lastErr error
	meter := otel.Meter("dataflow")
	attemptCounter, _ := meter.Int64Counter("dataflow_dist_send_attempts_total")
	successCounter, _ := meter.Int64Counter("dataflow_dist_send_success_total")
	failCounter, _ := meter.Int64Counter("dataflow_dist_send_fail_total")
	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if cur > 60*time.Second {
			cur = 60 * time.Second
		}
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	failCounter.Add(ctx, 1)
	return zero, lastErr
}
