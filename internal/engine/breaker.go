package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/visage/internal/storage"
)

// storeBreaker wraps identity store reads in a circuit breaker so a failing
// backend sheds load fast instead of queueing every verification attempt.
type storeBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func newStoreBreaker() *storeBreaker {
	return &storeBreaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "identity-store",
			MaxRequests: 2,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			IsSuccessful: func(err error) bool {
				// Caller-side cancellation is not a store failure and
				// must not trip the breaker.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return true
				}
				return err == nil
			},
		}),
	}
}

// execute runs fn through the breaker, mapping open-circuit rejections to
// storage.ErrUnavailable.
func (b *storeBreaker) execute(fn func() (interface{}, error)) (interface{}, error) {
	out, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", storage.ErrUnavailable)
		}
		return nil, err
	}
	return out, nil
}
