package textgen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/banking/grant-risk-service/internal/pkg/logger"
)

// Breaker wraps a Generator with a circuit breaker. While open, calls fail
// immediately so callers serve fallbacks instead of waiting out the timeout.
type Breaker struct {
	next Generator
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker trips after consecutiveFailures failed calls and stays open for
// openFor before letting a trial call through.
func NewBreaker(next Generator, consecutiveFailures uint32, openFor time.Duration, log *logger.Logger) *Breaker {
	if consecutiveFailures == 0 {
		consecutiveFailures = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	log = log.Named("textgen_breaker")

	settings := gobreaker.Settings{
		Name:        "textgen",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// Cancelled requests say nothing about the service's health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				logger.StringField("from", from.String()),
				logger.StringField("to", to.String()),
			)
		},
	}

	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// GenerateStructured implements Generator
func (b *Breaker) GenerateStructured(ctx context.Context, prompt string, out any) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.GenerateStructured(ctx, prompt, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// State returns the breaker state name
func (b *Breaker) State() string {
	return b.cb.State().String()
}
