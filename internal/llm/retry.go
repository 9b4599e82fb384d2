package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// Retry defaults for model calls.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 10 * time.Second
	DefaultTimeout      = 60 * time.Second
	backoffMultiplier   = 2
)

// RetryPolicy bounds how model calls are retried.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Timeout bounds each attempt, not the whole call.
	Timeout time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = backoffMultiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxRetries)), ctx)
}

// withRetry runs fn until it succeeds, fails permanently, or the policy runs
// out of attempts. Each attempt gets its own timeout.
func withRetry[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, c.retry.Timeout)
		defer cancel()

		v, err := fn(actx)
		if err == nil {
			return v, nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%s: operation timed out after %s: %w", op, c.retry.Timeout, err)
		}
		if isNonRetryable(err) {
			c.log.Debug("non-retryable error", "op", op, "error", err)
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, next time.Duration) {
		c.log.Debug("retrying model call", "op", op, "attempt", attempt, "max", c.retry.MaxRetries, "delay", next, "error", err)
	}
	return backoff.RetryNotifyWithData(operation, c.retry.backOff(ctx), notify)
}

// isNonRetryable reports failures that repeat identically on retry.
func isNonRetryable(err error) bool {
	if errors.Is(err, ErrNoAPIKey) || errors.Is(err, ErrFileTooLarge) ||
		errors.Is(err, ErrUnsupportedFile) || errors.Is(err, ErrRefusal) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	switch statusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
