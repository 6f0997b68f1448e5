package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/medlit/paperbot/internal/observability"
)

const (
	maxAttempts  = 7
	minBackoff   = 2 * time.Second
	maxBackoff   = 60 * time.Second
	defaultRPM   = 15
	limiterBurst = 1
)

// Executor throttles and retries calls to the completion service. Each target
// model gets its own limiter keyed by model name, so unrelated tiers are not
// serialized behind one another. The limiter map is guarded by a mutex; the
// throttling wait itself happens outside the lock.
type Executor struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rpm      map[string]int
	logger   *zerolog.Logger

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor with per-model requests-per-minute budgets.
// Models absent from rpm fall back to a conservative default.
func NewExecutor(rpm map[string]int, logger *zerolog.Logger) *Executor {
	budgets := make(map[string]int, len(rpm))
	for model, limit := range rpm {
		budgets[model] = limit
	}

	return &Executor{
		limiters: make(map[string]*rate.Limiter),
		rpm:      budgets,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Do invokes fn after waiting out the model's inter-call interval, retrying
// transient failures with exponential backoff. After the attempt ceiling it
// returns the last error wrapped in ErrRetriesExhausted.
func (e *Executor) Do(ctx context.Context, model string, fn func(ctx context.Context) error) error {
	limiter := e.limiterFor(model)

	var lastErr error

	backoff := minBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("throttle wait: %w", err)
		}

		start := time.Now()
		lastErr = fn(ctx)
		observability.LLMRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			return lastErr
		}

		observability.LLMRetries.WithLabelValues(model).Inc()

		if attempt == maxAttempts {
			break
		}

		e.logger.Warn().
			Err(lastErr).
			Str("model", model).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("transient completion failure, backing off")

		if err := e.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("backoff interrupted: %w", err)
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

// limiterFor returns the limiter for model, creating it on first use.
func (e *Executor) limiterFor(model string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limiter, ok := e.limiters[model]; ok {
		return limiter
	}

	budget := e.rpm[model]
	if budget <= 0 {
		budget = defaultRPM
	}

	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(budget)), limiterBurst)
	e.limiters[model] = limiter

	return limiter
}

// isRetryable classifies provider errors. Rate-limit rejections, timeouts,
// connection failures, and transient server errors are retried; everything
// else, including malformed requests, surfaces immediately.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
