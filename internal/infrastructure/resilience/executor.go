package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrorClassification tells the executor what to do with a failed attempt.
// RecordFailure counts the error against the operation's breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor runs gateway calls under a per-operation guard: an optional rate
// limiter, a bounded retry loop and an optional circuit breaker around both.
type Executor struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	guards map[string]*guard
}

type guard struct {
	breaker *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter
}

func NewExecutor(cfg Config) *Executor {
	return NewExecutorWithLogger(cfg, nil)
}

func NewExecutorWithLogger(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cfg:    cfg.normalize(),
		logger: logger,
		guards: make(map[string]*guard),
	}
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return errors.New("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = recordEverything
	}

	g := e.guardFor(op, classifier)
	run := func() error { return e.retry(ctx, op, g.limiter, fn, classifier) }
	if g.breaker == nil {
		return run()
	}
	_, err := g.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, run()
	})
	return err
}

// guardFor returns the guard for op, creating it on first use. The breaker
// keeps the classifier it was created with.
func (e *Executor) guardFor(op string, classifier ErrorClassifier) *guard {
	e.mu.Lock()
	defer e.mu.Unlock()

	if g, ok := e.guards[op]; ok {
		return g
	}
	g := &guard{}
	if e.cfg.RateLimitPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(e.cfg.RateLimitPerSecond), e.cfg.RateLimitBurst)
	}
	if e.cfg.BreakerEnabled {
		g.breaker = e.newBreaker(op, classifier)
	}
	e.guards[op] = g
	return g
}

func (e *Executor) retry(ctx context.Context, op string, limiter *rate.Limiter, fn func(context.Context) error, classifier ErrorClassifier) error {
	delays := newBackoff(e.cfg)
	attempts := e.cfg.RetryMaxAttempts

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("resilience: rate limit wait for %s: %w", op, err)
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts || !classifier(err).Retryable {
			return err
		}

		wait := delays.next()
		e.logger.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if !sleep(ctx, wait) {
			return err
		}
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func recordEverything(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}
