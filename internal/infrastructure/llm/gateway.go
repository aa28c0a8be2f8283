// Package llm holds what the embedding and generation clients share: status
// errors, retry classification, per-attempt deadlines and the mapping of
// transport failures onto the domain error kinds.
package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/resilience"
)

const DefaultTimeout = 60 * time.Second

type HTTPStatusError struct {
	Provider   string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "gateway status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("%s %s status: %s", e.Provider, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Provider, e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// NewHTTPStatusError drains at most 2 KiB of the body into the error.
func NewHTTPStatusError(provider, operation string, resp *http.Response) *HTTPStatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Provider:   provider,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

func IsAuthFailure(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden
	}
	return false
}

func Classify(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if IsAuthFailure(err) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if isRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     !netErr.Timeout(),
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func isRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// Caller runs one gateway round trip with a per-attempt deadline, optionally
// through a resilience executor.
type Caller struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func (c Caller) Do(ctx context.Context, operation string, fn func(context.Context) error) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempt := func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(attemptCtx)
	}
	if c.Executor == nil {
		return attempt(ctx)
	}
	return c.Executor.Execute(ctx, operation, attempt, Classify)
}

// EmbedFailure maps an embedding round-trip error onto the domain kinds.
func EmbedFailure(operation string, err error) error {
	return mapFailure(operation, err, domain.ErrEmbeddingUnavailable, domain.ErrGatewayTimeout)
}

// GenerateFailure maps a generation round-trip error onto the domain kinds.
func GenerateFailure(operation string, err error) error {
	return mapFailure(operation, err, domain.ErrGenerationUnavailable, domain.ErrGenerationTimeout)
}

func mapFailure(operation string, err, unavailable, timeout error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTimeout(err) {
		return domain.WrapError(timeout, operation, err)
	}
	if IsAuthFailure(err) {
		return fmt.Errorf("%s: %w: %w: %w", operation, unavailable, domain.ErrUnauthorized, err)
	}
	return domain.WrapError(unavailable, operation, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
