package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrTemporary          = errors.New("temporary failure")
	ErrReportNotFound     = errors.New("report not found")
	ErrNoDocumentsIndexed = errors.New("no documents indexed")

	ErrEmbeddingUnavailable  = errors.New("embedding unavailable")
	ErrGenerationUnavailable = errors.New("generation unavailable")
	ErrGatewayTimeout        = errors.New("gateway timeout")
	// ErrGenerationTimeout also matches ErrGatewayTimeout.
	ErrGenerationTimeout = fmt.Errorf("generation timeout: %w", ErrGatewayTimeout)
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsGatewayFailure reports whether err aborted a query at one of the two
// external gateways.
func IsGatewayFailure(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrGenerationUnavailable) ||
		errors.Is(err, ErrGatewayTimeout)
}
