package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// mapErrorToHTTPStatus checks the specific kinds first: an auth failure also
// carries the gateway-unavailable kind.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrReportNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrNoDocumentsIndexed):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrGatewayTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrEmbeddingUnavailable), domain.IsKind(err, domain.ErrGenerationUnavailable):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal error detail behind a fixed message.
func publicMessage(err error, status int) string {
	switch {
	case status == http.StatusInternalServerError:
		return "internal error"
	case domain.IsKind(err, domain.ErrNoDocumentsIndexed):
		return "no documents indexed; run ingestion first"
	case domain.IsKind(err, domain.ErrUnauthorized):
		return "language model provider rejected the configured credentials"
	case domain.IsKind(err, domain.ErrGenerationTimeout):
		return "answer generation timed out"
	default:
		return err.Error()
	}
}
