package cli

import (
	"context"
	"errors"

	"github.com/kirillkom/autoreport-rag/internal/core/domain"
)

// UserMessage turns a pipeline error into something a person at the
// terminal can act on.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsKind(err, domain.ErrNoDocumentsIndexed):
		return "No reports are indexed yet. Run 'autorag ingest' first."
	case domain.IsKind(err, domain.ErrUnauthorized):
		return "The language model provider rejected the API key. Check OPENAI_API_KEY."
	case domain.IsKind(err, domain.ErrGenerationTimeout):
		return "Generating the answer took too long. Try again or ask a narrower question."
	case domain.IsKind(err, domain.ErrGatewayTimeout):
		return "The language model service timed out. Try again in a moment."
	case domain.IsKind(err, domain.ErrEmbeddingUnavailable):
		return "The embedding service is unreachable. Check that it is running and try again."
	case domain.IsKind(err, domain.ErrGenerationUnavailable):
		return "The language model is unavailable. Check that it is running and try again."
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "Please enter a question about the indexed annual reports."
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	default:
		return "Unexpected error: " + err.Error()
	}
}
