package retrieve

import (
	"context"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

// CatalogReader is the storage contract for candidate retrieval.
type CatalogReader interface {
	VectorSearch(ctx context.Context, embedding []float32, limit int) ([]domain.ServiceCandidate, error)
	TextSearch(ctx context.Context, normalized, original string, limit int) ([]domain.ServiceCandidate, error)
	HasEmbeddings(ctx context.Context) (bool, error)
}

// Embedder vectorizes query text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
