package location

import (
	"context"

	"github.com/kailas-cloud/lessonsearch/internal/repository/region"
)

// RegionReader is the storage contract for region lookups.
type RegionReader interface {
	FindExact(ctx context.Context, phrase string) (region.Region, error)
	FindFuzzy(ctx context.Context, phrase string, floor float64, limit int) ([]region.Region, error)
	FindBorough(ctx context.Context, phrase string) (string, error)
	FindByNames(ctx context.Context, names []string) ([]region.Region, error)
}

// CandidateGenerator is the LLM contract for tier-4 candidate generation.
type CandidateGenerator interface {
	ResolveCandidates(ctx context.Context, phrase string) ([]string, error)
}
