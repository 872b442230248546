// Package location resolves a location phrase to a region through ordered
// tiers: exact match, fuzzy match, borough fallback, then LLM-assisted
// candidate generation when the orchestrator still has budget.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

// Resolver resolves location phrases against the region table.
type Resolver struct {
	regions         RegionReader
	llm             CandidateGenerator
	similarityFloor float64
}

// New creates a location resolver.
func New(regions RegionReader, llm CandidateGenerator, similarityFloor float64) *Resolver {
	return &Resolver{regions: regions, llm: llm, similarityFloor: similarityFloor}
}

const fuzzyCandidateLimit = 5

// ResolveDeterministic runs tiers 1-3. near_me phrases skip resolution
// entirely: it is meaningless without a phrase, the caller supplies
// coordinates instead.
func (r *Resolver) ResolveDeterministic(
	ctx context.Context, phrase string, locType domain.LocationType,
) (domain.ResolvedLocation, error) {
	if locType == domain.LocationNearMe || strings.TrimSpace(phrase) == "" {
		return domain.LocationNotFound(), nil
	}
	phrase = strings.ToLower(strings.TrimSpace(phrase))

	// Tier 1: direct name or alias.
	reg, err := r.regions.FindExact(ctx, phrase)
	if err == nil {
		return domain.ResolvedLocation{
			RegionID:   &reg.ID,
			RegionName: reg.Name,
			Borough:    reg.Borough,
			Resolved:   true,
			Tier:       domain.TierExact,
		}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.LocationNotFound(), fmt.Errorf("tier1 exact: %w", err)
	}

	// Tier 2: trigram similarity above the floor, best match wins.
	fuzzy, err := r.regions.FindFuzzy(ctx, phrase, r.similarityFloor, fuzzyCandidateLimit)
	if err != nil {
		return domain.LocationNotFound(), fmt.Errorf("tier2 fuzzy: %w", err)
	}
	if len(fuzzy) > 0 {
		best := fuzzy[0]
		return domain.ResolvedLocation{
			RegionID:   &best.ID,
			RegionName: best.Name,
			Borough:    best.Borough,
			Resolved:   true,
			Tier:       domain.TierFuzzy,
		}, nil
	}

	// Tier 3: borough-level fallback without a specific region.
	borough, err := r.regions.FindBorough(ctx, phrase)
	if err == nil {
		return domain.ResolvedLocation{
			Borough:  borough,
			Resolved: true,
			Tier:     domain.TierParent,
		}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.LocationNotFound(), fmt.Errorf("tier3 borough: %w", err)
	}

	return domain.LocationNotFound(), nil
}

// ResolveLLM runs tier 4: LLM candidate generation validated against the
// region table. One surviving candidate resolves; several ask for
// clarification; none is terminal "not found".
func (r *Resolver) ResolveLLM(ctx context.Context, phrase string) (domain.ResolvedLocation, error) {
	names, err := r.llm.ResolveCandidates(ctx, phrase)
	if err != nil {
		return domain.LocationNotFound(), fmt.Errorf("tier4 candidates: %w", err)
	}
	if len(names) == 0 {
		return domain.LocationNotFound(), nil
	}

	lowered := make([]string, len(names))
	for i, n := range names {
		lowered[i] = strings.ToLower(strings.TrimSpace(n))
	}

	regions, err := r.regions.FindByNames(ctx, lowered)
	if err != nil {
		return domain.LocationNotFound(), fmt.Errorf("tier4 validate: %w", err)
	}

	switch len(regions) {
	case 0:
		return domain.LocationNotFound(), nil
	case 1:
		reg := regions[0]
		return domain.ResolvedLocation{
			RegionID:   &reg.ID,
			RegionName: reg.Name,
			Borough:    reg.Borough,
			Resolved:   true,
			Tier:       domain.TierLLM,
		}, nil
	default:
		candidates := make([]domain.RegionCandidate, len(regions))
		for i, reg := range regions {
			candidates[i] = domain.RegionCandidate{ID: reg.ID, Name: reg.Name, Borough: reg.Borough}
		}
		return domain.ResolvedLocation{
			Tier:                  domain.TierLLM,
			RequiresClarification: true,
			Candidates:            candidates,
		}, nil
	}
}
