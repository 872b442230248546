package filter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

// Config holds the thresholds the filter stages consult.
type Config struct {
	// SoftDistanceKM bounds the near-me distance filter. Instructors with
	// no known location are kept.
	SoftDistanceKM float64
}

// Service applies post-retrieval constraint filters to ranked candidates.
// Filters are hard: a candidate that violates a present constraint is
// dropped regardless of its hybrid score. Constraints that were never
// expressed in the query leave the set untouched.
type Service struct {
	coverage CoverageReader
	avail    AvailabilityReader
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(coverage CoverageReader, avail AvailabilityReader, cfg Config, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		coverage: coverage,
		avail:    avail,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Filter runs every applicable stage in order and reports which filters
// fired. A stage whose backing query fails is skipped, its candidates
// pass through untouched and the failure surfaces as a degradation
// reason rather than an error: filtering must never kill the pipeline.
func (s *Service) Filter(
	ctx context.Context,
	cands []domain.ServiceCandidate,
	pq domain.ParsedQuery,
	loc domain.ResolvedLocation,
	coords *domain.Coordinates,
) (domain.FilteredResult, []domain.DegradationReason) {
	out := domain.FilteredResult{Candidates: cands}
	var reasons []domain.DegradationReason

	if pq.MaxPrice != nil {
		out.Candidates = filterPrice(out.Candidates, *pq.MaxPrice)
		out.FiltersApplied = append(out.FiltersApplied, "max_price")
	}

	if pq.LessonType == domain.LessonOnline || pq.LessonType == domain.LessonInPerson {
		out.Candidates = filterLessonType(out.Candidates, pq.LessonType)
		out.FiltersApplied = append(out.FiltersApplied, "lesson_type")
	}

	if len(out.Candidates) > 0 {
		switch {
		case loc.Resolved || loc.RequiresClarification:
			kept, err := s.filterRegion(ctx, out.Candidates, loc)
			if err != nil {
				s.log.Warn("region filter failed, passing candidates through", zap.Error(err))
				reasons = append(reasons, domain.DegradationLocationFilterFailed)
			} else {
				out.Candidates = kept
				out.FiltersApplied = append(out.FiltersApplied, "location")
			}
		// Distance applies to near-me queries and to location phrases that
		// resolved to nothing: with coordinates in hand a soft radius beats
		// no location constraint at all.
		case coords != nil && (pq.LocationType == domain.LocationNearMe ||
			(pq.LocationType == domain.LocationNeighborhood && loc.NotFound())):
			kept, err := s.filterDistance(ctx, out.Candidates, *coords)
			if err != nil {
				s.log.Warn("distance filter failed, passing candidates through", zap.Error(err))
				reasons = append(reasons, domain.DegradationLocationFilterFailed)
			} else {
				out.Candidates = kept
				out.FiltersApplied = append(out.FiltersApplied, "distance")
			}
		}
	}

	if len(out.Candidates) > 0 && (pq.HasDateConstraint() || pq.HasTimeConstraint()) {
		kept, err := s.filterAvailability(ctx, out.Candidates, pq)
		if err != nil {
			s.log.Warn("availability filter failed, passing candidates through", zap.Error(err))
			reasons = append(reasons, domain.DegradationAvailabilityFailed)
		} else {
			out.Candidates = kept
			out.FiltersApplied = append(out.FiltersApplied, "availability")
		}
	}

	return out, reasons
}

func filterPrice(cands []domain.ServiceCandidate, maxPrice float64) []domain.ServiceCandidate {
	kept := cands[:0:0]
	for _, c := range cands {
		if c.PricePerHour <= maxPrice {
			kept = append(kept, c)
		}
	}
	return kept
}

func filterLessonType(cands []domain.ServiceCandidate, want domain.LessonType) []domain.ServiceCandidate {
	kept := cands[:0:0]
	for _, c := range cands {
		if c.LessonType == want || c.LessonType == domain.LessonAny || c.LessonType == "" {
			kept = append(kept, c)
		}
	}
	return kept
}

// filterRegion keeps candidates whose instructor covers the resolved
// region. A borough-level resolution widens to every region nested in
// the borough; an ambiguous resolution accepts coverage of any of the
// offered candidate regions.
func (s *Service) filterRegion(ctx context.Context, cands []domain.ServiceCandidate, loc domain.ResolvedLocation) ([]domain.ServiceCandidate, error) {
	var regionIDs []int64
	switch {
	case loc.RequiresClarification:
		for _, rc := range loc.Candidates {
			regionIDs = append(regionIDs, rc.ID)
		}
	case loc.RegionID != nil:
		regionIDs = []int64{*loc.RegionID}
	case loc.Borough != "":
		ids, err := s.coverage.RegionIDsInBorough(ctx, loc.Borough)
		if err != nil {
			return nil, err
		}
		regionIDs = ids
	}
	if len(regionIDs) == 0 {
		return cands, nil
	}

	covered, err := s.coverage.CoveringInstructors(ctx, instructorIDs(cands), regionIDs)
	if err != nil {
		return nil, err
	}
	kept := cands[:0:0]
	for _, c := range cands {
		if covered[c.InstructorID] {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// filterDistance drops candidates known to be farther than the soft
// threshold. Instructors absent from the distance map are kept: missing
// location data must not empty the result set.
func (s *Service) filterDistance(ctx context.Context, cands []domain.ServiceCandidate, coords domain.Coordinates) ([]domain.ServiceCandidate, error) {
	distances, err := s.coverage.InstructorDistancesKM(ctx, instructorIDs(cands), coords)
	if err != nil {
		return nil, err
	}
	kept := cands[:0:0]
	for _, c := range cands {
		if d, ok := distances[c.InstructorID]; ok && d > s.cfg.SoftDistanceKM {
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}

func (s *Service) filterAvailability(ctx context.Context, cands []domain.ServiceCandidate, pq domain.ParsedQuery) ([]domain.ServiceCandidate, error) {
	from, to := s.availabilityWindow(pq)
	afterHour, beforeHour := hourBounds(pq)

	available, err := s.avail.AvailableInstructors(ctx, instructorIDs(cands), from, to, afterHour, beforeHour)
	if err != nil {
		return nil, err
	}
	kept := cands[:0:0]
	for _, c := range cands {
		if available[c.InstructorID] {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// availabilityWindow maps the parsed date constraint to a concrete
// half-open [from, to) slot window. A time-only constraint scans the
// upcoming week.
func (s *Service) availabilityWindow(pq domain.ParsedQuery) (time.Time, time.Time) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case pq.Date != nil:
		d := *pq.Date
		from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, now.Location())
		return from, from.AddDate(0, 0, 1)
	case pq.DateTag == domain.DateTagWeekend:
		// Saturday through Sunday; an ongoing weekend counts.
		daysUntilSat := (int(time.Saturday) - int(today.Weekday()) + 7) % 7
		if today.Weekday() == time.Sunday {
			daysUntilSat = -1
		}
		sat := today.AddDate(0, 0, daysUntilSat)
		return sat, sat.AddDate(0, 0, 2)
	default:
		return today, today.AddDate(0, 0, 7)
	}
}

func hourBounds(pq domain.ParsedQuery) (afterHour, beforeHour *int) {
	afterHour = pq.TimeAfter
	beforeHour = pq.TimeBefore
	if afterHour != nil || beforeHour != nil {
		return afterHour, beforeHour
	}
	switch pq.TimeWindow {
	case domain.TimeWindowMorning:
		h := 12
		beforeHour = &h
	case domain.TimeWindowAfternoon:
		a, b := 12, 17
		afterHour, beforeHour = &a, &b
	case domain.TimeWindowEvening:
		h := 17
		afterHour = &h
	}
	return afterHour, beforeHour
}

func instructorIDs(cands []domain.ServiceCandidate) []int64 {
	seen := make(map[int64]bool, len(cands))
	ids := make([]int64, 0, len(cands))
	for _, c := range cands {
		if !seen[c.InstructorID] {
			seen[c.InstructorID] = true
			ids = append(ids, c.InstructorID)
		}
	}
	return ids
}
