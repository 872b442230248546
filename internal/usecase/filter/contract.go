package filter

import (
	"context"
	"time"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

// CoverageReader answers which instructors serve which regions.
type CoverageReader interface {
	CoveringInstructors(ctx context.Context, instructorIDs []int64, regionIDs []int64) (map[int64]bool, error)
	RegionIDsInBorough(ctx context.Context, borough string) ([]int64, error)
	InstructorDistancesKM(ctx context.Context, instructorIDs []int64, point domain.Coordinates) (map[int64]float64, error)
}

// AvailabilityReader answers which instructors have open slots in a window.
type AvailabilityReader interface {
	AvailableInstructors(ctx context.Context, instructorIDs []int64, from, to time.Time, afterHour, beforeHour *int) (map[int64]bool, error)
}
