// Package availability implements open-slot lookups keyed by instructor,
// date window, and time-of-day bounds.
package availability

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repo reads instructor availability slots.
type Repo struct {
	db *sql.DB
}

// New creates an availability repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// AvailableInstructors returns the subset of instructor ids with at least
// one unbooked slot inside the half-open window [from, to) that starts at
// or after afterHour and before beforeHour. Nil hour bounds are
// unconstrained.
func (r *Repo) AvailableInstructors(
	ctx context.Context,
	instructorIDs []int64,
	from, to time.Time,
	afterHour, beforeHour *int,
) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT instructor_id
FROM availability_slots
WHERE instructor_id = ANY($1)
  AND slot_date >= $2 AND slot_date < $3
  AND NOT is_booked
  AND ($4::int IS NULL OR start_hour >= $4)
  AND ($5::int IS NULL OR start_hour < $5)
`, instructorIDs, from, to, afterHour, beforeHour)
	if err != nil {
		return nil, fmt.Errorf("available instructors: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan available instructor: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate available instructors: %w", err)
	}
	return out, nil
}
