// Package region implements region, alias, coverage, and distance lookups
// used by location resolution and filtering.
package region

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

// Repo reads the region table and instructor coverage.
type Repo struct {
	db *sql.DB
}

// New creates a region repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// Region is one row of the region table.
type Region struct {
	ID      int64
	Name    string
	Borough string
}

// FindExact matches a normalized phrase against region names and aliases.
// Returns domain.ErrNotFound when nothing matches.
func (r *Repo) FindExact(ctx context.Context, phrase string) (Region, error) {
	var reg Region
	err := r.db.QueryRowContext(ctx, `
SELECT id, name, COALESCE(borough, '')
FROM regions
WHERE lower(name) = $1 OR $1 = ANY(aliases)
LIMIT 1
`, phrase).Scan(&reg.ID, &reg.Name, &reg.Borough)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Region{}, domain.ErrNotFound
		}
		return Region{}, fmt.Errorf("find exact region: %w", err)
	}
	return reg, nil
}

// FindFuzzy matches a phrase by trigram similarity above the given floor,
// best matches first.
func (r *Repo) FindFuzzy(ctx context.Context, phrase string, floor float64, limit int) ([]Region, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, COALESCE(borough, '')
FROM regions
WHERE similarity(name, $1) >= $2
ORDER BY similarity(name, $1) DESC
LIMIT $3
`, phrase, floor, limit)
	if err != nil {
		return nil, fmt.Errorf("find fuzzy region: %w", err)
	}
	defer rows.Close()

	var out []Region
	for rows.Next() {
		var reg Region
		if err := rows.Scan(&reg.ID, &reg.Name, &reg.Borough); err != nil {
			return nil, fmt.Errorf("scan fuzzy region: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fuzzy regions: %w", err)
	}
	return out, nil
}

// FindBorough matches a phrase against borough names and borough aliases.
// Returns domain.ErrNotFound when nothing matches.
func (r *Repo) FindBorough(ctx context.Context, phrase string) (string, error) {
	var borough string
	err := r.db.QueryRowContext(ctx, `
SELECT name
FROM boroughs
WHERE lower(name) = $1 OR $1 = ANY(aliases)
LIMIT 1
`, phrase).Scan(&borough)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("find borough: %w", err)
	}
	return borough, nil
}

// FindByNames resolves candidate region names (typically LLM-suggested)
// back to real region rows; unknown names are dropped.
func (r *Repo) FindByNames(ctx context.Context, names []string) ([]Region, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, COALESCE(borough, '')
FROM regions
WHERE lower(name) = ANY($1)
`, names)
	if err != nil {
		return nil, fmt.Errorf("find regions by names: %w", err)
	}
	defer rows.Close()

	var out []Region
	for rows.Next() {
		var reg Region
		if err := rows.Scan(&reg.ID, &reg.Name, &reg.Borough); err != nil {
			return nil, fmt.Errorf("scan region by name: %w", err)
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regions by names: %w", err)
	}
	return out, nil
}

// RegionIDsInBorough returns every region id nested under a borough.
func (r *Repo) RegionIDsInBorough(ctx context.Context, borough string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id FROM regions WHERE lower(borough) = lower($1)
`, borough)
	if err != nil {
		return nil, fmt.Errorf("regions in borough: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan region id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate region ids: %w", err)
	}
	return out, nil
}

// CoveringInstructors returns the subset of instructor ids whose coverage
// includes any of the given regions.
func (r *Repo) CoveringInstructors(ctx context.Context, instructorIDs, regionIDs []int64) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT instructor_id
FROM instructor_regions
WHERE instructor_id = ANY($1) AND region_id = ANY($2)
`, instructorIDs, regionIDs)
	if err != nil {
		return nil, fmt.Errorf("covering instructors: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instructor id: %w", err)
		}
		out[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instructor ids: %w", err)
	}
	return out, nil
}

// InstructorDistancesKM returns each instructor's minimum distance, in
// kilometers, from the query point to any region they cover (region
// centroids, earthdistance extension).
func (r *Repo) InstructorDistancesKM(ctx context.Context, instructorIDs []int64, point domain.Coordinates) (map[int64]float64, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT ir.instructor_id,
       MIN(earth_distance(ll_to_earth($2, $3), ll_to_earth(r.centroid_lat, r.centroid_lon))) / 1000.0
FROM instructor_regions ir
JOIN regions r ON r.id = ir.region_id
WHERE ir.instructor_id = ANY($1)
GROUP BY ir.instructor_id
`, instructorIDs, point.Lat, point.Lon)
	if err != nil {
		return nil, fmt.Errorf("instructor distances: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]float64)
	for rows.Next() {
		var id int64
		var km float64
		if err := rows.Scan(&id, &km); err != nil {
			return nil, fmt.Errorf("scan instructor distance: %w", err)
		}
		out[id] = km
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instructor distances: %w", err)
	}
	return out, nil
}
