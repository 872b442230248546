// Package catalog implements the service-offering read repository on
// Postgres: pgvector cosine similarity for the semantic pass and pg_trgm
// similarity for the lexical pass.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/lessonsearch/internal/domain"
)

// Repo reads service candidates from the catalog tables.
type Repo struct {
	db *sql.DB
}

// New creates a catalog repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

const candidateColumns = `s.id, s.catalog_id, s.instructor_id, s.name, COALESCE(s.description, ''), s.price_per_hour, s.lesson_type`

// VectorSearch returns the nearest services by embedding cosine similarity.
// Scores are mapped to [0,1] as 1 - cosine distance.
func (r *Repo) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]domain.ServiceCandidate, error) {
	query := `
SELECT ` + candidateColumns + `,
       1 - (s.embedding <=> $1::vector) AS vector_score
FROM services s
WHERE s.embedding IS NOT NULL AND s.active
ORDER BY s.embedding <=> $1::vector
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, query, vectorLiteral(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []domain.ServiceCandidate
	for rows.Next() {
		var c domain.ServiceCandidate
		var score float64
		if err := rows.Scan(
			&c.ServiceID, &c.CatalogID, &c.InstructorID, &c.Name, &c.Description, &c.PricePerHour, &c.LessonType, &score,
		); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		c.VectorScore = &score
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector rows: %w", err)
	}
	return out, nil
}

// TextSearch returns services lexically similar to the query via pg_trgm.
// Both the normalized and original forms are matched; the better similarity wins.
func (r *Repo) TextSearch(ctx context.Context, normalized, original string, limit int) ([]domain.ServiceCandidate, error) {
	query := `
SELECT ` + candidateColumns + `,
       GREATEST(similarity(s.search_text, $1), similarity(s.search_text, $2)) AS text_score
FROM services s
WHERE s.active AND (s.search_text % $1 OR s.search_text % $2)
ORDER BY text_score DESC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, query, normalized, original, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	var out []domain.ServiceCandidate
	for rows.Next() {
		var c domain.ServiceCandidate
		var score float64
		if err := rows.Scan(
			&c.ServiceID, &c.CatalogID, &c.InstructorID, &c.Name, &c.Description, &c.PricePerHour, &c.LessonType, &score,
		); err != nil {
			return nil, fmt.Errorf("scan text row: %w", err)
		}
		c.TextScore = &score
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate text rows: %w", err)
	}
	return out, nil
}

// HasEmbeddings reports whether any active service carries an embedding.
func (r *Repo) HasEmbeddings(ctx context.Context) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM services WHERE embedding IS NOT NULL AND active)`,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has embeddings: %w", err)
	}
	return exists, nil
}

// vectorLiteral renders a float32 slice as a pgvector input literal.
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
