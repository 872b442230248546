package health

import "context"

// DBPinger checks Postgres availability. Satisfied by *sql.DB.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// CachePinger checks the key-value store availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
