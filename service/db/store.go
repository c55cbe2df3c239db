package db

import (
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/photopay/photopay/service/metrics"
)

// Sentinel errors returned by store operations. Callers match with errors.Is
// to map them onto HTTP responses.
var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a conditional update finds the row in a
	// different status than the caller expected. The row was not modified.
	ErrConflict = errors.New("status precondition failed")

	// ErrAlreadyExists is returned when an insert violates a uniqueness
	// constraint.
	ErrAlreadyExists = errors.New("record already exists")
)

// psql builds queries with Postgres-style $N placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Store provides database operations for the service.
// All methods return domain models, never raw rows.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Pool exposes the underlying connection pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// record observes query duration and status for a store operation.
func (s *Store) record(operation, table string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, table, time.Since(start).Seconds(), err)
	}
}
