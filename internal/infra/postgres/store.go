// Package postgres implements the storage ports on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/schema"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

// NewPool constructs a pgx connection pool from a connection string.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres: empty connection string")
	}
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, span := tracer.Start(ctx, "Postgres.Migrate")
	defer span.End()

	if _, err := pool.Exec(ctx, schema.DDL); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

// Store is the pgx-backed implementation of port.Store.
type Store struct {
	pool   *pgxpool.Pool
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
}

// NewStore wraps a pool.
func NewStore(pool *pgxpool.Pool, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Store {
	return &Store{pool: pool, cb: cb, cfg: cfg, logger: logger}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// run executes fn under the breaker with retries and maps errors the
// same way the PostgREST adapter does.
func (s *Store) run(ctx context.Context, table string, fn func() error) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, s.cfg, fn)
	})
	if err == nil {
		return nil
	}
	if resilience.IsOpen(err) {
		return &domain.ErrCircuitOpen{Service: "postgres/" + table}
	}
	if !resilience.RetryableDefault(err) {
		return err
	}
	s.logger.Error("postgres: query failed", zap.String("table", table), zap.Error(err))
	return &domain.ErrExternalService{Service: "postgres/" + table, Err: err}
}

// notFoundOr maps a missing row, or a foreign key pointing at one, to
// ErrNotFound.
func notFoundOr(err error, resource, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return err
}

const foreignKeyViolation = "23503"
