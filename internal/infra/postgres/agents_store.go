package postgres

import (
	"context"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/schema"

	"github.com/jackc/pgx/v5"
)

func (s *Store) ListAgents(ctx context.Context) ([]domain.Agent, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListAgents")
	defer span.End()

	var agents []domain.Agent
	err := s.run(ctx, schema.Agents, func() error {
		rows, err := s.pool.Query(ctx, `SELECT id, name, email, active FROM agents ORDER BY name`)
		if err != nil {
			return err
		}
		agents, err = pgx.CollectRows(rows, pgx.RowToStructByPos[domain.Agent])
		return err
	})
	return agents, err
}

// UpsertAgent adds or updates a roster entry. Used for seeding.
func (s *Store) UpsertAgent(ctx context.Context, a domain.Agent) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpsertAgent")
	defer span.End()

	return s.run(ctx, schema.Agents, func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO agents (id, name, email, active) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, active = EXCLUDED.active`,
			a.ID, a.Name, a.Email, a.Active)
		return err
	})
}

func (s *Store) ReadIDs(ctx context.Context, viewer string) (map[string]bool, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ReadIDs")
	defer span.End()

	read := make(map[string]bool)
	err := s.run(ctx, schema.NotificationReads, func() error {
		rows, err := s.pool.Query(ctx, `SELECT notification_id FROM notification_reads WHERE viewer = $1`, viewer)
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		for _, id := range ids {
			read[id] = true
		}
		return nil
	})
	return read, err
}

// MarkRead flips every id in a single statement.
func (s *Store) MarkRead(ctx context.Context, viewer string, ids []string) error {
	ctx, span := tracer.Start(ctx, "Postgres.MarkRead")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}
	return s.run(ctx, schema.NotificationReads, func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO notification_reads (viewer, notification_id)
			 SELECT $1, unnest($2::text[])
			 ON CONFLICT (viewer, notification_id) DO NOTHING`, viewer, ids)
		return err
	})
}
