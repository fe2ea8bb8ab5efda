package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/schema"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const leadColumns = `id, status, priority, segment, source_channel, assigned_agent, added_by,
	closed_by, closed_at, closed_reason, created_at, last_activity, next_follow_up,
	qualification, quality_gate_pass, cadence, company_name, website, company_linkedin,
	person_linkedin, state, decision_maker_name, decision_maker_title, email,
	phone_work_direct, phone_mobile, phone_home`

func (s *Store) scanLead(row pgx.Row) (*domain.Lead, error) {
	var (
		l             domain.Lead
		status, prio  string
		followUp      *time.Time
		qual, cadence []byte
	)
	err := row.Scan(
		&l.ID, &status, &prio, &l.Segment, &l.SourceChannel, &l.AssignedAgent, &l.AddedBy,
		&l.ClosedBy, &l.ClosedAt, &l.ClosedReason, &l.Date, &l.LastActivity, &followUp,
		&qual, &l.QualityGatePass, &cadence, &l.CompanyName, &l.Website, &l.CompanyLinkedIn,
		&l.PersonLinkedIn, &l.State, &l.DecisionMakerName, &l.DecisionMakerTitle, &l.Email,
		&l.PhoneWorkDirect, &l.PhoneMobile, &l.PhoneHome,
	)
	if err != nil {
		return nil, err
	}
	l.Status = domain.Stage(status)
	l.Priority = domain.Priority(prio)
	if followUp != nil {
		d := domain.DateOf(*followUp)
		l.NextFollowUp = &d
	}
	if len(qual) > 0 {
		if err := json.Unmarshal(qual, &l.Qualification); err != nil {
			s.logger.Warn("postgres: undecodable qualification", zap.String("lead_id", l.ID), zap.Error(err))
		}
	}
	if len(cadence) > 0 {
		var c domain.Cadence
		if err := json.Unmarshal(cadence, &c); err != nil {
			s.logger.Warn("postgres: undecodable cadence", zap.String("lead_id", l.ID), zap.Error(err))
		} else {
			l.Cadence = &c
		}
	}
	l.Activities = []domain.Activity{}
	l.StageHistory = []domain.StageHistoryEntry{}
	return &l, nil
}

func (s *Store) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", id))

	var lead *domain.Lead
	err := s.run(ctx, schema.Leads, func() error {
		l, err := s.scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
		if err != nil {
			return notFoundOr(err, "lead", id)
		}
		lead = l
		return s.attachHistory(ctx, []*domain.Lead{l})
	})
	return lead, err
}

func (s *Store) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListLeads")
	defer span.End()

	var (
		where []string
		args  []any
	)
	if filter.AssignedAgent != "" {
		args = append(args, filter.AssignedAgent)
		where = append(where, fmt.Sprintf("assigned_agent = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	q := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"

	var leads []*domain.Lead
	err := s.run(ctx, schema.Leads, func() error {
		rows, err := s.pool.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		leads = []*domain.Lead{}
		for rows.Next() {
			l, err := s.scanLead(rows)
			if err != nil {
				return err
			}
			leads = append(leads, l)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return s.attachHistory(ctx, leads)
	})
	return leads, err
}

func (s *Store) attachHistory(ctx context.Context, leads []*domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Lead, len(leads))
	ids := make([]string, 0, len(leads))
	for _, l := range leads {
		byID[l.ID] = l
		ids = append(ids, l.ID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT lead_id, stage, entered_at, agent FROM lead_stage_history WHERE lead_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			leadID, stage string
			e             domain.StageHistoryEntry
		)
		if err := rows.Scan(&leadID, &stage, &e.EnteredAt, &e.Agent); err != nil {
			rows.Close()
			return err
		}
		e.Stage = domain.Stage(stage)
		byID[leadID].StageHistory = append(byID[leadID].StageHistory, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.pool.Query(ctx,
		`SELECT lead_id, id, type, description, occurred_at, agent, subject FROM lead_activities WHERE lead_id = ANY($1) ORDER BY seq`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			leadID, typ string
			a           domain.Activity
		)
		if err := rows.Scan(&leadID, &a.ID, &typ, &a.Description, &a.Timestamp, &a.Agent, &a.Subject); err != nil {
			return err
		}
		a.Type = domain.ActivityType(typ)
		byID[leadID].Activities = append(byID[leadID].Activities, a)
	}
	return rows.Err()
}

// CreateLead inserts the lead with its initial history and activities in
// one transaction.
func (s *Store) CreateLead(ctx context.Context, l *domain.Lead) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateLead")
	defer span.End()

	qual, err := json.Marshal(l.Qualification)
	if err != nil {
		return err
	}
	var cadence []byte
	if l.Cadence != nil {
		if cadence, err = json.Marshal(l.Cadence); err != nil {
			return err
		}
	}
	var followUp *time.Time
	if l.NextFollowUp != nil {
		t := l.NextFollowUp.Time()
		followUp = &t
	}

	return s.run(ctx, schema.Leads, func() error {
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `INSERT INTO leads (`+leadColumns+`) VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
				l.ID, string(l.Status), string(l.Priority), l.Segment, l.SourceChannel, l.AssignedAgent, l.AddedBy,
				l.ClosedBy, l.ClosedAt, l.ClosedReason, l.Date, l.LastActivity, followUp,
				qual, l.QualityGatePass, cadence, l.CompanyName, l.Website, l.CompanyLinkedIn,
				l.PersonLinkedIn, l.State, l.DecisionMakerName, l.DecisionMakerTitle, l.Email,
				l.PhoneWorkDirect, l.PhoneMobile, l.PhoneHome,
			)
			if err != nil {
				return fmt.Errorf("insert lead: %w", err)
			}
			for _, h := range l.StageHistory {
				if err := insertHistory(ctx, tx, l.ID, h); err != nil {
					return err
				}
			}
			for _, a := range l.Activities {
				if err := insertActivity(ctx, tx, l.ID, a); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// PatchLead updates only the columns the patch owns.
func (s *Store) PatchLead(ctx context.Context, id string, patch domain.LeadPatch) error {
	ctx, span := tracer.Start(ctx, "Postgres.PatchLead")
	defer span.End()

	cols := schema.PatchColumns(patch)
	if len(cols) == 0 {
		return nil
	}
	names := make([]string, 0, len(cols))
	for k := range cols {
		names = append(names, k)
	}
	sort.Strings(names)

	set := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, name := range names {
		v, err := sqlValue(cols[name])
		if err != nil {
			return err
		}
		args = append(args, v)
		set[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{name}.Sanitize(), i+1)
	}
	args = append(args, id)
	q := fmt.Sprintf("UPDATE leads SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))

	return s.run(ctx, schema.Leads, func() error {
		tag, err := s.pool.Exec(ctx, q, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &domain.ErrNotFound{Resource: "lead", ID: id}
		}
		return nil
	})
}

// sqlValue converts a column value to what pgx encodes for its column.
func sqlValue(v any) (any, error) {
	switch val := v.(type) {
	case domain.Date:
		return val.Time(), nil
	case domain.Qualification, *domain.Cadence:
		return json.Marshal(val)
	default:
		return v, nil
	}
}

func (s *Store) AppendStageHistory(ctx context.Context, id string, entry domain.StageHistoryEntry) error {
	ctx, span := tracer.Start(ctx, "Postgres.AppendStageHistory")
	defer span.End()

	return s.run(ctx, schema.StageHistory, func() error {
		return notFoundOr(insertHistory(ctx, s.pool, id, entry), "lead", id)
	})
}

func (s *Store) AppendActivity(ctx context.Context, id string, a domain.Activity) error {
	ctx, span := tracer.Start(ctx, "Postgres.AppendActivity")
	defer span.End()

	return s.run(ctx, schema.Activities, func() error {
		return notFoundOr(insertActivity(ctx, s.pool, id, a), "lead", id)
	})
}

// execer is satisfied by both the pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertHistory(ctx context.Context, db execer, leadID string, h domain.StageHistoryEntry) error {
	_, err := db.Exec(ctx,
		`INSERT INTO lead_stage_history (lead_id, stage, entered_at, agent) VALUES ($1, $2, $3, $4)`,
		leadID, string(h.Stage), h.EnteredAt, h.Agent)
	return err
}

// insertActivity ignores a duplicate id so a retried append is harmless.
func insertActivity(ctx context.Context, db execer, leadID string, a domain.Activity) error {
	_, err := db.Exec(ctx,
		`INSERT INTO lead_activities (id, lead_id, type, description, occurred_at, agent, subject)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		a.ID, leadID, string(a.Type), a.Description, a.Timestamp, a.Agent, a.Subject)
	return err
}
