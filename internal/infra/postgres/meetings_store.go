package postgres

import (
	"context"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/schema"
)

func (s *Store) CreateMeeting(ctx context.Context, m *domain.Meeting) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateMeeting")
	defer span.End()

	return s.run(ctx, schema.Meetings, func() error {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO meetings (id, lead_id, meeting_date, meeting_time, assignee, notes, status, created_by, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (id) DO NOTHING`,
			m.ID, m.LeadID, m.Date, m.Time, m.Assignee, m.Notes, string(m.Status), m.CreatedBy, m.CreatedAt)
		return notFoundOr(err, "lead", m.LeadID)
	})
}

func (s *Store) LatestScheduledMeeting(ctx context.Context, leadID string) (*domain.Meeting, error) {
	ctx, span := tracer.Start(ctx, "Postgres.LatestScheduledMeeting")
	defer span.End()

	var m domain.Meeting
	err := s.run(ctx, schema.Meetings, func() error {
		var status string
		err := s.pool.QueryRow(ctx,
			`SELECT id, lead_id, meeting_date, meeting_time, assignee, notes, status, recording_link,
			        created_by, created_at, completed_at
			   FROM meetings
			  WHERE lead_id = $1 AND status = $2
			  ORDER BY created_at DESC
			  LIMIT 1`, leadID, string(domain.MeetingScheduled),
		).Scan(&m.ID, &m.LeadID, &m.Date, &m.Time, &m.Assignee, &m.Notes, &status, &m.RecordingLink,
			&m.CreatedBy, &m.CreatedAt, &m.CompletedAt)
		if err != nil {
			return notFoundOr(err, "scheduled meeting", leadID)
		}
		m.Status = domain.MeetingStatus(status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) PatchMeeting(ctx context.Context, id string, patch domain.MeetingPatch) error {
	ctx, span := tracer.Start(ctx, "Postgres.PatchMeeting")
	defer span.End()

	return s.run(ctx, schema.Meetings, func() error {
		tag, err := s.pool.Exec(ctx,
			`UPDATE meetings
			    SET status = $1, recording_link = $2, completed_at = $3,
			        notes = CASE WHEN $4 = '' THEN notes ELSE $4 END
			  WHERE id = $5`,
			string(patch.Status), patch.RecordingLink, patch.CompletedAt, patch.Notes, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return &domain.ErrNotFound{Resource: "meeting", ID: id}
		}
		return nil
	})
}
