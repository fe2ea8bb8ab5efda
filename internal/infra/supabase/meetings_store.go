package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/schema"
)

// ============================================================
// Meetings store
// ============================================================

type meetingRow struct {
	ID            string     `json:"id"`
	LeadID        string     `json:"lead_id"`
	MeetingDate   string     `json:"meeting_date"`
	MeetingTime   string     `json:"meeting_time"`
	Assignee      string     `json:"assignee"`
	Notes         string     `json:"notes"`
	Status        string     `json:"status"`
	RecordingLink string     `json:"recording_link"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at"`
}

func (c *Client) CreateMeeting(ctx context.Context, m *domain.Meeting) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateMeeting")
	defer span.End()

	row := meetingRow{
		ID:          m.ID,
		LeadID:      m.LeadID,
		MeetingDate: m.Date,
		MeetingTime: m.Time,
		Assignee:    m.Assignee,
		Notes:       m.Notes,
		Status:      string(m.Status),
		CreatedBy:   m.CreatedBy,
		CreatedAt:   m.CreatedAt,
	}
	return c.run(ctx, schema.Meetings, func() error {
		_, err := c.doPost(ctx, schema.Meetings+"?on_conflict=id", row, "resolution=ignore-duplicates,return=minimal")
		return err
	})
}

func (c *Client) LatestScheduledMeeting(ctx context.Context, leadID string) (*domain.Meeting, error) {
	ctx, span := tracer.Start(ctx, "Supabase.LatestScheduledMeeting")
	defer span.End()

	var meeting *domain.Meeting
	err := c.run(ctx, schema.Meetings, func() error {
		path := fmt.Sprintf("%s?lead_id=%s&status=%s&order=created_at.desc&limit=1",
			schema.Meetings, eq(leadID), eq(string(domain.MeetingScheduled)))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		var rows []meetingRow
		if body != nil {
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode meetings: %w", err)
			}
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "scheduled meeting", ID: leadID}
		}
		r := rows[0]
		meeting = &domain.Meeting{
			ID:            r.ID,
			LeadID:        r.LeadID,
			Date:          r.MeetingDate,
			Time:          r.MeetingTime,
			Assignee:      r.Assignee,
			Notes:         r.Notes,
			Status:        domain.MeetingStatus(r.Status),
			RecordingLink: r.RecordingLink,
			CreatedBy:     r.CreatedBy,
			CreatedAt:     r.CreatedAt,
			CompletedAt:   r.CompletedAt,
		}
		return nil
	})
	return meeting, err
}

func (c *Client) PatchMeeting(ctx context.Context, id string, patch domain.MeetingPatch) error {
	ctx, span := tracer.Start(ctx, "Supabase.PatchMeeting")
	defer span.End()

	data := map[string]any{
		"status":         string(patch.Status),
		"recording_link": patch.RecordingLink,
		"completed_at":   patch.CompletedAt.UTC().Format(time.RFC3339Nano),
	}
	if patch.Notes != "" {
		data["notes"] = patch.Notes
	}
	return c.run(ctx, schema.Meetings, func() error {
		n, err := c.doPatch(ctx, fmt.Sprintf("%s?id=%s", schema.Meetings, eq(id)), data)
		if err != nil {
			return err
		}
		if n == 0 {
			return &domain.ErrNotFound{Resource: "meeting", ID: id}
		}
		return nil
	})
}
