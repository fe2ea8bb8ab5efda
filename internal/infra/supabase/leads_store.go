package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/schema"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ============================================================
// Leads store: leads, lead_stage_history, lead_activities
// ============================================================

type leadRow struct {
	ID                 string          `json:"id"`
	Status             string          `json:"status"`
	Priority           string          `json:"priority"`
	Segment            string          `json:"segment"`
	SourceChannel      string          `json:"source_channel"`
	AssignedAgent      string          `json:"assigned_agent"`
	AddedBy            string          `json:"added_by"`
	ClosedBy           string          `json:"closed_by"`
	ClosedAt           *time.Time      `json:"closed_at"`
	ClosedReason       string          `json:"closed_reason"`
	CreatedAt          time.Time       `json:"created_at"`
	LastActivity       time.Time       `json:"last_activity"`
	NextFollowUp       *string         `json:"next_follow_up"`
	Qualification      json.RawMessage `json:"qualification"`
	QualityGatePass    bool            `json:"quality_gate_pass"`
	Cadence            json.RawMessage `json:"cadence"`
	CompanyName        string          `json:"company_name"`
	Website            string          `json:"website"`
	CompanyLinkedIn    string          `json:"company_linkedin"`
	PersonLinkedIn     string          `json:"person_linkedin"`
	State              string          `json:"state"`
	DecisionMakerName  string          `json:"decision_maker_name"`
	DecisionMakerTitle string          `json:"decision_maker_title"`
	Email              string          `json:"email"`
	PhoneWorkDirect    string          `json:"phone_work_direct"`
	PhoneMobile        string          `json:"phone_mobile"`
	PhoneHome          string          `json:"phone_home"`
}

type historyRow struct {
	LeadID    string    `json:"lead_id"`
	Stage     string    `json:"stage"`
	EnteredAt time.Time `json:"entered_at"`
	Agent     string    `json:"agent"`
}

type activityRow struct {
	ID          string    `json:"id"`
	LeadID      string    `json:"lead_id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurred_at"`
	Agent       string    `json:"agent"`
	Subject     string    `json:"subject"`
}

func toLeadRow(l *domain.Lead) (leadRow, error) {
	qual, err := json.Marshal(l.Qualification)
	if err != nil {
		return leadRow{}, err
	}
	r := leadRow{
		ID:                 l.ID,
		Status:             string(l.Status),
		Priority:           string(l.Priority),
		Segment:            l.Segment,
		SourceChannel:      l.SourceChannel,
		AssignedAgent:      l.AssignedAgent,
		AddedBy:            l.AddedBy,
		ClosedBy:           l.ClosedBy,
		ClosedAt:           l.ClosedAt,
		ClosedReason:       l.ClosedReason,
		CreatedAt:          l.Date,
		LastActivity:       l.LastActivity,
		Qualification:      qual,
		QualityGatePass:    l.QualityGatePass,
		CompanyName:        l.CompanyName,
		Website:            l.Website,
		CompanyLinkedIn:    l.CompanyLinkedIn,
		PersonLinkedIn:     l.PersonLinkedIn,
		State:              l.State,
		DecisionMakerName:  l.DecisionMakerName,
		DecisionMakerTitle: l.DecisionMakerTitle,
		Email:              l.Email,
		PhoneWorkDirect:    l.PhoneWorkDirect,
		PhoneMobile:        l.PhoneMobile,
		PhoneHome:          l.PhoneHome,
	}
	if l.Cadence != nil {
		if r.Cadence, err = json.Marshal(l.Cadence); err != nil {
			return leadRow{}, err
		}
	}
	if l.NextFollowUp != nil {
		s := l.NextFollowUp.String()
		r.NextFollowUp = &s
	}
	return r, nil
}

// toLead copies the row as stored. Stage and cadence validation happens
// in the service layer; a JSON column that does not decode is logged and
// left empty so the rest of the lead stays readable.
func (c *Client) toLead(r leadRow) *domain.Lead {
	l := &domain.Lead{
		ID:                 r.ID,
		Status:             domain.Stage(r.Status),
		Priority:           domain.Priority(r.Priority),
		Segment:            r.Segment,
		SourceChannel:      r.SourceChannel,
		AssignedAgent:      r.AssignedAgent,
		AddedBy:            r.AddedBy,
		ClosedBy:           r.ClosedBy,
		ClosedAt:           r.ClosedAt,
		ClosedReason:       r.ClosedReason,
		Date:               r.CreatedAt,
		LastActivity:       r.LastActivity,
		QualityGatePass:    r.QualityGatePass,
		CompanyName:        r.CompanyName,
		Website:            r.Website,
		CompanyLinkedIn:    r.CompanyLinkedIn,
		PersonLinkedIn:     r.PersonLinkedIn,
		State:              r.State,
		DecisionMakerName:  r.DecisionMakerName,
		DecisionMakerTitle: r.DecisionMakerTitle,
		Email:              r.Email,
		PhoneWorkDirect:    r.PhoneWorkDirect,
		PhoneMobile:        r.PhoneMobile,
		PhoneHome:          r.PhoneHome,
		Activities:         []domain.Activity{},
		StageHistory:       []domain.StageHistoryEntry{},
	}
	if hasJSON(r.Qualification) {
		if err := json.Unmarshal(r.Qualification, &l.Qualification); err != nil {
			c.logger.Warn("supabase: undecodable qualification", zap.String("lead_id", r.ID), zap.Error(err))
		}
	}
	if hasJSON(r.Cadence) {
		var cad domain.Cadence
		if err := json.Unmarshal(r.Cadence, &cad); err != nil {
			c.logger.Warn("supabase: undecodable cadence", zap.String("lead_id", r.ID), zap.Error(err))
		} else {
			l.Cadence = &cad
		}
	}
	if r.NextFollowUp != nil {
		d, err := domain.ParseDate(*r.NextFollowUp)
		if err != nil {
			c.logger.Warn("supabase: dropping unparseable follow-up date",
				zap.String("lead_id", r.ID),
				zap.String("value", *r.NextFollowUp),
			)
		} else {
			l.NextFollowUp = &d
		}
	}
	return l
}

func hasJSON(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func (c *Client) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", id))

	var lead *domain.Lead
	err := c.run(ctx, schema.Leads, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s?id=%s&limit=1", schema.Leads, eq(id)))
		if err != nil {
			return err
		}
		var rows []leadRow
		if body != nil {
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode lead: %w", err)
			}
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "lead", ID: id}
		}
		lead = c.toLead(rows[0])
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.attachHistory(ctx, []*domain.Lead{lead}); err != nil {
		return nil, err
	}
	return lead, nil
}

func (c *Client) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLeads")
	defer span.End()

	q := []string{"order=created_at.desc"}
	if filter.AssignedAgent != "" {
		q = append(q, "assigned_agent="+eq(filter.AssignedAgent))
	}
	if filter.Status != "" {
		q = append(q, "status="+eq(string(filter.Status)))
	}

	var leads []*domain.Lead
	err := c.run(ctx, schema.Leads, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, schema.Leads+"?"+strings.Join(q, "&"))
		if err != nil {
			return err
		}
		var rows []leadRow
		if body != nil {
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("decode leads: %w", err)
			}
		}
		leads = make([]*domain.Lead, 0, len(rows))
		for _, r := range rows {
			leads = append(leads, c.toLead(r))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := c.attachHistory(ctx, leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// attachHistory loads stage history and activities for the leads
// concurrently and appends them in insertion order.
func (c *Client) attachHistory(ctx context.Context, leads []*domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Lead, len(leads))
	ids := make([]string, 0, len(leads))
	for _, l := range leads {
		byID[l.ID] = l
		ids = append(ids, l.ID)
	}

	var (
		history    []historyRow
		activities []activityRow
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.run(gCtx, schema.StageHistory, func() error {
			body, err := c.doRequest(gCtx, http.MethodGet, fmt.Sprintf("%s?lead_id=%s&order=id.asc", schema.StageHistory, in(ids)))
			if err != nil || body == nil {
				return err
			}
			return json.Unmarshal(body, &history)
		})
	})
	g.Go(func() error {
		return c.run(gCtx, schema.Activities, func() error {
			body, err := c.doRequest(gCtx, http.MethodGet, fmt.Sprintf("%s?lead_id=%s&order=seq.asc", schema.Activities, in(ids)))
			if err != nil || body == nil {
				return err
			}
			return json.Unmarshal(body, &activities)
		})
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, h := range history {
		if l := byID[h.LeadID]; l != nil {
			l.StageHistory = append(l.StageHistory, domain.StageHistoryEntry{
				Stage:     domain.Stage(h.Stage),
				EnteredAt: h.EnteredAt,
				Agent:     h.Agent,
			})
		}
	}
	for _, a := range activities {
		if l := byID[a.LeadID]; l != nil {
			l.Activities = append(l.Activities, domain.Activity{
				ID:          a.ID,
				Type:        domain.ActivityType(a.Type),
				Description: a.Description,
				Timestamp:   a.OccurredAt,
				Agent:       a.Agent,
				Subject:     a.Subject,
			})
		}
	}
	return nil
}

// CreateLead inserts the lead row, then its initial history and activities.
func (c *Client) CreateLead(ctx context.Context, l *domain.Lead) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateLead")
	defer span.End()

	row, err := toLeadRow(l)
	if err != nil {
		return err
	}
	err = c.run(ctx, schema.Leads, func() error {
		_, err := c.doPost(ctx, schema.Leads, row, "return=minimal")
		return err
	})
	if err != nil {
		return err
	}

	for _, h := range l.StageHistory {
		if err := c.AppendStageHistory(ctx, l.ID, h); err != nil {
			return err
		}
	}
	if len(l.Activities) == 0 {
		return nil
	}
	rows := make([]activityRow, 0, len(l.Activities))
	for _, a := range l.Activities {
		rows = append(rows, toActivityRow(l.ID, a))
	}
	return c.run(ctx, schema.Activities, func() error {
		_, err := c.doPost(ctx, schema.Activities, rows, "return=minimal")
		return err
	})
}

func (c *Client) PatchLead(ctx context.Context, id string, patch domain.LeadPatch) error {
	ctx, span := tracer.Start(ctx, "Supabase.PatchLead")
	defer span.End()

	cols := schema.PatchColumns(patch)
	if len(cols) == 0 {
		return nil
	}
	return c.run(ctx, schema.Leads, func() error {
		n, err := c.doPatch(ctx, fmt.Sprintf("%s?id=%s", schema.Leads, eq(id)), wireColumns(cols))
		if err != nil {
			return err
		}
		if n == 0 {
			return &domain.ErrNotFound{Resource: "lead", ID: id}
		}
		return nil
	})
}

func (c *Client) AppendStageHistory(ctx context.Context, id string, entry domain.StageHistoryEntry) error {
	ctx, span := tracer.Start(ctx, "Supabase.AppendStageHistory")
	defer span.End()

	row := historyRow{LeadID: id, Stage: string(entry.Stage), EnteredAt: entry.EnteredAt, Agent: entry.Agent}
	return c.run(ctx, schema.StageHistory, func() error {
		_, err := c.doPost(ctx, schema.StageHistory, row, "return=minimal")
		return err
	})
}

// AppendActivity is idempotent on the activity id so a retried insert
// does not duplicate the entry.
func (c *Client) AppendActivity(ctx context.Context, id string, a domain.Activity) error {
	ctx, span := tracer.Start(ctx, "Supabase.AppendActivity")
	defer span.End()

	return c.run(ctx, schema.Activities, func() error {
		_, err := c.doPost(ctx, schema.Activities+"?on_conflict=id", toActivityRow(id, a), "resolution=ignore-duplicates,return=minimal")
		return err
	})
}

func toActivityRow(leadID string, a domain.Activity) activityRow {
	return activityRow{
		ID:          a.ID,
		LeadID:      leadID,
		Type:        string(a.Type),
		Description: a.Description,
		OccurredAt:  a.Timestamp,
		Agent:       a.Agent,
		Subject:     a.Subject,
	}
}
