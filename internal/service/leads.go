// Package service provides the business logic layer (use cases).
// LeadService drives the lead lifecycle: quality gate, stage transitions,
// follow-ups and outreach cadences. Pure derivations live in plain
// functions; the service loads state, applies them and persists the result.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var leadTracer = otel.Tracer("service/leads")

// LeadService orchestrates lead mutations against the storage ports.
type LeadService struct {
	leads     port.LeadStore
	meetings  port.MeetingStore
	agents    port.AgentDirectory
	publisher port.ChangePublisher
	roster    port.Cache[[]domain.Agent]
	metrics   *observability.Metrics
	logger    *zap.Logger
	cal       calendar
}

// NewLeadService creates the lead service with all dependencies injected.
// publisher may be nil when no change broadcast is wired.
func NewLeadService(
	leads port.LeadStore,
	meetings port.MeetingStore,
	agents port.AgentDirectory,
	publisher port.ChangePublisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	clock port.Clock,
	loc *time.Location,
) *LeadService {
	return &LeadService{
		leads:     leads,
		meetings:  meetings,
		agents:    agents,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		cal:       newCalendar(clock, loc),
	}
}

// Today is the business-calendar date now.
func (s *LeadService) Today() domain.Date {
	return s.cal.today()
}

// ============================================================
// Reads
// ============================================================

// GetLead loads a lead. Stored stage and cadence values that fail
// validation are kept readable: the stage falls back to New Lead and the
// cadence is served as stored, both logged as untrusted.
func (s *LeadService) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.GetLead")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", id))

	l, err := s.leads.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	s.sanitize(l)
	return l, nil
}

// ListLeads returns leads matching the filter.
func (s *LeadService) ListLeads(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ListLeads")
	defer span.End()

	// Stores compare the raw column. Every unrecognized stored stage reads
	// as New Lead, so that one filter is applied after normalizing.
	storeFilter := filter
	if filter.Status == domain.StageNewLead {
		storeFilter.Status = ""
	}
	ls, err := s.leads.ListLeads(ctx, storeFilter)
	if err != nil {
		s.metrics.IncrExternalError("leads")
		return nil, fmt.Errorf("list leads: %w", err)
	}
	out := ls[:0]
	for _, l := range ls {
		s.sanitize(l)
		if filter.Matches(l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *LeadService) sanitize(l *domain.Lead) {
	if st := domain.NormalizeStage(string(l.Status)); !st.Trusted {
		s.logger.Warn("untrusted stage on stored lead, using fallback",
			zap.String("lead_id", l.ID),
			zap.String("stored", string(l.Status)),
			zap.String("fallback", string(st.Value)),
		)
		l.Status = st.Value
	}
	if c := domain.CheckCadence(l.Cadence); !c.Trusted {
		s.logger.Warn("untrusted cadence on stored lead, serving raw value",
			zap.String("lead_id", l.ID),
			zap.Error(c.Problem),
		)
	}
}

// WithRosterCache shares the notification roster cache so an assignment
// drops the cached roster instead of leaving it behind the directory.
func (s *LeadService) WithRosterCache(roster port.Cache[[]domain.Agent]) *LeadService {
	s.roster = roster
	return s
}

// ============================================================
// Creation & assignment
// ============================================================

// CreateLead stores a new lead in New Lead.
func (s *LeadService) CreateLead(ctx context.Context, actor string, req *domain.CreateLeadRequest) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.CreateLead")
	defer span.End()

	prio, err := domain.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	now := s.cal.now()
	l := domain.NewLead(strings.TrimSpace(req.ID), actor, now)
	l.Priority = prio
	l.Segment = req.Segment
	l.SourceChannel = req.SourceChannel
	l.CompanyName = req.CompanyName
	l.Website = req.Website
	l.CompanyLinkedIn = req.CompanyLinkedIn
	l.PersonLinkedIn = req.PersonLinkedIn
	l.State = req.State
	l.DecisionMakerName = req.DecisionMakerName
	l.DecisionMakerTitle = req.DecisionMakerTitle
	l.Email = req.Email
	l.PhoneWorkDirect = req.PhoneWorkDirect
	l.PhoneMobile = req.PhoneMobile
	l.PhoneHome = req.PhoneHome

	if req.NextFollowUp != "" {
		d, err := domain.ParseDate(req.NextFollowUp)
		if err != nil {
			return nil, err
		}
		l.NextFollowUp = &d
	}

	l.Activities = append(l.Activities, domain.NewActivity(domain.ActivityNote, "Lead created", actor, now))
	if req.AssignedAgent != "" {
		if err := s.requireActiveAgent(ctx, req.AssignedAgent); err != nil {
			return nil, err
		}
		l.AssignedAgent = req.AssignedAgent
		l.Activities = append(l.Activities, assignmentActivity(req.AssignedAgent, actor, now))
	}

	if err := s.leads.CreateLead(ctx, l); err != nil {
		s.logger.Error("failed to create lead", zap.String("lead_id", l.ID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("lead created",
		zap.String("lead_id", l.ID),
		zap.String("actor", actor),
		zap.String("priority", string(l.Priority)),
	)
	s.publish(ctx, l.ID, "created", actor)
	return l, nil
}

// AssignLead hands the lead to an active agent.
func (s *LeadService) AssignLead(ctx context.Context, id, actor, agentID string) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.AssignLead")
	defer span.End()

	if err := s.requireActiveAgent(ctx, agentID); err != nil {
		return nil, err
	}
	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.cal.now()
	act := assignmentActivity(agentID, actor, now)
	patch := domain.LeadPatch{AssignedAgent: &agentID, LastActivity: &now}
	if err := s.write(ctx, id, patch, nil, act); err != nil {
		return nil, err
	}
	patch.Apply(l)
	l.Activities = append(l.Activities, act)
	if s.roster != nil {
		s.roster.Delete(rosterCacheKey)
	}

	s.publish(ctx, id, "assigned", actor)
	return l, nil
}

func assignmentActivity(agentID, actor string, now time.Time) domain.Activity {
	act := domain.NewActivity(domain.ActivityAssignment, "Assigned to "+agentID, actor, now)
	act.Subject = agentID
	return act
}

func (s *LeadService) requireActiveAgent(ctx context.Context, agentID string) error {
	agents, err := s.agents.ListAgents(ctx)
	if err != nil {
		s.metrics.IncrExternalError("agents")
		return fmt.Errorf("list agents: %w", err)
	}
	for _, a := range agents {
		if a.ID == agentID {
			if !a.Active {
				return &domain.ErrValidation{Field: "assignedAgent", Message: "agent '" + agentID + "' is inactive"}
			}
			return nil
		}
	}
	return &domain.ErrValidation{Field: "assignedAgent", Message: "unknown agent '" + agentID + "'"}
}

// ============================================================
// Quality gate & qualification
// ============================================================

// EvaluateQualityGate runs the gate and stores its outcome as the lead's
// snapshot.
func (s *LeadService) EvaluateQualityGate(ctx context.Context, id, actor string) (*domain.QualityGateResult, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.EvaluateQualityGate")
	defer span.End()

	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	res := CheckQualityGate(l)
	desc := "Quality gate passed"
	if !res.Pass {
		desc = "Quality gate failed, missing: " + strings.Join(res.Missing, ", ")
	}

	now := s.cal.now()
	patch := domain.LeadPatch{QualityGatePass: &res.Pass, LastActivity: &now}
	act := domain.NewActivity(domain.ActivityQualityGate, desc, actor, now)
	if err := s.write(ctx, id, patch, nil, act); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Bool("quality_gate.pass", res.Pass))
	s.logger.Info("quality gate evaluated",
		zap.String("lead_id", id),
		zap.Bool("pass", res.Pass),
		zap.Strings("missing", res.Missing),
	)
	s.publish(ctx, id, "quality-gate", actor)
	return &res, nil
}

// QualityGateStatus compares the live gate with the stored snapshot. The
// snapshot is never refreshed here.
func (s *LeadService) QualityGateStatus(ctx context.Context, id string) (*domain.QualityGateStatus, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.QualityGateStatus")
	defer span.End()

	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	live := CheckQualityGate(l)
	return &domain.QualityGateStatus{
		Live:     live,
		Snapshot: l.QualityGatePass,
		Stale:    live.Pass != l.QualityGatePass,
	}, nil
}

// UpdateQualification records the right-person / real-need / timing
// assessment. QualifiedAt is stamped when the lead first becomes qualified
// and cleared when it stops being qualified.
func (s *LeadService) UpdateQualification(ctx context.Context, id, actor string, req *domain.QualificationRequest) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.UpdateQualification")
	defer span.End()

	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.cal.now()
	q := domain.Qualification{RightPerson: req.RightPerson, RealNeed: req.RealNeed, Timing: req.Timing}
	switch {
	case q.IsQualified() && l.Qualification.IsQualified():
		q.QualifiedAt = l.Qualification.QualifiedAt
		q.QualifiedBy = l.Qualification.QualifiedBy
	case q.IsQualified():
		at := now
		q.QualifiedAt = &at
		q.QualifiedBy = actor
	}

	desc := fmt.Sprintf("Qualification updated (right person: %t, real need: %t, timing: %t)", q.RightPerson, q.RealNeed, q.Timing)
	act := domain.NewActivity(domain.ActivityQualification, desc, actor, now)
	patch := domain.LeadPatch{Qualification: &q, LastActivity: &now}
	if err := s.write(ctx, id, patch, nil, act); err != nil {
		return nil, err
	}
	patch.Apply(l)
	l.Activities = append(l.Activities, act)

	s.publish(ctx, id, "qualification", actor)
	return l, nil
}

// ============================================================
// Persistence helpers
// ============================================================

// write persists one lead mutation: the field-group patch, then the
// optional history entry, then the activities. Each write is independent;
// a failure part-way leaves earlier writes in place.
func (s *LeadService) write(ctx context.Context, id string, patch domain.LeadPatch, history *domain.StageHistoryEntry, acts ...domain.Activity) error {
	if err := s.leads.PatchLead(ctx, id, patch); err != nil {
		s.metrics.IncrExternalError("leads")
		return fmt.Errorf("patch lead: %w", err)
	}
	// The patch is stored from here on; anything that fails below leaves
	// the lead updated without its full trail.
	if history != nil {
		if err := s.leads.AppendStageHistory(ctx, id, *history); err != nil {
			return s.partialWrite(id, "stage history", patch, err)
		}
	}
	for _, a := range acts {
		if err := s.leads.AppendActivity(ctx, id, a); err != nil {
			return s.partialWrite(id, "activity", patch, err)
		}
	}
	return nil
}

func (s *LeadService) partialWrite(id, step string, patch domain.LeadPatch, err error) error {
	s.metrics.IncrExternalError("leads")
	fields := []zap.Field{
		zap.String("lead_id", id),
		zap.String("step", step),
		zap.Error(err),
	}
	if patch.Status != nil {
		fields = append(fields, zap.String("stage", string(*patch.Status)))
	}
	s.logger.Error("partial write: lead patched, "+step+" not recorded", fields...)
	return fmt.Errorf("append %s: %w", step, err)
}

// publish broadcasts a lead-changed signal. Broadcast failures never fail
// the mutation that triggered them; readers re-derive on their next load.
func (s *LeadService) publish(ctx context.Context, id, reason, actor string) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, domain.LeadChange{LeadID: id, Reason: reason, Actor: actor, At: s.cal.now()})
	if err != nil {
		s.metrics.IncrExternalError("realtime")
		s.logger.Warn("lead change broadcast failed",
			zap.String("lead_id", id),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}
	s.metrics.IncrLeadChange()
}

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}
