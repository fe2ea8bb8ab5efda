package service

import (
	"context"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ScheduleFollowUp sets the lead's next follow-up date.
func (s *LeadService) ScheduleFollowUp(ctx context.Context, id, actor string, req *domain.ScheduleFollowUpRequest) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.ScheduleFollowUp")
	defer span.End()

	date, err := domain.ParseDate(req.Date)
	if err != nil {
		return nil, err
	}
	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.cal.now()
	act := ApplyScheduleFollowUp(l, date, actor, now)
	patch := domain.LeadPatch{NextFollowUp: &date, LastActivity: &now}
	if err := s.write(ctx, id, patch, nil, act); err != nil {
		return nil, err
	}

	s.logger.Info("follow-up scheduled",
		zap.String("lead_id", id),
		zap.String("date", date.String()),
		zap.Bool("past", date.Before(s.cal.today())),
	)
	s.publish(ctx, id, "follow-up-scheduled", actor)
	return l, nil
}

// CompleteFollowUp clears the lead's follow-up. The bool reports whether
// anything changed; completing an already-cleared follow-up writes nothing.
func (s *LeadService) CompleteFollowUp(ctx context.Context, id, actor string) (*domain.Lead, bool, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.CompleteFollowUp")
	defer span.End()

	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, false, err
	}

	now := s.cal.now()
	act := ApplyCompleteFollowUp(l, actor, now)
	span.SetAttributes(attribute.Bool("followup.changed", act != nil))
	if act == nil {
		return l, false, nil
	}

	patch := domain.LeadPatch{ClearFollowUp: true, LastActivity: &now}
	if err := s.write(ctx, id, patch, nil, *act); err != nil {
		return nil, false, err
	}

	s.publish(ctx, id, "follow-up-completed", actor)
	return l, true, nil
}

// FollowUp classifies the lead's follow-up against today.
func (s *LeadService) FollowUp(ctx context.Context, id string) (*domain.FollowUpView, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.FollowUp")
	defer span.End()

	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.FollowUpView{
		LeadID:       l.ID,
		NextFollowUp: l.NextFollowUp,
		Status:       ClassifyFollowUp(l, s.cal.today()),
	}, nil
}

// FollowUpQueue groups an agent's leads into overdue, due-today and
// upcoming follow-ups.
func (s *LeadService) FollowUpQueue(ctx context.Context, agentID string) (*domain.FollowUpQueue, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.FollowUpQueue")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID))

	ls, err := s.ListLeads(ctx, domain.LeadFilter{AssignedAgent: agentID})
	if err != nil {
		return nil, err
	}
	return GroupFollowUps(ls, s.cal.today()), nil
}
