package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// StartCadence binds a cadence to the lead, replacing any previous one.
func (s *LeadService) StartCadence(ctx context.Context, id, actor string, req *domain.StartCadenceRequest) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.StartCadence")
	defer span.End()

	now := s.cal.now()
	startedAt := now
	if req.StartedAt != nil {
		startedAt = *req.StartedAt
	}
	c, err := BuildCadence(req, startedAt)
	if err != nil {
		return nil, err
	}

	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("Cadence %s started with %d touches", c.Type, len(c.Touches))
	act := domain.NewActivity(domain.ActivityCadenceStarted, desc, actor, now)
	patch := domain.LeadPatch{Cadence: c, LastActivity: &now}
	if err := s.write(ctx, id, patch, nil, act); err != nil {
		return nil, err
	}
	patch.Apply(l)
	l.Activities = append(l.Activities, act)

	span.SetAttributes(attribute.String("cadence.type", string(c.Type)))
	s.logger.Info("cadence started",
		zap.String("lead_id", id),
		zap.String("type", string(c.Type)),
		zap.Time("started_at", startedAt),
	)
	s.publish(ctx, id, "cadence-started", actor)
	return l, nil
}

// CadenceTasks classifies the lead's pending touches at `at`, or now when
// at is zero.
func (s *LeadService) CadenceTasks(ctx context.Context, id string, at time.Time) (*domain.CadenceTasks, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.CadenceTasks")
	defer span.End()

	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = s.cal.now()
	}
	tasks := LeadCadenceTasks(l, at)
	return &tasks, nil
}

// CompleteTouch marks touch index of the lead's cadence done and logs an
// activity of the touch's channel. Completing a completed touch is a no-op.
func (s *LeadService) CompleteTouch(ctx context.Context, id, actor string, index int) (*domain.Lead, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.CompleteTouch")
	defer span.End()
	span.SetAttributes(attribute.String("lead.id", id), attribute.Int("touch.index", index))

	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Cadence == nil {
		return nil, &domain.ErrNotFound{Resource: "cadence", ID: id}
	}

	now := s.cal.now()
	c := l.Cadence.Clone()
	changed, err := ApplyCompleteTouch(c, index, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return l, nil
	}

	touch := c.Touches[index]
	label := touch.Label
	if tmpl, ok := domain.TemplateFor(c.Type); ok && index < len(tmpl.Touches) {
		label = tmpl.Touches[index].Label
	}
	if label == "" {
		label = string(touch.Type)
	}
	act := domain.NewActivity(touch.Type.ActivityType(), fmt.Sprintf("Cadence touch completed: %s (day %d)", label, touch.Day), actor, now)
	patch := domain.LeadPatch{Cadence: c, LastActivity: &now}
	if err := s.write(ctx, id, patch, nil, act); err != nil {
		return nil, err
	}
	patch.Apply(l)
	l.Activities = append(l.Activities, act)

	s.publish(ctx, id, "cadence-touch", actor)
	return l, nil
}
