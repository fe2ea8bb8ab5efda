package service

import (
	"context"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Transition moves a lead to another stage. The collaborator writes run in
// order: precondition check, meeting write, lead patch with history and
// activity, change broadcast. Nothing is written when a precondition
// fails. The meeting write is not rolled back if a later lead write fails.
func (s *LeadService) Transition(ctx context.Context, id, actor string, req *domain.TransitionRequest) (*domain.TransitionResult, error) {
	ctx, span := leadTracer.Start(ctx, "LeadService.Transition")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("transition", time.Since(start))
	}()

	to, err := domain.ParseStage(req.Stage)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("lead.id", id), attribute.String("stage.to", string(to)))

	l, err := s.GetLead(ctx, id)
	if err != nil {
		return nil, err
	}

	fx := SideEffects{Meeting: req.Meeting, Artifact: req.Artifact}
	if to == domain.StageMeetingCompleted {
		m, err := s.meetings.LatestScheduledMeeting(ctx, id)
		switch {
		case err == nil:
			fx.Scheduled = m
		case !isNotFound(err):
			s.metrics.IncrExternalError("meetings")
			return nil, err
		}
	}

	// --- Step 1: preconditions ---
	if err := CheckTransition(to, fx); err != nil {
		s.metrics.IncrPreconditionFailure(to)
		s.logger.Warn("transition rejected",
			zap.String("lead_id", id),
			zap.String("stage", string(to)),
			zap.String("actor", actor),
			zap.Error(err),
		)
		return nil, err
	}
	if fx.Meeting.Complete() {
		if _, err := domain.ParseDate(fx.Meeting.Date); err != nil {
			return nil, err
		}
	}

	now := s.cal.now()

	// --- Step 2: meeting side effect ---
	var meeting *domain.Meeting
	switch to {
	case domain.StageMeetingBooked:
		meeting = &domain.Meeting{
			ID:        uuid.New().String(),
			LeadID:    id,
			Date:      fx.Meeting.Date,
			Time:      fx.Meeting.Time,
			Assignee:  fx.Meeting.Assignee,
			Notes:     fx.Meeting.Notes,
			Status:    domain.MeetingScheduled,
			CreatedBy: actor,
			CreatedAt: now,
		}
		if err := s.meetings.CreateMeeting(ctx, meeting); err != nil {
			s.metrics.IncrExternalError("meetings")
			return nil, err
		}
	case domain.StageMeetingCompleted:
		patch := domain.MeetingPatch{
			Status:        domain.MeetingCompleted,
			RecordingLink: fx.Artifact.Link,
			Notes:         fx.Artifact.Notes,
			CompletedAt:   now,
		}
		if err := s.meetings.PatchMeeting(ctx, fx.Scheduled.ID, patch); err != nil {
			s.metrics.IncrExternalError("meetings")
			return nil, err
		}
		m := *fx.Scheduled
		m.Status = patch.Status
		m.RecordingLink = patch.RecordingLink
		if patch.Notes != "" {
			m.Notes = patch.Notes
		}
		m.CompletedAt = &now
		meeting = &m
	}

	// --- Step 3: lead writes ---
	tr, err := ApplyTransition(l, to, actor, req.Reason, now, fx)
	if err != nil {
		return nil, err
	}
	if err := s.write(ctx, id, tr.Patch, &tr.History, tr.Activity); err != nil {
		if meeting != nil {
			s.logger.Error("partial transition: meeting written, stage not recorded",
				zap.String("lead_id", id),
				zap.String("stage", string(to)),
				zap.String("meeting_id", meeting.ID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.metrics.IncrStageTransition(to)
	fields := []zap.Field{
		zap.String("lead_id", id),
		zap.String("stage", string(to)),
		zap.String("actor", actor),
	}
	if to.IsRecording() {
		fields = append(fields, zap.Bool("recording_stage", true))
	}
	s.logger.Info("stage transition recorded", fields...)

	// --- Step 4: broadcast ---
	s.publish(ctx, id, "transition", actor)
	return &domain.TransitionResult{Lead: l, Meeting: meeting}, nil
}
