package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

// SideEffects carries the collaborator data some transitions require.
type SideEffects struct {
	// Meeting is the meeting to create when entering Meeting Booked.
	Meeting *domain.MeetingInput
	// Artifact is attached to Scheduled when entering Meeting Completed.
	Artifact *domain.MeetingArtifact
	// Scheduled is the lead's most recent scheduled meeting, if any.
	Scheduled *domain.Meeting
}

// CheckTransition validates the side-effect preconditions of entering a
// stage. It never touches the lead.
func CheckTransition(to domain.Stage, fx SideEffects) error {
	switch to {
	case domain.StageMeetingBooked:
		if !fx.Meeting.Complete() {
			return &domain.ErrPreconditionFailed{Stage: to, Requirement: "meeting data required"}
		}
	case domain.StageMeetingCompleted:
		if fx.Artifact == nil || fx.Artifact.Link == "" {
			return &domain.ErrPreconditionFailed{Stage: to, Requirement: "meeting artifact link required"}
		}
		if fx.Scheduled == nil {
			return &domain.ErrPreconditionFailed{Stage: to, Requirement: "scheduled meeting required"}
		}
	}
	return nil
}

// Transition is the set of writes produced by ApplyTransition.
type Transition struct {
	Patch    domain.LeadPatch
	History  domain.StageHistoryEntry
	Activity domain.Activity
}

// ApplyTransition moves the lead to stage `to`. Preconditions are checked
// first; on failure the lead is left untouched. On success the lead gets
// the new status, exactly one history entry, one stage-change activity,
// and closure fields set or cleared. The returned Transition mirrors the
// in-memory change for the store.
func ApplyTransition(l *domain.Lead, to domain.Stage, actor, reason string, now time.Time, fx SideEffects) (*Transition, error) {
	if !to.Valid() {
		return nil, &domain.ErrValidation{Field: "stage", Message: "unknown stage '" + string(to) + "'"}
	}
	if err := CheckTransition(to, fx); err != nil {
		return nil, err
	}

	from := l.Status
	desc := fmt.Sprintf("Stage changed from %s to %s", from, to)
	if reason != "" {
		desc += ": " + reason
	}

	t := &Transition{
		History:  domain.StageHistoryEntry{Stage: to, EnteredAt: now, Agent: actor},
		Activity: domain.NewActivity(domain.ActivityStageChange, desc, actor, now),
	}
	t.Patch.Status = &to
	t.Patch.LastActivity = &now

	switch {
	case to.IsClosed():
		at := now
		t.Patch.Closure = &domain.Closure{ClosedBy: actor, ClosedAt: &at, ClosedReason: reason}
	case from.IsClosed():
		t.Patch.Closure = &domain.Closure{}
	}

	t.Patch.Apply(l)
	l.StageHistory = append(l.StageHistory, t.History)
	l.Activities = append(l.Activities, t.Activity)
	return t, nil
}
