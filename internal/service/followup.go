package service

import (
	"sort"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

// ClassifyFollowUp places a lead's next follow-up relative to today.
// Past dates on terminal leads are not overdue and classify as none.
func ClassifyFollowUp(l *domain.Lead, today domain.Date) domain.FollowUpStatus {
	if l.NextFollowUp == nil || l.NextFollowUp.IsZero() {
		return domain.FollowUpNone
	}
	switch d := *l.NextFollowUp; {
	case d.Before(today):
		if l.Status.IsTerminal() {
			return domain.FollowUpNone
		}
		return domain.FollowUpOverdue
	case d.Equal(today):
		return domain.FollowUpDueToday
	default:
		return domain.FollowUpUpcoming
	}
}

// IsOverdue reports whether the lead's follow-up date has passed and the
// lead is still being worked.
func IsOverdue(l *domain.Lead, today domain.Date) bool {
	return ClassifyFollowUp(l, today) == domain.FollowUpOverdue
}

// ApplyCompleteFollowUp clears the follow-up date and logs one follow-up
// activity. When no follow-up is scheduled it does nothing and returns
// nil. Status is never changed.
func ApplyCompleteFollowUp(l *domain.Lead, actor string, now time.Time) *domain.Activity {
	if l.NextFollowUp == nil {
		return nil
	}
	act := domain.NewActivity(domain.ActivityFollowUp, "Follow-up completed (was "+l.NextFollowUp.String()+")", actor, now)
	l.NextFollowUp = nil
	l.LastActivity = now
	l.Activities = append(l.Activities, act)
	return &act
}

// ApplyScheduleFollowUp sets the next follow-up. Past dates are accepted
// and are immediately overdue.
func ApplyScheduleFollowUp(l *domain.Lead, date domain.Date, actor string, now time.Time) domain.Activity {
	d := date
	l.NextFollowUp = &d
	l.LastActivity = now
	act := domain.NewActivity(domain.ActivityFollowUpScheduled, "Follow-up scheduled for "+date.String(), actor, now)
	l.Activities = append(l.Activities, act)
	return act
}

// GroupFollowUps splits leads into the dashboard queue. Leads without a
// follow-up or whose past date is suppressed by a terminal stage are left
// out.
func GroupFollowUps(leads []*domain.Lead, today domain.Date) *domain.FollowUpQueue {
	q := &domain.FollowUpQueue{
		Today:    today,
		Overdue:  []*domain.Lead{},
		DueToday: []*domain.Lead{},
		Upcoming: []*domain.Lead{},
	}
	for _, l := range leads {
		switch ClassifyFollowUp(l, today) {
		case domain.FollowUpOverdue:
			q.Overdue = append(q.Overdue, l)
		case domain.FollowUpDueToday:
			q.DueToday = append(q.DueToday, l)
		case domain.FollowUpUpcoming:
			q.Upcoming = append(q.Upcoming, l)
		}
	}
	byDate := func(ls []*domain.Lead) {
		sort.SliceStable(ls, func(i, j int) bool { return ls[i].NextFollowUp.Before(*ls[j].NextFollowUp) })
	}
	byDate(q.Overdue)
	byDate(q.Upcoming)
	return q
}
