package service_test

import (
	"testing"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"
)

func withFollowUp(stage domain.Stage, date string) *domain.Lead {
	l := leadIn(stage)
	d := domain.MustParseDate(date)
	l.NextFollowUp = &d
	return l
}

func TestClassifyFollowUp(t *testing.T) {
	today := domain.MustParseDate("2024-01-05")
	tests := []struct {
		name string
		lead *domain.Lead
		want domain.FollowUpStatus
	}{
		{"none scheduled", leadIn(domain.StageWorking), domain.FollowUpNone},
		{"past date", withFollowUp(domain.StageWorking, "2024-01-04"), domain.FollowUpOverdue},
		{"today", withFollowUp(domain.StageWorking, "2024-01-05"), domain.FollowUpDueToday},
		{"future", withFollowUp(domain.StageWorking, "2024-01-06"), domain.FollowUpUpcoming},
		{"closed won yesterday", withFollowUp(domain.StageClosedWon, "2024-01-04"), domain.FollowUpNone},
		{"closed lost long ago", withFollowUp(domain.StageClosedLost, "2023-06-01"), domain.FollowUpNone},
		{"nurture past", withFollowUp(domain.StageNurture, "2024-01-01"), domain.FollowUpNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.ClassifyFollowUp(tt.lead, today); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestFollowUp_EndToEnd(t *testing.T) {
	l := withFollowUp(domain.StageNewLead, "2024-01-01")
	today := domain.MustParseDate("2024-01-05")

	if !service.IsOverdue(l, today) {
		t.Fatal("expected overdue before completion")
	}

	act := service.ApplyCompleteFollowUp(l, "alice", time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC))
	if act == nil || act.Type != domain.ActivityFollowUp {
		t.Fatalf("expected follow-up activity, got %+v", act)
	}
	if l.NextFollowUp != nil {
		t.Fatalf("expected follow-up cleared, got %v", l.NextFollowUp)
	}
	if service.IsOverdue(l, today) {
		t.Fatal("expected not overdue after completion")
	}
	if l.Status != domain.StageNewLead {
		t.Errorf("completion must not change status, got %s", l.Status)
	}
}

func TestApplyCompleteFollowUp_NoOpWhenCleared(t *testing.T) {
	l := leadIn(domain.StageWorking)
	before := len(l.Activities)
	if act := service.ApplyCompleteFollowUp(l, "alice", t0); act != nil {
		t.Fatalf("expected no activity, got %+v", act)
	}
	if len(l.Activities) != before {
		t.Fatal("no activity may be appended when nothing is scheduled")
	}
}

func TestGroupFollowUps(t *testing.T) {
	today := domain.MustParseDate("2024-01-05")
	leads := []*domain.Lead{
		withFollowUp(domain.StageWorking, "2024-01-03"),
		withFollowUp(domain.StageWorking, "2024-01-01"),
		withFollowUp(domain.StageWorking, "2024-01-05"),
		withFollowUp(domain.StageWorking, "2024-01-09"),
		withFollowUp(domain.StageWorking, "2024-01-07"),
		withFollowUp(domain.StageClosedWon, "2024-01-02"),
		leadIn(domain.StageWorking),
	}

	q := service.GroupFollowUps(leads, today)
	if len(q.Overdue) != 2 || q.Overdue[0].NextFollowUp.String() != "2024-01-01" {
		t.Fatalf("expected two overdue sorted by date, got %d", len(q.Overdue))
	}
	if len(q.DueToday) != 1 {
		t.Errorf("expected one due today, got %d", len(q.DueToday))
	}
	if len(q.Upcoming) != 2 || q.Upcoming[0].NextFollowUp.String() != "2024-01-07" {
		t.Errorf("expected two upcoming sorted by date, got %d", len(q.Upcoming))
	}
}
