package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/cache"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/memory"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func countByType(ns []domain.Notification) map[domain.NotificationType]int {
	out := map[domain.NotificationType]int{}
	for _, n := range ns {
		out[n.Type]++
	}
	return out
}

func TestDeriveNotifications(t *testing.T) {
	today := domain.MustParseDate("2024-01-05")
	agents := []domain.Agent{{ID: "bob", Name: "Bob", Active: true}, {ID: "eve", Name: "Eve", Active: false}}

	overdue := withFollowUp(domain.StageWorking, "2024-01-02")
	overdue.ID, overdue.AssignedAgent = "L-overdue", "bob"

	dueToday := withFollowUp(domain.StageWorking, "2024-01-05")
	dueToday.ID, dueToday.AssignedAgent = "L-today", "bob"

	won := withFollowUp(domain.StageClosedWon, "2024-01-02")
	won.ID, won.AssignedAgent = "L-won", "bob"

	assigned := leadIn(domain.StageNewLead)
	assigned.ID, assigned.AssignedAgent = "L-assigned", "bob"
	act := domain.NewActivity(domain.ActivityAssignment, "Assigned to bob", "alice", t0)
	act.Subject = "bob"
	assigned.Activities = append(assigned.Activities, act)

	ready := leadIn(domain.StageNewLead)
	ready.ID, ready.QualityGatePass = "L-ready", true

	orphaned := leadIn(domain.StageWorking)
	orphaned.ID, orphaned.AssignedAgent = "L-orphan", "eve"

	leads := []*domain.Lead{overdue, dueToday, won, assigned, ready, orphaned}
	got := service.DeriveNotifications(leads, agents, today)

	counts := countByType(got)
	assert.Equal(t, 1, counts[domain.NotificationOverdue], "closed won lead is never overdue")
	assert.Equal(t, 1, counts[domain.NotificationFollowUp])
	assert.Equal(t, 1, counts[domain.NotificationAssignment])
	assert.Equal(t, 2, counts[domain.NotificationSystem])

	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].Timestamp.After(got[i-1].Timestamp), "notifications must be newest first")
	}
	for _, n := range got {
		assert.False(t, n.Read)
		if n.Type == domain.NotificationAssignment {
			assert.Contains(t, n.Message, "Bob", "assignee shown by roster name")
		}
	}

	again := service.DeriveNotifications(leads, agents, today)
	require.Len(t, again, len(got))
	for i := range got {
		assert.Equal(t, got[i].ID, again[i].ID, "ids must be stable across derivations")
	}
}

func newNotificationFixture(t *testing.T, now time.Time) (*memory.Store, *service.NotificationService, *observability.Metrics) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.UpsertAgent(ctx, domain.Agent{ID: "bob", Name: "Bob", Active: true}))

	mine := domain.NewLead("L-mine", "alice", now)
	mine.AssignedAgent = "bob"
	d := domain.MustParseDate("2024-01-01")
	mine.NextFollowUp = &d
	require.NoError(t, store.CreateLead(ctx, mine))

	theirs := domain.NewLead("L-theirs", "alice", now)
	theirs.AssignedAgent = "carol"
	theirs.NextFollowUp = &d
	require.NoError(t, store.CreateLead(ctx, theirs))

	metrics := observability.NewMetrics()
	svc := service.NewNotificationService(store, store, store, cache.New[[]domain.Agent](ctx, time.Minute),
		metrics, zap.NewNop(), service.FixedClock(now), time.UTC)
	return store, svc, metrics
}

func TestNotificationService_ListIsScopedAndPure(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store, svc, _ := newNotificationFixture(t, now)
	ctx := context.Background()

	list, err := svc.List(ctx, "bob")
	require.NoError(t, err)

	var leadIDs []string
	for _, n := range list {
		if n.Type != domain.NotificationSystem {
			leadIDs = append(leadIDs, n.LeadID)
		}
	}
	assert.NotContains(t, leadIDs, "L-theirs", "other agents' lead notices are hidden")
	assert.Contains(t, leadIDs, "L-mine")

	read, err := store.ReadIDs(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, read, "List must not write read flags")
}

func TestNotificationService_OpenAndAcknowledge(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	_, svc, metrics := newNotificationFixture(t, now)
	ctx := context.Background()

	panel, err := svc.OpenAndAcknowledge(ctx, "bob")
	require.NoError(t, err)
	require.NotEmpty(t, panel.Notifications)
	assert.Equal(t, len(panel.Notifications), panel.Acknowledged)
	for _, n := range panel.Notifications {
		assert.False(t, n.Read, "panel shows the state at open time")
	}

	list, err := svc.List(ctx, "bob")
	require.NoError(t, err)
	for _, n := range list {
		assert.True(t, n.Read, "notification %s should be read after opening", n.ID)
	}

	panel, err = svc.OpenAndAcknowledge(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, panel.Acknowledged)

	snap := metrics.PipelineSnapshot()
	assert.Equal(t, int64(len(list)), snap.NotificationsAcked)
	assert.Greater(t, snap.RosterCacheHitRate, 0.0, "roster served from cache after first load")
}

func hasUnavailableNotice(ns []domain.Notification, leadID string) bool {
	for _, n := range ns {
		if n.Type == domain.NotificationSystem && n.LeadID == leadID && n.Title == "Assigned agent unavailable" {
			return true
		}
	}
	return false
}

func TestNotificationService_AssignmentRefreshesRoster(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.UpsertAgent(ctx, domain.Agent{ID: "bob", Name: "Bob", Active: true}))
	require.NoError(t, store.CreateLead(ctx, domain.NewLead("L-1", "alice", now)))

	roster := cache.New[[]domain.Agent](ctx, time.Hour)
	metrics := observability.NewMetrics()
	notifs := service.NewNotificationService(store, store, store, roster, metrics, zap.NewNop(), service.FixedClock(now), time.UTC)
	leads := service.NewLeadService(store, store, store, nil, metrics, zap.NewNop(), service.FixedClock(now), time.UTC).
		WithRosterCache(roster)

	// Warm the cache with a roster that has no dave.
	_, err := notifs.List(ctx, "bob")
	require.NoError(t, err)

	require.NoError(t, store.UpsertAgent(ctx, domain.Agent{ID: "dave", Name: "Dave", Active: true}))
	_, err = leads.AssignLead(ctx, "L-1", "alice", "dave")
	require.NoError(t, err)

	list, err := notifs.List(ctx, "dave")
	require.NoError(t, err)
	assert.False(t, hasUnavailableNotice(list, "L-1"), "dave is active and must not be reported unavailable")
}

func TestNotificationService_InvalidateRoster(t *testing.T) {
	now := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)
	store, svc, _ := newNotificationFixture(t, now)
	ctx := context.Background()

	list, err := svc.List(ctx, "bob")
	require.NoError(t, err)
	require.True(t, hasUnavailableNotice(list, "L-theirs"), "carol is not on the roster yet")

	require.NoError(t, store.UpsertAgent(ctx, domain.Agent{ID: "carol", Name: "Carol", Active: true}))
	list, err = svc.List(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, hasUnavailableNotice(list, "L-theirs"), "cached roster is still served")

	svc.InvalidateRoster()
	list, err = svc.List(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, hasUnavailableNotice(list, "L-theirs"))
}
