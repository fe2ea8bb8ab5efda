package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/postgres"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in -short mode")
	}
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("crm"),
		tcpostgres.WithUsername("crm"),
		tcpostgres.WithPassword("crm"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))
	require.NoError(t, postgres.Migrate(ctx, pool), "migrate must be idempotent")

	logger := zap.NewNop()
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	return postgres.NewStore(pool, resilience.NewCircuitBreaker("postgres-test", logger), cfg, logger)
}

func TestStore_LeadLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	lead := domain.NewLead("L-1", "alice", now)
	lead.CompanyName = "Acme"
	follow := domain.MustParseDate("2024-01-05")
	lead.NextFollowUp = &follow
	lead.Activities = append(lead.Activities, domain.NewActivity(domain.ActivityNote, "Lead created", "alice", now))
	require.NoError(t, store.CreateLead(ctx, lead))

	got, err := store.GetLead(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageNewLead, got.Status)
	assert.Equal(t, "Acme", got.CompanyName)
	require.NotNil(t, got.NextFollowUp)
	assert.Equal(t, "2024-01-05", got.NextFollowUp.String())
	assert.Len(t, got.StageHistory, 1)
	assert.Len(t, got.Activities, 1)

	stage := domain.StageWorking
	later := now.Add(time.Hour)
	require.NoError(t, store.PatchLead(ctx, "L-1", domain.LeadPatch{Status: &stage, LastActivity: &later, ClearFollowUp: true}))
	require.NoError(t, store.AppendStageHistory(ctx, "L-1", domain.StageHistoryEntry{Stage: stage, EnteredAt: later, Agent: "alice"}))

	cadence, err := domain.NewCadence(domain.CadenceCold14Day, now)
	require.NoError(t, err)
	require.NoError(t, store.PatchLead(ctx, "L-1", domain.LeadPatch{Cadence: cadence}))

	got, err = store.GetLead(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageWorking, got.Status)
	assert.Nil(t, got.NextFollowUp)
	require.Len(t, got.StageHistory, 2)
	assert.Equal(t, domain.StageWorking, got.StageHistory[1].Stage)
	require.NotNil(t, got.Cadence)
	assert.Len(t, got.Cadence.Touches, 10)

	var nf *domain.ErrNotFound
	err = store.PatchLead(ctx, "missing", domain.LeadPatch{Status: &stage})
	assert.True(t, errors.As(err, &nf), "expected not found, got %v", err)
	err = store.AppendStageHistory(ctx, "missing", domain.StageHistoryEntry{Stage: stage, EnteredAt: later})
	assert.True(t, errors.As(err, &nf), "expected not found, got %v", err)
}

func TestStore_MeetingsAndReads(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateLead(ctx, domain.NewLead("L-2", "bob", now)))

	_, err := store.LatestScheduledMeeting(ctx, "L-2")
	var nf *domain.ErrNotFound
	require.True(t, errors.As(err, &nf))

	m := &domain.Meeting{ID: "M-1", LeadID: "L-2", Date: "2024-02-03", Time: "10:00", Assignee: "bob",
		Status: domain.MeetingScheduled, CreatedBy: "bob", CreatedAt: now}
	require.NoError(t, store.CreateMeeting(ctx, m))

	got, err := store.LatestScheduledMeeting(ctx, "L-2")
	require.NoError(t, err)
	assert.Equal(t, "M-1", got.ID)

	require.NoError(t, store.PatchMeeting(ctx, "M-1", domain.MeetingPatch{
		Status: domain.MeetingCompleted, RecordingLink: "https://rec.example/1", CompletedAt: now.Add(48 * time.Hour),
	}))
	_, err = store.LatestScheduledMeeting(ctx, "L-2")
	assert.True(t, errors.As(err, &nf), "completed meeting is no longer scheduled")

	require.NoError(t, store.UpsertAgent(ctx, domain.Agent{ID: "bob", Name: "Bob", Active: true}))
	agents, err := store.ListAgents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "Bob", agents[0].Name)

	require.NoError(t, store.MarkRead(ctx, "bob", []string{"n1", "n2"}))
	require.NoError(t, store.MarkRead(ctx, "bob", []string{"n2", "n3"}))
	read, err := store.ReadIDs(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"n1": true, "n2": true, "n3": true}, read)
}
