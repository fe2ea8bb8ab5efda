package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/memory"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- Mocks ---

type recordingPublisher struct {
	mu      sync.Mutex
	changes []domain.LeadChange
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, c domain.LeadChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.changes = append(p.changes, c)
	return nil
}

func (p *recordingPublisher) reasons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.changes))
	for i, c := range p.changes {
		out[i] = c.Reason
	}
	return out
}

// failingMeetings fails every meeting write.
type failingMeetings struct{ *memory.Store }

func (failingMeetings) CreateMeeting(context.Context, *domain.Meeting) error {
	return &domain.ErrExternalService{Service: "meetings", Err: errors.New("down")}
}

type leadFixture struct {
	store   *memory.Store
	svc     *service.LeadService
	pub     *recordingPublisher
	metrics *observability.Metrics
}

func newLeadFixture(t *testing.T, now time.Time) *leadFixture {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.UpsertAgent(context.Background(), domain.Agent{ID: "bob", Name: "Bob", Active: true}))
	require.NoError(t, store.UpsertAgent(context.Background(), domain.Agent{ID: "eve", Name: "Eve", Active: false}))
	pub := &recordingPublisher{}
	metrics := observability.NewMetrics()
	svc := service.NewLeadService(store, store, store, pub, metrics, zap.NewNop(), service.FixedClock(now), time.UTC)
	return &leadFixture{store: store, svc: svc, pub: pub, metrics: metrics}
}

func (f *leadFixture) create(t *testing.T, req domain.CreateLeadRequest) *domain.Lead {
	t.Helper()
	l, err := f.svc.CreateLead(context.Background(), "alice", &req)
	require.NoError(t, err)
	return l
}

// --- Tests ---

func TestLeadService_CreateAndAssign(t *testing.T) {
	f := newLeadFixture(t, t0)
	ctx := context.Background()

	l := f.create(t, domain.CreateLeadRequest{ID: "L-1", CompanyName: "Acme"})
	assert.Equal(t, domain.StageNewLead, l.Status)
	assert.Equal(t, domain.PriorityC, l.Priority)
	require.Len(t, l.StageHistory, 1)

	_, err := f.svc.AssignLead(ctx, "L-1", "alice", "eve")
	var ve *domain.ErrValidation
	require.True(t, errors.As(err, &ve), "inactive agent must be rejected, got %v", err)

	l, err = f.svc.AssignLead(ctx, "L-1", "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", l.AssignedAgent)

	stored, err := f.svc.GetLead(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, "bob", stored.AssignedAgent)
	last := stored.Activities[len(stored.Activities)-1]
	assert.Equal(t, domain.ActivityAssignment, last.Type)
	assert.Equal(t, "bob", last.Subject)

	assert.Equal(t, []string{"created", "assigned"}, f.pub.reasons())
}

func TestLeadService_TransitionRecordsHistory(t *testing.T) {
	f := newLeadFixture(t, t0)
	ctx := context.Background()
	f.create(t, domain.CreateLeadRequest{ID: "L-1"})

	_, err := f.svc.Transition(ctx, "L-1", "alice", &domain.TransitionRequest{Stage: "Working"})
	require.NoError(t, err)
	res, err := f.svc.Transition(ctx, "L-1", "alice", &domain.TransitionRequest{Stage: "Qualified"})
	require.NoError(t, err)
	assert.Nil(t, res.Meeting)

	stored, err := f.svc.GetLead(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageQualified, stored.Status)
	require.Len(t, stored.StageHistory, 3)
	assert.Equal(t, domain.StageWorking, stored.StageHistory[1].Stage)
	assert.Equal(t, domain.StageQualified, stored.StageHistory[2].Stage)

	snap := f.metrics.PipelineSnapshot()
	assert.Equal(t, int64(1), snap.Transitions[domain.StageQualified])
}

func TestLeadService_TransitionPreconditionWritesNothing(t *testing.T) {
	f := newLeadFixture(t, t0)
	ctx := context.Background()
	f.create(t, domain.CreateLeadRequest{ID: "L-1"})
	published := len(f.pub.reasons())

	_, err := f.svc.Transition(ctx, "L-1", "alice", &domain.TransitionRequest{Stage: "Meeting Booked"})
	var pf *domain.ErrPreconditionFailed
	require.True(t, errors.As(err, &pf), "expected precondition failure, got %v", err)

	stored, err := f.svc.GetLead(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageNewLead, stored.Status)
	assert.Len(t, stored.StageHistory, 1)
	_, err = f.store.LatestScheduledMeeting(ctx, "L-1")
	assert.Error(t, err, "no meeting may be written")
	assert.Len(t, f.pub.reasons(), published, "no broadcast for a rejected transition")
	assert.Equal(t, int64(1), f.metrics.PipelineSnapshot().PreconditionFailures[domain.StageMeetingBooked])
}

func TestLeadService_MeetingFlow(t *testing.T) {
	f := newLeadFixture(t, t0)
	ctx := context.Background()
	f.create(t, domain.CreateLeadRequest{ID: "L-1"})

	booked, err := f.svc.Transition(ctx, "L-1", "alice", &domain.TransitionRequest{
		Stage:   "Meeting Booked",
		Meeting: &domain.MeetingInput{Date: "2024-01-10", Time: "14:30", Assignee: "bob"},
	})
	require.NoError(t, err)
	require.NotNil(t, booked.Meeting)
	assert.Equal(t, domain.MeetingScheduled, booked.Meeting.Status)

	_, err = f.svc.Transition(ctx, "L-1", "alice", &domain.TransitionRequest{Stage: "Meeting Completed"})
	var pf *domain.ErrPreconditionFailed
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, "meeting artifact link required", pf.Requirement)

	done, err := f.svc.Transition(ctx, "L-1", "alice", &domain.TransitionRequest{
		Stage:    "Meeting Completed",
		Artifact: &domain.MeetingArtifact{Link: "https://rec.example/abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, booked.Meeting.ID, done.Meeting.ID)
	assert.Equal(t, domain.MeetingCompleted, done.Meeting.Status)
	assert.Equal(t, domain.StageMeetingCompleted, done.Lead.Status)

	_, err = f.store.LatestScheduledMeeting(ctx, "L-1")
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf), "meeting no longer scheduled")
}

func TestLeadService_MeetingCompletedNeedsScheduledMeeting(t *testing.T) {
	f := newLeadFixture(t, t0)
	f.create(t, domain.CreateLeadRequest{ID: "L-1"})

	_, err := f.svc.Transition(context.Background(), "L-1", "alice", &domain.TransitionRequest{
		Stage:    "Meeting Completed",
		Artifact: &domain.MeetingArtifact{Link: "https://rec.example/abc"},
	})
	var pf *domain.ErrPreconditionFailed
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, "scheduled meeting required", pf.Requirement)
}

func TestLeadService_MeetingWriteFailureLeavesStage(t *testing.T) {
	store := memory.New()
	svc := service.NewLeadService(store, failingMeetings{store}, store, nil, observability.NewMetrics(), zap.NewNop(), service.FixedClock(t0), time.UTC)
	ctx := context.Background()
	_, err := svc.CreateLead(ctx, "alice", &domain.CreateLeadRequest{ID: "L-1"})
	require.NoError(t, err)

	_, err = svc.Transition(ctx, "L-1", "alice", &domain.TransitionRequest{
		Stage:   "Meeting Booked",
		Meeting: &domain.MeetingInput{Date: "2024-01-10", Time: "14:30", Assignee: "bob"},
	})
	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext), "expected external error, got %v", err)

	stored, err := svc.GetLead(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageNewLead, stored.Status)
}

func TestLeadService_FollowUpEndToEnd(t *testing.T) {
	now := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	f := newLeadFixture(t, now)
	ctx := context.Background()
	f.create(t, domain.CreateLeadRequest{ID: "L-1", AssignedAgent: "bob", NextFollowUp: "2024-01-01"})

	view, err := f.svc.FollowUp(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FollowUpOverdue, view.Status)

	queue, err := f.svc.FollowUpQueue(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, queue.Overdue, 1)

	l, changed, err := f.svc.CompleteFollowUp(ctx, "L-1", "bob")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Nil(t, l.NextFollowUp)

	stored, err := f.svc.GetLead(ctx, "L-1")
	require.NoError(t, err)
	assert.Nil(t, stored.NextFollowUp)
	followUps := 0
	for _, a := range stored.Activities {
		if a.Type == domain.ActivityFollowUp {
			followUps++
		}
	}
	assert.Equal(t, 1, followUps)

	_, changed, err = f.svc.CompleteFollowUp(ctx, "L-1", "bob")
	require.NoError(t, err)
	assert.False(t, changed)
	again, err := f.svc.GetLead(ctx, "L-1")
	require.NoError(t, err)
	assert.Len(t, again.Activities, len(stored.Activities), "second completion writes nothing")

	view, err = f.svc.FollowUp(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, domain.FollowUpNone, view.Status)
}

func TestLeadService_ScheduleFollowUpRejectsBadDate(t *testing.T) {
	f := newLeadFixture(t, t0)
	f.create(t, domain.CreateLeadRequest{ID: "L-1"})

	_, err := f.svc.ScheduleFollowUp(context.Background(), "L-1", "alice", &domain.ScheduleFollowUpRequest{Date: "2024-02-30"})
	var ve *domain.ErrValidation
	assert.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
}

func TestLeadService_Cadence(t *testing.T) {
	start := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	f := newLeadFixture(t, start.Add(4*24*time.Hour))
	ctx := context.Background()
	f.create(t, domain.CreateLeadRequest{ID: "L-1"})

	l, err := f.svc.StartCadence(ctx, "L-1", "alice", &domain.StartCadenceRequest{Type: "cold-14day", StartedAt: &start})
	require.NoError(t, err)
	require.NotNil(t, l.Cadence)
	assert.Len(t, l.Cadence.Touches, 10)

	tasks, err := f.svc.CadenceTasks(ctx, "L-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, tasks.Due, 1)
	assert.Equal(t, "Check-in Call", tasks.Due[0].Label)

	l, err = f.svc.CompleteTouch(ctx, "L-1", "alice", 3)
	require.NoError(t, err)
	assert.True(t, l.Cadence.Touches[3].Completed)
	last := l.Activities[len(l.Activities)-1]
	assert.Equal(t, domain.ActivityCall, last.Type)

	tasks, err = f.svc.CadenceTasks(ctx, "L-1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, tasks.Due)
	assert.Equal(t, 10, tasks.Progress)

	_, err = f.svc.CompleteTouch(ctx, "L-1", "alice", 42)
	var nf *domain.ErrNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestLeadService_QualityGateSnapshot(t *testing.T) {
	f := newLeadFixture(t, t0)
	ctx := context.Background()
	f.create(t, domain.CreateLeadRequest{
		ID: "L-1", CompanyName: "Acme", Website: "https://acme.example", State: "SP", Segment: "SMB",
		DecisionMakerName: "Jane", Email: "jane@acme.example", SourceChannel: "inbound",
	})

	status, err := f.svc.QualityGateStatus(ctx, "L-1")
	require.NoError(t, err)
	assert.True(t, status.Live.Pass)
	assert.False(t, status.Snapshot)
	assert.True(t, status.Stale, "never evaluated, snapshot lags the live gate")

	res, err := f.svc.EvaluateQualityGate(ctx, "L-1", "alice")
	require.NoError(t, err)
	assert.True(t, res.Pass)

	status, err = f.svc.QualityGateStatus(ctx, "L-1")
	require.NoError(t, err)
	assert.True(t, status.Snapshot)
	assert.False(t, status.Stale)
}

func TestLeadService_UpdateQualification(t *testing.T) {
	f := newLeadFixture(t, t0)
	ctx := context.Background()
	f.create(t, domain.CreateLeadRequest{ID: "L-1"})

	l, err := f.svc.UpdateQualification(ctx, "L-1", "bob", &domain.QualificationRequest{RightPerson: true, RealNeed: true, Timing: true})
	require.NoError(t, err)
	require.NotNil(t, l.Qualification.QualifiedAt)
	assert.Equal(t, "bob", l.Qualification.QualifiedBy)
	assert.Equal(t, domain.StageNewLead, l.Status, "qualification is independent of stage")

	l, err = f.svc.UpdateQualification(ctx, "L-1", "bob", &domain.QualificationRequest{RightPerson: true})
	require.NoError(t, err)
	assert.Nil(t, l.Qualification.QualifiedAt)
}

func TestLeadService_BroadcastFailureDoesNotFailMutation(t *testing.T) {
	f := newLeadFixture(t, t0)
	f.pub.err = errors.New("redis down")

	_, err := f.svc.CreateLead(context.Background(), "alice", &domain.CreateLeadRequest{ID: "L-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.metrics.PipelineSnapshot().ExternalErrorsByTarget["realtime"])
}

func TestLeadService_UntrustedStoredStageFallsBack(t *testing.T) {
	f := newLeadFixture(t, t0)
	ctx := context.Background()
	l := domain.NewLead("L-raw", "import", t0)
	l.Status = domain.Stage("qualified-ish")
	require.NoError(t, f.store.CreateLead(ctx, l))

	got, err := f.svc.GetLead(ctx, "L-raw")
	require.NoError(t, err)
	assert.Equal(t, domain.StageNewLead, got.Status)
}

func TestLeadService_ListLeadsFiltersNormalizedStage(t *testing.T) {
	f := newLeadFixture(t, t0)
	ctx := context.Background()
	f.create(t, domain.CreateLeadRequest{ID: "L-new"})
	f.create(t, domain.CreateLeadRequest{ID: "L-work"})
	_, err := f.svc.Transition(ctx, "L-work", "alice", &domain.TransitionRequest{Stage: "Working"})
	require.NoError(t, err)
	raw := domain.NewLead("L-raw", "import", t0)
	raw.Status = domain.Stage("qualified-ish")
	require.NoError(t, f.store.CreateLead(ctx, raw))

	ids := func(ls []*domain.Lead) []string {
		out := make([]string, 0, len(ls))
		for _, l := range ls {
			out = append(out, l.ID)
		}
		return out
	}

	fresh, err := f.svc.ListLeads(ctx, domain.LeadFilter{Status: domain.StageNewLead})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"L-new", "L-raw"}, ids(fresh))
	for _, l := range fresh {
		assert.Equal(t, domain.StageNewLead, l.Status)
	}

	working, err := f.svc.ListLeads(ctx, domain.LeadFilter{Status: domain.StageWorking})
	require.NoError(t, err)
	assert.Equal(t, []string{"L-work"}, ids(working))
}

// failingHistory stores everything except stage history.
type failingHistory struct{ *memory.Store }

func (failingHistory) AppendStageHistory(context.Context, string, domain.StageHistoryEntry) error {
	return &domain.ErrExternalService{Service: "leads", Err: errors.New("down")}
}

func TestLeadService_HistoryFailureAfterPatchIsLogged(t *testing.T) {
	f := newLeadFixture(t, t0)
	ctx := context.Background()
	f.create(t, domain.CreateLeadRequest{ID: "L-1"})

	core, logs := observer.New(zapcore.ErrorLevel)
	store := failingHistory{f.store}
	svc := service.NewLeadService(store, f.store, f.store, f.pub, f.metrics, zap.New(core), service.FixedClock(t0), time.UTC)

	_, err := svc.Transition(ctx, "L-1", "alice", &domain.TransitionRequest{Stage: "Working"})
	var ext *domain.ErrExternalService
	require.True(t, errors.As(err, &ext), "expected the history failure, got %v", err)

	stored, err := f.svc.GetLead(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageWorking, stored.Status, "the status patch is already stored")
	assert.Len(t, stored.StageHistory, 1)

	entries := logs.FilterMessage("partial write: lead patched, stage history not recorded").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "L-1", fields["lead_id"])
	assert.Equal(t, "Working", fields["stage"])
}
