package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var notifTracer = otel.Tracer("service/notifications")

// notificationID is stable across re-derivations so stored read flags
// keep matching.
func notificationID(typ domain.NotificationType, leadID, key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:crm:notification:"+string(typ)+":"+leadID+":"+key)).String()
}

// DeriveNotifications scans leads and the agent roster and builds every
// notification signal. It is pure: the Read flag is always false here.
// Output is newest first, ties broken by id.
func DeriveNotifications(leads []*domain.Lead, agents []domain.Agent, today domain.Date) []domain.Notification {
	roster := make(map[string]domain.Agent, len(agents))
	for _, a := range agents {
		roster[a.ID] = a
	}

	out := []domain.Notification{}
	for _, l := range leads {
		name := leadName(l)

		switch ClassifyFollowUp(l, today) {
		case domain.FollowUpOverdue:
			due := l.NextFollowUp.String()
			out = append(out, domain.Notification{
				ID:        notificationID(domain.NotificationOverdue, l.ID, due),
				Type:      domain.NotificationOverdue,
				Title:     "Overdue follow-up",
				Message:   fmt.Sprintf("Follow-up with %s was due on %s", name, due),
				Timestamp: l.NextFollowUp.Time(),
				LeadID:    l.ID,
			})
		case domain.FollowUpDueToday:
			if !l.Status.IsTerminal() {
				out = append(out, domain.Notification{
					ID:        notificationID(domain.NotificationFollowUp, l.ID, today.String()),
					Type:      domain.NotificationFollowUp,
					Title:     "Follow-up due today",
					Message:   fmt.Sprintf("Follow up with %s today", name),
					Timestamp: today.Time(),
					LeadID:    l.ID,
				})
			}
		}

		for _, act := range l.Activities {
			if act.Type != domain.ActivityAssignment {
				continue
			}
			assignee := act.Subject
			if a, ok := roster[assignee]; ok && a.Name != "" {
				assignee = a.Name
			}
			out = append(out, domain.Notification{
				ID:        notificationID(domain.NotificationAssignment, l.ID, act.ID),
				Type:      domain.NotificationAssignment,
				Title:     "Lead assigned",
				Message:   fmt.Sprintf("%s was assigned to %s", name, assignee),
				Timestamp: act.Timestamp,
				LeadID:    l.ID,
			})
		}

		if l.Status.IsTerminal() {
			continue
		}
		if l.AssignedAgent == "" {
			if l.QualityGatePass {
				out = append(out, domain.Notification{
					ID:        notificationID(domain.NotificationSystem, l.ID, "ready"),
					Type:      domain.NotificationSystem,
					Title:     "Lead ready for assignment",
					Message:   fmt.Sprintf("%s passed the quality gate and has no agent", name),
					Timestamp: l.LastActivity,
					LeadID:    l.ID,
				})
			}
			continue
		}
		if a, ok := roster[l.AssignedAgent]; !ok || !a.Active {
			out = append(out, domain.Notification{
				ID:        notificationID(domain.NotificationSystem, l.ID, "agent-unavailable:"+l.AssignedAgent),
				Type:      domain.NotificationSystem,
				Title:     "Assigned agent unavailable",
				Message:   fmt.Sprintf("%s is assigned to %s, who is not an active agent", name, l.AssignedAgent),
				Timestamp: l.LastActivity,
				LeadID:    l.ID,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func leadName(l *domain.Lead) string {
	if present(l.CompanyName) {
		return l.CompanyName
	}
	return "Lead " + l.ID
}

// visibleTo keeps the viewer's own leads plus system notices.
func visibleTo(viewer string, leads []*domain.Lead, all []domain.Notification) []domain.Notification {
	owner := make(map[string]string, len(leads))
	for _, l := range leads {
		owner[l.ID] = l.AssignedAgent
	}
	out := make([]domain.Notification, 0, len(all))
	for _, n := range all {
		if n.Type == domain.NotificationSystem || owner[n.LeadID] == viewer {
			out = append(out, n)
		}
	}
	return out
}

// ============================================================
// NotificationService
// ============================================================

const rosterCacheKey = "agents:roster"

// NotificationService serves derived notifications merged with the
// persisted read flags.
type NotificationService struct {
	leads   port.LeadStore
	agents  port.AgentDirectory
	reads   port.NotificationReadStore
	roster  port.Cache[[]domain.Agent]
	metrics *observability.Metrics
	logger  *zap.Logger
	cal     calendar
}

// NewNotificationService creates the notification service.
func NewNotificationService(
	leads port.LeadStore,
	agents port.AgentDirectory,
	reads port.NotificationReadStore,
	roster port.Cache[[]domain.Agent],
	metrics *observability.Metrics,
	logger *zap.Logger,
	clock port.Clock,
	loc *time.Location,
) *NotificationService {
	return &NotificationService{
		leads:   leads,
		agents:  agents,
		reads:   reads,
		roster:  roster,
		metrics: metrics,
		logger:  logger,
		cal:     newCalendar(clock, loc),
	}
}

// List derives the viewer's notifications. It never writes.
func (s *NotificationService) List(ctx context.Context, viewer string) ([]domain.Notification, error) {
	ctx, span := notifTracer.Start(ctx, "NotificationService.List")
	defer span.End()
	span.SetAttributes(attribute.String("viewer.id", viewer))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("notifications.list", time.Since(start))
	}()

	var (
		leads  []*domain.Lead
		agents []domain.Agent
		read   map[string]bool
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ls, err := s.leads.ListLeads(gCtx, domain.LeadFilter{})
		if err != nil {
			s.metrics.IncrExternalError("leads")
			return fmt.Errorf("list leads: %w", err)
		}
		leads = ls
		return nil
	})

	g.Go(func() error {
		as, err := s.loadRoster(gCtx)
		if err != nil {
			return err
		}
		agents = as
		return nil
	})

	g.Go(func() error {
		r, err := s.reads.ReadIDs(gCtx, viewer)
		if err != nil {
			s.metrics.IncrExternalError("notification_reads")
			return fmt.Errorf("read flags: %w", err)
		}
		read = r
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("failed to load notification inputs",
			zap.String("viewer", viewer),
			zap.Error(err),
		)
		return nil, err
	}

	list := visibleTo(viewer, leads, DeriveNotifications(leads, agents, s.cal.today()))
	for i := range list {
		list[i].Read = read[list[i].ID]
	}
	return list, nil
}

// OpenAndAcknowledge is the command issued when the viewer opens the
// notification panel: every unread notification is flipped to read in one
// bulk write. The returned list shows the panel as it was when opened.
func (s *NotificationService) OpenAndAcknowledge(ctx context.Context, viewer string) (*domain.NotificationPanel, error) {
	ctx, span := notifTracer.Start(ctx, "NotificationService.OpenAndAcknowledge")
	defer span.End()

	list, err := s.List(ctx, viewer)
	if err != nil {
		return nil, err
	}

	unread := make([]string, 0, len(list))
	for _, n := range list {
		if !n.Read {
			unread = append(unread, n.ID)
		}
	}
	if len(unread) > 0 {
		if err := s.reads.MarkRead(ctx, viewer, unread); err != nil {
			s.metrics.IncrExternalError("notification_reads")
			return nil, fmt.Errorf("mark read: %w", err)
		}
		s.metrics.AddNotificationsAcknowledged(len(unread))
	}

	s.logger.Info("notification panel opened",
		zap.String("viewer", viewer),
		zap.Int("total", len(list)),
		zap.Int("acknowledged", len(unread)),
	)
	span.SetAttributes(attribute.Int("notifications.acknowledged", len(unread)))

	return &domain.NotificationPanel{Notifications: list, Acknowledged: len(unread)}, nil
}

// InvalidateRoster drops the cached roster; the next read reloads it from
// the agent directory.
func (s *NotificationService) InvalidateRoster() {
	s.roster.Delete(rosterCacheKey)
}

func (s *NotificationService) loadRoster(ctx context.Context) ([]domain.Agent, error) {
	if agents, ok := s.roster.Get(rosterCacheKey); ok {
		s.metrics.IncrCacheHit("agents")
		return agents, nil
	}
	s.metrics.IncrCacheMiss("agents")

	agents, err := s.agents.ListAgents(ctx)
	if err != nil {
		s.metrics.IncrExternalError("agents")
		return nil, fmt.Errorf("list agents: %w", err)
	}
	s.roster.Set(rosterCacheKey, agents)
	return agents, nil
}
