// Package port defines the interfaces (ports) for external collaborators.
// Following hexagonal architecture, these ports decouple the lifecycle
// engine from storage and transport implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

// LeadStore persists leads. Every write is an atomic update of exactly the
// field group it names; concurrent writers race and the last write wins.
type LeadStore interface {
	GetLead(ctx context.Context, id string) (*domain.Lead, error)
	ListLeads(ctx context.Context, filter domain.LeadFilter) ([]*domain.Lead, error)
	CreateLead(ctx context.Context, lead *domain.Lead) error
	PatchLead(ctx context.Context, id string, patch domain.LeadPatch) error
	AppendStageHistory(ctx context.Context, id string, entry domain.StageHistoryEntry) error
	AppendActivity(ctx context.Context, id string, activity domain.Activity) error
}

// MeetingStore owns meeting records. LatestScheduledMeeting returns
// ErrNotFound when the lead has no scheduled meeting.
type MeetingStore interface {
	CreateMeeting(ctx context.Context, m *domain.Meeting) error
	LatestScheduledMeeting(ctx context.Context, leadID string) (*domain.Meeting, error)
	PatchMeeting(ctx context.Context, id string, patch domain.MeetingPatch) error
}

// AgentDirectory lists the sales roster.
type AgentDirectory interface {
	ListAgents(ctx context.Context) ([]domain.Agent, error)
}

// NotificationReadStore persists per-viewer read flags of derived
// notifications.
type NotificationReadStore interface {
	ReadIDs(ctx context.Context, viewer string) (map[string]bool, error)
	MarkRead(ctx context.Context, viewer string, ids []string) error
}

// ChangePublisher broadcasts "lead changed" signals. Delivery is
// at-least-once and unordered.
type ChangePublisher interface {
	Publish(ctx context.Context, change domain.LeadChange) error
}

// ChangeSubscriber hands out a per-connection subscription. The returned
// func releases it.
type ChangeSubscriber interface {
	Subscribe(buffer int) (<-chan domain.LeadChange, func())
}

// Store bundles the storage ports a backend provides.
type Store interface {
	LeadStore
	MeetingStore
	AgentDirectory
	NotificationReadStore
	Ping(ctx context.Context) error
}

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
