// Package memory is a process-local store used by the dev backend and by
// tests. It honors the same field-group write contract as the SQL and
// PostgREST backends.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

var _ port.Store = (*Store)(nil)

// Store keeps every record behind one RWMutex and hands out clones.
type Store struct {
	mu       sync.RWMutex
	leads    map[string]*domain.Lead
	order    []string
	meetings []*domain.Meeting
	agents   map[string]domain.Agent
	reads    map[string]map[string]bool
}

func New() *Store {
	return &Store{
		leads:  make(map[string]*domain.Lead),
		agents: make(map[string]domain.Agent),
		reads:  make(map[string]map[string]bool),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// ============================================================
// Leads
// ============================================================

func (s *Store) GetLead(_ context.Context, id string) (*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "lead", ID: id}
	}
	return l.Clone(), nil
}

func (s *Store) ListLeads(_ context.Context, filter domain.LeadFilter) ([]*domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Lead, 0, len(s.order))
	for _, id := range s.order {
		if l := s.leads[id]; filter.Matches(l) {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

func (s *Store) CreateLead(_ context.Context, l *domain.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.leads[l.ID]; exists {
		return &domain.ErrValidation{Field: "id", Message: "lead '" + l.ID + "' already exists"}
	}
	s.leads[l.ID] = l.Clone()
	s.order = append(s.order, l.ID)
	return nil
}

func (s *Store) PatchLead(_ context.Context, id string, patch domain.LeadPatch) error {
	return s.withLead(id, func(l *domain.Lead) { patch.Apply(l) })
}

func (s *Store) AppendStageHistory(_ context.Context, id string, entry domain.StageHistoryEntry) error {
	return s.withLead(id, func(l *domain.Lead) { l.StageHistory = append(l.StageHistory, entry) })
}

// AppendActivity ignores an activity whose id is already logged.
func (s *Store) AppendActivity(_ context.Context, id string, a domain.Activity) error {
	return s.withLead(id, func(l *domain.Lead) {
		for _, existing := range l.Activities {
			if existing.ID == a.ID {
				return
			}
		}
		l.Activities = append(l.Activities, a)
	})
}

func (s *Store) withLead(id string, fn func(*domain.Lead)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "lead", ID: id}
	}
	fn(l)
	return nil
}

// ============================================================
// Meetings
// ============================================================

func (s *Store) CreateMeeting(_ context.Context, m *domain.Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[m.LeadID]; !ok {
		return &domain.ErrNotFound{Resource: "lead", ID: m.LeadID}
	}
	cp := *m
	s.meetings = append(s.meetings, &cp)
	return nil
}

func (s *Store) LatestScheduledMeeting(_ context.Context, leadID string) (*domain.Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.Meeting
	for _, m := range s.meetings {
		if m.LeadID != leadID || m.Status != domain.MeetingScheduled {
			continue
		}
		if latest == nil || !m.CreatedAt.Before(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, &domain.ErrNotFound{Resource: "scheduled meeting", ID: leadID}
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) PatchMeeting(_ context.Context, id string, patch domain.MeetingPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.meetings {
		if m.ID != id {
			continue
		}
		m.Status = patch.Status
		m.RecordingLink = patch.RecordingLink
		if patch.Notes != "" {
			m.Notes = patch.Notes
		}
		if !patch.CompletedAt.IsZero() {
			at := patch.CompletedAt
			m.CompletedAt = &at
		}
		return nil
	}
	return &domain.ErrNotFound{Resource: "meeting", ID: id}
}

// ============================================================
// Agents and notification reads
// ============================================================

// UpsertAgent adds or replaces a roster entry.
func (s *Store) UpsertAgent(_ context.Context, a domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

// ListAgents returns the roster sorted by id.
func (s *Store) ListAgents(context.Context) ([]domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ReadIDs(_ context.Context, viewer string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.reads[viewer]))
	for id := range s.reads[viewer] {
		out[id] = true
	}
	return out, nil
}

func (s *Store) MarkRead(_ context.Context, viewer string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.reads[viewer]
	if !ok {
		set = make(map[string]bool, len(ids))
		s.reads[viewer] = set
	}
	for _, id := range ids {
		set[id] = true
	}
	return nil
}
