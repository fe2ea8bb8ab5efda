package domain

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================
// Lead: aggregate root of the pipeline
// ============================================================

// Priority ranks a lead for outreach.
type Priority string

const (
	PriorityA Priority = "A"
	PriorityB Priority = "B"
	PriorityC Priority = "C"
)

// ParsePriority validates a priority key. Empty defaults to C.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityA, PriorityB, PriorityC:
		return Priority(s), nil
	case "":
		return PriorityC, nil
	}
	return "", &ErrValidation{Field: "priority", Message: "must be one of A, B, C"}
}

// Lead is a prospective customer tracked through the pipeline.
type Lead struct {
	ID string `json:"id"`

	// Classification
	Status        Stage    `json:"status"`
	Priority      Priority `json:"priority"`
	Segment       string   `json:"segment"`
	SourceChannel string   `json:"sourceChannel"`

	// Ownership
	AssignedAgent string     `json:"assignedAgent"`
	AddedBy       string     `json:"addedBy"`
	ClosedBy      string     `json:"closedBy,omitempty"`
	ClosedAt      *time.Time `json:"closedAt,omitempty"`
	ClosedReason  string     `json:"closedReason,omitempty"`

	// Temporal
	Date         time.Time `json:"date"`
	LastActivity time.Time `json:"lastActivity"`
	NextFollowUp *Date     `json:"nextFollowUp"`

	Qualification   Qualification `json:"qualification"`
	QualityGatePass bool          `json:"qualityGatePass"`

	// Append-only history
	Activities   []Activity          `json:"activities"`
	StageHistory []StageHistoryEntry `json:"stageHistory"`

	Cadence *Cadence `json:"cadence,omitempty"`

	// Contact and company fields (quality gate and UI only)
	CompanyName        string `json:"companyName"`
	Website            string `json:"website"`
	CompanyLinkedIn    string `json:"companyLinkedin"`
	PersonLinkedIn     string `json:"personLinkedin"`
	State              string `json:"state"`
	DecisionMakerName  string `json:"decisionMakerName"`
	DecisionMakerTitle string `json:"decisionMakerTitle"`
	Email              string `json:"email"`
	PhoneWorkDirect    string `json:"phoneWorkDirect"`
	PhoneMobile        string `json:"phoneMobile"`
	PhoneHome          string `json:"phoneHome"`
}

// NewLead builds a lead in the first stage with its initial history entry.
func NewLead(id, addedBy string, now time.Time) *Lead {
	if id == "" {
		id = uuid.New().String()
	}
	return &Lead{
		ID:           id,
		Status:       StageNewLead,
		Priority:     PriorityC,
		AddedBy:      addedBy,
		Date:         now,
		LastActivity: now,
		Activities:   []Activity{},
		StageHistory: []StageHistoryEntry{{Stage: StageNewLead, EnteredAt: now, Agent: addedBy}},
	}
}

// Qualification is the right-person / real-need / timing assessment.
type Qualification struct {
	RightPerson bool       `json:"rightPerson"`
	RealNeed    bool       `json:"realNeed"`
	Timing      bool       `json:"timing"`
	QualifiedAt *time.Time `json:"qualifiedAt,omitempty"`
	QualifiedBy string     `json:"qualifiedBy,omitempty"`
}

// IsQualified is independent of the lead's pipeline stage.
func (q Qualification) IsQualified() bool {
	return q.RightPerson && q.RealNeed && q.Timing
}

// ActivityType classifies an activity log entry.
type ActivityType string

const (
	ActivityCall              ActivityType = "call"
	ActivityEmail             ActivityType = "email"
	ActivityLinkedIn          ActivityType = "linkedin"
	ActivityNote              ActivityType = "note"
	ActivityStageChange       ActivityType = "stage-change"
	ActivityFollowUp          ActivityType = "follow-up"
	ActivityFollowUpScheduled ActivityType = "follow-up-scheduled"
	ActivityQualityGate       ActivityType = "quality-gate"
	ActivityQualification     ActivityType = "qualification"
	ActivityAssignment        ActivityType = "assignment"
	ActivityCadenceStarted    ActivityType = "cadence-started"
)

// Activity is an append-only log entry on a lead.
type Activity struct {
	ID          string       `json:"id"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	Timestamp   time.Time    `json:"timestamp"`
	Agent       string       `json:"agent"`
	// Subject is the agent an assignment activity refers to.
	Subject string `json:"subject,omitempty"`
}

// NewActivity stamps a fresh activity entry.
func NewActivity(t ActivityType, description, agent string, now time.Time) Activity {
	return Activity{
		ID:          uuid.New().String(),
		Type:        t,
		Description: description,
		Timestamp:   now,
		Agent:       agent,
	}
}

// StageHistoryEntry records one stage transition. Entries are never edited
// or removed.
type StageHistoryEntry struct {
	Stage     Stage     `json:"stage"`
	EnteredAt time.Time `json:"enteredAt"`
	Agent     string    `json:"agent"`
}

// LeadPatch is a single field-group write. Nil fields are left untouched.
type LeadPatch struct {
	Status          *Stage
	Closure         *Closure
	NextFollowUp    *Date
	ClearFollowUp   bool
	LastActivity    *time.Time
	Qualification   *Qualification
	QualityGatePass *bool
	Cadence         *Cadence
	AssignedAgent   *string
}

// Closure holds the closed-deal fields. A zero Closure clears them.
type Closure struct {
	ClosedBy     string
	ClosedAt     *time.Time
	ClosedReason string
}

// Apply copies the patch onto an in-memory lead. Stores use it to keep
// their own copy in sync with what was persisted.
func (p LeadPatch) Apply(l *Lead) {
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.Closure != nil {
		l.ClosedBy = p.Closure.ClosedBy
		l.ClosedAt = p.Closure.ClosedAt
		l.ClosedReason = p.Closure.ClosedReason
	}
	if p.ClearFollowUp {
		l.NextFollowUp = nil
	} else if p.NextFollowUp != nil {
		d := *p.NextFollowUp
		l.NextFollowUp = &d
	}
	if p.LastActivity != nil {
		l.LastActivity = *p.LastActivity
	}
	if p.Qualification != nil {
		l.Qualification = *p.Qualification
	}
	if p.QualityGatePass != nil {
		l.QualityGatePass = *p.QualityGatePass
	}
	if p.Cadence != nil {
		l.Cadence = p.Cadence.Clone()
	}
	if p.AssignedAgent != nil {
		l.AssignedAgent = *p.AssignedAgent
	}
}

// LeadFilter narrows ListLeads. Empty fields match everything.
type LeadFilter struct {
	AssignedAgent string
	Status        Stage
}

// Matches reports whether the lead satisfies the filter. Status compares
// the normalized stage, so an unrecognized stored value matches New Lead.
func (f LeadFilter) Matches(l *Lead) bool {
	if f.AssignedAgent != "" && l.AssignedAgent != f.AssignedAgent {
		return false
	}
	if f.Status != "" && NormalizeStage(string(l.Status)).Value != f.Status {
		return false
	}
	return true
}

// Clone returns a deep copy so callers can mutate without aliasing
// store-owned slices.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	c := *l
	c.Activities = append([]Activity(nil), l.Activities...)
	c.StageHistory = append([]StageHistoryEntry(nil), l.StageHistory...)
	if l.NextFollowUp != nil {
		d := *l.NextFollowUp
		c.NextFollowUp = &d
	}
	if l.ClosedAt != nil {
		t := *l.ClosedAt
		c.ClosedAt = &t
	}
	c.Cadence = l.Cadence.Clone()
	return &c
}

// ============================================================
// Collaborator records
// ============================================================

// Agent is a sales rep that leads can be assigned to.
type Agent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Active bool   `json:"active"`
}

// MeetingStatus tracks a meeting record owned by the storage collaborator.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingCompleted MeetingStatus = "completed"
)

// Meeting is the record a "Meeting Booked" transition requires.
type Meeting struct {
	ID            string        `json:"id"`
	LeadID        string        `json:"leadId"`
	Date          string        `json:"date"`
	Time          string        `json:"time"`
	Assignee      string        `json:"assignee"`
	Notes         string        `json:"notes,omitempty"`
	Status        MeetingStatus `json:"status"`
	RecordingLink string        `json:"recordingLink,omitempty"`
	CreatedBy     string        `json:"createdBy"`
	CreatedAt     time.Time     `json:"createdAt"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
}

// MeetingPatch attaches the completed-meeting artifact.
type MeetingPatch struct {
	Status        MeetingStatus
	RecordingLink string
	Notes         string
	CompletedAt   time.Time
}

// LeadChange is the "lead changed" broadcast signal. Subscribers re-read
// fresh state; the signal carries no snapshot.
type LeadChange struct {
	LeadID string    `json:"leadId"`
	Reason string    `json:"reason"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}
