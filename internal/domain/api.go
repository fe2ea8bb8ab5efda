package domain

import "time"

// ============================================================
// Request payloads (decoded and validated by the handler layer)
// ============================================================

// CreateLeadRequest is the body of POST /v1/leads.
type CreateLeadRequest struct {
	ID            string `json:"id,omitempty" validate:"omitempty,max=64"`
	Priority      string `json:"priority,omitempty" validate:"omitempty,oneof=A B C"`
	Segment       string `json:"segment,omitempty"`
	SourceChannel string `json:"sourceChannel,omitempty"`
	AssignedAgent string `json:"assignedAgent,omitempty"`
	NextFollowUp  string `json:"nextFollowUp,omitempty" validate:"omitempty,datetime=2006-01-02"`

	CompanyName        string `json:"companyName,omitempty" validate:"omitempty,max=200"`
	Website            string `json:"website,omitempty" validate:"omitempty,url"`
	CompanyLinkedIn    string `json:"companyLinkedin,omitempty" validate:"omitempty,url"`
	PersonLinkedIn     string `json:"personLinkedin,omitempty" validate:"omitempty,url"`
	State              string `json:"state,omitempty"`
	DecisionMakerName  string `json:"decisionMakerName,omitempty"`
	DecisionMakerTitle string `json:"decisionMakerTitle,omitempty"`
	Email              string `json:"email,omitempty" validate:"omitempty,email"`
	PhoneWorkDirect    string `json:"phoneWorkDirect,omitempty"`
	PhoneMobile        string `json:"phoneMobile,omitempty"`
	PhoneHome          string `json:"phoneHome,omitempty"`
}

// MeetingInput is the meeting data a "Meeting Booked" transition needs.
// Field presence is a transition precondition, so only formats are
// validated at decode time.
type MeetingInput struct {
	Date     string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time     string `json:"time" validate:"omitempty,datetime=15:04"`
	Assignee string `json:"assignee"`
	Notes    string `json:"notes,omitempty"`
}

// Complete reports whether date, time and assignee are all present.
func (m *MeetingInput) Complete() bool {
	return m != nil && m.Date != "" && m.Time != "" && m.Assignee != ""
}

// MeetingArtifact is the completed-meeting reference a "Meeting Completed"
// transition needs.
type MeetingArtifact struct {
	Link  string `json:"link" validate:"omitempty,url"`
	Notes string `json:"notes,omitempty"`
}

// TransitionRequest is the body of POST /v1/leads/{leadId}/transition.
type TransitionRequest struct {
	Stage    string           `json:"stage" validate:"required"`
	Reason   string           `json:"reason,omitempty" validate:"omitempty,max=500"`
	Meeting  *MeetingInput    `json:"meeting,omitempty"`
	Artifact *MeetingArtifact `json:"artifact,omitempty"`
}

// TransitionResult reports the new lead state and any meeting written.
type TransitionResult struct {
	Lead    *Lead    `json:"lead"`
	Meeting *Meeting `json:"meeting,omitempty"`
}

// QualificationRequest is the body of PUT /v1/leads/{leadId}/qualification.
type QualificationRequest struct {
	RightPerson bool `json:"rightPerson"`
	RealNeed    bool `json:"realNeed"`
	Timing      bool `json:"timing"`
}

// ScheduleFollowUpRequest is the body of PUT /v1/leads/{leadId}/follow-up.
type ScheduleFollowUpRequest struct {
	Date string `json:"date" validate:"required"`
}

// CustomTouchInput is one caller-defined touch of a custom cadence.
type CustomTouchInput struct {
	Day   int    `json:"day" validate:"gte=0,lte=365"`
	Type  string `json:"type" validate:"required,oneof=call email linkedin"`
	Label string `json:"label,omitempty" validate:"omitempty,max=120"`
}

// StartCadenceRequest is the body of POST /v1/leads/{leadId}/cadence.
type StartCadenceRequest struct {
	Type      string             `json:"type" validate:"required,oneof=cold-14day warm-fast custom"`
	StartedAt *time.Time         `json:"startedAt,omitempty"`
	Touches   []CustomTouchInput `json:"touches,omitempty" validate:"omitempty,dive"`
}

// AssignLeadRequest is the body of PUT /v1/leads/{leadId}/assignment.
type AssignLeadRequest struct {
	AgentID string `json:"agentId" validate:"required,max=64"`
}
