package domain

import "time"

// NotificationType is one of the four derived signal kinds.
type NotificationType string

const (
	NotificationFollowUp   NotificationType = "follow-up"
	NotificationOverdue    NotificationType = "overdue"
	NotificationAssignment NotificationType = "assignment"
	NotificationSystem     NotificationType = "system"
)

// Notification is derived from lead state on every read. Only the Read
// flag is persisted, keyed by ID.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
	Read      bool             `json:"read"`
	LeadID    string           `json:"leadId,omitempty"`
}

// NotificationPanel is the result of opening the notification panel.
type NotificationPanel struct {
	Notifications []Notification `json:"notifications"`
	Acknowledged  int            `json:"acknowledged"`
}

// FollowUpStatus classifies a lead's scheduled follow-up against today.
type FollowUpStatus string

const (
	FollowUpNone     FollowUpStatus = "none"
	FollowUpOverdue  FollowUpStatus = "overdue"
	FollowUpDueToday FollowUpStatus = "due_today"
	FollowUpUpcoming FollowUpStatus = "upcoming"
)

// FollowUpView is the per-lead follow-up classification.
type FollowUpView struct {
	LeadID       string         `json:"leadId"`
	NextFollowUp *Date          `json:"nextFollowUp"`
	Status       FollowUpStatus `json:"status"`
}

// FollowUpQueue groups an agent's leads for the dashboard.
type FollowUpQueue struct {
	Today    Date    `json:"today"`
	Overdue  []*Lead `json:"overdue"`
	DueToday []*Lead `json:"dueToday"`
	Upcoming []*Lead `json:"upcoming"`
}
