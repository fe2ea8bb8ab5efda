package domain

import (
	"fmt"
	"time"
)

// CadenceType selects an outreach template.
type CadenceType string

const (
	CadenceCold14Day CadenceType = "cold-14day"
	CadenceWarmFast  CadenceType = "warm-fast"
	CadenceCustom    CadenceType = "custom"
)

// ParseCadenceType validates a cadence template key.
func ParseCadenceType(s string) (CadenceType, error) {
	switch CadenceType(s) {
	case CadenceCold14Day, CadenceWarmFast, CadenceCustom:
		return CadenceType(s), nil
	}
	return "", &ErrValidation{Field: "type", Message: "unknown cadence type '" + s + "'"}
}

// TouchType is the outreach channel of a touch.
type TouchType string

const (
	TouchCall     TouchType = "call"
	TouchEmail    TouchType = "email"
	TouchLinkedIn TouchType = "linkedin"
)

// ParseTouchType validates a touch channel.
func ParseTouchType(s string) (TouchType, error) {
	switch TouchType(s) {
	case TouchCall, TouchEmail, TouchLinkedIn:
		return TouchType(s), nil
	}
	return "", &ErrValidation{Field: "touch.type", Message: "must be one of call, email, linkedin"}
}

// ActivityType maps the touch channel onto the activity log.
func (t TouchType) ActivityType() ActivityType {
	switch t {
	case TouchCall:
		return ActivityCall
	case TouchEmail:
		return ActivityEmail
	case TouchLinkedIn:
		return ActivityLinkedIn
	}
	return ActivityNote
}

// TemplateTouch is one scheduled step of a cadence template.
type TemplateTouch struct {
	Day   int       `json:"day"`
	Type  TouchType `json:"type"`
	Label string    `json:"label"`
}

// CadenceTemplate is a fixed, named sequence of touches.
type CadenceTemplate struct {
	Type    CadenceType     `json:"type"`
	Name    string          `json:"name"`
	Touches []TemplateTouch `json:"touches"`
}

var cadenceTemplates = map[CadenceType]CadenceTemplate{
	CadenceCold14Day: {
		Type: CadenceCold14Day,
		Name: "Cold Outreach (14 days)",
		Touches: []TemplateTouch{
			{Day: 1, Type: TouchCall, Label: "Intro Call"},
			{Day: 1, Type: TouchEmail, Label: "Intro Email"},
			{Day: 2, Type: TouchLinkedIn, Label: "LinkedIn Connect"},
			{Day: 4, Type: TouchCall, Label: "Check-in Call"},
			{Day: 5, Type: TouchEmail, Label: "Value Email"},
			{Day: 7, Type: TouchCall, Label: "Follow-up Call"},
			{Day: 8, Type: TouchLinkedIn, Label: "LinkedIn Message"},
			{Day: 10, Type: TouchEmail, Label: "Case Study Email"},
			{Day: 12, Type: TouchCall, Label: "Final Call"},
			{Day: 14, Type: TouchEmail, Label: "Breakup Email"},
		},
	},
	CadenceWarmFast: {
		Type: CadenceWarmFast,
		Name: "Warm Fast-Track",
		Touches: []TemplateTouch{
			{Day: 0, Type: TouchCall, Label: "Immediate Call"},
			{Day: 0, Type: TouchEmail, Label: "Recap Email"},
			{Day: 1, Type: TouchCall, Label: "Follow-up Call"},
			{Day: 1, Type: TouchLinkedIn, Label: "LinkedIn Connect"},
			{Day: 2, Type: TouchEmail, Label: "Value Email"},
			{Day: 3, Type: TouchCall, Label: "Closing Call"},
		},
	},
}

// TemplateFor returns the catalog template for a cadence type. Custom
// cadences have no template.
func TemplateFor(t CadenceType) (CadenceTemplate, bool) {
	tmpl, ok := cadenceTemplates[t]
	return tmpl, ok
}

// Templates lists the catalog in a stable order.
func Templates() []CadenceTemplate {
	return []CadenceTemplate{cadenceTemplates[CadenceCold14Day], cadenceTemplates[CadenceWarmFast]}
}

// CadenceTouch pairs a scheduled touch with its completion state, so a
// touch can never drift away from the step it belongs to.
type CadenceTouch struct {
	Day         int        `json:"day"`
	Type        TouchType  `json:"type"`
	Label       string     `json:"label,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Cadence is an instance of a template bound to a lead and a start time.
type Cadence struct {
	Type       CadenceType    `json:"type"`
	StartedAt  time.Time      `json:"startedAt"`
	CurrentDay int            `json:"currentDay"`
	Touches    []CadenceTouch `json:"touches"`
}

// NewCadence instantiates a catalog template. Custom cadences must use
// NewCustomCadence.
func NewCadence(t CadenceType, startedAt time.Time) (*Cadence, error) {
	tmpl, ok := TemplateFor(t)
	if !ok {
		return nil, &ErrValidation{Field: "type", Message: fmt.Sprintf("cadence type '%s' has no template", t)}
	}
	touches := make([]CadenceTouch, len(tmpl.Touches))
	for i, tt := range tmpl.Touches {
		touches[i] = CadenceTouch{Day: tt.Day, Type: tt.Type, Label: tt.Label}
	}
	return &Cadence{Type: t, StartedAt: startedAt, Touches: touches}, nil
}

// NewCustomCadence builds a custom cadence from caller-defined touches.
func NewCustomCadence(startedAt time.Time, steps []TemplateTouch) (*Cadence, error) {
	if len(steps) == 0 {
		return nil, &ErrValidation{Field: "touches", Message: "custom cadence needs at least one touch"}
	}
	touches := make([]CadenceTouch, len(steps))
	for i, s := range steps {
		if s.Day < 0 {
			return nil, &ErrValidation{Field: fmt.Sprintf("touches[%d].day", i), Message: "must not be negative"}
		}
		if _, err := ParseTouchType(string(s.Type)); err != nil {
			return nil, err
		}
		touches[i] = CadenceTouch{Day: s.Day, Type: s.Type, Label: s.Label}
	}
	return &Cadence{Type: CadenceCustom, StartedAt: startedAt, Touches: touches}, nil
}

// CheckCadence validates a cadence read from storage. A shape mismatch
// (unknown type, touch count differing from the template) keeps the raw
// value and marks it untrusted.
func CheckCadence(c *Cadence) Checked[*Cadence] {
	if c == nil {
		return Trusted[*Cadence](nil)
	}
	if _, err := ParseCadenceType(string(c.Type)); err != nil {
		return Fallback(c, err)
	}
	if tmpl, ok := TemplateFor(c.Type); ok && len(tmpl.Touches) != len(c.Touches) {
		return Fallback(c, &ErrValidation{
			Field:   "touches",
			Message: fmt.Sprintf("%d touches stored, template '%s' has %d", len(c.Touches), c.Type, len(tmpl.Touches)),
		})
	}
	return Trusted(c)
}

// Clone deep-copies the cadence.
func (c *Cadence) Clone() *Cadence {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Touches = make([]CadenceTouch, len(c.Touches))
	for i, t := range c.Touches {
		if t.CompletedAt != nil {
			at := *t.CompletedAt
			t.CompletedAt = &at
		}
		cp.Touches[i] = t
	}
	return &cp
}

// CompletedCount counts completed touches.
func (c *Cadence) CompletedCount() int {
	n := 0
	for _, t := range c.Touches {
		if t.Completed {
			n++
		}
	}
	return n
}

// TouchStatus is the wall-clock classification of a pending touch.
type TouchStatus string

const (
	TouchOverdue  TouchStatus = "overdue"
	TouchDue      TouchStatus = "due"
	TouchUpcoming TouchStatus = "upcoming"
)

// CadenceTask is a pending touch resolved against its template.
type CadenceTask struct {
	Index  int         `json:"index"`
	Day    int         `json:"day"`
	Type   TouchType   `json:"type"`
	Label  string      `json:"label"`
	Status TouchStatus `json:"status"`
}

// CadenceTasks is the read-time view of a cadence.
type CadenceTasks struct {
	Overdue     []CadenceTask `json:"overdue"`
	Due         []CadenceTask `json:"due"`
	Upcoming    []CadenceTask `json:"upcoming"`
	Progress    int           `json:"progress"`
	ElapsedDays int           `json:"elapsedDays"`
}

// ActionList returns the touches that need work now: overdue first, then
// due, each in template order.
func (t CadenceTasks) ActionList() []CadenceTask {
	out := make([]CadenceTask, 0, len(t.Overdue)+len(t.Due))
	out = append(out, t.Overdue...)
	return append(out, t.Due...)
}
