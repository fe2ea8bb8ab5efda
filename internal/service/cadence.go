package service

import (
	"math"
	"strconv"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

// ElapsedDays is the number of whole days since startedAt, floored. It is
// negative when startedAt lies in the future.
func ElapsedDays(startedAt, now time.Time) int {
	return int(math.Floor(now.Sub(startedAt).Hours() / 24))
}

// GetCadenceTasks classifies every pending touch of a cadence against now.
// Each touch is scheduled on the day of the template entry at the same
// position, falling back to the touch's own day when there is no template.
func GetCadenceTasks(c *domain.Cadence, now time.Time) domain.CadenceTasks {
	out := domain.CadenceTasks{
		Overdue:  []domain.CadenceTask{},
		Due:      []domain.CadenceTask{},
		Upcoming: []domain.CadenceTask{},
	}
	if c == nil || c.StartedAt.IsZero() || len(c.Touches) == 0 {
		return out
	}

	elapsed := ElapsedDays(c.StartedAt, now)
	out.ElapsedDays = elapsed
	tmpl, hasTmpl := domain.TemplateFor(c.Type)

	for i, touch := range c.Touches {
		if touch.Completed {
			continue
		}
		task := domain.CadenceTask{Index: i, Day: touch.Day, Type: touch.Type, Label: touch.Label}
		if hasTmpl && i < len(tmpl.Touches) {
			task.Day = tmpl.Touches[i].Day
			task.Type = tmpl.Touches[i].Type
			task.Label = tmpl.Touches[i].Label
		}

		switch {
		case task.Day < elapsed:
			task.Status = domain.TouchOverdue
			out.Overdue = append(out.Overdue, task)
		case task.Day == elapsed:
			task.Status = domain.TouchDue
			out.Due = append(out.Due, task)
		default:
			task.Status = domain.TouchUpcoming
			out.Upcoming = append(out.Upcoming, task)
		}
	}

	out.Progress = int(math.Round(100 * float64(c.CompletedCount()) / float64(len(c.Touches))))
	return out
}

// LeadCadenceTasks is GetCadenceTasks with terminal-stage suppression:
// a lead in a terminal stage has nothing due, only progress.
func LeadCadenceTasks(l *domain.Lead, now time.Time) domain.CadenceTasks {
	tasks := GetCadenceTasks(l.Cadence, now)
	if l.Status.IsTerminal() {
		tasks.Overdue = []domain.CadenceTask{}
		tasks.Due = []domain.CadenceTask{}
		tasks.Upcoming = []domain.CadenceTask{}
	}
	return tasks
}

// BuildCadence instantiates the requested cadence type starting at
// startedAt.
func BuildCadence(req *domain.StartCadenceRequest, startedAt time.Time) (*domain.Cadence, error) {
	typ, err := domain.ParseCadenceType(req.Type)
	if err != nil {
		return nil, err
	}
	if typ != domain.CadenceCustom {
		if len(req.Touches) > 0 {
			return nil, &domain.ErrValidation{Field: "touches", Message: "only custom cadences accept touches"}
		}
		return domain.NewCadence(typ, startedAt)
	}

	steps := make([]domain.TemplateTouch, 0, len(req.Touches))
	for _, t := range req.Touches {
		tt, err := domain.ParseTouchType(t.Type)
		if err != nil {
			return nil, err
		}
		steps = append(steps, domain.TemplateTouch{Day: t.Day, Type: tt, Label: t.Label})
	}
	return domain.NewCustomCadence(startedAt, steps)
}

// ApplyCompleteTouch marks touch i complete. It returns false without
// changes when the touch is already complete.
func ApplyCompleteTouch(c *domain.Cadence, i int, now time.Time) (bool, error) {
	if c == nil {
		return false, &domain.ErrNotFound{Resource: "cadence", ID: ""}
	}
	if i < 0 || i >= len(c.Touches) {
		return false, &domain.ErrNotFound{Resource: "cadence touch", ID: strconv.Itoa(i)}
	}
	if c.Touches[i].Completed {
		return false, nil
	}
	at := now
	c.Touches[i].Completed = true
	c.Touches[i].CompletedAt = &at
	c.CurrentDay = max(ElapsedDays(c.StartedAt, now), 0)
	return true, nil
}
