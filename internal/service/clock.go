package service

import (
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/port"
)

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Used in tests and for
// replaying a view "as of" a given time.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// calendar turns the clock into the business calendar of one location.
type calendar struct {
	clock port.Clock
	loc   *time.Location
}

func newCalendar(clock port.Clock, loc *time.Location) calendar {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return calendar{clock: clock, loc: loc}
}

func (c calendar) now() time.Time { return c.clock.Now() }

func (c calendar) today() domain.Date { return domain.DateOf(c.clock.Now().In(c.loc)) }
