package qc

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/case-data-qc/internal/domain"
)

// Eastern is the zone the reporting cycle is scheduled in.
const Eastern = "America/New_York"

// RunDates are the dates a check pass targets, derived from the time of day
// in US/Eastern. History is published around 17:00; current is pushed at
// midnight, noon and 17:00.
type RunDates struct {
	Now         time.Time
	Working     time.Time
	Push        time.Time
	Publish     time.Time
	PushNumber  int
	NearRelease bool
	Phase       domain.Phase
}

// WorkingDate returns the working date as YYYYMMDD.
func (r RunDates) WorkingDate() domain.Date { return domain.DateOf(r.Working) }

// PushDate returns the push date as YYYYMMDD.
func (r RunDates) PushDate() domain.Date { return domain.DateOf(r.Push) }

// PublishDate returns the publish date as YYYYMMDD.
func (r RunDates) PublishDate() domain.Date { return domain.DateOf(r.Publish) }

// Target returns the date and timestamp a dataset is checked against.
func (r RunDates) Target(ds domain.Dataset) (domain.Date, time.Time) {
	switch ds {
	case domain.DatasetCurrent:
		return r.PushDate(), r.Push
	case domain.DatasetHistory:
		return r.PublishDate(), r.Publish
	default:
		return r.WorkingDate(), r.Working
	}
}

// Calendar computes RunDates from a clock.
type Calendar struct {
	clock clockwork.Clock
	loc   *time.Location
}

// NewCalendar loads the Eastern zone. A nil clock uses real time.
func NewCalendar(clock clockwork.Clock) (*Calendar, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	loc, err := time.LoadLocation(Eastern)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", Eastern, err)
	}
	return &Calendar{clock: clock, loc: loc}, nil
}

// Location returns the Eastern location.
func (c *Calendar) Location() *time.Location { return c.loc }

// Now computes the run dates for the current clock time.
func (c *Calendar) Now() RunDates {
	return DatesAt(c.clock.Now().In(c.loc))
}

// DatesAt computes the run dates for now, which should already be in
// Eastern time.
func DatesAt(now time.Time) RunDates {
	r := RunDates{Now: now}
	yesterday := now.AddDate(0, 0, -1)

	switch h := now.Hour(); {
	case h < 8:
		r.Working, r.Push, r.Publish = yesterday, yesterday, yesterday
		r.PushNumber = 3
	case h < 12:
		r.Working = now
		r.Push, r.Publish = yesterday, yesterday
		r.PushNumber = 3
	case h < 17:
		r.Working, r.Push = now, now
		r.Publish = yesterday
		r.PushNumber = 1
	default:
		r.Working, r.Push = now, now
		r.Publish = yesterday
		r.PushNumber = 2
	}

	h := now.Hour()
	r.NearRelease = (h >= 11 && h <= 12) || (h >= 15 && h <= 17)

	switch {
	case r.NearRelease:
		r.Phase = domain.PhasePublish
	case h < 15:
		r.Phase = domain.PhasePrepare
	default:
		r.Phase = domain.PhaseUpdate
	}
	return r
}
