package domain

import (
	"fmt"
	"time"
)

// Date is a calendar date encoded as YYYYMMDD, e.g. 20200415.
type Date int

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	return Date(t.Year()*10000 + int(t.Month())*100 + t.Day())
}

// Year returns the four-digit year.
func (d Date) Year() int { return int(d) / 10000 }

// Month returns the month component.
func (d Date) Month() time.Month { return time.Month(int(d) / 100 % 100) }

// Day returns the day-of-month component.
func (d Date) Day() int { return int(d) % 100 }

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// DaysSince returns the number of calendar days from earlier to d.
func (d Date) DaysSince(earlier Date) int {
	hours := d.Time(time.UTC).Sub(earlier.Time(time.UTC)).Hours()
	return int(hours / 24)
}

// Valid reports whether d names a real calendar date.
func (d Date) Valid() bool {
	if d <= 0 {
		return false
	}
	return DateOf(d.Time(time.UTC)) == d
}

// Short renders d as M/D for messages.
func (d Date) Short() string {
	return fmt.Sprintf("%d/%d", int(d.Month()), d.Day())
}

func (d Date) String() string {
	return fmt.Sprintf("%08d", int(d))
}
