// Package checks holds the single-row sanity checks: formula, freshness,
// checker sign-off, rate bounds, and history monotonicity.
package checks

import (
	"strings"
	"time"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

const stampLayout = "01/02 15:04"

// Config holds the freshness windows.
type Config struct {
	// StaleUpdateDays flags a source whose last update is at least this old.
	StaleUpdateDays float64
	// CheckLagHours is how far Last Check may trail Last Update.
	CheckLagHours float64
	// BlankCheckHours treats a larger lag as a blank Last Check cell.
	BlankCheckHours float64
	// CheckAgeHours is the maximum age of Last Check near release.
	CheckAgeHours float64
	// RecentCheckHours is the window in which a missing checker is flagged
	// even outside the release window.
	RecentCheckHours float64
	// StartOfTime marks Last Check stamps that were never really set.
	StartOfTime time.Time
}

// DefaultConfig returns the working-sheet windows.
func DefaultConfig() Config {
	return Config{
		StaleUpdateDays:  2,
		CheckLagHours:    1,
		BlankCheckHours:  2000,
		CheckAgeHours:    6,
		RecentCheckHours: 5,
		StartOfTime:      time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

// Checker runs row checks. Fields in covered already get a dedicated
// blank/unparseable finding from the staleness analyzer, so the formula
// check does not report them a second time.
type Checker struct {
	cfg     Config
	covered map[domain.Field]bool
}

// New creates a Checker.
func New(cfg Config, covered []domain.Field) *Checker {
	c := &Checker{cfg: cfg, covered: make(map[domain.Field]bool, len(covered))}
	for _, f := range covered {
		c.covered[f] = true
	}
	return c
}

// Working runs every row check used for the unpublished sheet.
func (c *Checker) Working(obs domain.TargetObservation, nearRelease bool, log *resultlog.Log) {
	c.Total(obs, log)
	c.LastUpdate(obs, log)
	c.LastChecked(obs, nearRelease, log)
	c.CheckersInitials(obs, nearRelease, log)
	PositivesRate(obs, log)
	DeathRate(obs, log)
	RecoveredVsPositive(obs, log)
	PendingsRate(obs, log)
}

// Current runs the subset that applies to already published rows.
func (c *Checker) Current(obs domain.TargetObservation, log *resultlog.Log) {
	c.Total(obs, log)
	c.LastUpdate(obs, log)
	PositivesRate(obs, log)
	DeathRate(obs, log)
	PendingsRate(obs, log)
}

func badValue(f domain.Field, v int64) string {
	switch v {
	case domain.Blank:
		return string(f) + " is blank"
	case domain.Unparseable:
		return string(f) + " is invalid"
	default:
		return string(f) + " is negative (" + domain.FormatCount(v) + ")"
	}
}

// Total checks positive + negative + pending == total. A blank pending
// counts as zero.
func (c *Checker) Total(obs domain.TargetObservation, log *resultlog.Log) {
	region := obs.Region
	vals := make(map[domain.Field]int64, 4)
	bad := false

	for _, f := range []domain.Field{domain.Positive, domain.Negative, domain.Pending, domain.Death} {
		v, ok := obs.Value(f)
		if !ok {
			if f != domain.Pending {
				bad = true
			}
			continue
		}
		if f == domain.Pending && v == domain.Blank {
			v = 0
		}
		vals[f] = v
		if v >= 0 {
			continue
		}
		bad = true
		if domain.IsSentinel(v) && c.covered[f] {
			continue
		}
		log.DataEntry(region, "%s", badValue(f, v))
	}

	total, ok := obs.Value(domain.Total)
	if bad || !ok {
		return
	}
	if total < 0 {
		log.DataEntry(region, "%s", badValue(domain.Total, total))
		return
	}

	pos, neg, pending := vals[domain.Positive], vals[domain.Negative], vals[domain.Pending]
	if diff := total - (pos + neg + pending); diff != 0 {
		log.DataEntry(region, "Formula broken -> Positive (%d) + Negative (%d) + Pending (%d) != Total (%d), delta = %d",
			pos, neg, pending, total, diff)
	}
}

// LastUpdate flags a source that has not updated for StaleUpdateDays.
func (c *Checker) LastUpdate(obs domain.TargetObservation, log *resultlog.Log) {
	if obs.LastUpdate.IsZero() || obs.TargetTime.IsZero() {
		return
	}
	days := obs.TargetTime.Sub(obs.LastUpdate).Hours() / 24
	if days >= c.cfg.StaleUpdateDays {
		log.DataSource(obs.Region, "source hasn't updated in %.0f days", days)
	}
}

// LastChecked verifies the sheet was checked after its last update and
// recently. Only applies near release.
func (c *Checker) LastChecked(obs domain.TargetObservation, nearRelease bool, log *resultlog.Log) {
	if !nearRelease || obs.LastUpdate.IsZero() {
		return
	}

	lag := obs.LastUpdate.Sub(obs.LastCheck).Hours()
	if lag > c.cfg.CheckLagHours {
		if obs.LastCheck.IsZero() || lag > c.cfg.BlankCheckHours {
			log.DataEntry(obs.Region, "Last Check ET is blank")
			return
		}
		log.DataEntry(obs.Region, "Last Check ET is %s which is less than Last Update ET %s by %.0f hours",
			obs.LastCheck.Format(stampLayout), obs.LastUpdate.Format(stampLayout), lag)
		return
	}

	age := obs.TargetTime.Sub(obs.LastCheck).Hours()
	if age > c.cfg.CheckAgeHours {
		log.DataEntry(obs.Region, "Last Check ET has not been updated in %.0f hours (%s by %s)",
			age, obs.LastCheck.Format(stampLayout), obs.Checker)
	}
}

// CheckersInitials verifies checker and double-checker sign-off.
func (c *Checker) CheckersInitials(obs domain.TargetObservation, nearRelease bool, log *resultlog.Log) {
	if !obs.LastCheck.After(c.cfg.StartOfTime) {
		return
	}

	if strings.TrimSpace(obs.Checker) == "" {
		hours := obs.TargetTime.Sub(obs.LastCheck).Hours()
		switch {
		case hours > 0 && hours < c.cfg.RecentCheckHours:
			log.DataEntry(obs.Region, "missing checker initials but checked date set recently (at %s)",
				obs.LastCheck.Format(stampLayout))
		case nearRelease:
			log.DataEntry(obs.Region, "missing checker initials")
		}
		return
	}

	if strings.TrimSpace(obs.DoubleChecker) == "" && nearRelease {
		log.DataEntry(obs.Region, "missing double-checker initials")
	}
}

// counts returns the requested values when every one of them is a real count.
func counts(obs domain.TargetObservation, fields ...domain.Field) ([]int64, bool) {
	out := make([]int64, len(fields))
	for i, f := range fields {
		v, ok := obs.Value(f)
		if !ok || v < 0 {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}

// PositivesRate flags a positive share of test results above 40% (80% for
// small totals).
func PositivesRate(obs domain.TargetObservation, log *resultlog.Log) {
	v, ok := counts(obs, domain.Positive, domain.Negative)
	if !ok {
		return
	}
	pos, tot := v[0], v[0]+v[1]
	pct := percent(pos, tot)

	limit := 80.0
	if tot > 100 {
		limit = 40.0
	}
	if pct > limit && pos > 20 {
		log.DataQuality(obs.Region, "high positives rate %.0f%% (positive=%s, total=%s)",
			pct, domain.FormatCount(pos), domain.FormatCount(tot))
	}
}

// DeathRate flags deaths above 5% of test results (10% for small totals).
func DeathRate(obs domain.TargetObservation, log *resultlog.Log) {
	v, ok := counts(obs, domain.Positive, domain.Negative, domain.Death)
	if !ok {
		return
	}
	deaths, tot := v[2], v[0]+v[1]
	pct := percent(deaths, tot)

	limit := 10.0
	if tot > 100 {
		limit = 5.0
	}
	if pct > limit {
		log.DataQuality(obs.Region, "high death rate %.0f%% (death=%s, total=%s)",
			pct, domain.FormatCount(deaths), domain.FormatCount(tot))
	}
}

// RecoveredVsPositive flags more recoveries than positives.
func RecoveredVsPositive(obs domain.TargetObservation, log *resultlog.Log) {
	v, ok := counts(obs, domain.Recovered, domain.Positive)
	if !ok {
		return
	}
	if v[0] > v[1] {
		log.DataQuality(obs.Region, "More recovered than positive (recovered=%s, positive=%s)",
			domain.FormatCount(v[0]), domain.FormatCount(v[1]))
	}
}

// PendingsRate flags pending results above 20% of test results (80% for
// totals up to 1,000).
func PendingsRate(obs domain.TargetObservation, log *resultlog.Log) {
	v, ok := counts(obs, domain.Positive, domain.Negative, domain.Pending)
	if !ok {
		return
	}
	pending, tot := v[2], v[0]+v[1]
	pct := percent(pending, tot)

	limit := 80.0
	if tot > 1000 {
		limit = 20.0
	}
	if pct > limit {
		log.DataQuality(obs.Region, "high pending rate %.0f%% (pending=%s, total=%s)",
			pct, domain.FormatCount(pending), domain.FormatCount(tot))
	}
}

// MonotonicFields are the cumulative counters that must never decrease
// across published history.
var MonotonicFields = []domain.Field{domain.Positive, domain.Negative, domain.HospitalizedCumulative, domain.Death}

// Monotonic reports, per field, every date on which the published value
// dropped from the previous day.
func Monotonic(history domain.HistorySeries, log *resultlog.Log) {
	entries := history.Ascending()
	for _, f := range MonotonicFields {
		var dates []string
		for i := 1; i < len(entries); i++ {
			prev, okPrev := entries[i-1].Values.Get(f)
			cur, okCur := entries[i].Values.Get(f)
			if !okPrev || !okCur || prev < 0 || cur < 0 {
				continue
			}
			if prev > cur {
				dates = append(dates, entries[i].Date.String())
			}
		}
		if len(dates) > 0 {
			log.DataQuality(history.Region, "%s values decreased from the previous day (on %s)",
				f, strings.Join(dates, ", "))
		}
	}
}
