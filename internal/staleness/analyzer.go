// Package staleness detects monitored counters that stopped changing and
// decides whether to report them as one consolidated finding or one finding
// per field.
package staleness

import (
	"log/slog"
	"strings"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

// Status is the outcome for one field.
type Status int

const (
	StatusChanged     Status = iota // value moved since the last published day
	StatusMissing                   // column absent from the observation or history
	StatusSentinel                  // blank or unparseable cell
	StatusDecreased                 // smaller than the last published value
	StatusIgnored                   // below the field's ignore threshold
	StatusConstant                  // never changed within the retained history
	StatusRecent                    // unchanged, but within the grace window
	StatusStale                     // unchanged and reported
)

func (s Status) String() string {
	switch s {
	case StatusChanged:
		return "changed"
	case StatusMissing:
		return "missing"
	case StatusSentinel:
		return "sentinel"
	case StatusDecreased:
		return "decreased"
	case StatusIgnored:
		return "ignored"
	case StatusConstant:
		return "constant"
	case StatusRecent:
		return "recent"
	case StatusStale:
		return "stale"
	default:
		return "unknown"
	}
}

// FieldAge describes one field that has not changed.
type FieldAge struct {
	Field domain.Field
	Value int64
	// ChangedDate is the most recent published day holding a different value.
	ChangedDate domain.Date
	Days        int
}

// Report summarizes one analysis.
type Report struct {
	Status       map[domain.Field]Status
	Stale        []FieldAge
	Consolidated bool
	HasIssues    bool
}

// Eligible reports whether f moved normally or was too small to judge, i.e.
// whether trend checks on f make sense.
func (r Report) Eligible(f domain.Field) bool {
	s, ok := r.Status[f]
	return ok && (s == StatusChanged || s == StatusIgnored)
}

// Analyzer runs the staleness check for one region at a time.
type Analyzer struct {
	cfg    Config
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer with the given configuration.
func NewAnalyzer(cfg Config, logger *slog.Logger) *Analyzer {
	return &Analyzer{cfg: cfg, logger: logger}
}

// Analyze compares obs against history (entries on or after the target date
// are ignored) and writes findings to log. nearRelease disables the grace
// window for short stale runs.
func (a *Analyzer) Analyze(obs domain.TargetObservation, history domain.HistorySeries, nearRelease bool, log *resultlog.Log) Report {
	region := obs.Region
	past := history.Before(obs.TargetDate)
	newest := past.NewestFirst()

	report := Report{Status: make(map[domain.Field]Status, len(a.cfg.Fields))}
	moved := false

	for _, f := range a.cfg.Fields {
		val, ok := obs.Value(f)
		if !ok {
			log.InternalError(region, "%s missing column", f)
			report.Status[f] = StatusMissing
			report.HasIssues = true
			continue
		}
		if !past.HasField(f) {
			log.InternalError(region, "%s missing history column", f)
			report.Status[f] = StatusMissing
			report.HasIssues = true
			continue
		}

		if domain.IsSentinel(val) {
			if val == domain.Blank {
				log.DataEntry(region, "%s is blank", f)
			} else {
				log.DataEntry(region, "%s value cannot be converted to a number", f)
			}
			report.Status[f] = StatusSentinel
			report.HasIssues = true
			continue
		}

		var prev int64
		var prevDate domain.Date
		if len(newest) > 0 {
			prev = newest[0].Values[f]
			prevDate = newest[0].Date
		}

		// zero is read as an unfilled cell rather than a drop
		if val < prev && val > 0 {
			log.DataQuality(region, "%s (%s) decreased from %s as-of %s",
				f, domain.FormatCount(val), domain.FormatCount(prev), prevDate.Short())
			report.Status[f] = StatusDecreased
			report.HasIssues = true
			continue
		}

		if val < a.cfg.threshold(f) {
			a.logger.Debug("below ignore threshold", "region", region, "field", f, "value", val)
			report.Status[f] = StatusIgnored
			continue
		}

		if val != prev {
			report.Status[f] = StatusChanged
			moved = true
			continue
		}

		changed, found := lastChange(f, val, newest)
		if !found {
			log.DataSource(region, "%s (%s) constant for all time", f, domain.FormatCount(val))
			report.Status[f] = StatusConstant
			report.HasIssues = true
			continue
		}

		days := obs.TargetDate.DaysSince(changed)
		if !nearRelease && days < a.cfg.StaleGraceDays {
			report.Status[f] = StatusRecent
			continue
		}

		report.Status[f] = StatusStale
		report.Stale = append(report.Stale, FieldAge{Field: f, Value: val, ChangedDate: changed, Days: days})
	}

	if len(report.Stale) == 0 {
		return report
	}

	a.checkLocalTime(obs, report.Stale, log)

	report.Consolidated = a.canConsolidate(report, moved)
	if report.Consolidated {
		first := report.Stale[0]
		names := make([]string, 0, len(report.Stale))
		for _, s := range report.Stale {
			names = append(names, s.Field.DisplayName())
		}
		log.DataSource(region, "%s haven't changed since %s (%d days)",
			strings.Join(names, "/"), first.ChangedDate.Short(), first.Days)
		return report
	}

	for _, s := range report.Stale {
		log.DataSource(region, "%s (%s) hasn't changed since %s (%d days)",
			s.Field, domain.FormatCount(s.Value), s.ChangedDate.Short(), s.Days)
	}
	return report
}

// canConsolidate applies the all-or-nothing rule: every stale field must
// share the same age. With RequireAllStale, any field that moved or raised
// an issue forces individual lines.
func (a *Analyzer) canConsolidate(report Report, moved bool) bool {
	if len(report.Stale) < 2 {
		return false
	}
	if a.cfg.RequireAllStale && (moved || report.HasIssues) {
		return false
	}
	days := report.Stale[0].Days
	for _, s := range report.Stale[1:] {
		if s.Days != days {
			return false
		}
	}
	return true
}

// checkLocalTime warns when the editor stamped a "last changed" local time
// well after the values actually stopped changing.
func (a *Analyzer) checkLocalTime(obs domain.TargetObservation, stale []FieldAge, log *resultlog.Log) {
	if obs.LocalTime.IsZero() {
		return
	}

	latest := stale[0]
	for _, s := range stale[1:] {
		if s.ChangedDate > latest.ChangedDate {
			latest = s
		}
	}

	local := domain.DateOf(obs.LocalTime)
	if local.DaysSince(latest.ChangedDate) <= a.cfg.LocalTimeGraceDays {
		return
	}

	checker := strings.TrimSpace(obs.Checker)
	if checker == "" {
		checker = "??"
	}
	log.DataEntry(obs.Region, "checker %s set local time to %s %02d:%02d but values haven't changed since %s (%d days ago)",
		checker, local.Short(), obs.LocalTime.Hour(), obs.LocalTime.Minute(),
		latest.ChangedDate.Short(), latest.Days)
}

// lastChange scans newest-first history for the first day whose value
// differs from val.
func lastChange(f domain.Field, val int64, newest []domain.HistoryEntry) (domain.Date, bool) {
	for _, e := range newest {
		if e.Values[f] != val {
			return e.Date, true
		}
	}
	return 0, false
}
