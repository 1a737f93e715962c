package staleness

import "github.com/couchcryptid/case-data-qc/internal/domain"

// Config controls which fields are checked and how findings are grouped.
type Config struct {
	Fields []domain.Field
	// IgnoreThresholds skips the "unchanged" check for small counts, which
	// are noisy. Fields without an entry use DefaultIgnoreThreshold.
	IgnoreThresholds       map[domain.Field]int64
	DefaultIgnoreThreshold int64
	// StaleGraceDays suppresses stale runs shorter than this outside the
	// release window.
	StaleGraceDays int
	// LocalTimeGraceDays is how far past the last real change the edited
	// local time may be before it is flagged.
	LocalTimeGraceDays int
	// RequireAllStale only consolidates when no monitored field moved or
	// raised another finding.
	RequireAllStale bool
}

// DefaultConfig monitors the cumulative counters of the working sheet.
func DefaultConfig() Config {
	return Config{
		Fields: []domain.Field{
			domain.Positive, domain.Negative, domain.Death,
			domain.HospitalizedCumulative, domain.InIcuCumulative, domain.OnVentilatorCumulative,
		},
		IgnoreThresholds: map[domain.Field]int64{
			domain.Positive: 100,
			domain.Negative: 900,
			domain.Death:    20,
		},
		DefaultIgnoreThreshold: 10,
		StaleGraceDays:         3,
		LocalTimeGraceDays:     1,
	}
}

// LegacyConfig reproduces the early three-field check that only
// consolidated when the whole region had stalled.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Fields = []domain.Field{domain.Positive, domain.Negative, domain.Death}
	cfg.StaleGraceDays = 0
	cfg.RequireAllStale = true
	return cfg
}

func (c Config) threshold(f domain.Field) int64 {
	if t, ok := c.IgnoreThresholds[f]; ok {
		return t
	}
	return c.DefaultIgnoreThreshold
}
