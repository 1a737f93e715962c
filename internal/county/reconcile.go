// Package county cross-checks reported totals against independent county
// rollups.
package county

import (
	"log/slog"
	"sort"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

// Thresholds is a (low, high) multiplier pair applied to a county value.
type Thresholds struct {
	Low, High float64
}

// Profile picks Small thresholds below Cutoff and Large thresholds otherwise.
type Profile struct {
	Cutoff int64
	Small  Thresholds
	Large  Thresholds
}

func (p Profile) pick(reported int64) Thresholds {
	if reported < p.Cutoff {
		return p.Small
	}
	return p.Large
}

// Policy selects the representative rollup among the sorted sources.
type Policy int

const (
	// Median uses the middle source (index n/2), which tolerates one outlier.
	Median Policy = iota
	// Max uses the largest source.
	Max
)

// Config controls the reconciliation.
type Config struct {
	Positive Profile
	Death    Profile
	// Offset is added to every upper bound so tiny counts are not flagged.
	Offset int64
	// Checks only run when the reported value exceeds the floor.
	PositiveFloor int64
	DeathFloor    int64
	Policy        Policy
}

// DefaultConfig uses the median source with symmetric tolerances.
func DefaultConfig() Config {
	return Config{
		Positive:      Profile{Cutoff: 500, Small: Thresholds{0.5, 1.5}, Large: Thresholds{0.75, 1.25}},
		Death:         Profile{Cutoff: 50, Small: Thresholds{0.5, 1.5}, Large: Thresholds{0.75, 1.25}},
		Offset:        10,
		PositiveFloor: 1000,
		DeathFloor:    200,
		Policy:        Median,
	}
}

// LegacyConfig compares against the largest source with the early
// asymmetric tolerances.
func LegacyConfig() Config {
	return Config{
		Positive:      Profile{Cutoff: 500, Small: Thresholds{0.75, 1.3}, Large: Thresholds{0.75, 1.2}},
		Death:         Profile{Cutoff: 50, Small: Thresholds{0.75, 1.4}, Large: Thresholds{0.75, 1.3}},
		Offset:        10,
		PositiveFloor: 100,
		DeathFloor:    20,
		Policy:        Max,
	}
}

// Band is the tolerated range derived from one source. Bounds are inclusive.
type Band struct {
	Source string
	Value  int64
	Min    int64
	Max    int64
}

// Contains reports whether v lies within the band, bounds included.
func (b Band) Contains(v int64) bool {
	return b.Min <= v && v <= b.Max
}

// Reconciler runs the county rollup comparison.
type Reconciler struct {
	cfg    Config
	logger *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(cfg Config, logger *slog.Logger) *Reconciler {
	return &Reconciler{cfg: cfg, logger: logger}
}

type metric struct {
	field   domain.Field
	profile Profile
	floor   int64
	value   func(domain.CountyAggregate) int64
}

// Check compares positive and death against the county rollups and records
// a data-quality finding for each mismatch. An empty rollup set is a no-op.
func (r *Reconciler) Check(obs domain.TargetObservation, rollups []domain.CountyAggregate, log *resultlog.Log) {
	if len(rollups) == 0 {
		return
	}

	metrics := []metric{
		{domain.Positive, r.cfg.Positive, r.cfg.PositiveFloor, func(c domain.CountyAggregate) int64 { return c.Cases }},
		{domain.Death, r.cfg.Death, r.cfg.DeathFloor, func(c domain.CountyAggregate) int64 { return c.Deaths }},
	}

	for _, m := range metrics {
		reported, ok := obs.Value(m.field)
		if !ok || domain.IsSentinel(reported) || reported <= m.floor {
			continue
		}

		band := r.Representative(m.profile.pick(reported), rollups, m.value)
		if band.Contains(reported) {
			continue
		}

		r.logger.Warn("county rollup mismatch",
			"region", obs.Region, "field", m.field, "reported", reported,
			"source", band.Source, "min", band.Min, "max", band.Max)
		log.DataQuality(obs.Region, "%s (%s) does not match %s county aggregate (%s, allow %s to %s)",
			m.field, domain.FormatCount(reported), band.Source,
			domain.FormatCount(band.Value), domain.FormatCount(band.Min), domain.FormatCount(band.Max))
	}
}

// Representative sorts the rollups by value and returns the band of the
// row chosen by the configured policy. rollups must not be empty.
func (r *Reconciler) Representative(th Thresholds, rollups []domain.CountyAggregate, value func(domain.CountyAggregate) int64) Band {
	bands := make([]Band, 0, len(rollups))
	for _, c := range rollups {
		v := value(c)
		bands = append(bands, Band{
			Source: c.Source,
			Value:  v,
			Min:    int64(th.Low * float64(v)),
			Max:    int64(th.High*float64(v)) + r.cfg.Offset,
		})
	}
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].Value < bands[j].Value })

	idx := len(bands) / 2
	if r.cfg.Policy == Max {
		idx = len(bands) - 1
	}
	return bands[idx]
}
