// Package qc defines the engine configuration presets and the run dates
// that a check pass targets.
package qc

import (
	"fmt"

	"github.com/couchcryptid/case-data-qc/internal/checks"
	"github.com/couchcryptid/case-data-qc/internal/county"
	"github.com/couchcryptid/case-data-qc/internal/forecast"
	"github.com/couchcryptid/case-data-qc/internal/staleness"
)

// Preset names accepted by ByName.
const (
	PresetWorking = "working"
	PresetCurrent = "current"
	PresetLegacy  = "legacy"
)

// Config aggregates the per-component settings of one check pass.
type Config struct {
	Name      string
	Staleness staleness.Config
	Forecast  forecast.Config
	County    county.Config
	Checks    checks.Config

	// EnableForecast and EnableCounty switch the optional checks.
	EnableForecast bool
	EnableCounty   bool
}

// WorkingPreset is the default configuration for the unpublished sheet.
func WorkingPreset() Config {
	return Config{
		Name:           PresetWorking,
		Staleness:      staleness.DefaultConfig(),
		Forecast:       forecast.DefaultConfig(),
		County:         county.DefaultConfig(),
		Checks:         checks.DefaultConfig(),
		EnableForecast: true,
		EnableCounty:   true,
	}
}

// CurrentPreset targets published data: the latest history day may already
// be the value under test, so the exponential fit leaves it out.
func CurrentPreset() Config {
	cfg := WorkingPreset()
	cfg.Name = PresetCurrent
	cfg.Forecast.ExpFitExcludeLatest = true
	return cfg
}

// LegacyPreset reproduces the early behavior: three staleness fields,
// consolidation only when the whole region stalled, and the largest county
// rollup as reference.
func LegacyPreset() Config {
	cfg := WorkingPreset()
	cfg.Name = PresetLegacy
	cfg.Staleness = staleness.LegacyConfig()
	cfg.County = county.LegacyConfig()
	return cfg
}

// ByName returns the preset called name.
func ByName(name string) (Config, error) {
	switch name {
	case PresetWorking, "":
		return WorkingPreset(), nil
	case PresetCurrent:
		return CurrentPreset(), nil
	case PresetLegacy:
		return LegacyPreset(), nil
	default:
		return Config{}, fmt.Errorf("unknown preset %q", name)
	}
}
