// Package domain models daily-reported public-health case counts and the
// findings produced when checking them.
//
// # Data Source
//
// Each run receives one working snapshot per region (a state or territory),
// the published daily history for that region, and optionally county-level
// aggregates from independent third-party datasets. Loading and reshaping
// those sources happens outside this module; the loader hands over typed
// values only.
//
// # Field Conventions
//
// Monitored counters are cumulative integers:
//
//	positive, negative, pending, death, recovered,
//	hospitalizedCumulative, inIcuCumulative, onVentilatorCumulative, total
//
// Two reserved values stand in for cells that could not be read:
//
//	-1000  blank cell            (see [Blank])
//	-1001  unparseable cell      (see [Unparseable])
//
// Sentinels are never ordinary magnitudes. Every check tests for them with
// [IsSentinel] before doing arithmetic.
//
// Dates:
//
//	Calendar dates are YYYYMMDD integers (see [Date]), e.g. 20200415.
//	Timestamps are zoned; user-visible times are US/Eastern.
//
// # History Ordering
//
// History entries are unique per calendar date. [HistorySeries.NewestFirst]
// and [HistorySeries.Ascending] return sorted copies; the series itself is
// never mutated by the checks.
package domain
