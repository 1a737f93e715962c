package domain

import (
	"fmt"
	"sort"
	"time"
)

// TargetObservation is one region's working snapshot for a check pass.
// It is treated as immutable once handed to the checks.
type TargetObservation struct {
	Region     string    `json:"state"`
	TargetDate Date      `json:"targetDate"`
	TargetTime time.Time `json:"targetDateEt"`
	Values     Values    `json:"values"`

	LastUpdate time.Time `json:"lastUpdateEt"`
	LastCheck  time.Time `json:"lastCheckEt"`
	// LocalTime is the human-edited "last changed" stamp. Zero when the
	// source has no such column.
	LocalTime     time.Time `json:"localTime,omitempty"`
	Checker       string    `json:"checker"`
	DoubleChecker string    `json:"doubleChecker"`
	Phase         Phase     `json:"phase,omitempty"`
}

// Value returns the reported value for f and whether the column exists.
func (o TargetObservation) Value(f Field) (int64, bool) {
	return o.Values.Get(f)
}

// HistoryEntry is one published day for a region.
type HistoryEntry struct {
	Date   Date   `json:"date"`
	Values Values `json:"values"`
}

// HistorySeries is the read-only published history of one region.
type HistorySeries struct {
	Region  string         `json:"state"`
	Entries []HistoryEntry `json:"entries"`
}

// Validate checks that dates are real and unique.
func (h HistorySeries) Validate() error {
	seen := make(map[Date]struct{}, len(h.Entries))
	for _, e := range h.Entries {
		if !e.Date.Valid() {
			return fmt.Errorf("history %s: invalid date %d", h.Region, int(e.Date))
		}
		if _, dup := seen[e.Date]; dup {
			return fmt.Errorf("history %s: duplicate date %s", h.Region, e.Date)
		}
		seen[e.Date] = struct{}{}
	}
	return nil
}

// Before returns a copy holding only entries strictly before d.
func (h HistorySeries) Before(d Date) HistorySeries {
	out := HistorySeries{Region: h.Region}
	for _, e := range h.Entries {
		if e.Date < d {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}

// NewestFirst returns the entries sorted by descending date.
func (h HistorySeries) NewestFirst() []HistoryEntry {
	out := append([]HistoryEntry(nil), h.Entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// Ascending returns the entries sorted by ascending date.
func (h HistorySeries) Ascending() []HistoryEntry {
	out := append([]HistoryEntry(nil), h.Entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// HasField reports whether every entry carries a column for f.
// An empty series trivially has every column.
func (h HistorySeries) HasField(f Field) bool {
	for _, e := range h.Entries {
		if _, ok := e.Values[f]; !ok {
			return false
		}
	}
	return true
}

// CountyAggregate is one third-party rollup of county data for a region.
type CountyAggregate struct {
	Source    string `json:"source"`
	Cases     int64  `json:"cases"`
	Deaths    int64  `json:"deaths"`
	Recovered int64  `json:"recovered"`
}

// ForecastResult is the projection produced for one region and date.
// ActualValue is always the reported value used for projection, unmodified.
type ForecastResult struct {
	Region          string     `json:"state"`
	Date            Date       `json:"date"`
	ActualValue     int64      `json:"actual_value"`
	ExpectedLinear  int64      `json:"expected_linear"`
	ExpectedExp     int64      `json:"expected_exp"`
	ProjectionIndex float64    `json:"projection_index"`
	LinearParams    [2]float64 `json:"linear_params"`
	ExpParams       [2]float64 `json:"exp_params"`
}

// RegionInput bundles the observation and history checked for one region.
// County rollups are fetched per region inside the isolated check.
type RegionInput struct {
	Observation TargetObservation
	History     HistorySeries
}
