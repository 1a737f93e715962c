// Package forecast fits linear and exponential trends to a region's
// cumulative positives and tests a new value against the acceptance band
// the two projections span.
package forecast

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

// Fit holds both fitted curves over the observation index x = 0..n-1.
type Fit struct {
	Slope, Intercept float64 // linear: slope*x + intercept
	A, B             float64 // exponential: A*exp(B*x)
	LastIndex        int
	LastDate         domain.Date
}

// Linear evaluates the linear curve at x.
func (f Fit) Linear(x float64) float64 { return f.Slope*x + f.Intercept }

// Exponential evaluates the exponential curve at x.
func (f Fit) Exponential(x float64) float64 { return f.A * math.Exp(f.B*x) }

// Index returns the projection index for target. Reporting gaps count as
// calendar days, so three days after the last entry is LastIndex+3.
func (f Fit) Index(target domain.Date) float64 {
	return float64(f.LastIndex + target.DaysSince(f.LastDate))
}

// Model fits trends and judges new values.
type Model struct {
	cfg    Config
	logger *slog.Logger
}

// NewModel creates a Model with the given configuration.
func NewModel(cfg Config, logger *slog.Logger) *Model {
	return &Model{cfg: cfg, logger: logger}
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.cfg }

// points extracts the usable ascending positive series. Entries without a
// positive column or holding a sentinel are skipped.
func points(history domain.HistorySeries) ([]float64, []float64, []domain.Date) {
	var xs, ys []float64
	var dates []domain.Date
	for _, e := range history.Ascending() {
		v, ok := e.Values.Get(domain.Positive)
		if !ok || domain.IsSentinel(v) {
			continue
		}
		xs = append(xs, float64(len(xs)))
		ys = append(ys, float64(v))
		dates = append(dates, e.Date)
	}
	return xs, ys, dates
}

// FitHistory fits both curves to the positive series of history.
func (m *Model) FitHistory(history domain.HistorySeries) (Fit, error) {
	xs, ys, dates := points(history)
	if len(xs) == 0 {
		return Fit{}, fmt.Errorf("region %s: %w", history.Region, domain.ErrNoHistory)
	}

	n := len(xs)
	w := m.cfg.LinearWindow
	if w <= 0 || w > n {
		w = n
	}
	slope, intercept, err := fitLinear(xs[n-w:], ys[n-w:])
	if err != nil {
		return Fit{}, err
	}

	ex, ey := xs, ys
	if m.cfg.ExpFitExcludeLatest && n > 2 {
		ex, ey = xs[:n-1], ys[:n-1]
	}
	a, b, err := fitExp(ex, ey, m.cfg)
	if err != nil {
		return Fit{}, err
	}

	return Fit{
		Slope:     slope,
		Intercept: intercept,
		A:         a,
		B:         b,
		LastIndex: n - 1,
		LastDate:  dates[n-1],
	}, nil
}

// Forecast projects the positive value for obs.TargetDate from history
// strictly before it. A negative projection is a fit failure.
func (m *Model) Forecast(obs domain.TargetObservation, history domain.HistorySeries) (domain.ForecastResult, error) {
	actual, ok := obs.Value(domain.Positive)
	if !ok {
		return domain.ForecastResult{}, fmt.Errorf("positive: %w", domain.ErrMissingField)
	}

	fit, err := m.FitHistory(history.Before(obs.TargetDate))
	if err != nil {
		return domain.ForecastResult{}, err
	}

	x := fit.Index(obs.TargetDate)
	lin, exp := fit.Linear(x), fit.Exponential(x)
	if lin < 0 || exp < 0 || math.IsNaN(lin) || math.IsNaN(exp) || math.IsInf(exp, 0) {
		return domain.ForecastResult{}, fmt.Errorf("projection linear=%.1f exponential=%.1f: %w", lin, exp, domain.ErrFitFailed)
	}

	return domain.ForecastResult{
		Region:          obs.Region,
		Date:            obs.TargetDate,
		ActualValue:     actual,
		ExpectedLinear:  round(lin),
		ExpectedExp:     round(exp),
		ProjectionIndex: x,
		LinearParams:    [2]float64{fit.Slope, fit.Intercept},
		ExpParams:       [2]float64{fit.A, fit.B},
	}, nil
}

// Check forecasts obs and records the verdict in log. It returns the
// forecast, or nil when the region was skipped or the fit failed. Fit
// failures are logged as internal errors and also returned.
func (m *Model) Check(obs domain.TargetObservation, history domain.HistorySeries, log *resultlog.Log) (*domain.ForecastResult, error) {
	region := obs.Region
	actual, ok := obs.Value(domain.Positive)
	if !ok || domain.IsSentinel(actual) || actual < m.cfg.MinActual {
		return nil, nil
	}

	past := history.Before(obs.TargetDate)
	if xs, _, _ := points(past); len(xs) < m.cfg.MinHistory {
		m.logger.Debug("not enough history to forecast", "region", region, "points", len(xs))
		return nil, nil
	}

	result, err := m.Forecast(obs, past)
	if err != nil {
		m.logger.Warn("forecast failed", "region", region, "error", err)
		if errors.Is(err, domain.ErrFitFailed) {
			log.InternalError(region, "positive forecast failed: %v", err)
		}
		return nil, err
	}

	m.Record(result, log)
	return &result, nil
}

// Record writes the finding for an already computed forecast.
func (m *Model) Record(result domain.ForecastResult, log *resultlog.Log) Verdict {
	region := result.Region
	v := Evaluate(result.ActualValue, result.ExpectedLinear, result.ExpectedExp, m.cfg)

	switch v.Outcome {
	case OutcomeDiverged:
		log.InternalError(region, "positive forecast diverged (linear %s, exponential %s)",
			domain.FormatCount(result.ExpectedLinear), domain.FormatCount(result.ExpectedExp))
	case OutcomeInverted:
		log.InternalError(region, "positive forecast band inverted (linear %s >= exponential %s)",
			domain.FormatCount(result.ExpectedLinear), domain.FormatCount(result.ExpectedExp))
	case OutcomeDecelerated:
		log.DataQuality(region, "positive (%s) decelerated beyond linear trend, expected > %s",
			domain.FormatCount(result.ActualValue), domain.FormatCount(round(v.Min)))
	case OutcomeAccelerated:
		log.DataQuality(region, "positive (%s) accelerated beyond exponential trend, expected < %s",
			domain.FormatCount(result.ActualValue), domain.FormatCount(round(v.Max)))
	}
	if v.Degenerate {
		m.logger.Debug("degenerate band rebuilt from linear projection", "region", region, "min", v.Min, "max", v.Max)
	}
	return v
}
