package forecast

import "math"

// Outcome is the verdict for one projection.
type Outcome int

const (
	OutcomeInside      Outcome = iota // actual lies within the band
	OutcomeDecelerated                // below the band minimum
	OutcomeAccelerated                // above the band maximum
	OutcomeDiverged                   // a projection is implausibly large
	OutcomeInverted                   // linear projection >= exponential projection
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInside:
		return "inside"
	case OutcomeDecelerated:
		return "decelerated"
	case OutcomeAccelerated:
		return "accelerated"
	case OutcomeDiverged:
		return "diverged"
	case OutcomeInverted:
		return "inverted"
	default:
		return "unknown"
	}
}

// Verdict is the result of testing an actual value against the band.
type Verdict struct {
	Outcome Outcome
	Min     float64
	Max     float64
	// Degenerate is set when the band was rebuilt around the linear
	// projection because its bounds crossed.
	Degenerate bool
}

// Evaluate applies the sanity gate and the acceptance band to actual.
// Bounds are inclusive.
func Evaluate(actual, expectedLinear, expectedExp int64, cfg Config) Verdict {
	lin, exp := float64(expectedLinear), float64(expectedExp)

	if diverged(lin, cfg) || diverged(exp, cfg) {
		return Verdict{Outcome: OutcomeDiverged}
	}
	if expectedLinear >= expectedExp {
		return Verdict{Outcome: OutcomeInverted}
	}

	v := Verdict{
		Min: cfg.LowThreshold * lin,
		Max: cfg.HighThreshold * exp,
	}
	if v.Min >= v.Max {
		high := cfg.HighThreshold * lin
		v.Min, v.Max = lin-(high-lin), high
		v.Degenerate = true
	}

	a := float64(actual)
	switch {
	case a < v.Min:
		v.Outcome = OutcomeDecelerated
	case a > v.Max:
		v.Outcome = OutcomeAccelerated
	default:
		v.Outcome = OutcomeInside
	}
	return v
}

func diverged(x float64, cfg Config) bool {
	return x > cfg.DivergenceFloor && x > cfg.DivergenceLimit
}

// round returns x rounded half away from zero as an int64.
func round(x float64) int64 {
	return int64(math.Round(x))
}
