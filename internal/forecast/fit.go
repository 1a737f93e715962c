package forecast

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/case-data-qc/internal/domain"
)

// maxExponent keeps exp() finite while the optimizer explores.
const maxExponent = 700

// fitLinear returns slope and intercept of the least-squares line through
// (xs[i], ys[i]).
func fitLinear(xs, ys []float64) (slope, intercept float64, err error) {
	if len(xs) < 2 {
		return 0, 0, fmt.Errorf("linear fit needs 2 points, have %d: %w", len(xs), domain.ErrFitFailed)
	}
	intercept, slope = stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(slope) || math.IsNaN(intercept) {
		return 0, 0, fmt.Errorf("linear fit: %w", domain.ErrFitFailed)
	}
	return slope, intercept, nil
}

// fitExp fits y = a*exp(b*x) by nonlinear least squares. The optimizer works
// on (ln a, b) so a stays positive. It starts from the curve through the
// first two observations and from cfg.Restarts seeded perturbations of it,
// keeping the best residual.
func fitExp(xs, ys []float64, cfg Config) (a, b float64, err error) {
	if len(xs) < 2 {
		return 0, 0, fmt.Errorf("exponential fit needs 2 points, have %d: %w", len(xs), domain.ErrFitFailed)
	}

	residual := func(p []float64) float64 {
		var sum float64
		for i, x := range xs {
			e := p[0] + p[1]*x
			if e > maxExponent {
				return math.MaxFloat64
			}
			d := math.Exp(e) - ys[i]
			sum += d * d
		}
		return sum
	}
	problem := optimize.Problem{Func: residual}
	settings := &optimize.Settings{MajorIterations: 5000}

	start := initialGuess(xs, ys, cfg.InitialGuess)
	rng := rand.New(rand.NewSource(cfg.Seed))

	best := math.Inf(1)
	var bestX []float64
	for attempt := 0; attempt <= cfg.Restarts; attempt++ {
		init := append([]float64(nil), start...)
		if attempt > 0 {
			init[0] += rng.NormFloat64()
			init[1] *= 1 + 0.5*rng.NormFloat64()
		}

		res, err := optimize.Minimize(problem, init, settings, &optimize.NelderMead{})
		if res == nil || (err != nil && math.IsInf(res.F, 0)) {
			continue
		}
		if res.F < best {
			best = res.F
			bestX = res.X
		}
	}

	if bestX == nil || math.IsNaN(best) || math.IsInf(best, 0) {
		return 0, 0, fmt.Errorf("exponential fit did not converge: %w", domain.ErrFitFailed)
	}
	return math.Exp(bestX[0]), bestX[1], nil
}

// initialGuess derives (ln a, b) from the first two observations, falling
// back to fallback when they are not both positive.
func initialGuess(xs, ys []float64, fallback [2]float64) []float64 {
	if ys[0] > 0 && ys[1] > 0 && xs[1] != xs[0] {
		b := math.Log(ys[1]/ys[0]) / (xs[1] - xs[0])
		return []float64{math.Log(ys[0]) - b*xs[0], b}
	}
	return []float64{math.Log(fallback[0]), fallback[1]}
}
