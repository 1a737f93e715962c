package forecast

// Config holds the fit and acceptance-band parameters.
type Config struct {
	// LowThreshold scales the linear projection into the band minimum,
	// HighThreshold scales the exponential projection into the band maximum.
	LowThreshold  float64
	HighThreshold float64

	// MinActual skips regions whose reported value is too small for a
	// meaningful trend.
	MinActual int64
	// MinHistory is the number of usable history points required to fit.
	MinHistory int

	// A projection above DivergenceLimit (and above DivergenceFloor) is
	// treated as a diverged fit.
	DivergenceLimit float64
	DivergenceFloor float64

	// LinearWindow is the number of trailing observations the linear fit uses.
	LinearWindow int
	// ExpFitExcludeLatest drops the most recent history point from the
	// exponential fit.
	ExpFitExcludeLatest bool

	// Seed and Restarts pin the randomized optimizer restarts so that fits
	// are reproducible.
	Seed     int64
	Restarts int
	// InitialGuess is the (a, b) starting point used when the first two
	// observations cannot seed the optimizer.
	InitialGuess [2]float64
}

// DefaultConfig returns the working-sheet thresholds.
func DefaultConfig() Config {
	return Config{
		LowThreshold:    0.9,
		HighThreshold:   1.2,
		MinActual:       300,
		MinHistory:      5,
		DivergenceLimit: 100_000,
		DivergenceFloor: 100,
		LinearWindow:    4,
		Seed:            1729,
		Restarts:        4,
		InitialGuess:    [2]float64{4, 0.1},
	}
}
