// Package pipeline sequences the checks for every region of a dataset and
// produces one result log per pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/case-data-qc/internal/checks"
	"github.com/couchcryptid/case-data-qc/internal/county"
	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/forecast"
	"github.com/couchcryptid/case-data-qc/internal/observability"
	"github.com/couchcryptid/case-data-qc/internal/qc"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
	"github.com/couchcryptid/case-data-qc/internal/staleness"
)

// Source loads the already-typed inputs of a pass.
type Source interface {
	// Observations returns the rows of the working or current dataset.
	Observations(ctx context.Context, ds domain.Dataset) ([]domain.TargetObservation, error)
	// History returns the published series of every region.
	History(ctx context.Context) ([]domain.HistorySeries, error)
}

// CountySource supplies independent county rollups for one region.
type CountySource interface {
	Rollups(ctx context.Context, region string) ([]domain.CountyAggregate, error)
}

// ForecastStore persists forecasts for later plotting.
type ForecastStore interface {
	SaveForecast(ctx context.Context, f domain.ForecastResult) error
}

// Option configures optional Runner collaborators.
type Option func(*Runner)

// WithCounty enables county reconciliation against src.
func WithCounty(src CountySource) Option { return func(r *Runner) { r.county = src } }

// WithForecastStore saves every computed forecast to store.
func WithForecastStore(store ForecastStore) Option { return func(r *Runner) { r.forecasts = store } }

// WithParallelism checks up to n regions at once. Findings keep region order.
func WithParallelism(n int) Option { return func(r *Runner) { r.parallelism = n } }

// WithClock sets the clock used for result logs and timings.
func WithClock(c clockwork.Clock) Option { return func(r *Runner) { r.clock = c } }

// Runner orchestrates the checks for one dataset at a time.
type Runner struct {
	cfg       qc.Config
	source    Source
	county    CountySource
	forecasts ForecastStore
	calendar  *qc.Calendar
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	parallelism int
	ready       atomic.Bool

	checker    *checks.Checker
	analyzer   *staleness.Analyzer
	model      *forecast.Model
	reconciler *county.Reconciler
}

// New creates a Runner with the given configuration and observability.
func New(cfg qc.Config, source Source, calendar *qc.Calendar, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Runner {
	r := &Runner{
		cfg:         cfg,
		source:      source,
		calendar:    calendar,
		clock:       clockwork.NewRealClock(),
		logger:      logger,
		metrics:     metrics,
		parallelism: 1,
		checker:     checks.New(cfg.Checks, cfg.Staleness.Fields),
		analyzer:    staleness.NewAnalyzer(cfg.Staleness, logger),
		model:       forecast.NewModel(cfg.Forecast, logger),
		reconciler:  county.NewReconciler(cfg.County, logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckReadiness returns nil once a pass has completed, or an error
// describing why the service is not yet ready.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no check pass has completed yet")
	}
	return nil
}

// Run performs one pass over ds. The returned log is complete even when
// individual regions failed; those failures are recorded as internal
// errors. An empty observation set returns domain.ErrNoObservations.
func (r *Runner) Run(ctx context.Context, ds domain.Dataset) (*resultlog.Log, error) {
	start := r.clock.Now()
	dates := r.calendar.Now()

	var log *resultlog.Log
	var err error
	if ds == domain.DatasetHistory {
		log, err = r.runHistory(ctx)
	} else {
		log, err = r.runRows(ctx, ds, dates)
	}

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.metrics.RunsTotal.WithLabelValues(string(ds), outcome).Inc()
	r.metrics.RunDuration.WithLabelValues(string(ds)).Observe(r.clock.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	for c, n := range log.Counts() {
		r.metrics.MessagesLogged.WithLabelValues(c.String()).Add(float64(n))
	}
	r.ready.Store(true)
	r.logger.Info("check pass complete",
		"dataset", ds, "run_id", log.RunID(), "messages", log.Len(),
		"duration", r.clock.Since(start).String())
	return log, nil
}

func (r *Runner) runRows(ctx context.Context, ds domain.Dataset, dates qc.RunDates) (*resultlog.Log, error) {
	rows, err := r.source.Observations(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ds, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", ds, domain.ErrNoObservations)
	}

	log := resultlog.New(r.clock)

	histories := make(map[string]domain.HistorySeries)
	series, err := r.source.History(ctx)
	if err != nil || len(series) == 0 {
		r.logger.Warn("history not available", "error", err)
		log.InternalError("Source", "History not available")
	}
	for _, s := range series {
		histories[s.Region] = s
	}

	if r.cfg.EnableCounty && r.county == nil {
		log.InternalError("Source", "County Rollup not available")
	}

	nearRelease := dates.NearRelease
	if ds == domain.DatasetWorking && !nearRelease {
		log.InternalError("Skip", "Disable Operational checks b/c not near release")
	}

	target, targetTime := dates.Target(ds)
	r.logger.Info("check pass starting",
		"dataset", ds, "target_date", target.String(), "push_number", dates.PushNumber,
		"phase", dates.Phase, "regions", len(rows))

	inputs := make([]domain.RegionInput, len(rows))
	for i, obs := range rows {
		obs.TargetDate = target
		obs.TargetTime = targetTime
		obs.Phase = dates.Phase
		if ds == domain.DatasetCurrent {
			obs.LastCheck = targetTime
		}
		h, ok := histories[obs.Region]
		if !ok {
			h = domain.HistorySeries{Region: obs.Region}
		}
		inputs[i] = domain.RegionInput{Observation: obs, History: h}
	}

	if r.parallelism <= 1 {
		for i, in := range inputs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r.region(ctx, ds, in, nearRelease, log)
			r.progress(i + 1)
		}
	} else if err := r.parallel(ctx, ds, inputs, nearRelease, log); err != nil {
		return nil, err
	}

	r.logger.Info("regions processed", "count", len(inputs))
	return log, nil
}

// parallel checks regions concurrently, each into a private log, and merges
// the logs in input order so the result matches a sequential pass.
func (r *Runner) parallel(ctx context.Context, ds domain.Dataset, inputs []domain.RegionInput, nearRelease bool, log *resultlog.Log) error {
	private := make([]*resultlog.Log, len(inputs))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			private[i] = resultlog.New(r.clock)
			r.region(gctx, ds, in, nearRelease, private[i])
			r.progress(int(done.Add(1)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, p := range private {
		log.Merge(p)
	}
	return nil
}

func (r *Runner) progress(n int) {
	if n%10 == 0 {
		r.logger.Info("processed regions", "count", n)
	}
}

// region runs every check for one region. Failures, including panics, are
// confined to the region and logged as internal errors.
func (r *Runner) region(ctx context.Context, ds domain.Dataset, in domain.RegionInput, nearRelease bool, log *resultlog.Log) {
	region := in.Observation.Region
	r.metrics.RegionsChecked.Inc()

	if err := r.checkRegion(ctx, ds, in, nearRelease, log); err != nil {
		r.metrics.RegionErrors.Inc()
		r.logger.Error("region check failed", "region", region, "error", err)
		log.InternalError(region, "%v", err)
	}
}

func (r *Runner) checkRegion(ctx context.Context, ds domain.Dataset, in domain.RegionInput, nearRelease bool, log *resultlog.Log) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	obs := in.Observation
	if ds == domain.DatasetCurrent {
		r.checker.Current(obs, log)
	} else {
		r.checker.Working(obs, nearRelease, log)
	}

	if err := in.History.Validate(); err != nil {
		return err
	}

	report := r.analyzer.Analyze(obs, in.History, nearRelease, log)

	if r.cfg.EnableForecast && report.Eligible(domain.Positive) {
		result, err := r.model.Check(obs, in.History, log)
		if errors.Is(err, domain.ErrFitFailed) {
			r.metrics.FitFailures.Inc()
		}
		if result != nil && r.forecasts != nil {
			if err := r.forecasts.SaveForecast(ctx, *result); err != nil {
				r.logger.Warn("save forecast failed", "region", obs.Region, "error", err)
			}
		}
	}

	if r.cfg.EnableCounty && r.county != nil {
		rollups, err := r.county.Rollups(ctx, obs.Region)
		if err != nil {
			r.logger.Warn("county rollup not available", "region", obs.Region, "error", err)
			log.InternalError(obs.Region, "County Rollup not available")
		} else {
			r.reconciler.Check(obs, rollups, log)
		}
	}
	return nil
}

func (r *Runner) runHistory(ctx context.Context) (*resultlog.Log, error) {
	series, err := r.source.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("history: %w", domain.ErrNoObservations)
	}

	log := resultlog.New(r.clock)
	for _, s := range series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.metrics.RegionsChecked.Inc()
		checks.Monotonic(s, log)
	}
	return log, nil
}
