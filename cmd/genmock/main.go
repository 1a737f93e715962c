// Command genmock writes a deterministic synthetic SQLite fixture: a working
// sheet, a published current sheet, per-region history, and county rollups.
// A handful of regions carry planted anomalies so every check has something
// to find.
//
// Usage:
//
//	go run ./cmd/genmock -db data/mock/qc.db -date 20200415 -days 30
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/couchcryptid/case-data-qc/internal/adapter/sqlite"
	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/qc"
)

var regions = []string{
	"AK", "AL", "AR", "AZ", "CA", "CO", "CT", "DC", "DE", "FL",
	"GA", "HI", "IA", "ID", "IL", "IN", "KS", "KY", "LA", "MA",
	"MD", "ME", "MI", "MN", "MO", "MS", "MT", "NC", "ND", "NE",
	"NH", "NJ", "NM", "NV", "NY", "OH", "OK", "OR", "PA", "RI",
	"SC", "SD", "TN", "TX", "UT", "VA", "VT", "WA", "WI", "WV", "WY",
}

// anomaly names a planted defect.
type anomaly string

const (
	anomalyFrozen      anomaly = "frozen"
	anomalyDecrease    anomaly = "decrease"
	anomalyBlank       anomaly = "blank"
	anomalyFormula     anomaly = "formula"
	anomalyCounty      anomaly = "county"
	anomalyAccelerated anomaly = "accelerated"
	anomalyStaleUpdate anomaly = "stale-update"
)

// planted maps a region to its defect. Everything else is clean.
var planted = map[string]anomaly{
	"AK": anomalyFrozen,
	"DE": anomalyDecrease,
	"HI": anomalyBlank,
	"MT": anomalyFormula,
	"NM": anomalyCounty,
	"NV": anomalyAccelerated,
	"VT": anomalyStaleUpdate,
}

type options struct {
	date domain.Date
	days int
	seed int64
}

type fixture struct {
	working []domain.TargetObservation
	current []domain.TargetObservation
	history []domain.HistorySeries
	rollups map[string][]domain.CountyAggregate
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dbPath := flag.String("db", "", "output path for the SQLite fixture")
	date := flag.Int("date", 20200415, "working date as YYYYMMDD")
	days := flag.Int("days", 30, "days of history before the working date")
	seed := flag.Int64("seed", 1729, "random seed")
	flag.Parse()

	if *dbPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -db")
	}
	opts := options{date: domain.Date(*date), days: *days, seed: *seed}
	if !opts.date.Valid() {
		return fmt.Errorf("invalid -date %d", *date)
	}
	if opts.days < 2 {
		return fmt.Errorf("-days must be at least 2")
	}

	loc, err := time.LoadLocation(qc.Eastern)
	if err != nil {
		return fmt.Errorf("load time zone: %w", err)
	}

	fx := generate(opts, loc)

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		return err
	}
	store, err := sqlite.New(*dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := write(context.Background(), store, fx); err != nil {
		return err
	}
	log.Printf("wrote %s: %d regions, %d days of history", *dbPath, len(fx.working), opts.days)

	printStats()
	return nil
}

// generate builds the fixture. The same options always produce the same
// fixture.
func generate(opts options, loc *time.Location) fixture {
	rng := rand.New(rand.NewSource(opts.seed))
	fx := fixture{rollups: make(map[string][]domain.CountyAggregate, len(regions))}
	asOf := opts.date.Time(loc).Add(13 * time.Hour)

	for _, region := range regions {
		kind := planted[region]
		base := 500 + rng.Int63n(20_000)
		rate := 0.04 + rng.Float64()*0.06

		series := domain.HistorySeries{Region: region}
		for back := opts.days; back >= 1; back-- {
			series.Entries = append(series.Entries, domain.HistoryEntry{
				Date:   opts.date.AddDays(-back),
				Values: counters(base, rate, opts.days-back, rng),
			})
		}
		values := counters(base, rate, opts.days, rng)
		// county sources see the true counts, before any planted defect
		countyPos, countyDeath := values[domain.Positive], values[domain.Death]

		obs := domain.TargetObservation{
			Region:        region,
			LastUpdate:    asOf.Add(-time.Duration(1+rng.Intn(4)) * time.Hour),
			Checker:       "AB",
			DoubleChecker: "CD",
		}
		obs.LastCheck = obs.LastUpdate.Add(30 * time.Minute)

		switch kind {
		case anomalyFrozen:
			frozen := series.Entries[len(series.Entries)-6].Values[domain.Positive]
			for i := len(series.Entries) - 5; i < len(series.Entries); i++ {
				series.Entries[i].Values[domain.Positive] = frozen
			}
			values[domain.Positive] = frozen
			obs.LocalTime = asOf.Add(-2 * time.Hour)
		case anomalyDecrease:
			values[domain.Death] = series.Entries[len(series.Entries)-1].Values[domain.Death] - 3
		case anomalyBlank:
			values[domain.Death] = domain.Blank
		case anomalyAccelerated:
			values[domain.Positive] = values[domain.Positive] * 2
		case anomalyStaleUpdate:
			obs.LastUpdate = asOf.Add(-72 * time.Hour)
			obs.LastCheck = obs.LastUpdate
		}

		pos, neg, pending := values[domain.Positive], values[domain.Negative], values[domain.Pending]
		values[domain.Total] = pos + neg + pending
		if kind == anomalyFormula {
			values[domain.Total] += 17
		}
		obs.Values = values

		fx.working = append(fx.working, obs)
		fx.current = append(fx.current, published(series))
		fx.history = append(fx.history, series)
		fx.rollups[region] = rollups(countyPos, countyDeath, kind == anomalyCounty, rng)
	}
	return fx
}

// counters returns cumulative values on day d of an exponential epidemic.
func counters(base int64, rate float64, d int, rng *rand.Rand) domain.Values {
	pos := int64(float64(base) * math.Exp(rate*float64(d)))
	jitter := func(v int64) int64 { return v + rng.Int63n(1+v/200) }
	return domain.Values{
		domain.Positive:               pos,
		domain.Negative:               jitter(pos * 9),
		domain.Pending:                jitter(pos / 50),
		domain.Death:                  pos / 40,
		domain.Recovered:              pos / 3,
		domain.HospitalizedCumulative: pos / 8,
		domain.InIcuCumulative:        pos / 30,
		domain.OnVentilatorCumulative: pos / 45,
	}
}

// published returns the current-sheet row: the last history day as released.
func published(series domain.HistorySeries) domain.TargetObservation {
	last := series.Entries[len(series.Entries)-1]
	values := make(domain.Values, len(last.Values)+1)
	for f, v := range last.Values {
		values[f] = v
	}
	values[domain.Total] = values[domain.Positive] + values[domain.Negative] + values[domain.Pending]
	return domain.TargetObservation{Region: series.Region, Values: values}
}

func rollups(positive, death int64, mismatch bool, rng *rand.Rand) []domain.CountyAggregate {
	if mismatch {
		positive /= 3
		death /= 3
	}
	near := func(v int64) int64 { return v - v/20 + rng.Int63n(1+v/10) }
	return []domain.CountyAggregate{
		{Source: "CSBS", Cases: near(positive), Deaths: near(death)},
		{Source: "NYT", Cases: near(positive), Deaths: near(death)},
		{Source: "USAFACTS", Cases: near(positive), Deaths: near(death)},
	}
}

func write(ctx context.Context, store *sqlite.Store, fx fixture) error {
	if err := store.UpsertHistory(ctx, fx.history); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	if err := store.UpsertObservations(ctx, domain.DatasetWorking, fx.working); err != nil {
		return fmt.Errorf("writing working sheet: %w", err)
	}
	if err := store.UpsertObservations(ctx, domain.DatasetCurrent, fx.current); err != nil {
		return fmt.Errorf("writing current sheet: %w", err)
	}
	for region, r := range fx.rollups {
		if err := store.ReplaceRollups(ctx, region, r); err != nil {
			return fmt.Errorf("writing rollups for %s: %w", region, err)
		}
	}
	return nil
}

func printStats() {
	names := make([]string, 0, len(planted))
	for region := range planted {
		names = append(names, region)
	}
	sort.Strings(names)

	fmt.Println()
	fmt.Printf("  %d clean regions\n", len(regions)-len(planted))
	for _, region := range names {
		fmt.Printf("  %-4s %s\n", region, planted[region])
	}
}
