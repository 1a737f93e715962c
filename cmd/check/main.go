// Command check runs one check pass against a SQLite database and prints the
// findings.
//
// Usage:
//
//	go run ./cmd/check -db qc.db -dataset working -format text
//	go run ./cmd/check -db qc.db -dataset current -at 2020-04-15T16:30:00-04:00 -format csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/case-data-qc/internal/adapter/sqlite"
	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/observability"
	"github.com/couchcryptid/case-data-qc/internal/pipeline"
	"github.com/couchcryptid/case-data-qc/internal/qc"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "qc.db", "path to the SQLite database")
	dataset := fs.String("dataset", "working", "dataset to check: working, current, or history")
	preset := fs.String("preset", "", "check preset: working, current, or legacy (defaults to the dataset's preset)")
	format := fs.String("format", "text", "output format: text, csv, json, or html")
	at := fs.String("at", "", "evaluate as of this RFC 3339 time instead of now")
	parallel := fs.Int("parallel", 1, "regions to check concurrently")
	saveForecasts := fs.Bool("save-forecasts", false, "store computed forecasts in the database")
	verbose := fs.Bool("v", false, "log progress to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ds, ok := domain.ParseDataset(*dataset)
	if !ok {
		fmt.Fprintf(stderr, "unknown dataset %q\n", *dataset)
		return 2
	}
	if *preset == "" && ds == domain.DatasetCurrent {
		*preset = qc.PresetCurrent
	}
	cfg, err := qc.ByName(*preset)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	var clock clockwork.Clock = clockwork.NewRealClock()
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			fmt.Fprintf(stderr, "invalid -at: %v\n", err)
			return 2
		}
		clock = clockwork.NewFakeClockAt(t)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	calendar, err := qc.NewCalendar(clock)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}

	if _, err := os.Stat(*dbPath); err != nil {
		fmt.Fprintf(stderr, "FATAL: open database: %v\n", err)
		return 1
	}
	store, err := sqlite.New(*dbPath)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: open database: %v\n", err)
		return 1
	}
	defer store.Close()

	opts := []pipeline.Option{
		pipeline.WithClock(clock),
		pipeline.WithParallelism(*parallel),
		pipeline.WithCounty(store),
	}
	if *saveForecasts {
		opts = append(opts, pipeline.WithForecastStore(store))
	}
	runner := pipeline.New(cfg, store, calendar, logger, observability.NewMetricsForTesting(), opts...)

	log, err := runner.Run(ctx, ds)
	if err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}

	if err := write(stdout, log, *format); err != nil {
		fmt.Fprintf(stderr, "FATAL: %v\n", err)
		return 1
	}
	return 0
}

func write(w io.Writer, log *resultlog.Log, format string) error {
	var data []byte
	var err error
	switch format {
	case "text":
		return log.WriteText(w)
	case "csv":
		data, err = log.CSV()
	case "json":
		data, err = log.JSON()
	case "html":
		var page string
		page, err = log.HTML(false)
		data = []byte(page)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
