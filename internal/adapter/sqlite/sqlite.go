// Package sqlite stores check inputs and forecasts in a SQLite database.
// It implements pipeline.Source, pipeline.CountySource, and
// pipeline.ForecastStore.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/case-data-qc/internal/domain"
)

// fieldColumns maps each counter to its column. A NULL cell is a missing
// column; sentinel values are stored as-is.
var fieldColumns = []struct {
	field  domain.Field
	column string
}{
	{domain.Positive, "positive"},
	{domain.Negative, "negative"},
	{domain.Pending, "pending"},
	{domain.Death, "death"},
	{domain.Recovered, "recovered"},
	{domain.HospitalizedCumulative, "hospitalized_cumulative"},
	{domain.InIcuCumulative, "in_icu_cumulative"},
	{domain.OnVentilatorCumulative, "on_ventilator_cumulative"},
	{domain.Total, "total"},
}

func valueColumns() string {
	cols := make([]string, len(fieldColumns))
	for i, fc := range fieldColumns {
		cols[i] = fc.column
	}
	return strings.Join(cols, ", ")
}

func valueColumnDefs() string {
	var b strings.Builder
	for _, fc := range fieldColumns {
		fmt.Fprintf(&b, "\t\t\t%s INTEGER,\n", fc.column)
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS observations (
			dataset TEXT NOT NULL,
			state TEXT NOT NULL,
` + valueColumnDefs() + `			last_update TEXT,
			last_check TEXT,
			local_time TEXT,
			checker TEXT NOT NULL DEFAULT '',
			double_checker TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (dataset, state)
		);`,
		`CREATE TABLE IF NOT EXISTS history (
			state TEXT NOT NULL,
			date INTEGER NOT NULL,
` + valueColumnDefs() + `			PRIMARY KEY (state, date)
		);`,
		`CREATE TABLE IF NOT EXISTS county_rollups (
			state TEXT NOT NULL,
			source TEXT NOT NULL,
			cases INTEGER NOT NULL,
			deaths INTEGER NOT NULL,
			recovered INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (state, source)
		);`,
		`CREATE TABLE IF NOT EXISTS forecasts (
			state TEXT NOT NULL,
			date INTEGER NOT NULL,
			actual_value INTEGER NOT NULL,
			expected_linear INTEGER NOT NULL,
			expected_exp INTEGER NOT NULL,
			projection_index REAL NOT NULL,
			linear_slope REAL NOT NULL,
			linear_intercept REAL NOT NULL,
			exp_a REAL NOT NULL,
			exp_b REAL NOT NULL,
			saved_at TEXT NOT NULL,
			PRIMARY KEY (state, date)
		);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}

	return nil
}

// --- reads ---

// Observations returns the rows of ds ordered by state.
func (s *Store) Observations(ctx context.Context, ds domain.Dataset) ([]domain.TargetObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, `+valueColumns()+`, last_update, last_check, local_time, checker, double_checker
		FROM observations WHERE dataset = ? ORDER BY state`, string(ds))
	if err != nil {
		return nil, fmt.Errorf("sqlite: query observations: %w", err)
	}
	defer rows.Close()

	var out []domain.TargetObservation
	for rows.Next() {
		var (
			obs                          domain.TargetObservation
			cells                        = make([]sql.NullInt64, len(fieldColumns))
			lastUpdate, lastCheck, local sql.NullString
		)
		dest := []any{&obs.Region}
		for i := range cells {
			dest = append(dest, &cells[i])
		}
		dest = append(dest, &lastUpdate, &lastCheck, &local, &obs.Checker, &obs.DoubleChecker)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("sqlite: scan observation: %w", err)
		}

		obs.Values = toValues(cells)
		if obs.LastUpdate, err = parseTime(lastUpdate); err != nil {
			return nil, fmt.Errorf("sqlite: %s last_update: %w", obs.Region, err)
		}
		if obs.LastCheck, err = parseTime(lastCheck); err != nil {
			return nil, fmt.Errorf("sqlite: %s last_check: %w", obs.Region, err)
		}
		if obs.LocalTime, err = parseTime(local); err != nil {
			return nil, fmt.Errorf("sqlite: %s local_time: %w", obs.Region, err)
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// History returns every region's series, regions ordered by state and
// entries ascending by date.
func (s *Store) History(ctx context.Context) ([]domain.HistorySeries, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT state, date, `+valueColumns()+`
		FROM history ORDER BY state, date`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistorySeries
	for rows.Next() {
		var (
			region string
			date   int
			cells  = make([]sql.NullInt64, len(fieldColumns))
		)
		dest := []any{&region, &date}
		for i := range cells {
			dest = append(dest, &cells[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("sqlite: scan history: %w", err)
		}

		if len(out) == 0 || out[len(out)-1].Region != region {
			out = append(out, domain.HistorySeries{Region: region})
		}
		last := &out[len(out)-1]
		last.Entries = append(last.Entries, domain.HistoryEntry{Date: domain.Date(date), Values: toValues(cells)})
	}
	return out, rows.Err()
}

// Rollups returns the county aggregates stored for region.
func (s *Store) Rollups(ctx context.Context, region string) ([]domain.CountyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, cases, deaths, recovered
		FROM county_rollups WHERE state = ? ORDER BY source`, region)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query county rollups: %w", err)
	}
	defer rows.Close()

	var out []domain.CountyAggregate
	for rows.Next() {
		var c domain.CountyAggregate
		if err := rows.Scan(&c.Source, &c.Cases, &c.Deaths, &c.Recovered); err != nil {
			return nil, fmt.Errorf("sqlite: scan county rollup: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadForecast returns the forecast saved for region on date.
func (s *Store) LoadForecast(ctx context.Context, region string, date domain.Date) (domain.ForecastResult, bool, error) {
	f := domain.ForecastResult{Region: region, Date: date}
	err := s.db.QueryRowContext(ctx, `
		SELECT actual_value, expected_linear, expected_exp, projection_index,
			linear_slope, linear_intercept, exp_a, exp_b
		FROM forecasts WHERE state = ? AND date = ?`, region, int(date)).Scan(
		&f.ActualValue, &f.ExpectedLinear, &f.ExpectedExp, &f.ProjectionIndex,
		&f.LinearParams[0], &f.LinearParams[1], &f.ExpParams[0], &f.ExpParams[1],
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ForecastResult{}, false, nil
	}
	if err != nil {
		return domain.ForecastResult{}, false, fmt.Errorf("sqlite: load forecast: %w", err)
	}
	return f, true, nil
}

// --- writes ---

// SaveForecast stores f, replacing any forecast for the same region and date.
func (s *Store) SaveForecast(ctx context.Context, f domain.ForecastResult) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forecasts (
			state, date, actual_value, expected_linear, expected_exp, projection_index,
			linear_slope, linear_intercept, exp_a, exp_b, saved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(state, date) DO UPDATE SET
			actual_value = excluded.actual_value,
			expected_linear = excluded.expected_linear,
			expected_exp = excluded.expected_exp,
			projection_index = excluded.projection_index,
			linear_slope = excluded.linear_slope,
			linear_intercept = excluded.linear_intercept,
			exp_a = excluded.exp_a,
			exp_b = excluded.exp_b,
			saved_at = excluded.saved_at`,
		f.Region, int(f.Date), f.ActualValue, f.ExpectedLinear, f.ExpectedExp, f.ProjectionIndex,
		f.LinearParams[0], f.LinearParams[1], f.ExpParams[0], f.ExpParams[1],
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save forecast: %w", err)
	}
	return nil
}

// UpsertObservations replaces the rows of ds for the given regions.
func (s *Store) UpsertObservations(ctx context.Context, ds domain.Dataset, observations []domain.TargetObservation) (err error) {
	if len(observations) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO observations (
			dataset, state, `+valueColumns()+`, last_update, last_check, local_time, checker, double_checker
		) VALUES (`+placeholders(len(fieldColumns)+7)+`)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, obs := range observations {
		args := []any{string(ds), obs.Region}
		args = append(args, fromValues(obs.Values)...)
		args = append(args, formatTime(obs.LastUpdate), formatTime(obs.LastCheck), formatTime(obs.LocalTime),
			obs.Checker, obs.DoubleChecker)
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("sqlite: insert observation %s: %w", obs.Region, err)
		}
	}

	return tx.Commit()
}

// UpsertHistory writes every entry of each series.
func (s *Store) UpsertHistory(ctx context.Context, series []domain.HistorySeries) (err error) {
	if len(series) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO history (state, date, `+valueColumns()+`)
		VALUES (`+placeholders(len(fieldColumns)+2)+`)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, h := range series {
		for _, e := range h.Entries {
			args := append([]any{h.Region, int(e.Date)}, fromValues(e.Values)...)
			if _, err = stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("sqlite: insert history %s %s: %w", h.Region, e.Date, err)
			}
		}
	}

	return tx.Commit()
}

// ReplaceRollups swaps the county aggregates stored for region.
func (s *Store) ReplaceRollups(ctx context.Context, region string, rollups []domain.CountyAggregate) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM county_rollups WHERE state = ?`, region); err != nil {
		return fmt.Errorf("sqlite: clear county rollups: %w", err)
	}
	for _, c := range rollups {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO county_rollups (state, source, cases, deaths, recovered) VALUES (?, ?, ?, ?, ?)`,
			region, c.Source, c.Cases, c.Deaths, c.Recovered); err != nil {
			return fmt.Errorf("sqlite: insert county rollup: %w", err)
		}
	}

	return tx.Commit()
}

// --- conversions ---

func toValues(cells []sql.NullInt64) domain.Values {
	v := make(domain.Values, len(cells))
	for i, c := range cells {
		if c.Valid {
			v[fieldColumns[i].field] = c.Int64
		}
	}
	return v
}

func fromValues(v domain.Values) []any {
	out := make([]any, len(fieldColumns))
	for i, fc := range fieldColumns {
		if val, ok := v[fc.field]; ok {
			out[i] = val
		}
	}
	return out
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s.String)
}

func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}
