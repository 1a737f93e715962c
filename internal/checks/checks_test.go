package checks

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

var targetTime = time.Date(2020, 4, 15, 16, 0, 0, 0, time.UTC)

func texts(log *resultlog.Log) []string {
	var out []string
	for _, m := range log.Messages() {
		out = append(out, m.Text)
	}
	return out
}

func baseObs() domain.TargetObservation {
	return domain.TargetObservation{
		Region:     "ZZ",
		TargetDate: 20200415,
		TargetTime: targetTime,
		Values: domain.Values{
			domain.Positive:  1000,
			domain.Negative:  9000,
			domain.Pending:   100,
			domain.Death:     20,
			domain.Recovered: 300,
			domain.Total:     10100,
		},
		LastUpdate:    targetTime.Add(-3 * time.Hour),
		LastCheck:     targetTime.Add(-2 * time.Hour),
		Checker:       "AB",
		DoubleChecker: "CD",
	}
}

func TestWorking_CleanRow(t *testing.T) {
	log := resultlog.New(nil)
	New(DefaultConfig(), nil).Working(baseObs(), true, log)
	assert.Equal(t, 0, log.Len(), texts(log))
}

func TestTotal(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(domain.Values)
		covered []domain.Field
		want    []string
	}{
		{
			name:   "formula broken",
			mutate: func(v domain.Values) { v[domain.Total] = 10000 },
			want:   []string{"Formula broken -> Positive (1000) + Negative (9000) + Pending (100) != Total (10000), delta = -100"},
		},
		{
			name:   "blank pending counts as zero",
			mutate: func(v domain.Values) { v[domain.Pending] = domain.Blank; v[domain.Total] = 10000 },
		},
		{
			name:   "negative value skips formula",
			mutate: func(v domain.Values) { v[domain.Negative] = -5 },
			want:   []string{"negative is negative (-5)"},
		},
		{
			name:   "sentinels",
			mutate: func(v domain.Values) { v[domain.Positive] = domain.Blank; v[domain.Death] = domain.Unparseable },
			want:   []string{"positive is blank", "death is invalid"},
		},
		{
			name:    "sentinel on a covered field is left to staleness",
			mutate:  func(v domain.Values) { v[domain.Positive] = domain.Blank; v[domain.Pending] = domain.Unparseable },
			covered: []domain.Field{domain.Positive, domain.Negative, domain.Death},
			want:    []string{"pending is invalid"},
		},
		{
			name:   "negative total",
			mutate: func(v domain.Values) { v[domain.Total] = domain.Blank },
			want:   []string{"total is blank"},
		},
		{
			name:   "missing total",
			mutate: func(v domain.Values) { delete(v, domain.Total) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := baseObs()
			tt.mutate(obs.Values)
			log := resultlog.New(nil)

			New(DefaultConfig(), tt.covered).Total(obs, log)

			if diff := cmp.Diff(tt.want, texts(log)); diff != "" {
				t.Errorf("messages mismatch (-want +got):\n%s", diff)
			}
			for _, m := range log.Messages() {
				assert.Equal(t, resultlog.DataEntry, m.Category)
			}
		})
	}
}

func TestLastUpdate(t *testing.T) {
	c := New(DefaultConfig(), nil)

	obs := baseObs()
	obs.LastUpdate = targetTime.Add(-47 * time.Hour)
	log := resultlog.New(nil)
	c.LastUpdate(obs, log)
	assert.Equal(t, 0, log.Len())

	obs.LastUpdate = targetTime.Add(-72 * time.Hour)
	c.LastUpdate(obs, log)
	require.Equal(t, 1, log.Len())
	assert.Equal(t, resultlog.DataSource, log.Messages()[0].Category)
	assert.Equal(t, "source hasn't updated in 3 days", log.Messages()[0].Text)
}

func TestLastChecked(t *testing.T) {
	c := New(DefaultConfig(), nil)

	tests := []struct {
		name        string
		lastCheck   time.Time
		nearRelease bool
		want        []string
	}{
		{"not near release", targetTime.Add(-100 * time.Hour), false, nil},
		{"fresh", targetTime.Add(-2 * time.Hour), true, nil},
		{
			"checked before update",
			targetTime.Add(-6 * time.Hour), true,
			[]string{"Last Check ET is 04/15 10:00 which is less than Last Update ET 04/15 13:00 by 3 hours"},
		},
		{"blank", time.Time{}, true, []string{"Last Check ET is blank"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := baseObs()
			obs.LastCheck = tt.lastCheck
			log := resultlog.New(nil)
			c.LastChecked(obs, tt.nearRelease, log)
			assert.Equal(t, tt.want, texts(log))
		})
	}

	t.Run("stale check", func(t *testing.T) {
		obs := baseObs()
		obs.LastUpdate = targetTime.Add(-9 * time.Hour)
		obs.LastCheck = targetTime.Add(-8 * time.Hour)
		log := resultlog.New(nil)
		c.LastChecked(obs, true, log)
		assert.Equal(t, []string{"Last Check ET has not been updated in 8 hours (04/15 08:00 by AB)"}, texts(log))
	})
}

func TestCheckersInitials(t *testing.T) {
	c := New(DefaultConfig(), nil)

	tests := []struct {
		name          string
		checker       string
		doubleChecker string
		lastCheck     time.Time
		nearRelease   bool
		want          []string
	}{
		{"signed", "AB", "CD", targetTime.Add(-time.Hour), true, nil},
		{"never checked", "", "", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), true, nil},
		{"missing checker, recent", " ", "", targetTime.Add(-time.Hour), false,
			[]string{"missing checker initials but checked date set recently (at 04/15 15:00)"}},
		{"missing checker, near release", "", "", targetTime.Add(-10 * time.Hour), true,
			[]string{"missing checker initials"}},
		{"missing checker, quiet", "", "", targetTime.Add(-10 * time.Hour), false, nil},
		{"missing double checker", "AB", "", targetTime.Add(-time.Hour), true,
			[]string{"missing double-checker initials"}},
		{"missing double checker, quiet", "AB", "", targetTime.Add(-time.Hour), false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := baseObs()
			obs.Checker, obs.DoubleChecker, obs.LastCheck = tt.checker, tt.doubleChecker, tt.lastCheck
			log := resultlog.New(nil)
			c.CheckersInitials(obs, tt.nearRelease, log)
			assert.Equal(t, tt.want, texts(log))
		})
	}
}

func TestRates(t *testing.T) {
	tests := []struct {
		name   string
		values domain.Values
		check  func(domain.TargetObservation, *resultlog.Log)
		want   []string
	}{
		{
			"high positives", domain.Values{domain.Positive: 500, domain.Negative: 500},
			PositivesRate, []string{"high positives rate 50% (positive=500, total=1,000)"},
		},
		{
			"small total tolerates more positives", domain.Values{domain.Positive: 70, domain.Negative: 30},
			PositivesRate, nil,
		},
		{
			"few positives", domain.Values{domain.Positive: 20, domain.Negative: 0},
			PositivesRate, nil,
		},
		{
			"high deaths", domain.Values{domain.Positive: 1000, domain.Negative: 1000, domain.Death: 200},
			DeathRate, []string{"high death rate 10% (death=200, total=2,000)"},
		},
		{
			"more recovered", domain.Values{domain.Positive: 100, domain.Recovered: 101},
			RecoveredVsPositive, []string{"More recovered than positive (recovered=101, positive=100)"},
		},
		{
			"high pending", domain.Values{domain.Positive: 1000, domain.Negative: 1000, domain.Pending: 500},
			PendingsRate, []string{"high pending rate 25% (pending=500, total=2,000)"},
		},
		{
			"sentinel skips rate", domain.Values{domain.Positive: domain.Blank, domain.Negative: 10},
			PositivesRate, nil,
		},
		{
			"missing column skips rate", domain.Values{domain.Positive: 10},
			DeathRate, nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := resultlog.New(nil)
			tt.check(domain.TargetObservation{Region: "ZZ", Values: tt.values}, log)
			assert.Equal(t, tt.want, texts(log))
			for _, m := range log.Messages() {
				assert.Equal(t, resultlog.DataQuality, m.Category)
			}
		})
	}
}

func TestMonotonic(t *testing.T) {
	h := domain.HistorySeries{
		Region: "ZZ",
		Entries: []domain.HistoryEntry{
			{Date: 20200404, Values: domain.Values{domain.Positive: 35, domain.Death: 3}},
			{Date: 20200401, Values: domain.Values{domain.Positive: 10, domain.Death: 1}},
			{Date: 20200402, Values: domain.Values{domain.Positive: 40, domain.Death: 2}},
			{Date: 20200403, Values: domain.Values{domain.Positive: 30, domain.Death: domain.Blank}},
			{Date: 20200405, Values: domain.Values{domain.Positive: 50, domain.Death: 2}},
		},
	}

	log := resultlog.New(nil)
	Monotonic(h, log)

	assert.Equal(t, []string{
		"positive values decreased from the previous day (on 20200403)",
		"death values decreased from the previous day (on 20200405)",
	}, texts(log))
}

func TestCurrent_SkipsOperationalChecks(t *testing.T) {
	obs := baseObs()
	obs.Checker = ""
	obs.LastCheck = time.Time{}
	obs.Values[domain.Recovered] = 5000

	log := resultlog.New(nil)
	New(DefaultConfig(), nil).Current(obs, log)
	assert.Equal(t, 0, log.Len(), texts(log))
}
