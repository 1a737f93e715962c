package staleness

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

const testTarget = domain.Date(20200415)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildHistory returns days entries ending the day before the target.
// valuesFor receives how many days back the entry is (1 = yesterday).
func buildHistory(days int, valuesFor func(back int) domain.Values) domain.HistorySeries {
	h := domain.HistorySeries{Region: "ZZ"}
	for back := days; back >= 1; back-- {
		h.Entries = append(h.Entries, domain.HistoryEntry{
			Date:   testTarget.AddDays(-back),
			Values: valuesFor(back),
		})
	}
	return h
}

// frozenFor returns cur for the last n days and cur-10*back earlier.
func frozenFor(n int, cur int64, back int) int64 {
	if back <= n {
		return cur
	}
	return cur - 10*int64(back)
}

func observation(values domain.Values) domain.TargetObservation {
	return domain.TargetObservation{
		Region:     "ZZ",
		TargetDate: testTarget,
		Values:     values,
	}
}

func threeFieldConfig() Config {
	cfg := DefaultConfig()
	cfg.Fields = []domain.Field{domain.Positive, domain.Negative, domain.Death}
	return cfg
}

func analyze(t *testing.T, cfg Config, obs domain.TargetObservation, h domain.HistorySeries, nearRelease bool) (Report, *resultlog.Log) {
	t.Helper()
	log := resultlog.New(nil)
	report := NewAnalyzer(cfg, discardLogger()).Analyze(obs, h, nearRelease, log)
	return report, log
}

func texts(msgs []resultlog.Message) []string {
	var out []string
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestAnalyze_BelowThresholdNeverStale(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 99, domain.Negative: 899, domain.Death: 19})
	h := buildHistory(10, func(int) domain.Values {
		return domain.Values{domain.Positive: 99, domain.Negative: 899, domain.Death: 19}
	})

	report, log := analyze(t, threeFieldConfig(), obs, h, true)

	assert.Equal(t, 0, log.Len())
	assert.Equal(t, StatusIgnored, report.Status[domain.Positive])
	assert.Equal(t, StatusIgnored, report.Status[domain.Negative])
	assert.Equal(t, StatusIgnored, report.Status[domain.Death])
	assert.True(t, report.Eligible(domain.Positive))
}

func TestAnalyze_ConsolidatesWhenAllSameAge(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300})
	h := buildHistory(10, func(back int) domain.Values {
		return domain.Values{
			domain.Positive: frozenFor(5, 5000, back),
			domain.Negative: frozenFor(5, 20000, back),
			domain.Death:    frozenFor(5, 300, back),
		}
	})

	report, log := analyze(t, threeFieldConfig(), obs, h, false)

	require.Equal(t, 1, log.Len())
	msg := log.Messages()[0]
	assert.Equal(t, resultlog.DataSource, msg.Category)
	assert.Equal(t, "ZZ", msg.Location)
	assert.Equal(t, "positive/negative/death haven't changed since 4/9 (6 days)", msg.Text)
	assert.True(t, report.Consolidated)
	assert.Len(t, report.Stale, 3)
}

func TestAnalyze_DifferentAgesReportIndividually(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300})
	h := buildHistory(10, func(back int) domain.Values {
		return domain.Values{
			domain.Positive: frozenFor(5, 5000, back),
			domain.Negative: frozenFor(4, 20000, back),
			domain.Death:    frozenFor(5, 300, back),
		}
	})

	report, log := analyze(t, threeFieldConfig(), obs, h, false)

	assert.False(t, report.Consolidated)
	assert.Equal(t, []string{
		"positive (5,000) hasn't changed since 4/9 (6 days)",
		"negative (20,000) hasn't changed since 4/10 (5 days)",
		"death (300) hasn't changed since 4/9 (6 days)",
	}, texts(log.ByCategory(resultlog.DataSource)))
	assert.Equal(t, 3, log.Len())
}

func TestAnalyze_SentinelsProduceOneDataEntryEach(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: domain.Blank, domain.Negative: domain.Unparseable, domain.Death: 300})
	h := buildHistory(10, func(back int) domain.Values {
		return domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300 - int64(back)}
	})

	report, log := analyze(t, threeFieldConfig(), obs, h, true)

	assert.Equal(t, []string{
		"positive is blank",
		"negative value cannot be converted to a number",
	}, texts(log.ByCategory(resultlog.DataEntry)))
	assert.Empty(t, log.ByCategory(resultlog.DataQuality))
	assert.Empty(t, log.ByCategory(resultlog.DataSource))
	assert.Equal(t, StatusSentinel, report.Status[domain.Positive])
	assert.False(t, report.Eligible(domain.Positive))
	assert.True(t, report.HasIssues)
}

func TestAnalyze_Decreased(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 900, domain.Negative: 20000, domain.Death: 300})
	h := buildHistory(3, func(back int) domain.Values {
		return domain.Values{domain.Positive: 1000, domain.Negative: 19000, domain.Death: 290}
	})

	report, log := analyze(t, threeFieldConfig(), obs, h, true)

	dq := log.ByCategory(resultlog.DataQuality)
	require.Len(t, dq, 1)
	assert.Equal(t, "positive (900) decreased from 1,000 as-of 4/14", dq[0].Text)
	assert.Equal(t, StatusDecreased, report.Status[domain.Positive])
	assert.Equal(t, StatusChanged, report.Status[domain.Negative])
	assert.Equal(t, 1, log.Len())
}

func TestAnalyze_ZeroIsNotADecrease(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 0, domain.Negative: 20000, domain.Death: 300})
	h := buildHistory(3, func(int) domain.Values {
		return domain.Values{domain.Positive: 1000, domain.Negative: 19000, domain.Death: 290}
	})

	_, log := analyze(t, threeFieldConfig(), obs, h, true)
	assert.Empty(t, log.ByCategory(resultlog.DataQuality))
}

func TestAnalyze_MissingColumns(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 5000, domain.Negative: 20000})
	h := buildHistory(3, func(back int) domain.Values {
		return domain.Values{domain.Positive: 5000 - int64(back), domain.Death: 10}
	})

	report, log := analyze(t, threeFieldConfig(), obs, h, true)

	assert.Equal(t, []string{
		"negative missing history column",
		"death missing column",
	}, texts(log.ByCategory(resultlog.InternalError)))
	assert.Equal(t, StatusChanged, report.Status[domain.Positive])
	assert.Equal(t, StatusMissing, report.Status[domain.Negative])
	assert.Equal(t, StatusMissing, report.Status[domain.Death])
}

func TestAnalyze_ConstantForAllTime(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300})
	h := buildHistory(6, func(back int) domain.Values {
		return domain.Values{domain.Positive: 5000, domain.Negative: 20000 - int64(back), domain.Death: 300 - int64(back)}
	})

	report, log := analyze(t, threeFieldConfig(), obs, h, true)

	assert.Equal(t, []string{"positive (5,000) constant for all time"}, texts(log.ByCategory(resultlog.DataSource)))
	assert.Equal(t, StatusConstant, report.Status[domain.Positive])
	assert.Empty(t, report.Stale)
}

func TestAnalyze_GraceWindowOutsideRelease(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300})
	h := buildHistory(10, func(back int) domain.Values {
		return domain.Values{
			domain.Positive: frozenFor(1, 5000, back),
			domain.Negative: 20000 - int64(back),
			domain.Death:    300 - int64(back),
		}
	})

	report, log := analyze(t, threeFieldConfig(), obs, h, false)
	assert.Equal(t, 0, log.Len())
	assert.Equal(t, StatusRecent, report.Status[domain.Positive])

	report, log = analyze(t, threeFieldConfig(), obs, h, true)
	assert.Equal(t, []string{"positive (5,000) hasn't changed since 4/13 (2 days)"}, texts(log.Messages()))
	assert.Equal(t, StatusStale, report.Status[domain.Positive])
}

func TestAnalyze_SingleFrozenFieldIsNotConsolidated(t *testing.T) {
	obs := observation(domain.Values{
		domain.Positive:               150,
		domain.Negative:               50,
		domain.Death:                  2,
		domain.HospitalizedCumulative: 40,
		domain.InIcuCumulative:        12,
		domain.OnVentilatorCumulative: 11,
	})
	h := buildHistory(10, func(back int) domain.Values {
		return domain.Values{
			domain.Positive:               frozenFor(5, 150, back),
			domain.Negative:               50 - int64(back),
			domain.Death:                  2,
			domain.HospitalizedCumulative: 40 - int64(back),
			domain.InIcuCumulative:        12 - int64(back),
			domain.OnVentilatorCumulative: 11 - int64(back),
		}
	})

	report, log := analyze(t, DefaultConfig(), obs, h, false)

	require.Equal(t, 1, log.Len())
	msg := log.Messages()[0]
	assert.Equal(t, resultlog.DataSource, msg.Category)
	assert.Equal(t, "positive (150) hasn't changed since 4/9 (6 days)", msg.Text)
	assert.False(t, report.Consolidated)
}

func TestAnalyze_LocalTimeMismatch(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300})
	obs.LocalTime = time.Date(2020, 4, 15, 10, 5, 0, 0, time.UTC)
	obs.Checker = "AB"
	h := buildHistory(10, func(back int) domain.Values {
		return domain.Values{
			domain.Positive: frozenFor(5, 5000, back),
			domain.Negative: frozenFor(5, 20000, back),
			domain.Death:    frozenFor(5, 300, back),
		}
	})

	_, log := analyze(t, threeFieldConfig(), obs, h, false)

	assert.Equal(t, []string{
		"checker AB set local time to 4/15 10:05 but values haven't changed since 4/9 (6 days ago)",
	}, texts(log.ByCategory(resultlog.DataEntry)))
	assert.Len(t, log.ByCategory(resultlog.DataSource), 1)
}

func TestAnalyze_LocalTimeWithinGrace(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300})
	obs.LocalTime = time.Date(2020, 4, 10, 9, 0, 0, 0, time.UTC)
	h := buildHistory(10, func(back int) domain.Values {
		return domain.Values{
			domain.Positive: frozenFor(5, 5000, back),
			domain.Negative: 20000 - int64(back),
			domain.Death:    300 - int64(back),
		}
	})

	_, log := analyze(t, threeFieldConfig(), obs, h, false)
	assert.Empty(t, log.ByCategory(resultlog.DataEntry))
}

func TestAnalyze_RequireAllStale(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300})
	h := buildHistory(10, func(back int) domain.Values {
		return domain.Values{
			domain.Positive: frozenFor(5, 5000, back),
			domain.Negative: frozenFor(5, 20000, back),
			domain.Death:    300 - int64(back),
		}
	})

	report, log := analyze(t, threeFieldConfig(), obs, h, false)
	assert.True(t, report.Consolidated)
	assert.Equal(t, []string{"positive/negative haven't changed since 4/9 (6 days)"}, texts(log.Messages()))

	report, log = analyze(t, LegacyConfig(), obs, h, false)
	assert.False(t, report.Consolidated)
	assert.Len(t, log.ByCategory(resultlog.DataSource), 2)
}

func TestAnalyze_IgnoresHistoryOnOrAfterTarget(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300})
	h := buildHistory(3, func(back int) domain.Values {
		return domain.Values{domain.Positive: 4000 + int64(back), domain.Negative: 19000, domain.Death: 290}
	})
	h.Entries = append(h.Entries, domain.HistoryEntry{
		Date:   testTarget,
		Values: domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300},
	})

	report, log := analyze(t, threeFieldConfig(), obs, h, true)
	assert.Equal(t, 0, log.Len())
	assert.Equal(t, StatusChanged, report.Status[domain.Positive])
}

func TestAnalyze_EmptyHistory(t *testing.T) {
	obs := observation(domain.Values{domain.Positive: 5000, domain.Negative: 20000, domain.Death: 300})

	report, log := analyze(t, threeFieldConfig(), obs, domain.HistorySeries{Region: "ZZ"}, true)
	assert.Equal(t, 0, log.Len())
	assert.Equal(t, StatusChanged, report.Status[domain.Death])
}
