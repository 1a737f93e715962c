package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/case-data-qc/internal/domain"
	"github.com/couchcryptid/case-data-qc/internal/observability"
	"github.com/couchcryptid/case-data-qc/internal/pipeline"
	"github.com/couchcryptid/case-data-qc/internal/resultlog"
)

type mockPublisher struct {
	mu        sync.Mutex
	failures  int
	calls     int
	published []domain.Dataset
}

func (m *mockPublisher) Publish(_ context.Context, ds domain.Dataset, _ *resultlog.Log) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.published = append(m.published, ds)
	return nil
}

func (m *mockPublisher) snapshot() (int, []domain.Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, append([]domain.Dataset(nil), m.published...)
}

func TestScheduler_TickPublishesEveryDataset(t *testing.T) {
	clock := clockwork.NewFakeClock()
	checker := &countingChecker{clock: clock}
	metrics := observability.NewMetricsForTesting()
	runner := pipeline.NewCachedRunner(checker, nil, clock, time.Hour, discardLogger(), metrics)
	pub := &mockPublisher{}

	s := pipeline.NewScheduler(runner, pub, "@every 1h",
		[]domain.Dataset{domain.DatasetWorking, domain.DatasetCurrent}, discardLogger(), metrics)
	s.Tick(context.Background())

	_, published := pub.snapshot()
	assert.Equal(t, []domain.Dataset{domain.DatasetWorking, domain.DatasetCurrent}, published)
	assert.Equal(t, 2, checker.count())
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.FindingsPublished), 0)

	// a tick always recomputes, even inside the TTL
	s.Tick(context.Background())
	assert.Equal(t, 4, checker.count())
}

func TestScheduler_PublishRetries(t *testing.T) {
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	runner := pipeline.NewCachedRunner(&countingChecker{clock: clock}, nil, clock, time.Hour, discardLogger(), metrics)
	pub := &mockPublisher{failures: 1}

	s := pipeline.NewScheduler(runner, pub, "@every 1h", []domain.Dataset{domain.DatasetWorking}, discardLogger(), metrics)
	s.Tick(context.Background())

	calls, published := pub.snapshot()
	assert.Equal(t, 2, calls)
	assert.Len(t, published, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.PublishErrors), 0)
}

func TestScheduler_PublishGivesUp(t *testing.T) {
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	runner := pipeline.NewCachedRunner(&countingChecker{clock: clock}, nil, clock, time.Hour, discardLogger(), metrics)
	pub := &mockPublisher{failures: 10}

	s := pipeline.NewScheduler(runner, pub, "@every 1h", []domain.Dataset{domain.DatasetWorking}, discardLogger(), metrics)
	s.Tick(context.Background())

	calls, published := pub.snapshot()
	assert.Equal(t, 3, calls)
	assert.Empty(t, published)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.FindingsPublished), 0)
}

func TestScheduler_FailedRunSkipsPublish(t *testing.T) {
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	checker := &countingChecker{clock: clock, err: domain.ErrNoObservations}
	runner := pipeline.NewCachedRunner(checker, nil, clock, time.Hour, discardLogger(), metrics)
	pub := &mockPublisher{}

	s := pipeline.NewScheduler(runner, pub, "@every 1h", []domain.Dataset{domain.DatasetWorking}, discardLogger(), metrics)
	s.Tick(context.Background())

	calls, _ := pub.snapshot()
	assert.Zero(t, calls)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	checker := &countingChecker{clock: clock}
	runner := pipeline.NewCachedRunner(checker, nil, clock, time.Hour, discardLogger(), metrics)

	s := pipeline.NewScheduler(runner, nil, "@every 1h", []domain.Dataset{domain.DatasetWorking}, discardLogger(), metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return checker.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.SchedulerActive), 0)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.SchedulerActive), 0)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	clock := clockwork.NewFakeClock()
	metrics := observability.NewMetricsForTesting()
	runner := pipeline.NewCachedRunner(&countingChecker{clock: clock}, nil, clock, time.Hour, discardLogger(), metrics)

	s := pipeline.NewScheduler(runner, nil, "not a schedule", []domain.Dataset{domain.DatasetWorking}, discardLogger(), metrics)
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a schedule")
}
