package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardano-portfolio/internal/retry"
	"github.com/cardano-portfolio/internal/service"
	"github.com/cardano-portfolio/internal/types"
)

var testBucket = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

// fakePages serves total wallets in pages and fails the first failures calls
type fakePages struct {
	total    int
	failures int
	calls    []int
	nows     []time.Time
}

func (f *fakePages) RunPage(ctx context.Context, offset, limit int, now time.Time) (*service.PageResult, error) {
	f.calls = append(f.calls, offset)
	f.nows = append(f.nows, now)
	bucket := types.HourBucket(now)
	if f.failures > 0 {
		f.failures--
		return &service.PageResult{
			SnapshotResult: service.SnapshotResult{Errors: []string{"balance fetch failed: timeout"}, Bucket: bucket},
			HasMore:        offset+limit < f.total,
			NextOffset:     offset + limit,
		}, errors.New("timeout")
	}

	n := limit
	if offset+n > f.total {
		n = f.total - offset
	}
	return &service.PageResult{
		SnapshotResult: service.SnapshotResult{Processed: n, PricesStored: 3, Errors: []string{}, Bucket: bucket},
		HasMore:        offset+n < f.total,
		NextOffset:     offset + n,
	}, nil
}

type fakeEvaluator struct {
	buckets []time.Time
}

func (f *fakeEvaluator) EvaluateActive(ctx context.Context, bucket *time.Time) (*service.EvaluateResult, error) {
	f.buckets = append(f.buckets, *bucket)
	return &service.EvaluateResult{ProcessedWallets: 5, AlertsSent: 2, Errors: []string{}}, nil
}

func fastRetry(attempts int) *retry.RetryConfig {
	return &retry.RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
		Retryable:    func(error) bool { return true },
	}
}

func TestRunOnce_PagesThenEvaluates(t *testing.T) {
	pages := &fakePages{total: 5}
	alerts := &fakeEvaluator{}
	w, err := NewSnapshotWorker(pages, alerts, SnapshotWorkerConfig{PageSize: 2, Retry: fastRetry(3)})
	require.NoError(t, err)
	w.now = func() time.Time { return testBucket.Add(42 * time.Minute) }

	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, pages.calls)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, testBucket, res.Bucket)
	assert.Equal(t, []time.Time{testBucket}, alerts.buckets)
	assert.Equal(t, 2, res.AlertsSent)
	assert.Empty(t, res.Errors)
	assert.Same(t, res, w.LastResult())
}

func TestRunOnce_OneBucketAcrossHourBoundary(t *testing.T) {
	pages := &fakePages{total: 2}
	alerts := &fakeEvaluator{}
	w, err := NewSnapshotWorker(pages, alerts, SnapshotWorkerConfig{PageSize: 1, Retry: fastRetry(1)})
	require.NoError(t, err)

	clock := testBucket.Add(59*time.Minute + 59*time.Second)
	w.now = func() time.Time {
		now := clock
		clock = clock.Add(2 * time.Second)
		return now
	}

	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, pages.nows, 2)
	assert.Equal(t, pages.nows[0], pages.nows[1], "every page uses the cycle start time")
	assert.Equal(t, testBucket, types.HourBucket(pages.nows[1]))
	assert.Equal(t, testBucket, res.Bucket)
	assert.Equal(t, []time.Time{testBucket}, alerts.buckets)
}

func TestRunOnce_RetriesFailedPage(t *testing.T) {
	pages := &fakePages{total: 2, failures: 2}
	w, err := NewSnapshotWorker(pages, nil, SnapshotWorkerConfig{PageSize: 2, Retry: fastRetry(3)})
	require.NoError(t, err)

	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, pages.calls)
	assert.Equal(t, 2, res.Processed)
	assert.Empty(t, res.Errors)
}

func TestRunOnce_GivesUpOnPageAndContinues(t *testing.T) {
	pages := &fakePages{total: 4, failures: 2}
	alerts := &fakeEvaluator{}
	w, err := NewSnapshotWorker(pages, alerts, SnapshotWorkerConfig{PageSize: 2, Retry: fastRetry(2)})
	require.NoError(t, err)

	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 2}, pages.calls)
	assert.Equal(t, 2, res.Processed)
	assert.Contains(t, res.Errors, "balance fetch failed: timeout")
	assert.Len(t, alerts.buckets, 1, "evaluation still runs on partial progress")
}

func TestRunOnce_NonRetryableStopsEarly(t *testing.T) {
	pages := &fakePages{total: 2, failures: 5}
	cfg := fastRetry(5)
	cfg.Retryable = func(error) bool { return false }
	w, err := NewSnapshotWorker(pages, nil, SnapshotWorkerConfig{PageSize: 2, Retry: cfg})
	require.NoError(t, err)

	_, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, pages.calls, 1)
}

func TestRunOnce_CancelledBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pages := &fakePages{total: 10}
	w, err := NewSnapshotWorker(pages, nil, SnapshotWorkerConfig{PageSize: 2, PageDelay: time.Hour, Retry: fastRetry(1)})
	require.NoError(t, err)

	cancel()
	res, err := w.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Pages)
}

func TestNewSnapshotWorker_Validation(t *testing.T) {
	_, err := NewSnapshotWorker(nil, nil, SnapshotWorkerConfig{PageSize: 1})
	assert.Error(t, err)
	_, err = NewSnapshotWorker(&fakePages{}, nil, SnapshotWorkerConfig{})
	assert.Error(t, err)

	w, err := NewSnapshotWorker(&fakePages{}, nil, SnapshotWorkerConfig{PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, w.cfg.Interval)
	assert.NotNil(t, w.cfg.Retry.Retryable)
}

func TestNextRun(t *testing.T) {
	w, err := NewSnapshotWorker(&fakePages{}, nil, SnapshotWorkerConfig{PageSize: 10, Interval: time.Hour})
	require.NoError(t, err)

	assert.Equal(t, testBucket.Add(time.Hour), w.nextRun(testBucket.Add(42*time.Minute)))
	assert.Equal(t, testBucket.Add(time.Hour), w.nextRun(testBucket))
}
