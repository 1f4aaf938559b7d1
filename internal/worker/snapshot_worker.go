package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/cardano-portfolio/internal/errors"
	"github.com/cardano-portfolio/internal/logging"
	"github.com/cardano-portfolio/internal/retry"
	"github.com/cardano-portfolio/internal/service"
	"github.com/cardano-portfolio/internal/types"
)

// PageRunner snapshots one page of active wallets
type PageRunner interface {
	RunPage(ctx context.Context, offset, limit int, now time.Time) (*service.PageResult, error)
}

// AlertEvaluator evaluates every active wallet for one bucket
type AlertEvaluator interface {
	EvaluateActive(ctx context.Context, bucket *time.Time) (*service.EvaluateResult, error)
}

// SnapshotWorkerConfig holds configuration for the snapshot worker
type SnapshotWorkerConfig struct {
	PageSize  int
	PageDelay time.Duration

	// Interval between scheduled cycles; cycles start on interval boundaries
	Interval time.Duration

	// Retry applies to each page. Retryable defaults to apperrors.IsRetryable.
	Retry *retry.RetryConfig
}

// CycleResult summarizes one snapshot-then-evaluate cycle
type CycleResult struct {
	Bucket           time.Time `json:"bucket"`
	Pages            int       `json:"pages"`
	Processed        int       `json:"processed"`
	PricesStored     int       `json:"pricesStored"`
	ProcessedWallets int       `json:"processedWallets"`
	AlertsSent       int       `json:"alertsSent"`
	Errors           []string  `json:"errors"`
}

// SnapshotWorker pages through active wallets, snapshots them and then runs the
// threshold evaluator for the bucket. Pages are retried with backoff; re-running
// a page inside the same hour overwrites rather than duplicates.
type SnapshotWorker struct {
	pages  PageRunner
	alerts AlertEvaluator
	cfg    SnapshotWorkerConfig
	logger *logging.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	last    *CycleResult
}

// NewSnapshotWorker creates a new snapshot worker
func NewSnapshotWorker(pages PageRunner, alerts AlertEvaluator, cfg SnapshotWorkerConfig) (*SnapshotWorker, error) {
	if pages == nil {
		return nil, fmt.Errorf("page runner is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", cfg.PageSize)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultRetryConfig()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = apperrors.IsRetryable
	}

	return &SnapshotWorker{
		pages:  pages,
		alerts: alerts,
		cfg:    cfg,
		logger: logging.GetGlobalLogger().WithComponent("snapshot_worker"),
		now:    time.Now,
	}, nil
}

// ErrCycleRunning is returned when a cycle is requested while one is in progress
var ErrCycleRunning = errors.New("snapshot cycle already running")

// RunOnce runs one full cycle. It fails only when no page could be started.
func (w *SnapshotWorker) RunOnce(ctx context.Context) (*CycleResult, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, ErrCycleRunning
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ctx = logging.WithLogger(ctx, w.logger)
	start := w.now()
	result := &CycleResult{Bucket: types.HourBucket(start), Errors: []string{}}

	offset := 0
	for {
		page, err := w.runPage(ctx, offset, start)
		if page == nil {
			if result.Pages == 0 {
				return result, fmt.Errorf("snapshot cycle failed: %w", err)
			}
			result.Errors = append(result.Errors, fmt.Sprintf("page at offset %d: %v", offset, err))
			break
		}

		result.Pages++
		result.Processed += page.Processed
		result.PricesStored += page.PricesStored
		result.Errors = append(result.Errors, page.Errors...)

		if !page.HasMore {
			break
		}
		offset = page.NextOffset

		if w.cfg.PageDelay > 0 {
			timer := time.NewTimer(w.cfg.PageDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				result.Errors = append(result.Errors, "cycle cancelled between pages")
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	if w.alerts != nil {
		bucket := result.Bucket
		eval, err := w.alerts.EvaluateActive(ctx, &bucket)
		if eval != nil {
			result.ProcessedWallets = eval.ProcessedWallets
			result.AlertsSent = eval.AlertsSent
			result.Errors = append(result.Errors, eval.Errors...)
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("alert evaluation: %v", err))
		}
	}

	w.logger.WithFields(map[string]interface{}{
		"bucket":     result.Bucket.Format(time.RFC3339),
		"pages":      result.Pages,
		"processed":  result.Processed,
		"alertsSent": result.AlertsSent,
		"errors":     len(result.Errors),
		"duration":   w.now().Sub(start).String(),
	}).Info("Snapshot cycle complete")

	w.mu.Lock()
	w.last = result
	w.mu.Unlock()
	return result, nil
}

// runPage runs one page with retries. A page that still fails after retries is
// returned with its errors when the run got far enough to report a bucket.
func (w *SnapshotWorker) runPage(ctx context.Context, offset int, now time.Time) (*service.PageResult, error) {
	var page *service.PageResult
	res := retry.WithExponentialBackoff(ctx, w.cfg.Retry, func(ctx context.Context, attempt int) error {
		p, err := w.pages.RunPage(ctx, offset, w.cfg.PageSize, now)
		if p != nil {
			page = p
		}
		return err
	})
	if res.Success {
		return page, nil
	}
	if page != nil {
		page.Errors = append(page.Errors, fmt.Sprintf("page at offset %d gave up after %d attempts", offset, res.Attempts))
	}
	return page, res.LastError
}

// Start runs a cycle at every interval boundary until ctx is done
func (w *SnapshotWorker) Start(ctx context.Context) {
	for {
		next := w.nextRun(w.now())
		w.logger.WithFields(map[string]interface{}{
			"next_run": next.Format(time.RFC3339),
			"wait":     next.Sub(w.now()).String(),
		}).Info("Waiting for next snapshot time")

		timer := time.NewTimer(next.Sub(w.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.WithError(err).Error("Snapshot cycle failed")
		}
	}
}

// nextRun returns the first interval boundary strictly after t
func (w *SnapshotWorker) nextRun(t time.Time) time.Time {
	return t.UTC().Truncate(w.cfg.Interval).Add(w.cfg.Interval)
}

// LastResult returns the most recent completed cycle, if any
func (w *SnapshotWorker) LastResult() *CycleResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
