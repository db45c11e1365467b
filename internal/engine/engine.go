// Package engine runs the job dispatch loop: it claims pending verification
// jobs from the store, executes them against provider portals through the
// browser pool, and drives each job to a terminal state with its bookkeeping
// (result persistence, status mirror, refund) done exactly once.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/obikwelu/resulthawk/internal/billing"
	"github.com/obikwelu/resulthawk/internal/browser"
	"github.com/obikwelu/resulthawk/internal/cache"
	"github.com/obikwelu/resulthawk/internal/config"
	"github.com/obikwelu/resulthawk/internal/provider"
	"github.com/obikwelu/resulthawk/internal/store"
	"github.com/obikwelu/resulthawk/internal/verify"
	"github.com/obikwelu/resulthawk/pkg/models"
)

const (
	// settingsTTL bounds how stale the cached provider settings may get.
	settingsTTL = 5 * time.Minute
	// jobStatusTTL keeps terminal job statuses readable from Redis for a day.
	jobStatusTTL = 24 * time.Hour
)

// Engine claims jobs and executes them with bounded concurrency. It is safe
// to run several Engine instances against the same database; the store's
// atomic claim keeps each job owned by exactly one of them.
type Engine struct {
	store       store.Store
	cache       cache.Cache
	pool        *browser.Pool
	compensator *billing.Compensator
	cfg         config.EngineConfig
	browserCfg  config.BrowserConfig
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	active  map[uuid.UUID]struct{}
	cancel  context.CancelFunc

	wg   sync.WaitGroup
	cron *cron.Cron
}

// New creates an Engine. Call Start to begin processing.
func New(st store.Store, c cache.Cache, pool *browser.Pool, comp *billing.Compensator,
	cfg config.EngineConfig, browserCfg config.BrowserConfig, logger *slog.Logger) *Engine {
	return &Engine{
		store:       st,
		cache:       c,
		pool:        pool,
		compensator: comp,
		cfg:         cfg,
		browserCfg:  browserCfg,
		logger:      logger,
		active:      make(map[uuid.UUID]struct{}),
	}
}

// Start launches the poll loop and the stale-job janitor. Calling Start on a
// running engine is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true

	e.cron = cron.New()
	if _, err := e.cron.AddFunc(e.cfg.JanitorSpec, func() { e.janitor(runCtx) }); err != nil {
		cancel()
		e.running = false
		return fmt.Errorf("scheduling janitor: %w", err)
	}
	e.cron.Start()

	e.wg.Add(1)
	go e.pollLoop(runCtx)

	e.logger.Info("engine started",
		"max_concurrent", e.cfg.MaxConcurrent,
		"poll_interval", e.cfg.PollInterval,
		"job_timeout", e.cfg.JobTimeout,
	)
	return nil
}

// Stop halts claiming, waits for in-flight jobs to finish, and stops the
// janitor. Calling Stop on a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	cronRunner := e.cron
	e.mu.Unlock()

	cancel()
	if cronRunner != nil {
		<-cronRunner.Stop().Done()
	}
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

// Status reports a point-in-time snapshot for the ops endpoint.
func (e *Engine) Status(ctx context.Context) models.EngineStatus {
	e.mu.Lock()
	running := e.running
	activeJobs := len(e.active)
	e.mu.Unlock()

	queueDepth, err := e.store.CountByStatus(ctx, models.JobStatusPending)
	if err != nil {
		e.logger.Warn("counting pending jobs failed", "error", err)
		queueDepth = -1
	}

	return models.EngineStatus{
		Running:       running,
		QueueDepth:    queueDepth,
		ActiveJobs:    activeJobs,
		MaxConcurrent: e.cfg.MaxConcurrent,
		Pool:          e.pool.Stats(),
	}
}

// pollLoop claims jobs on a fixed interval, never exceeding the concurrency
// ceiling. Each claimed job runs in its own goroutine.
func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.claimBatch(ctx)
		}
	}
}

// claimBatch fills the free concurrency slots with freshly claimed jobs.
func (e *Engine) claimBatch(ctx context.Context) {
	for {
		e.mu.Lock()
		free := e.cfg.MaxConcurrent - len(e.active)
		e.mu.Unlock()
		if free <= 0 {
			return
		}

		job, err := e.store.ClaimOldestPending(ctx)
		if errors.Is(err, store.ErrNoPendingJobs) {
			return
		}
		if err != nil {
			e.logger.Error("claiming pending job failed", "error", err)
			return
		}

		e.mu.Lock()
		e.active[job.ID] = struct{}{}
		e.mu.Unlock()

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer func() {
				e.mu.Lock()
				delete(e.active, job.ID)
				e.mu.Unlock()
			}()
			// Detached from the claim loop's cancellation: Stop drains
			// in-flight jobs, and a claimed job must always reach its
			// terminal persistence even while the engine shuts down.
			e.process(context.WithoutCancel(ctx), job)
		}()
	}
}

// process drives one claimed job to a terminal state or back to pending.
func (e *Engine) process(ctx context.Context, job *models.Job) {
	logger := e.logger.With("job_id", job.ID, "provider", job.Provider, "retry", job.RetryCount)
	logger.Info("processing job")

	settings, err := e.resolveSettings(ctx, job.Provider)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.retryOrFail(ctx, job, nil, fmt.Sprintf("loading provider settings: %v", err), logger)
		return
	}

	profile, err := provider.Get(job.Provider)
	if err != nil {
		e.failTerminal(ctx, job, settings, nil, fmt.Sprintf("unknown provider %q", job.Provider), logger)
		return
	}
	if settings == nil {
		e.failTerminal(ctx, job, nil, nil, fmt.Sprintf("no settings configured for provider %q", job.Provider), logger)
		return
	}

	lease, err := e.pool.Acquire(ctx, e.browserCfg.AcquireWait)
	if err != nil {
		e.retryOrFail(ctx, job, settings, fmt.Sprintf("acquiring browser session: %v", err), logger)
		return
	}

	worker := verify.NewWorker(profile, settings, e.browserCfg.StepTimeout)
	outcome, timedOut, execErr := e.executeWithDeadline(ctx, worker, lease, job)

	switch {
	case timedOut:
		// The session was discarded mid-interaction; its state is unknown.
		e.retryOrFail(ctx, job, settings, fmt.Sprintf("job exceeded deadline of %s", e.cfg.JobTimeout), logger)
	case errors.Is(execErr, verify.ErrNotConfigured):
		e.failTerminal(ctx, job, settings, nil, execErr.Error(), logger)
	case execErr != nil:
		e.retryOrFail(ctx, job, settings, fmt.Sprintf("executing verification: %v", execErr), logger)
	case outcome.Classification == models.OutcomeError:
		// An error-classified outcome (card exhausted, portal broke mid-flow)
		// is a billable failure, not a completed verification.
		e.failTerminal(ctx, job, settings, outcome, outcome.Message, logger)
	default:
		e.completeTerminal(ctx, job, settings, outcome, logger)
	}
}

// executeWithDeadline races the verification against the job timeout. On
// timeout the lease is discarded rather than released: a browser interrupted
// mid-interaction cannot be trusted back into rotation.
func (e *Engine) executeWithDeadline(ctx context.Context, worker *verify.Worker, lease *browser.Lease, job *models.Job) (*models.Outcome, bool, error) {
	jobCtx, cancel := context.WithTimeout(ctx, e.cfg.JobTimeout)
	defer cancel()

	type execResult struct {
		outcome *models.Outcome
		err     error
	}
	resultCh := make(chan execResult, 1)
	go func() {
		outcome, err := worker.Execute(jobCtx, lease.Session(), job.Payload)
		resultCh <- execResult{outcome, err}
	}()

	timer := time.NewTimer(e.cfg.JobTimeout)
	defer timer.Stop()

	select {
	case res := <-resultCh:
		lease.Release()
		return res.outcome, false, res.err
	case <-timer.C:
		cancel()
		lease.Discard()
		return nil, true, nil
	}
}

// retryOrFail handles an infrastructure failure: the job goes back to pending
// when retries remain, otherwise it fails terminally.
func (e *Engine) retryOrFail(ctx context.Context, job *models.Job, settings *models.ProviderSettings, errMsg string, logger *slog.Logger) {
	if job.RetriesRemaining() {
		if err := e.store.ReleaseForRetry(ctx, job.ID, errMsg); err != nil {
			logger.Error("releasing job for retry failed", "error", err)
			return
		}
		logger.Warn("job released for retry", "reason", errMsg)
		e.setCachedStatus(ctx, job.ID, models.JobStatusPending)
		return
	}
	e.failTerminal(ctx, job, settings, nil, errMsg, logger)
}

// completeTerminal records a conclusive answer from the portal: verified, or
// not_found (the lookup itself succeeded, the result does not exist).
func (e *Engine) completeTerminal(ctx context.Context, job *models.Job, settings *models.ProviderSettings, outcome *models.Outcome, logger *slog.Logger) {
	e.persistEvidence(ctx, job.ID, outcome, logger)

	if err := e.store.MarkCompleted(ctx, job.ID, outcome); err != nil {
		logger.Error("marking job completed failed", "error", err)
		return
	}
	logger.Info("job completed", "classification", outcome.Classification)

	e.finishBookkeeping(ctx, job, settings, models.JobStatusCompleted, outcome, logger)
}

// failTerminal marks a job failed and runs its terminal bookkeeping.
func (e *Engine) failTerminal(ctx context.Context, job *models.Job, settings *models.ProviderSettings, outcome *models.Outcome, errMsg string, logger *slog.Logger) {
	e.persistEvidence(ctx, job.ID, outcome, logger)

	if err := e.store.MarkFailed(ctx, job.ID, errMsg, outcome); err != nil {
		logger.Error("marking job failed failed", "error", err)
		return
	}
	logger.Warn("job failed", "reason", errMsg)

	e.finishBookkeeping(ctx, job, settings, models.JobStatusFailed, outcome, logger)
}

// finishBookkeeping mirrors the terminal status to the originating service
// request, publishes it to the cache, and settles the refund if one is owed.
// Each step is independent; a failure in one is logged without blocking the
// others.
func (e *Engine) finishBookkeeping(ctx context.Context, job *models.Job, settings *models.ProviderSettings, status string, outcome *models.Outcome, logger *slog.Logger) {
	if err := e.store.UpdateServiceRequest(ctx, job.ID, status, outcome); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Error("mirroring status to service request failed", "error", err)
	}

	e.setCachedStatus(ctx, job.ID, status)

	var price int64
	if settings != nil {
		price = settings.Price
	}
	if err := e.compensator.Settle(ctx, job, outcome, price); err != nil {
		logger.Error("settling refund failed", "error", err)
	}
}

// persistEvidence stores captured artifacts. Evidence is best effort; a
// storage failure never changes the verification outcome.
func (e *Engine) persistEvidence(ctx context.Context, jobID uuid.UUID, outcome *models.Outcome, logger *slog.Logger) {
	if outcome == nil || outcome.Evidence == nil {
		return
	}
	if outcome.Evidence.Screenshot != "" {
		if err := e.store.SaveArtifact(ctx, jobID, store.ArtifactScreenshot, outcome.Evidence.Screenshot); err != nil {
			logger.Warn("saving screenshot artifact failed", "error", err)
		}
	}
	if outcome.Evidence.Document != "" {
		if err := e.store.SaveArtifact(ctx, jobID, store.ArtifactDocument, outcome.Evidence.Document); err != nil {
			logger.Warn("saving document artifact failed", "error", err)
		}
	}
}

func (e *Engine) setCachedStatus(ctx context.Context, jobID uuid.UUID, status string) {
	if err := e.cache.SetJobStatus(ctx, jobID, status, jobStatusTTL); err != nil {
		e.logger.Warn("publishing job status to cache failed", "job_id", jobID, "error", err)
	}
}

// resolveSettings reads provider settings through the cache. A database row
// is cached briefly so the poll loop does not hammer the settings table.
func (e *Engine) resolveSettings(ctx context.Context, key string) (*models.ProviderSettings, error) {
	settings, found, err := e.cache.GetProviderSettings(ctx, key)
	if err != nil {
		e.logger.Warn("reading provider settings from cache failed", "provider", key, "error", err)
	} else if found {
		return settings, nil
	}

	settings, err = e.store.GetProviderSettings(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("loading provider settings: %w", err)
	}

	if err := e.cache.SetProviderSettings(ctx, settings, settingsTTL); err != nil {
		e.logger.Warn("caching provider settings failed", "provider", key, "error", err)
	}
	return settings, nil
}

// janitor requeues or fails jobs stuck in processing past the staleness
// cutoff, then runs terminal bookkeeping for the ones that failed for good.
func (e *Engine) janitor(ctx context.Context) {
	requeued, failed, err := e.store.RequeueStale(ctx, e.cfg.StaleAfter)
	if err != nil {
		e.logger.Error("stale job sweep failed", "error", err)
		return
	}
	if requeued == 0 && len(failed) == 0 {
		return
	}
	e.logger.Info("stale job sweep", "requeued", requeued, "failed", len(failed))

	for _, job := range failed {
		logger := e.logger.With("job_id", job.ID, "provider", job.Provider)
		settings, err := e.resolveSettings(ctx, job.Provider)
		if err != nil {
			logger.Error("resolving settings for stale job bookkeeping failed", "error", err)
		}
		e.finishBookkeeping(ctx, job, settings, models.JobStatusFailed, nil, logger)
	}
}
