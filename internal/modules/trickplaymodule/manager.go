package trickplaymodule

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/trickplay/internal/config"
	"github.com/mantonx/trickplay/internal/database"
	"github.com/mantonx/trickplay/internal/events"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/pipeline"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/session"
	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
	"github.com/mantonx/trickplay/internal/utils"
)

// progressInterval limits how often frame progress is persisted and published
const progressInterval = 250 * time.Millisecond

// Runner executes one generation run
type Runner interface {
	Run(ctx context.Context, cfg *types.TrickplayConfig, obs pipeline.Observer) (*types.Result, error)
}

// Manager runs trickplay jobs in the background, bounded by
// MaxConcurrentJobs, and records their lifecycle in the job store.
type Manager struct {
	store    *session.Store
	runner   Runner
	eventBus events.EventBus
	defaults config.TrickplayConfig
	jobs     config.JobsConfig
	logger   hclog.Logger

	slots chan struct{}

	mu      sync.Mutex
	running map[string]context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a job manager. eventBus may be nil.
func NewManager(store *session.Store, runner Runner, eventBus events.EventBus, cfg *config.Config, logger hclog.Logger) *Manager {
	maxJobs := cfg.Jobs.MaxConcurrentJobs
	if maxJobs < 1 {
		maxJobs = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    store,
		runner:   runner,
		eventBus: eventBus,
		defaults: cfg.Trickplay,
		jobs:     cfg.Jobs,
		logger:   logger.Named("manager"),
		slots:    make(chan struct{}, maxJobs),
		running:  make(map[string]context.CancelFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start marks jobs orphaned by a previous process as failed
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.store.FailInterrupted(ctx); err != nil {
		return err
	}
	m.logger.Info("job manager started", "max_concurrent_jobs", cap(m.slots), "job_timeout", m.jobs.JobTimeout)
	return nil
}

// Shutdown cancels every running job and waits for them to finish
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("job manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("job manager stop timed out")
		return ctx.Err()
	}
}

// Submit validates a request, records a queued job and starts it in the
// background. The returned job reflects the queued state.
func (m *Manager) Submit(ctx context.Context, req types.JobRequest) (*database.TrickplayJob, error) {
	if m.ctx.Err() != nil {
		return nil, fmt.Errorf("job manager is shut down")
	}

	source, err := filepath.Abs(req.SourcePath)
	if err != nil {
		return nil, tperrors.InvalidConfig("submit_job", err)
	}

	if !utils.FileExists(source) {
		return nil, tperrors.InputNotFound("submit_job", tperrors.ErrInputNotFound).WithPath(source)
	}

	cfg, err := types.BuildConfig(m.defaults, source, req.Options)
	if err != nil {
		return nil, err
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = types.TriggerAPI
	}

	job, err := m.store.Create(ctx, source, cfg.OutputDir, trigger, req.Options)
	if err != nil {
		return nil, err
	}

	jobCtx, jobCancel := context.WithCancel(m.ctx)
	m.mu.Lock()
	m.running[job.ID] = jobCancel
	m.mu.Unlock()

	m.publish(events.EventJobQueued, events.JobEventData{JobID: job.ID, SourcePath: source})
	m.logger.Info("queued trickplay job", "job_id", job.ID, "source", source, "trigger", trigger)

	m.wg.Add(1)
	go m.runJob(jobCtx, jobCancel, job.ID, cfg)

	return job, nil
}

// SubmitIfIdle submits a job unless the source already has one queued or
// running. Used by the library watcher.
func (m *Manager) SubmitIfIdle(ctx context.Context, sourcePath, trigger string) (*database.TrickplayJob, error) {
	source, err := filepath.Abs(sourcePath)
	if err != nil {
		return nil, err
	}

	active, err := m.store.HasActive(ctx, source)
	if err != nil {
		return nil, err
	}
	if active {
		m.logger.Debug("source already has an active job", "source", source)
		return nil, nil
	}
	return m.Submit(ctx, types.JobRequest{SourcePath: source, Trigger: trigger})
}

// Get returns a job by ID
func (m *Manager) Get(ctx context.Context, id string) (*database.TrickplayJob, error) {
	return m.store.Get(ctx, id)
}

// List returns jobs matching filter
func (m *Manager) List(ctx context.Context, filter session.ListFilter) ([]database.TrickplayJob, error) {
	return m.store.List(ctx, filter)
}

// Result returns the stored result of a job, nil until it completes
func (m *Manager) Result(ctx context.Context, id string) (*types.Result, error) {
	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.GetResult(job)
}

// Cancel stops a queued or running job. Cancelling a finished job is an
// invalid transition.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	cancel, ok := m.running[id]
	m.mu.Unlock()

	if ok {
		m.logger.Info("cancelling trickplay job", "job_id", id)
		cancel()
		return nil
	}

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return tperrors.InvalidTransition("cancel_job",
			fmt.Errorf("job is already %s", job.Status)).WithJob(id)
	}

	// Not owned by this process
	if err := m.store.Transition(ctx, id, database.JobStatusCancelled, nil); err != nil {
		return err
	}
	m.publish(events.EventJobCancelled, events.JobEventData{JobID: id, SourcePath: job.SourcePath})
	return nil
}

// Subscribe streams the events of one job. The returned func must be called
// to release the subscription.
func (m *Manager) Subscribe(jobID string) (<-chan events.Event, func()) {
	if m.eventBus == nil {
		ch := make(chan events.Event)
		close(ch)
		return ch, func() {}
	}
	return m.eventBus.SubscribeChan(events.EventFilter{JobID: jobID}, 64)
}

// Wait blocks until every submitted job has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) runJob(ctx context.Context, cancel context.CancelFunc, id string, cfg *types.TrickplayConfig) {
	defer m.wg.Done()
	defer func() {
		cancel()
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
	}()

	// Ledger writes must outlive job cancellation
	bg := context.WithoutCancel(ctx)
	base := events.JobEventData{JobID: id, SourcePath: cfg.SourcePath}

	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		m.finish(bg, id, base, nil, tperrors.Cancelled("run_job", ctx.Err()), database.JobStatusCancelled)
		return
	}

	if err := m.store.Transition(bg, id, database.JobStatusRunning, nil); err != nil {
		m.logger.Error("failed to mark job running", "job_id", id, "error", err)
		m.finish(bg, id, base, nil, fmt.Errorf("failed to start job: %w", err), database.JobStatusFailed)
		return
	}
	m.publish(events.EventJobStarted, base)

	runCtx := ctx
	if m.jobs.JobTimeout > 0 {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(ctx, m.jobs.JobTimeout)
		defer timeoutCancel()
	}

	result, err := m.runner.Run(runCtx, cfg, m.observer(bg, base))
	status := database.JobStatusCompleted
	switch {
	case err != nil && ctx.Err() == nil && runCtx.Err() == context.DeadlineExceeded:
		err = tperrors.Timeout("run_job", m.jobs.JobTimeout).WithJob(id)
		status = database.JobStatusFailed
	case err != nil && tperrors.GetType(err) == tperrors.ErrorTypeCancelled:
		status = database.JobStatusCancelled
	case err != nil:
		status = database.JobStatusFailed
	}
	m.finish(bg, id, base, result, err, status)
}

// finish records the outcome of a job and publishes the terminal event
func (m *Manager) finish(ctx context.Context, id string, base events.JobEventData, result *types.Result, err error, status database.JobStatus) {
	eventType := events.EventJobCompleted
	switch status {
	case database.JobStatusFailed:
		eventType = events.EventJobFailed
	case database.JobStatusCancelled:
		eventType = events.EventJobCancelled
	}

	if result != nil {
		if serr := m.store.SetResult(ctx, id, result); serr != nil {
			m.logger.Error("failed to store job result", "job_id", id, "error", serr)
		}
		base.OutputDir = result.OutputDir
		base.SheetCount = len(result.SheetPaths)
	}

	if terr := m.store.Transition(ctx, id, status, err); terr != nil {
		m.logger.Error("failed to record job outcome", "job_id", id, "status", status, "error", terr)
	}

	if err != nil {
		base.Error = err.Error()
		base.ErrorType = string(tperrors.GetType(err))
		m.logger.Warn("trickplay job finished", "job_id", id, "status", status, "error", err)
	} else {
		m.logger.Info("trickplay job completed", "job_id", id, "sheets", base.SheetCount, "output", base.OutputDir)
	}
	m.publish(eventType, base)
}

func (m *Manager) observer(ctx context.Context, base events.JobEventData) pipeline.Observer {
	var mu sync.Mutex
	var last time.Time

	return pipeline.Observer{
		OnStage: func(stage types.Stage) {
			if stage.IsTerminal() {
				return
			}
			if err := m.store.UpdateStage(ctx, base.JobID, stage); err != nil {
				m.logger.Warn("failed to record job stage", "job_id", base.JobID, "stage", stage, "error", err)
			}
			data := base
			data.Stage = string(stage)
			m.publish(events.EventJobStage, data)
		},
		OnProgress: func(stage types.Stage, done, total int) {
			mu.Lock()
			defer mu.Unlock()
			if done < total && time.Since(last) < progressInterval {
				return
			}
			last = time.Now()

			if err := m.store.UpdateProgress(ctx, base.JobID, done, total); err != nil {
				m.logger.Warn("failed to record job progress", "job_id", base.JobID, "error", err)
			}
			data := base
			data.Stage = string(stage)
			data.Done = done
			data.Total = total
			m.publish(events.EventJobProgress, data)
		},
	}
}

func (m *Manager) publish(eventType events.EventType, data events.JobEventData) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Publish(events.NewJobEvent(eventType, data))
}
