// Package session keeps the job ledger: every generation request, its
// current stage and its outcome, persisted through gorm.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/mantonx/trickplay/internal/database"
	tperrors "github.com/mantonx/trickplay/internal/modules/trickplaymodule/errors"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
	"github.com/mantonx/trickplay/internal/utils"
)

// validTransitions is the job state machine
var validTransitions = map[database.JobStatus][]database.JobStatus{
	database.JobStatusQueued:    {database.JobStatusRunning, database.JobStatusFailed, database.JobStatusCancelled},
	database.JobStatusRunning:   {database.JobStatusCompleted, database.JobStatusFailed, database.JobStatusCancelled},
	database.JobStatusCompleted: {}, // Terminal state
	database.JobStatusFailed:    {}, // Terminal state
	database.JobStatusCancelled: {}, // Terminal state
}

// CanTransition reports whether a job may move from one status to another
func CanTransition(from, to database.JobStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Store is the database-backed job ledger
type Store struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewStore creates a new job store
func NewStore(db *gorm.DB, logger hclog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.Named("job-store"),
	}
}

// ListFilter narrows List results
type ListFilter struct {
	Status     database.JobStatus
	SourcePath string
	Limit      int
	Offset     int
}

// Create records a new queued job
func (s *Store) Create(ctx context.Context, sourcePath, outputDir, trigger string, opts types.Options) (*database.TrickplayJob, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize options: %w", err)
	}

	job := &database.TrickplayJob{
		ID:         utils.GenerateUUID(),
		SourcePath: sourcePath,
		OutputDir:  outputDir,
		Status:     database.JobStatusQueued,
		Stage:      string(types.StagePending),
		Trigger:    trigger,
		Options:    string(optsJSON),
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Debug("created trickplay job", "job_id", job.ID, "source", sourcePath, "trigger", trigger)
	return job, nil
}

// Get loads a job by ID
func (s *Store) Get(ctx context.Context, id string) (*database.TrickplayJob, error) {
	var job database.TrickplayJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, tperrors.JobNotFound("get_job", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// List returns jobs, newest first
func (s *Store) List(ctx context.Context, filter ListFilter) ([]database.TrickplayJob, error) {
	query := s.db.WithContext(ctx).Model(&database.TrickplayJob{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.SourcePath != "" {
		query = query.Where("source_path = ?", filter.SourcePath)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var jobs []database.TrickplayJob
	if err := query.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// HasActive reports whether sourcePath has a queued or running job
func (s *Store) HasActive(ctx context.Context, sourcePath string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&database.TrickplayJob{}).
		Where("source_path = ? AND status IN ?", sourcePath,
			[]database.JobStatus{database.JobStatusQueued, database.JobStatusRunning}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count active jobs: %w", err)
	}
	return count > 0, nil
}

// Transition moves a job to a new status, enforcing the state machine.
// jobErr is recorded for failed and cancelled jobs.
func (s *Store) Transition(ctx context.Context, id string, to database.JobStatus, jobErr error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job database.TrickplayJob
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tperrors.JobNotFound("transition_job", id)
			}
			return err
		}

		if !CanTransition(job.Status, to) {
			return tperrors.InvalidTransition("transition_job",
				fmt.Errorf("cannot move job from %s to %s", job.Status, to)).WithJob(id)
		}

		now := time.Now()
		updates := map[string]interface{}{"status": to}
		switch {
		case to == database.JobStatusRunning:
			updates["started_at"] = now
		case to.IsTerminal():
			updates["completed_at"] = now
		}
		if jobErr != nil {
			updates["error"] = jobErr.Error()
			updates["error_type"] = string(tperrors.GetType(jobErr))
		}

		if err := tx.Model(&job).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update job status: %w", err)
		}

		s.logger.Debug("job status changed", "job_id", id, "from", job.Status, "to", to)
		return nil
	})
}

// UpdateStage records the pipeline stage a running job is in
func (s *Store) UpdateStage(ctx context.Context, id string, stage types.Stage) error {
	return s.db.WithContext(ctx).Model(&database.TrickplayJob{}).
		Where("id = ?", id).
		Update("stage", string(stage)).Error
}

// UpdateProgress records frame progress of the current stage
func (s *Store) UpdateProgress(ctx context.Context, id string, done, total int) error {
	return s.db.WithContext(ctx).Model(&database.TrickplayJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"frames_done": done, "frames_total": total}).Error
}

// SetResult stores the run result and the resolved output directory
func (s *Store) SetResult(ctx context.Context, id string, result *types.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}
	return s.db.WithContext(ctx).Model(&database.TrickplayJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"result": string(data), "output_dir": result.OutputDir}).Error
}

// GetResult deserializes a job's stored result, nil if it has none
func GetResult(job *database.TrickplayJob) (*types.Result, error) {
	if job.Result == "" {
		return nil, nil
	}
	var result types.Result
	if err := json.Unmarshal([]byte(job.Result), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetOptions deserializes a job's options
func GetOptions(job *database.TrickplayJob) (types.Options, error) {
	var opts types.Options
	if job.Options == "" {
		return opts, nil
	}
	err := json.Unmarshal([]byte(job.Options), &opts)
	return opts, err
}

// FailInterrupted marks jobs left queued or running by a previous process
// as failed. Runs are never resumed.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&database.TrickplayJob{}).
		Where("status IN ?", []database.JobStatus{database.JobStatusQueued, database.JobStatusRunning}).
		Updates(map[string]interface{}{
			"status":       database.JobStatusFailed,
			"error":        "interrupted by shutdown",
			"completed_at": time.Now(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark interrupted jobs: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.logger.Warn("marked interrupted jobs as failed", "count", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

// Cleanup deletes finished jobs completed before the retention period
func (s *Store) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := s.db.WithContext(ctx).
		Where("status IN ? AND completed_at < ?",
			[]database.JobStatus{database.JobStatusCompleted, database.JobStatusFailed, database.JobStatusCancelled},
			cutoff).
		Delete(&database.TrickplayJob{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to clean up jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
