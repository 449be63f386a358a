package database

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of a trickplay job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the job can no longer change state
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

func (s JobStatus) Value() (driver.Value, error) {
	return string(s), nil
}

func (s *JobStatus) Scan(value interface{}) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = JobStatus(v)
	case []byte:
		*s = JobStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into JobStatus", value)
	}
	return nil
}

// TrickplayJob is the ledger entry of one generation request
type TrickplayJob struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	SourcePath  string     `gorm:"type:varchar(1024);not null;index" json:"source_path"`
	OutputDir   string     `gorm:"type:varchar(1024)" json:"output_dir"`
	Status      JobStatus  `gorm:"type:varchar(32);not null;index" json:"status"`
	Stage       string     `gorm:"type:varchar(32)" json:"stage"`
	Trigger     string     `gorm:"type:varchar(32)" json:"trigger"` // api, cli, watcher
	Options     string     `gorm:"type:text" json:"-"`              // JSON string
	Result      string     `gorm:"type:text" json:"-"`              // JSON string
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	ErrorType   string     `gorm:"type:varchar(64)" json:"error_type,omitempty"`
	FramesDone  int        `json:"frames_done"`
	FramesTotal int        `json:"frames_total"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"index" json:"completed_at,omitempty"`
}

// TableName returns the table name for GORM
func (TrickplayJob) TableName() string {
	return "trickplay_jobs"
}
