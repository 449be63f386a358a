package events

import (
	"fmt"
	"time"
)

// JobEventData carries the job state attached to job events
type JobEventData struct {
	JobID      string `json:"job_id"`
	SourcePath string `json:"source_path"`
	Stage      string `json:"stage,omitempty"`
	Done       int    `json:"done,omitempty"`
	Total      int    `json:"total,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorType  string `json:"error_type,omitempty"`
	OutputDir  string `json:"output_dir,omitempty"`
	SheetCount int    `json:"sheet_count,omitempty"`
}

// NewJobEvent creates a job event from its state
func NewJobEvent(eventType EventType, data JobEventData) Event {
	priority := PriorityNormal
	switch eventType {
	case EventJobFailed:
		priority = PriorityHigh
	case EventJobProgress:
		priority = PriorityLow
	}

	payload := map[string]interface{}{
		"source_path": data.SourcePath,
	}
	if data.Stage != "" {
		payload["stage"] = data.Stage
	}
	if data.Total > 0 {
		payload["done"] = data.Done
		payload["total"] = data.Total
	}
	if data.Error != "" {
		payload["error"] = data.Error
		payload["error_type"] = data.ErrorType
	}
	if data.OutputDir != "" {
		payload["output_dir"] = data.OutputDir
		payload["sheet_count"] = data.SheetCount
	}

	return Event{
		Type:      eventType,
		Source:    "manager",
		JobID:     data.JobID,
		Message:   jobMessage(eventType, data),
		Data:      payload,
		Priority:  priority,
		Timestamp: time.Now(),
	}
}

func jobMessage(eventType EventType, data JobEventData) string {
	switch eventType {
	case EventJobQueued:
		return fmt.Sprintf("Job %s queued for %s", data.JobID, data.SourcePath)
	case EventJobStarted:
		return fmt.Sprintf("Job %s started", data.JobID)
	case EventJobStage:
		return fmt.Sprintf("Job %s entered %s", data.JobID, data.Stage)
	case EventJobProgress:
		return fmt.Sprintf("Job %s %s %d/%d", data.JobID, data.Stage, data.Done, data.Total)
	case EventJobCompleted:
		return fmt.Sprintf("Job %s completed with %d sheets", data.JobID, data.SheetCount)
	case EventJobFailed:
		return fmt.Sprintf("Job %s failed: %s", data.JobID, data.Error)
	case EventJobCancelled:
		return fmt.Sprintf("Job %s cancelled", data.JobID)
	default:
		return string(eventType)
	}
}

// NewFileDetectedEvent creates a watcher event for a new video file
func NewFileDetectedEvent(path string) Event {
	return Event{
		Type:      EventFileDetected,
		Source:    "watcher",
		Message:   fmt.Sprintf("Video file detected: %s", path),
		Data:      map[string]interface{}{"path": path},
		Priority:  PriorityNormal,
		Timestamp: time.Now(),
	}
}
