// Package events provides the in-process event bus used to broadcast job
// lifecycle changes to API clients and log sinks.
package events

import (
	"time"
)

// EventType represents the type of event
type EventType string

// Job event types
const (
	EventJobQueued    EventType = "trickplay.job.queued"
	EventJobStarted   EventType = "trickplay.job.started"
	EventJobStage     EventType = "trickplay.job.stage"
	EventJobProgress  EventType = "trickplay.job.progress"
	EventJobCompleted EventType = "trickplay.job.completed"
	EventJobFailed    EventType = "trickplay.job.failed"
	EventJobCancelled EventType = "trickplay.job.cancelled"

	// Watcher events
	EventFileDetected EventType = "trickplay.watcher.file_detected"
)

// IsTerminal reports whether no further events follow for the job
func (t EventType) IsTerminal() bool {
	return t == EventJobCompleted || t == EventJobFailed || t == EventJobCancelled
}

// EventPriority represents the priority level of an event
type EventPriority int

const (
	PriorityLow    EventPriority = 1
	PriorityNormal EventPriority = 5
	PriorityHigh   EventPriority = 10
)

// Event represents a job event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // manager, watcher
	JobID     string                 `json:"job_id,omitempty"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Priority  EventPriority          `json:"priority"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler handles a delivered event. Handlers run on the publisher's
// goroutine and must not block.
type EventHandler func(event Event)

// EventFilter selects events for a subscription. Empty fields match all.
type EventFilter struct {
	Types []EventType `json:"types,omitempty"`
	JobID string      `json:"job_id,omitempty"`
}

// Subscription represents an event subscription
type Subscription struct {
	ID           string       `json:"id"`
	Filter       EventFilter  `json:"filter"`
	Handler      EventHandler `json:"-"`
	Created      time.Time    `json:"created"`
	TriggerCount int64        `json:"trigger_count"`
}

// MatchesFilter checks if an event matches the given filter
func MatchesFilter(event Event, filter EventFilter) bool {
	if filter.JobID != "" && event.JobID != filter.JobID {
		return false
	}

	if len(filter.Types) > 0 {
		found := false
		for _, t := range filter.Types {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
