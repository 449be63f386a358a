package api

import (
	"context"

	"github.com/mantonx/trickplay/internal/database"
	"github.com/mantonx/trickplay/internal/events"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/session"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
)

// JobService is the job manager as seen by the HTTP layer
type JobService interface {
	Submit(ctx context.Context, req types.JobRequest) (*database.TrickplayJob, error)
	Get(ctx context.Context, id string) (*database.TrickplayJob, error)
	List(ctx context.Context, filter session.ListFilter) ([]database.TrickplayJob, error)
	Result(ctx context.Context, id string) (*types.Result, error)
	Cancel(ctx context.Context, id string) error
	Subscribe(jobID string) (<-chan events.Event, func())
}
