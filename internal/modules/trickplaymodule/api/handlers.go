// Package api exposes the trickplay job manager over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/trickplay/internal/database"
	"github.com/mantonx/trickplay/internal/events"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/core/session"
	"github.com/mantonx/trickplay/internal/modules/trickplaymodule/types"
	"github.com/mantonx/trickplay/internal/utils"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
	writeTimeout     = 10 * time.Second

	// EventSnapshot is the first message of every event stream
	EventSnapshot events.EventType = "trickplay.job.snapshot"
)

// Handler handles trickplay HTTP requests
type Handler struct {
	service    JobService
	logger     hclog.Logger
	wsUpgrader websocket.Upgrader
}

// NewHandler creates a new API handler
func NewHandler(service JobService, logger hclog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger.Named("api"),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// JobResponse is a job with its result, once it has one
type JobResponse struct {
	*database.TrickplayJob
	Result *types.Result `json:"result,omitempty"`
}

// SubmitJob handles POST /api/v1/trickplay/jobs
//
// Request:
//
//	{
//	  "source_path": "/media/movie.mkv",
//	  "options": {"frame_width": 320, "sheet_columns": 10, "sheet_rows": 10}
//	}
//
// Responds 202 with the queued job.
func (h *Handler) SubmitJob(c *gin.Context) {
	var req types.JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "invalid request body: " + err.Error(),
			"error_type": "invalid_config",
		})
		return
	}
	req.Trigger = types.TriggerAPI

	job, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, JobResponse{TrickplayJob: job})
}

// ListJobs handles GET /api/v1/trickplay/jobs
//
// Query parameters:
//   - status: Filter by status (optional)
//   - source: Filter by source path (optional)
//   - limit: Maximum number of results (default: 100)
//   - offset: Pagination offset (default: 0)
func (h *Handler) ListJobs(c *gin.Context) {
	limit := queryInt(c, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	filter := session.ListFilter{
		Status:     database.JobStatus(c.Query("status")),
		SourcePath: c.Query("source"),
		Limit:      limit,
		Offset:     offset,
	}

	jobs, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	if jobs == nil {
		jobs = []database.TrickplayJob{}
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"count":  len(jobs),
		"limit":  limit,
		"offset": offset,
	})
}

// GetJob handles GET /api/v1/trickplay/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	job, err := h.service.Get(ctx, id)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}

	resp := JobResponse{TrickplayJob: job}
	if job.Status == database.JobStatusCompleted {
		result, err := h.service.Result(ctx, id)
		if err != nil {
			respondWithError(c, h.logger, err)
			return
		}
		resp.Result = result
	}

	c.JSON(http.StatusOK, resp)
}

// CancelJob handles DELETE /api/v1/trickplay/jobs/:id
func (h *Handler) CancelJob(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.Cancel(c.Request.Context(), id); err != nil {
		respondWithError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Cancellation requested",
		"job_id":  id,
	})
}

// ServeSheet handles GET /api/v1/trickplay/jobs/:id/sheets/:file
//
// Serves a tilesheet or manifest of a completed job.
func (h *Handler) ServeSheet(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	file := c.Param("file")

	job, err := h.service.Get(ctx, id)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	if job.Status != database.JobStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "job has not completed",
			"status": job.Status,
		})
		return
	}

	result, err := h.service.Result(ctx, id)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}
	if result == nil || result.TilesheetDir == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "job produced no tilesheets"})
		return
	}

	path, err := utils.SafeJoin(result.TilesheetDir, file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !utils.FileExists(path) {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	c.Header("Content-Type", utils.GetAssetContentType(file))
	utils.SetCacheHeaders(c.Writer, utils.ContentHash(job.ID, file))
	c.File(path)
}

// StreamEvents handles GET /api/v1/trickplay/jobs/:id/events
//
// Upgrades to a websocket that first receives a snapshot of the job and
// then every event of the job until it finishes.
func (h *Handler) StreamEvents(c *gin.Context) {
	id := c.Param("id")

	// Subscribe before the snapshot so no transition is missed in between
	ch, unsubscribe := h.service.Subscribe(id)
	defer unsubscribe()

	job, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, h.logger, err)
		return
	}

	conn, err := h.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "job_id", id, "error", err)
		return
	}
	defer conn.Close()

	snapshot := events.Event{
		Type:      EventSnapshot,
		Source:    "api",
		JobID:     job.ID,
		Message:   string(job.Status),
		Data:      map[string]interface{}{"job": job},
		Timestamp: time.Now(),
	}
	if err := writeEvent(conn, snapshot); err != nil || job.Status.IsTerminal() {
		closeStream(conn)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Reader detects the client going away
	conn.SetReadDeadline(time.Time{})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-ch:
			if !ok {
				closeStream(conn)
				return
			}
			if err := writeEvent(conn, event); err != nil {
				h.logger.Debug("event stream write failed", "job_id", id, "error", err)
				return
			}
			if event.Type.IsTerminal() {
				closeStream(conn)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, event events.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(event)
}

func closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
