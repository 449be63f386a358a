package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the trickplay API routes.
//
// API Structure:
//
//	/api/v1/trickplay
//	├── POST   /jobs                   - Submit a generation job
//	├── GET    /jobs                   - List jobs
//	├── GET    /jobs/:id               - Job status and result
//	├── DELETE /jobs/:id               - Cancel a job
//	├── GET    /jobs/:id/events        - Job event stream (websocket)
//	└── GET    /jobs/:id/sheets/:file  - Serve a tilesheet or manifest
func RegisterRoutes(router *gin.Engine, handler *Handler) {
	v1 := router.Group("/api/v1/trickplay")
	{
		v1.POST("/jobs", handler.SubmitJob)
		v1.GET("/jobs", handler.ListJobs)
		v1.GET("/jobs/:id", handler.GetJob)
		v1.DELETE("/jobs/:id", handler.CancelJob)
		v1.GET("/jobs/:id/events", handler.StreamEvents)
		v1.GET("/jobs/:id/sheets/:file", handler.ServeSheet)
		v1.HEAD("/jobs/:id/sheets/:file", handler.ServeSheet)
	}
}
