package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"printq/internal/api/middleware"
	"printq/internal/core"
)

type SubmitFile struct {
	FileRef   string `json:"file_ref" binding:"required"`
	Sides     string `json:"sides"`
	Color     string `json:"color"`
	PageCount int    `json:"page_count" binding:"required,min=1"`
	Copies    int    `json:"copies"`
}

type SubmitJobsRequest struct {
	PrinterID     string       `json:"printer_id" binding:"required"`
	Files         []SubmitFile `json:"files" binding:"required,min=1"`
	PaymentMethod string       `json:"payment_method"`
	// AwaitingPayment keeps online jobs unpaid until the checkout settles.
	AwaitingPayment bool `json:"awaiting_payment"`
}

type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type ChangePrinterRequest struct {
	PrinterID string `json:"printer_id" binding:"required"`
}

type JobHandler struct {
	engine *core.Engine
}

func NewJobHandler(engine *core.Engine) *JobHandler {
	return &JobHandler{engine: engine}
}

// SubmitJobs creates one job per file. Multiple files in one submission share
// a fresh batch id; a single file stays individual.
func (h *JobHandler) SubmitJobs(c *gin.Context) {
	var req SubmitJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actor := middleware.ActorFrom(c)

	batchID := ""
	if len(req.Files) > 1 {
		batchID = uuid.NewString()
	}

	jobs := make([]*core.Job, 0, len(req.Files))
	for _, f := range req.Files {
		job, err := h.engine.SubmitJob(c.Request.Context(), actor, core.SubmitRequest{
			PrinterID:       req.PrinterID,
			FileRef:         f.FileRef,
			BatchID:         batchID,
			Sides:           f.Sides,
			Color:           f.Color,
			PageCount:       f.PageCount,
			Copies:          f.Copies,
			PaymentMethod:   core.PaymentMethod(req.PaymentMethod),
			AwaitingPayment: req.AwaitingPayment,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		jobs = append(jobs, job)
	}

	c.JSON(http.StatusCreated, gin.H{
		"jobs":     jobs,
		"batch_id": batchID,
	})
}

func (h *JobHandler) GetQueue(c *gin.Context) {
	entries, err := h.engine.ListQueue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"queue": entries, "count": len(entries)})
}

func (h *JobHandler) GetUserStats(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	stats, err := h.engine.UserQueueStats(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *JobHandler) ListUserJobs(c *gin.Context) {
	userID := c.Param("id")
	actor := middleware.ActorFrom(c)

	entries, err := h.engine.ListUserJobs(c.Request.Context(), actor, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": entries, "count": len(entries)})
}

func (h *JobHandler) ListAllJobs(c *gin.Context) {
	jobs, err := h.engine.ListAllJobs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *JobHandler) ListBatches(c *gin.Context) {
	batches, individual, err := h.engine.ListBatches(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches, "individual": individual})
}

func (h *JobHandler) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.engine.SetStatus(c.Request.Context(), c.Param("id"), core.JobStatus(req.Status))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) MarkPaid(c *gin.Context) {
	job, err := h.engine.MarkJobPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) MarkBatchPaid(c *gin.Context) {
	jobs, err := h.engine.MarkBatchPaid(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *JobHandler) MarkUserPaid(c *gin.Context) {
	jobs, err := h.engine.MarkUserPaid(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

func (h *JobHandler) ConfirmPresence(c *gin.Context) {
	actor := middleware.ActorFrom(c)

	job, updated, err := h.engine.ConfirmPresence(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job, "updated": updated})
}

func (h *JobHandler) StartBatchPrinting(c *gin.Context) {
	job, err := h.engine.StartBatchPrinting(c.Request.Context(), c.Param("batchId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": job})
}

func (h *JobHandler) SkipBatch(c *gin.Context) {
	actor := middleware.ActorFrom(c)

	position, err := h.engine.SkipBatch(c.Request.Context(), actor, c.Param("batchId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":      "batch moved back in queue",
		"new_position": position,
	})
}

func (h *JobHandler) MarkCollected(c *gin.Context) {
	actor := middleware.ActorFrom(c)

	job, err := h.engine.MarkCollected(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) ChangePrinter(c *gin.Context) {
	var req ChangePrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.engine.ChangePrinter(c.Request.Context(), c.Param("id"), req.PrinterID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) DeleteJob(c *gin.Context) {
	actor := middleware.ActorFrom(c)

	if err := h.engine.DeleteJob(c.Request.Context(), actor, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job deleted"})
}

func (h *JobHandler) DeleteBatch(c *gin.Context) {
	actor := middleware.ActorFrom(c)

	if err := h.engine.DeleteBatch(c.Request.Context(), actor, c.Param("batchId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "batch deleted"})
}

func (h *JobHandler) RegisterRoutes(public, authed, admin *gin.RouterGroup) {
	public.GET("/jobs/queue", h.GetQueue)
	public.GET("/jobs/queue/stats", h.GetUserStats)

	authed.POST("/jobs", h.SubmitJobs)
	authed.GET("/jobs/user/:id", h.ListUserJobs)
	authed.PUT("/jobs/:id/collected", h.MarkCollected)
	authed.PUT("/jobs/:id/confirm", h.ConfirmPresence)
	authed.DELETE("/jobs/:id", h.DeleteJob)
	authed.DELETE("/jobs/batch/:batchId", h.DeleteBatch)

	admin.GET("/jobs/admin/all", h.ListAllJobs)
	admin.GET("/jobs/admin/batches", h.ListBatches)
	admin.PUT("/jobs/:id/status", h.SetStatus)
	admin.PUT("/jobs/:id/pay", h.MarkPaid)
	admin.PUT("/jobs/:id/change-printer", h.ChangePrinter)
	admin.PUT("/jobs/batch/:batchId/pay", h.MarkBatchPaid)
	admin.PUT("/jobs/batch/:batchId/skip", h.SkipBatch)
	admin.PUT("/jobs/batch/:batchId/start-printing", h.StartBatchPrinting)
	admin.PUT("/jobs/user/:id/pay", h.MarkUserPaid)
}
