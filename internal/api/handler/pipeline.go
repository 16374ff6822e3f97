package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"github.com/timmy/itinerary-ingest/internal/logger"
)

// PipelineRunner executes one pipeline phase per call.
type PipelineRunner interface {
	Intake(ctx context.Context, req domain.IntakeRequest) (*domain.IntakeResult, error)
	ProcessChunk(ctx context.Context, req domain.ChunkRequest) (*domain.ChunkResult, error)
	Finalize(ctx context.Context, req domain.FinalizeRequest) (*domain.FinalizeResult, error)
}

// PipelineHandler exposes the phases as trigger endpoints for an external step driver.
type PipelineHandler struct {
	runner PipelineRunner
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(runner PipelineRunner) *PipelineHandler {
	return &PipelineHandler{runner: runner}
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return false
	}
	return true
}

// Intake handles POST /pipeline/intake.
func (h *PipelineHandler) Intake(c *gin.Context) {
	var req domain.IntakeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.runner.Intake(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Chunk handles POST /pipeline/chunks.
func (h *PipelineHandler) Chunk(c *gin.Context) {
	var req domain.ChunkRequest
	if !bindJSON(c, &req) {
		return
	}
	h.processChunk(c, req)
}

// Videos handles POST /pipeline/videos. The body's process_videos_only flag is forced on.
func (h *PipelineHandler) Videos(c *gin.Context) {
	var req domain.ChunkRequest
	if !bindJSON(c, &req) {
		return
	}
	req.ProcessVideosOnly = true
	h.processChunk(c, req)
}

func (h *PipelineHandler) processChunk(c *gin.Context, req domain.ChunkRequest) {
	ctx := logger.SetChunkIndex(logger.SetJobID(c.Request.Context(), req.JobID), req.ChunkIndex)
	res, err := h.runner.ProcessChunk(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Finalize handles POST /pipeline/finalize.
func (h *PipelineHandler) Finalize(c *gin.Context) {
	var req domain.FinalizeRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := logger.SetJobID(c.Request.Context(), req.JobID)
	res, err := h.runner.Finalize(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
