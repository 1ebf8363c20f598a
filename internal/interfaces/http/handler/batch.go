package handler

import (
	"context"
	"net/http"

	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/infrastructure/batch"
	"github.com/erp/customs/internal/interfaces/http/dto"
	"github.com/erp/customs/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QuoteBatchDriver is the batch driver as seen by the API
type QuoteBatchDriver interface {
	Go(ctx context.Context, units []customs.Quote, opts batch.Options) (string, error)
	Cancel() bool
	Snapshot() batch.Progress
	Results() []batch.UnitResult
}

// RunResults returns the quote results recorded for a run
type RunResults interface {
	Results(runID string) []customs.QuoteTaxResult
}

// BatchHandler starts, observes and cancels quote batch runs
type BatchHandler struct {
	BaseHandler
	driver   QuoteBatchDriver
	results  RunResults
	defaults batch.Options
}

// NewBatchHandler creates a BatchHandler. results may be nil.
func NewBatchHandler(driver QuoteBatchDriver, results RunResults, defaults batch.Options, logger *zap.Logger) *BatchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchHandler{
		BaseHandler: BaseHandler{logger: logger.Named("batch_api")},
		driver:      driver,
		results:     results,
		defaults:    defaults,
	}
}

// RegisterRoutes mounts the handler under /customs/batches
func (h *BatchHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/customs/batches")
	g.POST("", h.guarded(h.Start)...)
	g.GET("/current", h.Current)
	g.POST("/current/cancel", h.guarded(h.Cancel)...)
}

// Start validates the quotes and runs them in the background.
// The run outlives the request; follow it with GET /current.
//
// @Summary      Start a quote batch run
// @Tags         batches
// @Accept       json
// @Produce      json
// @Param        request body dto.StartBatchRequest true "Quotes and run options"
// @Success      202 {object} dto.Response{data=dto.BatchStartedResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /customs/batches [post]
func (h *BatchHandler) Start(c *gin.Context) {
	var req dto.StartBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	quotes, err := req.ToQuotes()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	opts, err := req.Options(h.defaults)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	runID, err := h.driver.Go(context.WithoutCancel(c.Request.Context()), quotes, opts)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.logger.Info("Batch run accepted",
		zap.String("run_id", runID),
		zap.Int("quotes", len(quotes)),
		zap.Int("concurrency", opts.Concurrency),
		zap.String("operator", middleware.GetOperator(c)),
	)
	h.Accepted(c, dto.BatchStartedResponse{RunID: runID, TotalUnits: len(quotes)})
}

// Current returns progress and finished units of the latest run.
//
// @Summary      Progress of the latest batch run
// @Tags         batches
// @Produce      json
// @Param        include query string false "quotes to include per-quote results"
// @Success      200 {object} dto.Response{data=dto.BatchStatusResponse}
// @Router       /customs/batches/current [get]
func (h *BatchHandler) Current(c *gin.Context) {
	progress := h.driver.Snapshot()
	resp := dto.BatchStatusResponse{
		Progress: progress,
		Results:  dto.ToBatchUnitResponses(h.driver.Results()),
	}
	if h.results != nil && c.Query("include") == "quotes" {
		resp.Quotes = h.results.Results(progress.RunID)
	}
	h.Success(c, resp)
}

// Cancel asks the running batch to stop.
//
// @Summary      Cancel the running batch
// @Tags         batches
// @Produce      json
// @Success      200 {object} dto.Response{data=batch.Progress}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /customs/batches/current/cancel [post]
func (h *BatchHandler) Cancel(c *gin.Context) {
	if !h.driver.Cancel() {
		h.Error(c, http.StatusConflict, dto.ErrCodeBatchIdle, "No batch run is in progress")
		return
	}
	h.logger.Info("Batch cancel requested",
		zap.String("run_id", h.driver.Snapshot().RunID),
		zap.String("operator", middleware.GetOperator(c)),
	)
	h.Success(c, h.driver.Snapshot())
}
