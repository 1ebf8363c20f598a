package handler

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/erp/customs/internal/domain/shared"
	"github.com/erp/customs/internal/infrastructure/batch"
	"github.com/erp/customs/internal/infrastructure/logger"
	"github.com/erp/customs/internal/interfaces/http/dto"
	"github.com/erp/customs/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct {
	logger *zap.Logger
	guards []gin.HandlerFunc
}

// Protect puts mw in front of the handler's state-changing routes.
// It must be called before RegisterRoutes.
func (h *BaseHandler) Protect(mw ...gin.HandlerFunc) {
	h.guards = append(h.guards, mw...)
}

func (h *BaseHandler) guarded(fn gin.HandlerFunc) []gin.HandlerFunc {
	return append(slices.Clone(h.guards), fn)
}

// Success sends a 200 success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for work that continues in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status
func (h *BaseHandler) Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BindJSON decodes and validates the body; on failure it has already answered 400
func (h *BaseHandler) BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleValidationError(c, err)
		return false
	}
	return true
}

// HandleError converts an error to an HTTP response.
// DomainErrors keep their code; unrecognised errors become 500 without leaking detail.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if errors.Is(err, batch.ErrBatchAlreadyRunning) {
		h.Error(c, http.StatusConflict, dto.ErrCodeBatchRunning, err.Error())
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		h.Error(c, http.StatusGatewayTimeout, dto.ErrCodeRateUnavailable, "Upstream lookup timed out")
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.Error(c, dto.GetHTTPStatus(code), code, err.Error())
		return
	}

	logger.GetGinLogger(c, h.log()).Error("Unhandled request error", zap.Error(err))
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An internal error occurred")
}

func (h *BaseHandler) log() *zap.Logger {
	if h.logger == nil {
		return zap.NewNop()
	}
	return h.logger
}
