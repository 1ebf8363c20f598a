package handler

import (
	"context"
	"errors"

	appcustoms "github.com/erp/customs/internal/application/customs"
	"github.com/erp/customs/internal/domain/customs"
	"github.com/erp/customs/internal/domain/exchange"
	"github.com/erp/customs/internal/domain/shared/valueobject"
	"github.com/erp/customs/internal/interfaces/http/dto"
	"github.com/erp/customs/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ConversionService is the part of the currency conversion service the API exposes
type ConversionService interface {
	ConvertMinimumValuation(ctx context.Context, usdAmount decimal.Decimal, originCountry valueobject.CountryCode, opts ...appcustoms.ConvertOption) (exchange.ConversionResult, error)
	ConvertMultiple(ctx context.Context, requests []exchange.ConversionRequest, opts ...appcustoms.ConvertOption) ([]exchange.ConversionResult, error)
	ValidateConversion(ctx context.Context, usdAmount decimal.Decimal, originCountry valueobject.CountryCode, expectedAmount, tolerancePct decimal.Decimal) (exchange.ConversionValidation, error)
	ClearCache(ctx context.Context) error
	CacheStats() exchange.CacheStats
}

// QuoteCalculator calculates the taxes of a single quote
type QuoteCalculator interface {
	ProcessQuote(ctx context.Context, quote customs.Quote) (customs.QuoteTaxResult, error)
}

// CustomsHandler serves conversions, quote calculations and rate cache administration
type CustomsHandler struct {
	BaseHandler
	conversions ConversionService
	quotes      QuoteCalculator
}

// NewCustomsHandler creates a CustomsHandler
func NewCustomsHandler(conversions ConversionService, quotes QuoteCalculator, logger *zap.Logger) *CustomsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomsHandler{
		BaseHandler: BaseHandler{logger: logger.Named("customs_api")},
		conversions: conversions,
		quotes:      quotes,
	}
}

// RegisterRoutes mounts the handler under /customs
func (h *CustomsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/customs")
	g.POST("/conversions", h.Convert)
	g.POST("/conversions/batch", h.ConvertBatch)
	g.POST("/conversions/validate", h.ValidateConversion)
	g.POST("/quotes/taxes", h.CalculateQuote)
	g.GET("/exchange-rate-cache", h.CacheStats)
	g.DELETE("/exchange-rate-cache", h.guarded(h.ClearCache)...)
}

// Convert converts a USD minimum valuation into the origin currency.
//
// @Summary      Convert a USD minimum valuation
// @Tags         customs
// @Accept       json
// @Produce      json
// @Param        request body dto.ConvertRequest true "Amount and origin country"
// @Success      200 {object} dto.Response{data=exchange.ConversionResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /customs/conversions [post]
func (h *CustomsHandler) Convert(c *gin.Context) {
	var req dto.ConvertRequest
	if !h.BindJSON(c, &req) {
		return
	}
	amount, err := valueobject.ParseAmount(req.USDAmount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	country, err := valueobject.ParseCountryCode(req.OriginCountry)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	opts, err := roundingOptions(req.RoundingMethod)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.conversions.ConvertMinimumValuation(c.Request.Context(), amount, country, opts...)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ConvertBatch converts several amounts, looking each country up once.
//
// @Summary      Convert several USD amounts
// @Tags         customs
// @Accept       json
// @Produce      json
// @Param        request body dto.ConvertBatchRequest true "Conversions"
// @Success      200 {object} dto.Response{data=dto.ConversionBatchResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /customs/conversions/batch [post]
func (h *CustomsHandler) ConvertBatch(c *gin.Context) {
	var req dto.ConvertBatchRequest
	if !h.BindJSON(c, &req) {
		return
	}
	requests, err := req.ToRequests()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	opts, err := roundingOptions(req.RoundingMethod)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	results, err := h.conversions.ConvertMultiple(c.Request.Context(), requests, opts...)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ConversionBatchResponse{Conversions: results})
}

// ValidateConversion recomputes a conversion and compares it to an expected figure.
//
// @Summary      Validate a converted amount
// @Tags         customs
// @Accept       json
// @Produce      json
// @Param        request body dto.ValidateConversionRequest true "Expected conversion"
// @Success      200 {object} dto.Response{data=exchange.ConversionValidation}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      503 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /customs/conversions/validate [post]
func (h *CustomsHandler) ValidateConversion(c *gin.Context) {
	var req dto.ValidateConversionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	amount, err := valueobject.ParseAmount(req.USDAmount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	expected, err := valueobject.ParseAmount(req.ExpectedAmount)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	tolerance := dto.DefaultTolerancePct
	if req.TolerancePct != "" {
		if tolerance, err = valueobject.ParseAmount(req.TolerancePct); err != nil {
			h.HandleError(c, err)
			return
		}
	}
	country, err := valueobject.ParseCountryCode(req.OriginCountry)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	validation, err := h.conversions.ValidateConversion(c.Request.Context(), amount, country, expected, tolerance)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, validation)
}

// CalculateQuote calculates every item of one quote.
// Item failures do not fail the request: they are listed next to the items that succeeded.
//
// @Summary      Calculate the taxes of a quote
// @Tags         customs
// @Accept       json
// @Produce      json
// @Param        request body dto.QuoteRequest true "Quote"
// @Success      200 {object} dto.Response{data=dto.QuoteTaxResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /customs/quotes/taxes [post]
func (h *CustomsHandler) CalculateQuote(c *gin.Context) {
	var req dto.QuoteRequest
	if !h.BindJSON(c, &req) {
		return
	}
	quote, err := req.ToDomain()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.quotes.ProcessQuote(c.Request.Context(), quote)
	var itemErrs customs.ItemErrors
	if err != nil && !errors.As(err, &itemErrs) {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.QuoteTaxResponse{QuoteTaxResult: result, Complete: err == nil})
}

// CacheStats reports exchange-rate cache counters.
//
// @Summary      Exchange rate cache statistics
// @Tags         customs
// @Produce      json
// @Success      200 {object} dto.Response{data=exchange.CacheStats}
// @Router       /customs/exchange-rate-cache [get]
func (h *CustomsHandler) CacheStats(c *gin.Context) {
	h.Success(c, h.conversions.CacheStats())
}

// ClearCache drops every cached exchange rate.
//
// @Summary      Clear the exchange rate cache
// @Tags         customs
// @Produce      json
// @Success      200 {object} dto.Response{data=dto.CacheClearedResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /customs/exchange-rate-cache [delete]
func (h *CustomsHandler) ClearCache(c *gin.Context) {
	if err := h.conversions.ClearCache(c.Request.Context()); err != nil {
		h.HandleError(c, err)
		return
	}
	h.logger.Info("Exchange rate cache cleared", zap.String("operator", middleware.GetOperator(c)))
	h.Success(c, dto.CacheClearedResponse{Cleared: true, Stats: h.conversions.CacheStats()})
}

func roundingOptions(method string) ([]appcustoms.ConvertOption, error) {
	rounding, err := dto.ParseRounding(method)
	if err != nil || rounding == "" {
		return nil, err
	}
	return []appcustoms.ConvertOption{appcustoms.WithRounding(rounding)}, nil
}
