package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/erp/customs/internal/infrastructure/auth"
	"github.com/erp/customs/internal/infrastructure/config"
	"github.com/erp/customs/internal/interfaces/http/dto"
	"github.com/erp/customs/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOperatorRoutes_RequireToken(t *testing.T) {
	tokens, err := auth.NewOperatorTokenService(config.AuthConfig{
		Secret:   "test-secret-key-at-least-32-chars",
		Issuer:   "customs-engine",
		TokenTTL: time.Hour,
	})
	require.NoError(t, err)
	api := newTestAPI(t, middleware.RequireOperator(tokens, zaptest.NewLogger(t)))

	token, _, err := tokens.Issue("ops", time.Minute)
	require.NoError(t, err)

	batchBody := map[string]any{"quotes": []map[string]any{quoteBody("Q1", "0902.30", "10")}}
	protected := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodDelete, "/api/v1/customs/exchange-rate-cache", nil},
		{http.MethodPost, "/api/v1/customs/batches", batchBody},
		{http.MethodPost, "/api/v1/customs/batches/current/cancel", nil},
	}
	for _, r := range protected {
		t.Run("rejects anonymous "+r.method+" "+r.path, func(t *testing.T) {
			w := api.do(t, r.method, r.path, r.body)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, dto.ErrCodeUnauthorized, decodeError(t, w).Code)
		})
	}

	t.Run("read routes stay open", func(t *testing.T) {
		w := api.do(t, http.MethodGet, "/api/v1/customs/exchange-rate-cache", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		w = api.do(t, http.MethodGet, "/api/v1/customs/batches/current", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		w = api.do(t, http.MethodPost, "/api/v1/customs/conversions", map[string]any{"usd_amount": "10", "origin_country": "NP"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("operator token passes", func(t *testing.T) {
		w := api.doAs(t, token, http.MethodDelete, "/api/v1/customs/exchange-rate-cache", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var cleared dto.CacheClearedResponse
		decodeData(t, w, &cleared)
		assert.True(t, cleared.Cleared)
	})

	t.Run("batch start with token", func(t *testing.T) {
		w := api.doAs(t, token, http.MethodPost, "/api/v1/customs/batches", batchBody)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
		waitDone(t, api.driver.Done())
	})
}
