package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/customs/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestDocsAccess(t *testing.T) {
	deny := func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	}

	tests := []struct {
		name       string
		cfg        DocsConfig
		guard      gin.HandlerFunc
		remoteAddr string
		wantCode   int
	}{
		{"disabled", DocsConfig{}, nil, "10.0.0.1:1234", http.StatusNotFound},
		{"open", DocsConfig{Enabled: true}, nil, "203.0.113.9:1234", http.StatusOK},
		{"cidr match", DocsConfig{Enabled: true, AllowedIPs: []string{"10.0.0.0/8"}}, nil, "10.1.2.3:1234", http.StatusOK},
		{"exact ip match", DocsConfig{Enabled: true, AllowedIPs: []string{" 192.168.1.5 "}}, nil, "192.168.1.5:1234", http.StatusOK},
		{"ipv6 match", DocsConfig{Enabled: true, AllowedIPs: []string{"::1"}}, nil, "[::1]:1234", http.StatusOK},
		{"outside allow list", DocsConfig{Enabled: true, AllowedIPs: []string{"10.0.0.0/8"}}, nil, "203.0.113.9:1234", http.StatusForbidden},
		{"guard rejects", DocsConfig{Enabled: true}, deny, "10.0.0.1:1234", http.StatusUnauthorized},
		{"ip checked before guard", DocsConfig{Enabled: true, AllowedIPs: []string{"10.0.0.0/8"}}, deny, "203.0.113.9:1234", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/swagger/*any", DocsAccess(tt.cfg, tt.guard), func(c *gin.Context) {
				c.String(http.StatusOK, "docs")
			})

			req := httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil)
			req.RemoteAddr = tt.remoteAddr
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			switch tt.wantCode {
			case http.StatusNotFound:
				assert.Contains(t, w.Body.String(), dto.ErrCodeNotFound)
			case http.StatusForbidden:
				assert.Contains(t, w.Body.String(), dto.ErrCodeForbidden)
			}
		})
	}
}
