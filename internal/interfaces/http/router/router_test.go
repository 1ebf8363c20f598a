package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	tagged := func(c *gin.Context) {
		c.Header("X-Api", "1")
		c.Next()
	}

	NewRouter(engine, WithGroupMiddleware(tagged)).
		Register(RegistrarFunc(func(rg *gin.RouterGroup) {
			rg.GET("/customs/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		})).
		Register(RegistrarFunc(func(rg *gin.RouterGroup) {
			rg.DELETE("/customs/cache", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		})).
		Setup()
	engine.GET("/outside", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantTag    string
	}{
		{"versioned route", http.MethodGet, "/api/v1/customs/ping", http.StatusOK, "1"},
		{"second registrar", http.MethodDelete, "/api/v1/customs/cache", http.StatusNoContent, "1"},
		{"unversioned path", http.MethodGet, "/customs/ping", http.StatusNotFound, ""},
		{"group middleware scoped to api", http.MethodGet, "/outside", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantTag, w.Header().Get("X-Api"))
		})
	}
}

func TestRouterDocs(t *testing.T) {
	t.Run("serves the OpenAPI document", func(t *testing.T) {
		engine := gin.New()
		NewRouter(engine, WithDocs()).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"/customs/conversions"`)
		assert.Contains(t, w.Body.String(), "/api/v1")
		assert.Contains(t, w.Body.String(), "BearerAuth")
	})

	t.Run("guards run first", func(t *testing.T) {
		engine := gin.New()
		NewRouter(engine, WithDocs(func(c *gin.Context) {
			c.AbortWithStatus(http.StatusForbidden)
		})).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("not mounted by default", func(t *testing.T) {
		engine := gin.New()
		NewRouter(engine).Setup()

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
