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

type registrarFunc func(rg *gin.RouterGroup)

func (f registrarFunc) RegisterRoutes(rg *gin.RouterGroup) { f(rg) }

func TestNewRouter(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithAPIVersion("v2"))

	r.Register(registrarFunc(func(rg *gin.RouterGroup) {
		rg.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	}))
	r.Setup()

	req := httptest.NewRequest("GET", "/api/v2/ping", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestRouterSetupMountsUnderVersionPrefix(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	r.Register(registrarFunc(func(rg *gin.RouterGroup) {
		rg.GET("/households/me", func(c *gin.Context) { c.String(http.StatusOK, "me") })
	}))
	r.Setup()

	req := httptest.NewRequest("GET", "/api/v1/households/me", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	// The unversioned path must not resolve
	req = httptest.NewRequest("GET", "/households/me", nil)
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterRegisterMultipleRegistrars(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	r.Register(registrarFunc(func(rg *gin.RouterGroup) {
		rg.GET("/orders", func(c *gin.Context) { c.String(http.StatusOK, "orders") })
	})).Register(registrarFunc(func(rg *gin.RouterGroup) {
		rg.GET("/retailers", func(c *gin.Context) { c.String(http.StatusOK, "retailers") })
	}))
	r.Setup()

	for path, want := range map[string]string{
		"/api/v1/orders":    "orders",
		"/api/v1/retailers": "retailers",
	} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, want, w.Body.String())
	}
}
