package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/manufacture/internal/application/replenishment"
	"github.com/erp/manufacture/internal/interfaces/http/handler"
	"github.com/erp/manufacture/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(engine *gin.Engine, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestRouter(t *testing.T) {
	t.Run("defaults to v1", func(t *testing.T) {
		r := NewRouter(gin.New())
		assert.Equal(t, "v1", r.apiVersion)
		assert.Empty(t, r.registrars)
	})

	t.Run("setup mounts groups under the version", func(t *testing.T) {
		engine := gin.New()
		group := NewDomainGroup("test", "/test").GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
		NewRouter(engine, WithAPIVersion("v2")).Register(group).Setup()

		w := get(engine, "/api/v2/test/ping")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "pong", w.Body.String())
		assert.Equal(t, http.StatusNotFound, get(engine, "/api/v1/test/ping").Code)
	})
}

func TestDomainGroup(t *testing.T) {
	g := NewDomainGroup("jobs", "/jobs")
	assert.Equal(t, "jobs", g.Name())
	assert.Equal(t, "/jobs", g.Prefix())

	var order []string
	g.Use(func(c *gin.Context) {
		order = append(order, "middleware")
		c.Next()
	})
	ok := func(c *gin.Context) {
		order = append(order, c.Request.Method)
		c.Status(http.StatusOK)
	}
	g.GET("", ok).POST("", ok).PUT("/:id", ok)

	engine := gin.New()
	g.RegisterRoutes(engine.Group("/api/v1"))

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/jobs"},
		{http.MethodPost, "/api/v1/jobs"},
		{http.MethodPut, "/api/v1/jobs/42"},
	} {
		order = nil
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusOK, w.Code, tc.path)
		assert.Equal(t, []string{"middleware", tc.method}, order)
	}
}

type staticRanker struct{}

func (staticRanker) RankForAccount(_ context.Context, rawAccount string, _ replenishment.RankRequest) (*replenishment.RankResponse, error) {
	return &replenishment.RankResponse{Account: rawAccount}, nil
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(EngineConfig{
		ServiceName: "manufacture",
		RateLimiter: middleware.NewRateLimiter(2, time.Minute),
	}, Handlers{
		System:        handler.NewSystemHandler("manufacture", "test", nil),
		Replenishment: handler.NewReplenishmentHandler(staticRanker{}),
	}, nil)
	require.NoError(t, err)

	t.Run("health is outside the api group", func(t *testing.T) {
		w := get(engine, "/health")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
		assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	})

	t.Run("system info", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(engine, "/api/v1/system/info").Code)
	})

	t.Run("replenishment is rate limited", func(t *testing.T) {
		path := "/api/v1/accounts/0190f6a4-5b3b-7c1e-9d2a-3f4e5a6b7c8d/replenishment"

		first := get(engine, path)
		assert.Equal(t, http.StatusOK, first.Code)
		assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))

		get(engine, path)
		assert.Equal(t, http.StatusTooManyRequests, get(engine, path).Code)
	})

	t.Run("routes of missing handlers are absent", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(engine, "/api/v1/jobs").Code)
		assert.Equal(t, http.StatusNotFound, get(engine, "/api/v1/accounts").Code)
	})
}
