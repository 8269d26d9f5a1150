package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	tel, err := Init(context.Background(), &Config{Enabled: false, ServiceName: "reconcile-test"})
	require.NoError(t, err)
	require.NotNil(t, tel)

	ctx, span := StartSpan(context.Background(), "normalize")
	defer span.End()

	SetSpanError(ctx, errors.New("boom"))
	SetSpanError(ctx, nil)
	AddEvent(ctx, "correction", RegistrationIDKey.String("reg-1"))
	assert.False(t, span.SpanContext().HasTraceID())
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInit_NilConfig(t *testing.T) {
	tel, err := Init(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "reconcile", tel.config.ServiceName)
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOn")
	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestRunAttributes(t *testing.T) {
	attrs := RunAttributes("run-1", true)
	require.Len(t, attrs, 2)
	assert.Equal(t, "reconcile.run_id", string(attrs[0].Key))
	assert.Equal(t, "run-1", attrs[0].Value.AsString())
	assert.True(t, attrs[1].Value.AsBool())
}

func TestTracingMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TracingMiddleware("report-api-test", "/health"))
	r.GET("/health", func(c *gin.Context) {
		_, traced := c.Get(TraceIDContextKey)
		assert.False(t, traced)
		c.Status(http.StatusOK)
	})
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
