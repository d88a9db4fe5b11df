package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingEngine(t *testing.T) (*gin.Engine, *tracetest.SpanRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	r := gin.New()
	r.Use(GinMiddleware())
	r.Use(func(c *gin.Context) {
		ctx := orgcontext.WithOrgID(c.Request.Context(), snowflake.ID(42))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	return r, recorder
}

func spanAttributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestGinMiddlewareTagsInvoiceRoutes(t *testing.T) {
	r, recorder := newRecordingEngine(t)
	r.PUT("/api/invoices/:id", func(c *gin.Context) {
		c.Set("invoice_id", c.Param("id"))
		c.Set("contract_id", "C-7")
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/invoices/991", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "HTTP PUT /api/invoices/:id", spans[0].Name())
	attrs := spanAttributes(spans[0])
	assert.Equal(t, "991", attrs["rentflow.invoice_id"].AsString())
	assert.Equal(t, "C-7", attrs["rentflow.contract_id"].AsString())
	assert.Equal(t, "42", attrs["rentflow.org_id"].AsString())
	assert.Equal(t, "/api/invoices/:id", attrs["http.route"].AsString())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}

func TestGinMiddlewareMarksServerErrors(t *testing.T) {
	r, recorder := newRecordingEngine(t)
	r.POST("/api/invoices", func(c *gin.Context) {
		c.Status(http.StatusServiceUnavailable)
	})
	r.POST("/api/invoices/preview", func(c *gin.Context) {
		c.Status(http.StatusTooManyRequests)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/invoices", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/invoices/preview", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	require.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "request rejected", spans[1].Events()[0].Name)
}
