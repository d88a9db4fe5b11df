package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("tenant_name", "Nguyen Van A"),
		attribute.String("service_id", "electricity"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("org_id"), attrs[0].Key)
	assert.Equal(t, attribute.Key("service_id"), attrs[1].Key)
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordInvoiceSaved(context.Background(), "1", "create", "pending")
		m.RecordPayment(context.Background(), "1", "paid")
		m.RecordMeterReading(context.Background(), "1", "electricity")
		m.RecordSettingChange(context.Background(), "1", "invoice.rounding_mode")
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordInvoiceSaved(context.Background(), "1", "update", "paid")
	})
}
