package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyInvoicingReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: InvoicingReasonDeadlineExceeded},
		{name: "invalid_period", err: errors.Wrap(calc.ErrInvalidPeriod, "month 13"), want: InvoicingReasonValidation},
		{name: "invalid_meter", err: &calc.MeterReadingError{ServiceID: "e"}, want: InvoicingReasonValidation},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: InvoicingReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: InvoicingReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: InvoicingReasonUniqueViolation},
		{name: "db", err: gorm.ErrInvalidTransaction, want: InvoicingReasonDB},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: InvoicingReasonUnknown},
		{name: "unknown", err: errors.New("boom"), want: InvoicingReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyInvoicingReason(tc.err))
		})
	}
}

func TestIsInvoicingErrorRetryable(t *testing.T) {
	assert.True(t, IsInvoicingErrorRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsInvoicingErrorRetryable(context.DeadlineExceeded))
	assert.False(t, IsInvoicingErrorRetryable(calc.ErrInvalidQuantity))
	assert.False(t, IsInvoicingErrorRetryable(nil))
}

func TestInvoicingMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewInvoicingMetrics(registry, Config{ServiceName: "rentflow-test", Environment: "test"})

	m.ObserveComputation("preview", InvoicingOutcomeComplete, 5*time.Millisecond)
	m.ObserveComputation("preview", InvoicingOutcomeComplete, 5*time.Millisecond)
	m.ObserveComputation("save", InvoicingOutcomeRejected, time.Millisecond)
	m.IncWarning(string(calc.WarningDebtLookupFailed))
	m.IncLookupFailure(LookupInvoiceHistory, gorm.ErrInvalidTransaction)
	m.IncSaveError(calc.ErrInvalidPeriod)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.computations.WithLabelValues("preview", InvoicingOutcomeComplete)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.computations.WithLabelValues("save", InvoicingOutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.warnings.WithLabelValues(string(calc.WarningDebtLookupFailed))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookupFailures.WithLabelValues(LookupInvoiceHistory, InvoicingReasonDB)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saveErrors.WithLabelValues(InvoicingReasonValidation)))
}

func TestInvoicingMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewInvoicingMetrics(registry, Config{Environment: "test"})
	second := NewInvoicingMetrics(registry, Config{Environment: "test"})

	first.IncWarning("incomplete_service_data")
	second.IncWarning("incomplete_service_data")

	assert.Equal(t, 2.0, testutil.ToFloat64(first.warnings.WithLabelValues("incomplete_service_data")))
}

func TestNilInvoicingMetricsAreNoop(t *testing.T) {
	var m *InvoicingMetrics
	assert.NotPanics(t, func() {
		m.ObserveComputation("preview", InvoicingOutcomeFailed, time.Second)
		m.IncWarning("x")
		m.IncLookupFailure(LookupContract, errors.New("x"))
		m.IncSaveError(errors.New("x"))
	})
}
