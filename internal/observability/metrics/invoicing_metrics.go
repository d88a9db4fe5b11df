package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	"gorm.io/gorm"
)

const (
	InvoicingOutcomeComplete   = "complete"
	InvoicingOutcomeIncomplete = "incomplete"
	InvoicingOutcomeRejected   = "rejected"
	InvoicingOutcomeStale      = "stale"
	InvoicingOutcomeFailed     = "failed"
)

const (
	InvoicingReasonValidation           = "validation"
	InvoicingReasonDeadlineExceeded     = "deadline_exceeded"
	InvoicingReasonDBLockTimeout        = "db_lock_timeout"
	InvoicingReasonSerializationFailure = "serialization_failure"
	InvoicingReasonUniqueViolation      = "unique_violation"
	InvoicingReasonDB                   = "db"
	InvoicingReasonUnknown              = "unknown"
)

const (
	LookupContract       = "contract"
	LookupInvoiceHistory = "invoice_history"
	LookupMeterReading   = "meter_reading"
)

// InvoicingMetrics captures invoice computation health.
type InvoicingMetrics struct {
	computations   *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	warnings       *prometheus.CounterVec
	lookupFailures *prometheus.CounterVec
	saveErrors     *prometheus.CounterVec
}

var (
	invoicingMetricsOnce sync.Once
	invoicingMetrics     *InvoicingMetrics
)

// Invoicing returns the singleton invoicing metrics registry.
func Invoicing() *InvoicingMetrics {
	return InvoicingWithConfig(Config{})
}

// InvoicingWithConfig returns the singleton invoicing metrics registry using config labels.
func InvoicingWithConfig(cfg Config) *InvoicingMetrics {
	invoicingMetricsOnce.Do(func() {
		invoicingMetrics = newInvoicingMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return invoicingMetrics
}

// ResetInvoicingMetricsForTest resets the invoicing metrics singleton for tests.
func ResetInvoicingMetricsForTest() {
	invoicingMetricsOnce = sync.Once{}
	invoicingMetrics = nil
}

// NewInvoicingMetrics builds an unshared registry-bound instance.
func NewInvoicingMetrics(registerer prometheus.Registerer, cfg Config) *InvoicingMetrics {
	return newInvoicingMetrics(registerer, cfg)
}

func newInvoicingMetrics(registerer prometheus.Registerer, cfg Config) *InvoicingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "rentflow"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	computations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentflow_invoice_computations_total",
		Help:        "Invoice computations by trigger and outcome.",
		ConstLabels: constLabels,
	}, []string{"trigger", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "rentflow_invoice_computation_duration_seconds",
		Help:        "Latency of a full invoice computation including lookups.",
		Buckets:     []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"trigger"})
	warnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentflow_invoice_warnings_total",
		Help:        "Non-fatal warnings attached to computed invoices.",
		ConstLabels: constLabels,
	}, []string{"code"})
	lookupFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentflow_invoice_lookup_failures_total",
		Help:        "Failed upstream lookups during invoice computation.",
		ConstLabels: constLabels,
	}, []string{"lookup", "reason"})
	saveErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "rentflow_invoice_save_errors_total",
		Help:        "Invoice saves that were rejected or failed.",
		ConstLabels: constLabels,
	}, []string{"reason"})

	computations = registerCounterVec(registerer, computations)
	duration = registerHistogramVec(registerer, duration)
	warnings = registerCounterVec(registerer, warnings)
	lookupFailures = registerCounterVec(registerer, lookupFailures)
	saveErrors = registerCounterVec(registerer, saveErrors)

	return &InvoicingMetrics{
		computations:   computations,
		duration:       duration,
		warnings:       warnings,
		lookupFailures: lookupFailures,
		saveErrors:     saveErrors,
	}
}

func registerCounterVec(registerer prometheus.Registerer, vec *prometheus.CounterVec) *prometheus.CounterVec {
	if err := registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return vec
}

func registerHistogramVec(registerer prometheus.Registerer, vec *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := registerer.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return vec
}

// ObserveComputation records one computation and its latency.
func (m *InvoicingMetrics) ObserveComputation(trigger, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if m.computations != nil {
		m.computations.WithLabelValues(trigger, outcome).Inc()
	}
	if m.duration != nil {
		m.duration.WithLabelValues(trigger).Observe(duration.Seconds())
	}
}

func (m *InvoicingMetrics) IncWarning(code string) {
	if m == nil || m.warnings == nil {
		return
	}
	m.warnings.WithLabelValues(code).Inc()
}

// IncLookupFailure increments the lookup failure counter with classification.
func (m *InvoicingMetrics) IncLookupFailure(lookup string, err error) {
	if m == nil || m.lookupFailures == nil || err == nil {
		return
	}
	m.lookupFailures.WithLabelValues(lookup, ClassifyInvoicingReason(err)).Inc()
}

func (m *InvoicingMetrics) IncSaveError(err error) {
	if m == nil || m.saveErrors == nil || err == nil {
		return
	}
	m.saveErrors.WithLabelValues(ClassifyInvoicingReason(err)).Inc()
}

// ClassifyInvoicingReason maps invoicing errors to low-cardinality reasons.
func ClassifyInvoicingReason(err error) string {
	if err == nil {
		return InvoicingReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return InvoicingReasonDeadlineExceeded
	}
	if isCalcError(err) {
		return InvoicingReasonValidation
	}
	if isDBLockTimeout(err) {
		return InvoicingReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return InvoicingReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return InvoicingReasonUniqueViolation
	}
	if isDBError(err) {
		return InvoicingReasonDB
	}
	return InvoicingReasonUnknown
}

// IsInvoicingErrorRetryable reports whether a failed computation may succeed on retry.
func IsInvoicingErrorRetryable(err error) bool {
	if err == nil || isCalcError(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return isDBLockTimeout(err) || isSerializationFailure(err)
}

func isCalcError(err error) bool {
	return errors.Is(err, calc.ErrInvalidPeriod) ||
		errors.Is(err, calc.ErrInvalidMeterReading) ||
		errors.Is(err, calc.ErrInvalidActualDays) ||
		errors.Is(err, calc.ErrInvalidQuantity) ||
		errors.Is(err, calc.ErrInvalidUnit) ||
		errors.Is(err, calc.ErrInvalidRoundingMode)
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
