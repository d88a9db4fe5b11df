package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/config"
	contractdomain "github.com/smallbiznis/rentflow/internal/contract/domain"
	invoicedomain "github.com/smallbiznis/rentflow/internal/invoice/domain"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	invoicingdomain "github.com/smallbiznis/rentflow/internal/invoicing/domain"
	invoicingservice "github.com/smallbiznis/rentflow/internal/invoicing/service"
	"github.com/smallbiznis/rentflow/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testOrgHeader = "4242"

type staticContracts map[string]calc.ContractSnapshot

func (s staticContracts) Snapshot(_ context.Context, id string) (calc.ContractSnapshot, error) {
	snapshot, ok := s[id]
	if !ok {
		return calc.ContractSnapshot{}, fmt.Errorf("snapshot %s: %w", id, contractdomain.ErrNotFound)
	}
	return snapshot, nil
}

type emptyHistory struct{}

func (emptyHistory) ListPriorInvoices(context.Context, string) ([]calc.PriorInvoice, error) {
	return nil, nil
}

type neverRead struct{}

func (neverRead) LatestMeterEnd(context.Context, string, string, int, int) (*decimal.Decimal, error) {
	return nil, nil
}

type stubInvoices struct {
	invoicedomain.Service
	createErr error
}

func (s stubInvoices) Create(context.Context, invoicedomain.SaveRequest) (invoicedomain.Response, error) {
	return invoicedomain.Response{}, s.createErr
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	invoicing := invoicingservice.New(invoicingservice.Params{
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(time.Date(2024, 4, 5, 9, 0, 0, 0, time.UTC)),
		Config: config.NewStaticInvoicingConfigHolder(config.DefaultInvoicingConfig()),
		Contracts: staticContracts{
			"C-1": {
				ContractID:  "C-1",
				RoomID:      "R-1",
				MonthlyRent: decimal.NewFromInt(3000000),
				Services: []calc.ContractedService{
					{ServiceID: "electricity", ServiceName: "Electricity", Unit: calc.UnitMeter, Price: decimal.NewFromInt(3500)},
					{ServiceID: "internet", ServiceName: "Internet", Unit: calc.UnitQuantity, Price: decimal.NewFromInt(100000), Quantity: 1},
				},
			},
		},
		History:  emptyHistory{},
		Readings: neverRead{},
	})

	return NewServer(ServerParams{
		Gin:          NewEngine(observability.Config{}, nil),
		Cfg:          cfg,
		Log:          zap.NewNop(),
		InvoicingSvc: invoicing,
		InvoiceSvc:   stubInvoices{createErr: fmt.Errorf("save: %w", invoicedomain.ErrPeriodInvoiced)},
	})
}

func doJSON(t *testing.T, s *Server, method, path, org string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if org != "" {
		req.Header.Set(HeaderOrg, org)
	}
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func previewBody() map[string]any {
	return map[string]any{
		"contract_id":  "C-1",
		"month":        4,
		"year":         2024,
		"invoice_date": "2024-04-05",
		"services": []map[string]any{
			{"service_id": "electricity", "meter_start": "100", "meter_end": "150"},
		},
	}
}

func TestPreviewInvoiceRoundTrip(t *testing.T) {
	s := newTestServer(t, config.Config{})

	rec := doJSON(t, s, http.MethodPost, "/api/invoices/preview", testOrgHeader, previewBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data invoicingdomain.ComputeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Complete)
	assert.Equal(t, "R-1", resp.Data.RoomID)
	assert.Equal(t, calc.RoundHalfUp, resp.Data.Rounding.Mode)
	assert.True(t, resp.Data.Totals.ServiceAmount.Equal(decimal.NewFromInt(275000)))
	assert.True(t, resp.Data.Totals.TotalAmount.Equal(decimal.NewFromInt(3275000)))
	assert.Equal(t, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), resp.Data.InvoiceDate)
}

func TestPreviewPendingMeterStillAnswers(t *testing.T) {
	s := newTestServer(t, config.Config{})
	body := previewBody()
	body["services"] = []map[string]any{}

	rec := doJSON(t, s, http.MethodPost, "/api/invoices/preview", testOrgHeader, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data invoicingdomain.ComputeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Complete)
	assert.True(t, resp.Data.HasWarning(calc.WarningIncompleteServiceData))
}

func TestPreviewRequiresOrganization(t *testing.T) {
	s := newTestServer(t, config.Config{})

	rec := doJSON(t, s, http.MethodPost, "/api/invoices/preview", "", previewBody())
	require.Equal(t, http.StatusBadRequest, rec.Code)

	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "organization_required", payload.Errors[0].Code)
}

func TestPreviewFallsBackToDefaultOrganization(t *testing.T) {
	s := newTestServer(t, config.Config{DefaultOrgID: 4242})

	rec := doJSON(t, s, http.MethodPost, "/api/invoices/preview", "", previewBody())
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestPreviewRejectsMalformedOrganization(t *testing.T) {
	s := newTestServer(t, config.Config{})

	rec := doJSON(t, s, http.MethodPost, "/api/invoices/preview", "not-a-number", previewBody())
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_organization", decodeError(t, rec).Errors[0].Code)
}

func TestPreviewInvalidMeterReadingDetails(t *testing.T) {
	s := newTestServer(t, config.Config{})
	body := previewBody()
	body["services"] = []map[string]any{
		{"service_id": "electricity", "meter_start": "150", "meter_end": "100"},
	}

	rec := doJSON(t, s, http.MethodPost, "/api/invoices/preview", testOrgHeader, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	item := payload.Errors[0]
	assert.Equal(t, "invalid_meter_reading", item.Code)
	assert.Equal(t, "electricity", item.Details["service_id"])
	assert.Equal(t, ">= 150", item.Details["expected"])
	assert.Equal(t, "100", item.Details["actual"])
}

func TestPreviewErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		status int
		code   string
	}{
		{
			name:   "month out of range",
			mutate: func(b map[string]any) { b["month"] = 13 },
			status: http.StatusBadRequest,
			code:   "invalid_period",
		},
		{
			name:   "negative actual days",
			mutate: func(b map[string]any) { b["actual_days"] = -1 },
			status: http.StatusBadRequest,
			code:   "invalid_actual_days",
		},
		{
			name:   "malformed invoice date",
			mutate: func(b map[string]any) { b["invoice_date"] = "05/04/2024" },
			status: http.StatusBadRequest,
			code:   "invalid_invoice_date",
		},
		{
			name: "service not on contract",
			mutate: func(b map[string]any) {
				b["services"] = []map[string]any{{"service_id": "water", "meter_end": "10"}}
			},
			status: http.StatusBadRequest,
			code:   "unknown_service",
		},
		{
			name:   "unknown contract",
			mutate: func(b map[string]any) { b["contract_id"] = "C-404" },
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, config.Config{})
			body := previewBody()
			tt.mutate(body)

			rec := doJSON(t, s, http.MethodPost, "/api/invoices/preview", testOrgHeader, body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				payload := decodeError(t, rec)
				require.NotEmpty(t, payload.Errors)
				assert.Equal(t, tt.code, payload.Errors[0].Code)
			}
		})
	}
}

func TestCreateInvoiceConflict(t *testing.T) {
	s := newTestServer(t, config.Config{})

	rec := doJSON(t, s, http.MethodPost, "/api/invoices", testOrgHeader, previewBody())
	require.Equal(t, http.StatusConflict, rec.Code)

	payload := decodeError(t, rec)
	assert.Equal(t, "conflict", payload.Type)
	assert.Equal(t, "period_already_invoiced", payload.Message)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, config.Config{})

	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClassifyErrorForLog(t *testing.T) {
	errType, code := classifyErrorForLog(fmt.Errorf("compute: %w", invoicingdomain.ErrStaleResult))
	assert.Equal(t, "stale_result", errType)
	assert.Equal(t, "stale_result", code)

	errType, code = classifyErrorForLog(fmt.Errorf("month 0: %w", calc.ErrInvalidPeriod))
	assert.Equal(t, "validation_error", errType)
	assert.Equal(t, "invalid_period", code)

	errType, _ = classifyErrorForLog(invoicedomain.ErrIncompleteServiceData)
	assert.Equal(t, "unprocessable_invoice", errType)
}

func TestMissingRecordMapsToNotFound(t *testing.T) {
	assert.True(t, isNotFoundError(fmt.Errorf("load contract: %w", gorm.ErrRecordNotFound)))
	assert.False(t, isNotFoundError(calc.ErrInvalidPeriod))
}
