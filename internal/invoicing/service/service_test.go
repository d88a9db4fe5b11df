package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/config"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	"github.com/smallbiznis/rentflow/internal/invoicing/domain"
	"github.com/smallbiznis/rentflow/internal/observability/metrics"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
	settingdomain "github.com/smallbiznis/rentflow/internal/setting/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockContracts struct {
	mock.Mock
}

func (m *mockContracts) Snapshot(ctx context.Context, contractID string) (calc.ContractSnapshot, error) {
	args := m.Called(ctx, contractID)
	return args.Get(0).(calc.ContractSnapshot), args.Error(1)
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) ListPriorInvoices(ctx context.Context, contractID string) ([]calc.PriorInvoice, error) {
	args := m.Called(ctx, contractID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]calc.PriorInvoice), args.Error(1)
}

type mockReadings struct {
	mock.Mock
}

func (m *mockReadings) LatestMeterEnd(ctx context.Context, roomID, serviceID string, month, year int) (*decimal.Decimal, error) {
	args := m.Called(ctx, roomID, serviceID, month, year)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*decimal.Decimal), args.Error(1)
}

type staticSettings map[string]string

func (s staticSettings) Lookup(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

var testOrg = snowflake.ID(77)

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func intPtr(v int) *int { return &v }

func snapshot() calc.ContractSnapshot {
	return calc.ContractSnapshot{
		ContractID:  "C-1",
		RoomID:      "R-1",
		MonthlyRent: decimal.NewFromInt(3000000),
		Services: []calc.ContractedService{
			{ServiceID: "electricity", ServiceName: "Electricity", Unit: calc.UnitMeter, Price: decimal.NewFromInt(3500)},
			{ServiceID: "internet", ServiceName: "Internet", Unit: calc.UnitQuantity, Price: decimal.NewFromInt(100000), Quantity: 1},
		},
	}
}

type fixture struct {
	svc       domain.Service
	contracts *mockContracts
	history   *mockHistory
	readings  *mockReadings
	registry  *prometheus.Registry
}

func newFixture(t *testing.T, settings domain.SettingSource, history domain.InvoiceHistory) fixture {
	t.Helper()
	f := fixture{
		contracts: &mockContracts{},
		history:   &mockHistory{},
		readings:  &mockReadings{},
		registry:  prometheus.NewRegistry(),
	}
	if history == nil {
		history = f.history
	}
	f.svc = New(Params{
		Log:       zap.NewNop(),
		Clock:     clock.NewFakeClock(time.Date(2024, 4, 5, 9, 30, 0, 0, time.UTC)),
		Config:    config.NewStaticInvoicingConfigHolder(config.DefaultInvoicingConfig()),
		Contracts: f.contracts,
		History:   history,
		Readings:  f.readings,
		Settings:  settings,
		Metrics:   metrics.NewInvoicingMetrics(f.registry, metrics.Config{}),
	})
	return f
}

// counterValue reads one labelled counter from the fixture registry.
func (f fixture) counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func orgCtx() context.Context {
	return orgcontext.WithOrgID(context.Background(), testOrg)
}

func TestComputeCompleteInvoice(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.contracts.On("Snapshot", mock.Anything, "C-1").Return(snapshot(), nil)
	f.history.On("ListPriorInvoices", mock.Anything, "C-1").Return([]calc.PriorInvoice{
		{ID: "I-1", InvoiceDate: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Status: "partial", RemainingAmount: dec("500000")},
		{ID: "I-0", InvoiceDate: time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC), Status: "paid", RemainingAmount: dec("0")},
	}, nil)

	resp, err := f.svc.Compute(orgCtx(), domain.ComputeRequest{
		ContractID: "C-1",
		Month:      4,
		Year:       2024,
		PaidAmount: dec("1000000"),
		Services: []domain.ServiceInput{
			{ServiceID: "electricity", MeterStart: dec("100"), MeterEnd: dec("150")},
		},
	})
	require.NoError(t, err)

	assert.True(t, resp.Complete)
	assert.Empty(t, resp.Warnings)
	assert.Equal(t, "R-1", resp.RoomID)
	assert.Equal(t, "VND", resp.Currency)
	assert.Equal(t, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), resp.InvoiceDate)
	assert.True(t, resp.Totals.RentAmount.Equal(decimal.NewFromInt(3000000)))
	assert.True(t, resp.Totals.ServiceAmount.Equal(decimal.NewFromInt(275000)))
	assert.True(t, resp.Totals.PreviousDebt.Equal(decimal.NewFromInt(500000)))
	assert.True(t, resp.Totals.TotalAmount.Equal(decimal.NewFromInt(3775000)))
	assert.True(t, resp.Totals.RemainingAmount.Equal(decimal.NewFromInt(2775000)))
	f.readings.AssertNotCalled(t, "LatestMeterEnd", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1.0, f.counterValue(t, "rentflow_invoice_computations_total", map[string]string{"trigger": domain.TriggerPreview, "outcome": metrics.InvoicingOutcomeComplete}))
}

func TestComputeUsesLatestMeterEndAsStart(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.contracts.On("Snapshot", mock.Anything, "C-1").Return(snapshot(), nil)
	f.history.On("ListPriorInvoices", mock.Anything, "C-1").Return([]calc.PriorInvoice{}, nil)
	f.readings.On("LatestMeterEnd", mock.Anything, "R-1", "electricity", 4, 2024).Return(dec("120"), nil)

	resp, err := f.svc.Compute(orgCtx(), domain.ComputeRequest{
		ContractID: "C-1",
		Month:      4,
		Year:       2024,
		Services:   []domain.ServiceInput{{ServiceID: "electricity", MeterEnd: dec("150")}},
	})
	require.NoError(t, err)

	require.True(t, resp.Complete)
	line := resp.Services[0]
	require.NotNil(t, line.MeterStart)
	assert.True(t, line.MeterStart.Equal(decimal.NewFromInt(120)))
	assert.True(t, line.Amount.Equal(decimal.NewFromInt(105000)))
}

func TestComputeMissingMeterIsPending(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.contracts.On("Snapshot", mock.Anything, "C-1").Return(snapshot(), nil)
	f.history.On("ListPriorInvoices", mock.Anything, "C-1").Return([]calc.PriorInvoice{}, nil)
	f.readings.On("LatestMeterEnd", mock.Anything, "R-1", "electricity", 4, 2024).Return(nil, errors.New("connection reset"))

	resp, err := f.svc.Compute(orgCtx(), domain.ComputeRequest{ContractID: "C-1", Month: 4, Year: 2024})
	require.NoError(t, err)

	assert.False(t, resp.Complete)
	assert.True(t, resp.HasWarning(calc.WarningIncompleteServiceData))
	assert.Nil(t, resp.Services[0].Amount)
	assert.True(t, resp.Totals.ServiceAmount.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, 1.0, f.counterValue(t, "rentflow_invoice_lookup_failures_total", map[string]string{"lookup": metrics.LookupMeterReading, "reason": metrics.InvoicingReasonUnknown}))
}

func TestComputeDebtLookupFailureWarns(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.contracts.On("Snapshot", mock.Anything, "C-1").Return(snapshot(), nil)
	f.history.On("ListPriorInvoices", mock.Anything, "C-1").Return(nil, errors.New("db down"))

	resp, err := f.svc.Compute(orgCtx(), domain.ComputeRequest{
		ContractID: "C-1",
		Month:      4,
		Year:       2024,
		Services:   []domain.ServiceInput{{ServiceID: "electricity", MeterStart: dec("1"), MeterEnd: dec("1")}},
	})
	require.NoError(t, err)

	assert.True(t, resp.Complete)
	assert.True(t, resp.HasWarning(calc.WarningDebtLookupFailed))
	assert.True(t, resp.Totals.PreviousDebt.IsZero())
	assert.Equal(t, 1.0, f.counterValue(t, "rentflow_invoice_warnings_total", map[string]string{"code": string(calc.WarningDebtLookupFailed)}))
}

func TestComputeRoundingFromSetting(t *testing.T) {
	snap := calc.ContractSnapshot{ContractID: "C-1", RoomID: "R-1", MonthlyRent: decimal.NewFromInt(75)}

	cases := []struct {
		name     string
		settings domain.SettingSource
		want     int64
	}{
		{name: "global half up", settings: nil, want: 3},
		{name: "org half even", settings: staticSettings{settingdomain.KeyRoundingMode: "half_even"}, want: 2},
		{name: "invalid setting ignored", settings: staticSettings{settingdomain.KeyRoundingMode: "ceiling"}, want: 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.settings, nil)
			f.contracts.On("Snapshot", mock.Anything, "C-1").Return(snap, nil)
			f.history.On("ListPriorInvoices", mock.Anything, "C-1").Return([]calc.PriorInvoice{}, nil)

			resp, err := f.svc.Compute(orgCtx(), domain.ComputeRequest{ContractID: "C-1", Month: 4, Year: 2024, ActualDays: intPtr(1)})
			require.NoError(t, err)
			assert.True(t, resp.Totals.RentAmount.Equal(decimal.NewFromInt(tc.want)), "rent=%s", resp.Totals.RentAmount)
		})
	}
}

func TestComputeValidation(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.contracts.On("Snapshot", mock.Anything, "C-1").Return(snapshot(), nil)
	f.history.On("ListPriorInvoices", mock.Anything, "C-1").Return([]calc.PriorInvoice{}, nil)

	cases := []struct {
		name string
		req  domain.ComputeRequest
		want error
	}{
		{name: "month", req: domain.ComputeRequest{ContractID: "C-1", Month: 13, Year: 2024}, want: calc.ErrInvalidPeriod},
		{name: "negative days", req: domain.ComputeRequest{ContractID: "C-1", Month: 4, Year: 2024, ActualDays: intPtr(-1)}, want: calc.ErrInvalidActualDays},
		{name: "days beyond month", req: domain.ComputeRequest{ContractID: "C-1", Month: 4, Year: 2024, ActualDays: intPtr(31)}, want: calc.ErrInvalidActualDays},
		{name: "missing contract", req: domain.ComputeRequest{Month: 4, Year: 2024}, want: domain.ErrInvalidRequest},
		{name: "unknown service", req: domain.ComputeRequest{ContractID: "C-1", Month: 4, Year: 2024, Services: []domain.ServiceInput{{ServiceID: "gas"}}}, want: domain.ErrUnknownService},
		{name: "meter going backwards", req: domain.ComputeRequest{ContractID: "C-1", Month: 4, Year: 2024, Services: []domain.ServiceInput{{ServiceID: "electricity", MeterStart: dec("200"), MeterEnd: dec("150")}}}, want: calc.ErrInvalidMeterReading},
		{name: "zero quantity", req: domain.ComputeRequest{ContractID: "C-1", Month: 4, Year: 2024, Services: []domain.ServiceInput{{ServiceID: "internet", Quantity: intPtr(0)}}}, want: calc.ErrInvalidQuantity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f.readings.On("LatestMeterEnd", mock.Anything, "R-1", "electricity", 4, 2024).Return(dec("0"), nil).Maybe()
			_, err := f.svc.Compute(orgCtx(), tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestComputeRequiresOrganization(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.Compute(context.Background(), domain.ComputeRequest{ContractID: "C-1", Month: 4, Year: 2024})
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
	f.contracts.AssertNotCalled(t, "Snapshot", mock.Anything, mock.Anything)
}

// blockingHistory parks the first call until released.
type blockingHistory struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (h *blockingHistory) ListPriorInvoices(ctx context.Context, _ string) ([]calc.PriorInvoice, error) {
	h.mu.Lock()
	h.calls++
	first := h.calls == 1
	h.mu.Unlock()
	if first {
		close(h.entered)
		<-h.release
	}
	return nil, nil
}

func TestComputeDiscardsStaleResult(t *testing.T) {
	history := &blockingHistory{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, nil, history)
	snap := snapshot()
	snap.Services = snap.Services[1:]
	f.contracts.On("Snapshot", mock.Anything, "C-1").Return(snap, nil)

	req := domain.ComputeRequest{ContractID: "C-1", Month: 4, Year: 2024, DraftKey: "edit-42"}

	type outcome struct {
		resp domain.ComputeResponse
		err  error
	}
	first := make(chan outcome, 1)
	go func() {
		resp, err := f.svc.Compute(orgCtx(), req)
		first <- outcome{resp, err}
	}()

	<-history.entered
	second, err := f.svc.Compute(orgCtx(), req)
	require.NoError(t, err)
	assert.True(t, second.Complete)

	close(history.release)
	got := <-first
	assert.ErrorIs(t, got.err, domain.ErrStaleResult)
	assert.Equal(t, 1.0, f.counterValue(t, "rentflow_invoice_computations_total", map[string]string{"trigger": domain.TriggerPreview, "outcome": metrics.InvoicingOutcomeStale}))
}

func TestComputeDraftKeysAreIndependent(t *testing.T) {
	f := newFixture(t, nil, nil)
	snap := snapshot()
	snap.Services = nil
	f.contracts.On("Snapshot", mock.Anything, "C-1").Return(snap, nil)
	f.history.On("ListPriorInvoices", mock.Anything, "C-1").Return([]calc.PriorInvoice{}, nil)

	for _, key := range []string{"a", "b", "a"} {
		_, err := f.svc.Compute(orgCtx(), domain.ComputeRequest{ContractID: "C-1", Month: 4, Year: 2024, DraftKey: key})
		require.NoError(t, err)
	}
}
