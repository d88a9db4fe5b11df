package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/config"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	"github.com/smallbiznis/rentflow/internal/invoicing/domain"
	obslogger "github.com/smallbiznis/rentflow/internal/observability/logger"
	"github.com/smallbiznis/rentflow/internal/observability/metrics"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
	settingdomain "github.com/smallbiznis/rentflow/internal/setting/domain"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Config    *config.InvoicingConfigHolder
	Contracts domain.ContractSource
	History   domain.InvoiceHistory
	Readings  domain.MeterReadingSource
	Settings  domain.SettingSource      `optional:"true"`
	Metrics   *metrics.InvoicingMetrics `optional:"true"`
}

type Service struct {
	log       *zap.Logger
	clock     clock.Clock
	config    *config.InvoicingConfigHolder
	contracts domain.ContractSource
	history   domain.InvoiceHistory
	readings  domain.MeterReadingSource
	settings  domain.SettingSource
	metrics   *metrics.InvoicingMetrics
	tracer    trace.Tracer
	validate  *validator.Validate
	tokens    *tokenRegistry
}

func New(p Params) domain.Service {
	return &Service{
		log:       p.Log.Named("invoicing.service"),
		clock:     p.Clock,
		config:    p.Config,
		contracts: p.Contracts,
		history:   p.History,
		readings:  p.Readings,
		settings:  p.Settings,
		metrics:   p.Metrics,
		tracer:    otel.Tracer("rentflow/invoicing"),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		tokens:    newTokenRegistry(),
	}
}

func (s *Service) Compute(ctx context.Context, req domain.ComputeRequest) (resp domain.ComputeResponse, err error) {
	trigger := req.Trigger
	if trigger == "" {
		trigger = domain.TriggerPreview
	}
	ctx, span := s.tracer.Start(ctx, "invoicing.Compute", trace.WithAttributes(
		attribute.String("contract_id", req.ContractID),
		attribute.Int("period_month", req.Month),
		attribute.Int("period_year", req.Year),
		attribute.String("trigger", trigger),
	))
	start := time.Now()
	defer func() {
		outcome := computationOutcome(resp, err)
		s.metrics.ObserveComputation(trigger, outcome, time.Since(start))
		span.SetAttributes(attribute.String("outcome", outcome))
		if err != nil && outcome == metrics.InvoicingOutcomeFailed {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invoice computation failed")
		}
		span.End()
	}()

	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ComputeResponse{}, domain.ErrInvalidOrganization
	}
	if err := s.validateRequest(req); err != nil {
		return domain.ComputeResponse{}, err
	}

	var (
		tokenKey string
		token    uint64
	)
	if key := strings.TrimSpace(req.DraftKey); key != "" {
		tokenKey = orgID.String() + ":" + key
		token = s.tokens.issue(tokenKey)
	}

	snapshot, err := s.contracts.Snapshot(ctx, req.ContractID)
	if err != nil {
		s.metrics.IncLookupFailure(metrics.LookupContract, err)
		return domain.ComputeResponse{}, err
	}

	inputs, err := indexInputs(snapshot, req.Services)
	if err != nil {
		return domain.ComputeResponse{}, err
	}

	invoiceDate := calc.DateOnly(s.clock.Now())
	if req.InvoiceDate != nil && !req.InvoiceDate.IsZero() {
		invoiceDate = calc.DateOnly(*req.InvoiceDate)
	}

	fetched := s.fetch(ctx, snapshot, inputs, req.Month, req.Year)

	if tokenKey != "" && !s.tokens.current(tokenKey, token) {
		return domain.ComputeResponse{}, domain.ErrStaleResult
	}

	rounding := s.resolveRounding(ctx)
	draft := s.fold(snapshot, req, inputs, fetched, invoiceDate, rounding)

	result, err := calc.Compute(draft)
	if err != nil {
		return domain.ComputeResponse{}, err
	}

	log := obslogger.WithInvoice(obslogger.WithContext(ctx, s.log), snapshot.ContractID, req.Month, req.Year)
	for _, w := range result.Warnings {
		s.metrics.IncWarning(string(w.Code))
		log.Warn("invoice computed with warning",
			zap.String("warning", string(w.Code)),
			zap.String("detail", w.Message),
			zap.Strings("service_ids", w.ServiceIDs),
		)
	}

	return domain.ComputeResponse{
		Result:      result,
		ContractID:  snapshot.ContractID,
		RoomID:      snapshot.RoomID,
		Month:       req.Month,
		Year:        req.Year,
		ActualDays:  req.ActualDays,
		InvoiceDate: invoiceDate,
		Currency:    s.config.Get().Currency,
		Rounding:    rounding,
	}, nil
}

type fetchResult struct {
	priorInvoices []calc.PriorInvoice
	historyErr    error
	// latestEnds holds the previous meter_end per metered service that was looked up.
	latestEnds map[string]*decimal.Decimal
}

// fetch runs the invoice-history lookup and every needed meter lookup
// concurrently. Meter starts come from the latest period before month/year.
// Meter lookup failures leave the line pending.
func (s *Service) fetch(ctx context.Context, snapshot calc.ContractSnapshot, inputs map[string]domain.ServiceInput, month, year int) fetchResult {
	lookups := lo.Filter(snapshot.Services, func(svc calc.ContractedService, _ int) bool {
		if svc.Unit != calc.UnitMeter {
			return false
		}
		in, ok := inputs[svc.ServiceID]
		return !ok || in.MeterStart == nil
	})
	ends := make([]*decimal.Decimal, len(lookups))

	var out fetchResult
	var wg conc.WaitGroup
	wg.Go(func() {
		out.priorInvoices, out.historyErr = s.history.ListPriorInvoices(ctx, snapshot.ContractID)
	})
	for i, svc := range lookups {
		wg.Go(func() {
			end, err := s.readings.LatestMeterEnd(ctx, snapshot.RoomID, svc.ServiceID, month, year)
			if err != nil {
				s.metrics.IncLookupFailure(metrics.LookupMeterReading, err)
				obslogger.WithContext(ctx, s.log).Warn("latest meter reading lookup failed",
					zap.String("room_id", snapshot.RoomID),
					zap.String("service_id", svc.ServiceID),
					zap.Error(err),
				)
				return
			}
			ends[i] = end
		})
	}
	wg.Wait()

	if out.historyErr != nil {
		s.metrics.IncLookupFailure(metrics.LookupInvoiceHistory, out.historyErr)
	}
	out.latestEnds = make(map[string]*decimal.Decimal, len(lookups))
	for i, svc := range lookups {
		out.latestEnds[svc.ServiceID] = ends[i]
	}
	return out
}

func (s *Service) fold(snapshot calc.ContractSnapshot, req domain.ComputeRequest, inputs map[string]domain.ServiceInput, fetched fetchResult, invoiceDate time.Time, rounding calc.Rounding) calc.InvoiceDraft {
	draft := calc.NewDraft(snapshot, calc.BillingPeriod{Month: req.Month, Year: req.Year}, invoiceDate).
		WithActualDays(req.ActualDays).
		WithExcludedInvoice(strings.TrimSpace(req.ExcludeInvoiceID)).
		WithPaidAmount(req.PaidAmount).
		WithRounding(rounding)

	if fetched.historyErr != nil {
		draft = draft.WithDebtLookupError(fetched.historyErr)
	} else {
		draft = draft.WithPriorInvoices(fetched.priorInvoices)
	}

	for _, svc := range snapshot.Services {
		in, hasInput := inputs[svc.ServiceID]
		switch svc.Unit {
		case calc.UnitQuantity:
			if hasInput && in.Quantity != nil {
				draft = draft.WithQuantity(svc.ServiceID, *in.Quantity)
			}
		case calc.UnitMeter:
			reading := calc.MeterReading{}
			if hasInput {
				reading.MeterStart = in.MeterStart
				reading.MeterEnd = in.MeterEnd
			}
			if reading.MeterStart == nil {
				reading.MeterStart = fetched.latestEnds[svc.ServiceID]
			}
			draft = draft.WithMeterReading(svc.ServiceID, reading)
		}
	}
	return draft
}

// resolveRounding prefers the organization's setting over the global policy.
func (s *Service) resolveRounding(ctx context.Context) calc.Rounding {
	cfg := s.config.Get()
	mode, err := calc.ParseRoundingMode(cfg.RoundingMode)
	if err != nil {
		mode = calc.RoundHalfUp
	}
	if s.settings != nil {
		value, ok, err := s.settings.Lookup(ctx, settingdomain.KeyRoundingMode)
		switch {
		case err != nil:
			obslogger.WithContext(ctx, s.log).Warn("rounding mode setting lookup failed", zap.Error(err))
		case ok:
			if parsed, perr := calc.ParseRoundingMode(value); perr == nil {
				mode = parsed
			}
		}
	}
	return calc.Rounding{Mode: mode, Places: cfg.CurrencyPlaces}
}

func (s *Service) validateRequest(req domain.ComputeRequest) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	first := fieldErrs[0]
	switch first.Field() {
	case "Month", "Year":
		return fmt.Errorf("%w: %s=%v", calc.ErrInvalidPeriod, strings.ToLower(first.Field()), first.Value())
	case "ActualDays":
		return fmt.Errorf("%w: actual_days must not be negative", calc.ErrInvalidActualDays)
	default:
		return fmt.Errorf("%w: %s failed %s", domain.ErrInvalidRequest, first.Namespace(), first.Tag())
	}
}

func indexInputs(snapshot calc.ContractSnapshot, inputs []domain.ServiceInput) (map[string]domain.ServiceInput, error) {
	known := lo.SliceToMap(snapshot.Services, func(svc calc.ContractedService) (string, calc.ServiceUnit) {
		return svc.ServiceID, svc.Unit
	})
	out := make(map[string]domain.ServiceInput, len(inputs))
	for _, in := range inputs {
		id := strings.TrimSpace(in.ServiceID)
		if _, ok := known[id]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownService, id)
		}
		in.ServiceID = id
		out[id] = in
	}
	return out, nil
}

func computationOutcome(resp domain.ComputeResponse, err error) string {
	switch {
	case err == nil && resp.Complete:
		return metrics.InvoicingOutcomeComplete
	case err == nil:
		return metrics.InvoicingOutcomeIncomplete
	case errors.Is(err, domain.ErrStaleResult):
		return metrics.InvoicingOutcomeStale
	case metrics.ClassifyInvoicingReason(err) == metrics.InvoicingReasonValidation,
		errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrUnknownService):
		return metrics.InvoicingOutcomeRejected
	default:
		return metrics.InvoicingOutcomeFailed
	}
}
