package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/config"
	"github.com/smallbiznis/rentflow/internal/invoice/domain"
	invoiceformat "github.com/smallbiznis/rentflow/internal/invoice/format"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	invoicingdomain "github.com/smallbiznis/rentflow/internal/invoicing/domain"
	meterreadingdomain "github.com/smallbiznis/rentflow/internal/meterreading/domain"
	obslogger "github.com/smallbiznis/rentflow/internal/observability/logger"
	"github.com/smallbiznis/rentflow/internal/observability/metrics"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
	"github.com/smallbiznis/rentflow/internal/ratelimit"
	settingdomain "github.com/smallbiznis/rentflow/internal/setting/domain"
	"github.com/smallbiznis/rentflow/pkg/db"
	"github.com/smallbiznis/rentflow/pkg/db/option"
	"github.com/smallbiznis/rentflow/pkg/db/pagination"
	"github.com/smallbiznis/rentflow/pkg/repository"
	"github.com/smallbiznis/rentflow/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	operationCreate = "create"
	operationUpdate = "update"
)

type Params struct {
	fx.In

	DB               *gorm.DB
	Log              *zap.Logger
	GenID            *snowflake.Node
	Clock            clock.Clock
	Config           *config.InvoicingConfigHolder
	Repo             domain.Repository
	Lines            repository.Repository[domain.InvoiceService]
	Readings         meterreadingdomain.Repository
	Contracts        invoicingdomain.ContractSource
	Invoicing        invoicingdomain.Service
	Settings         settingdomain.Service     `optional:"true"`
	Guard            *ratelimit.InvoiceGuard   `optional:"true"`
	Metrics          *metrics.Metrics          `optional:"true"`
	InvoicingMetrics *metrics.InvoicingMetrics `optional:"true"`
}

type Service struct {
	db               *gorm.DB
	log              *zap.Logger
	genID            *snowflake.Node
	clock            clock.Clock
	config           *config.InvoicingConfigHolder
	repo             domain.Repository
	lines            repository.Repository[domain.InvoiceService]
	readings         meterreadingdomain.Repository
	contracts        invoicingdomain.ContractSource
	invoicing        invoicingdomain.Service
	settings         settingdomain.Service
	guard            *ratelimit.InvoiceGuard
	metrics          *metrics.Metrics
	invoicingMetrics *metrics.InvoicingMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("invoice.service"),
		genID:            p.GenID,
		clock:            p.Clock,
		config:           p.Config,
		repo:             p.Repo,
		lines:            p.Lines,
		readings:         p.Readings,
		contracts:        p.Contracts,
		invoicing:        p.Invoicing,
		settings:         p.Settings,
		guard:            p.Guard,
		metrics:          p.Metrics,
		invoicingMetrics: p.InvoicingMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.SaveRequest) (domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Response{}, domain.ErrInvalidOrganization
	}
	contractID, err := parseID(req.ContractID)
	if err != nil {
		return domain.Response{}, domain.ErrInvalidContract
	}

	computed, err := s.compute(ctx, invoicingdomain.ComputeRequest{
		ContractID:  contractID.String(),
		Month:       req.Month,
		Year:        req.Year,
		ActualDays:  req.ActualDays,
		InvoiceDate: req.InvoiceDate,
		PaidAmount:  req.PaidAmount,
		Services:    req.Services,
	})
	if err != nil {
		s.recordSaveFailure(ctx, orgID, operationCreate, err)
		return domain.Response{}, err
	}

	release, err := s.lockPeriod(ctx, orgID, contractID, req.Month, req.Year)
	if err != nil {
		s.recordSaveFailure(ctx, orgID, operationCreate, err)
		return domain.Response{}, err
	}
	defer release()

	now := s.clock.Now()
	invoice := domain.Invoice{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		ContractID:  contractID,
		PeriodMonth: req.Month,
		PeriodYear:  req.Year,
		Metadata:    datatypes.JSONMap(req.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyComputation(&invoice, computed, s.dueDays(ctx))
	lines := s.buildLines(&invoice, computed.Services)
	template := s.numberTemplate(ctx)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithOrg(tx, orgID); err != nil {
			return err
		}
		existing, err := s.repo.FindByPeriod(ctx, tx, orgID, contractID, req.Month, req.Year)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrPeriodInvoiced
		}
		number, err := s.nextNumber(ctx, tx, orgID, template, invoice.InvoiceDate)
		if err != nil {
			return err
		}
		invoice.InvoiceNumber = number
		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			return err
		}
		return s.persistDetails(ctx, tx, &invoice, lines)
	})
	if db.IsDuplicateKeyErr(err) {
		err = domain.ErrPeriodInvoiced
	}
	if err != nil {
		s.recordSaveFailure(ctx, orgID, operationCreate, err)
		return domain.Response{}, err
	}

	s.metrics.RecordInvoiceSaved(ctx, orgID.String(), operationCreate, string(invoice.Status))
	obslogger.WithInvoice(obslogger.WithContext(ctx, s.log), contractID.String(), req.Month, req.Year).Info("invoice saved",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("total_amount", invoice.TotalAmount.String()),
	)
	return domain.Response{Invoice: invoice, Services: lines, Warnings: computed.Warnings}, nil
}

// Update recomputes an existing invoice for its contract period. The invoice
// is excluded from its own previous debt and stored readings seed metered
// lines the request leaves out.
func (s *Service) Update(ctx context.Context, id string, req domain.SaveRequest) (domain.Response, error) {
	orgID, invoiceID, err := s.resolveIDs(ctx, id)
	if err != nil {
		return domain.Response{}, err
	}

	current, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return domain.Response{}, err
	}
	if current == nil {
		return domain.Response{}, domain.ErrNotFound
	}
	if req.ContractID != "" && strings.TrimSpace(req.ContractID) != current.ContractID.String() {
		return domain.Response{}, domain.ErrInvalidContract
	}
	storedLines, err := s.loadLines(ctx, orgID, []snowflake.ID{invoiceID})
	if err != nil {
		return domain.Response{}, err
	}
	snapshot, err := s.contracts.Snapshot(ctx, current.ContractID.String())
	if err != nil {
		return domain.Response{}, err
	}

	paid := req.PaidAmount
	if paid == nil {
		kept := current.PaidAmount
		paid = &kept
	}
	invoiceDate := req.InvoiceDate
	if invoiceDate == nil {
		kept := current.InvoiceDate
		invoiceDate = &kept
	}

	computed, err := s.compute(ctx, invoicingdomain.ComputeRequest{
		ContractID:       current.ContractID.String(),
		Month:            current.PeriodMonth,
		Year:             current.PeriodYear,
		ActualDays:       req.ActualDays,
		InvoiceDate:      invoiceDate,
		PaidAmount:       paid,
		Services:         mergeStoredInputs(snapshot, req.Services, storedLines[invoiceID]),
		ExcludeInvoiceID: current.ID.String(),
	})
	if err != nil {
		s.recordSaveFailure(ctx, orgID, operationUpdate, err)
		return domain.Response{}, err
	}

	release, err := s.lockPeriod(ctx, orgID, current.ContractID, current.PeriodMonth, current.PeriodYear)
	if err != nil {
		s.recordSaveFailure(ctx, orgID, operationUpdate, err)
		return domain.Response{}, err
	}
	defer release()

	invoice := *current
	invoice.UpdatedAt = s.clock.Now()
	if req.Metadata != nil {
		invoice.Metadata = datatypes.JSONMap(req.Metadata)
	}
	applyComputation(&invoice, computed, s.dueDays(ctx))
	lines := s.buildLines(&invoice, computed.Services)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithOrg(tx, orgID); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, &invoice); err != nil {
			return err
		}
		if err := s.repo.DeleteLines(ctx, tx, orgID, invoice.ID); err != nil {
			return err
		}
		if err := s.readings.DeleteByInvoice(ctx, tx, orgID, invoice.ID); err != nil {
			return err
		}
		return s.persistDetails(ctx, tx, &invoice, lines)
	})
	if err != nil {
		s.recordSaveFailure(ctx, orgID, operationUpdate, err)
		return domain.Response{}, err
	}

	s.metrics.RecordInvoiceSaved(ctx, orgID.String(), operationUpdate, string(invoice.Status))
	obslogger.WithContext(ctx, s.log).Info("invoice updated",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("total_amount", invoice.TotalAmount.String()),
	)
	return domain.Response{Invoice: invoice, Services: lines, Warnings: computed.Warnings}, nil
}

func (s *Service) RecordPayment(ctx context.Context, id string, req domain.PaymentRequest) (domain.Response, error) {
	orgID, invoiceID, err := s.resolveIDs(ctx, id)
	if err != nil {
		return domain.Response{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Response{}, domain.ErrInvalidPayment
	}

	var invoice domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithOrg(tx, orgID); err != nil {
			return err
		}
		current, err := s.repo.FindForUpdate(ctx, tx, orgID, invoiceID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		invoice = *current
		invoice.PaidAmount = invoice.PaidAmount.Add(req.Amount)
		invoice.RemainingAmount = invoice.TotalAmount.Sub(invoice.PaidAmount)
		invoice.Status = domain.StatusFor(invoice.PaidAmount, invoice.TotalAmount)
		invoice.UpdatedAt = s.clock.Now()
		return s.repo.Save(ctx, tx, &invoice)
	})
	if err != nil {
		return domain.Response{}, err
	}

	s.metrics.RecordPayment(ctx, orgID.String(), string(invoice.Status))
	obslogger.WithContext(ctx, s.log).Info("payment recorded",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("amount", req.Amount.String()),
		zap.String("status", string(invoice.Status)),
	)

	lines, err := s.loadLines(ctx, orgID, []snowflake.ID{invoiceID})
	if err != nil {
		return domain.Response{}, err
	}
	return domain.Response{Invoice: invoice, Services: lines[invoiceID]}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Response, error) {
	orgID, invoiceID, err := s.resolveIDs(ctx, id)
	if err != nil {
		return domain.Response{}, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, orgID, invoiceID)
	if err != nil {
		return domain.Response{}, err
	}
	if invoice == nil {
		return domain.Response{}, domain.ErrNotFound
	}
	lines, err := s.loadLines(ctx, orgID, []snowflake.ID{invoiceID})
	if err != nil {
		return domain.Response{}, err
	}
	return domain.Response{Invoice: *invoice, Services: lines[invoiceID]}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{}
	if contractID := strings.TrimSpace(req.ContractID); contractID != "" {
		parsed, err := parseID(contractID)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidContract
		}
		filter.ContractID = parsed
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		switch domain.InvoiceStatus(status) {
		case domain.InvoiceStatusPending, domain.InvoiceStatusPartial, domain.InvoiceStatusPaid:
			filter.Status = domain.InvoiceStatus(status)
		default:
			return domain.ListResponse{}, domain.ErrInvalidStatus
		}
	}

	pageSize := option.PageSize(req.PageSize, option.DefaultPageSize)
	items, err := s.repo.List(ctx, s.db, orgID, filter, pagination.Pagination{PageToken: req.PageToken, PageSize: pageSize})
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(inv *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        inv.ID.String(),
			CreatedAt: inv.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})

	ids := lo.Map(items, func(inv *domain.Invoice, _ int) snowflake.ID { return inv.ID })
	lines, err := s.loadLines(ctx, orgID, ids)
	if err != nil {
		return domain.ListResponse{}, err
	}

	return domain.ListResponse{
		PageInfo: *pageInfo,
		Invoices: lo.Map(items, func(inv *domain.Invoice, _ int) domain.Response {
			return domain.Response{Invoice: *inv, Services: lines[inv.ID]}
		}),
	}, nil
}

// compute runs the save-time computation and rejects results that cannot
// be persisted.
func (s *Service) compute(ctx context.Context, req invoicingdomain.ComputeRequest) (invoicingdomain.ComputeResponse, error) {
	req.Trigger = invoicingdomain.TriggerSave
	computed, err := s.invoicing.Compute(ctx, req)
	if err != nil {
		return invoicingdomain.ComputeResponse{}, err
	}
	if !computed.Complete {
		pending := lo.FilterMap(computed.Services, func(item calc.ServiceLineItem, _ int) (string, bool) {
			return item.ServiceID, item.Pending()
		})
		return invoicingdomain.ComputeResponse{}, fmt.Errorf("%w: %s", domain.ErrIncompleteServiceData, strings.Join(pending, ","))
	}
	if computed.HasWarning(calc.WarningDebtLookupFailed) && s.config.Get().BlockOnDebtLookupFailure {
		return invoicingdomain.ComputeResponse{}, domain.ErrDebtLookupFailed
	}
	return computed, nil
}

func (s *Service) lockPeriod(ctx context.Context, orgID, contractID snowflake.ID, month, year int) (func(), error) {
	release, ok, err := s.guard.LockPeriod(ctx, orgID.String(), contractID.String(), month, year)
	if err != nil {
		return release, err
	}
	if !ok {
		return release, domain.ErrPeriodLocked
	}
	return release, nil
}

func applyComputation(invoice *domain.Invoice, computed invoicingdomain.ComputeResponse, dueDays int) {
	totals := computed.Totals
	invoice.RoomID = computed.RoomID
	invoice.InvoiceDate = computed.InvoiceDate
	invoice.DueDate = computed.InvoiceDate.AddDate(0, 0, dueDays)
	invoice.ActualDays = computed.ActualDays
	invoice.Currency = computed.Currency
	invoice.RentAmount = totals.RentAmount
	invoice.ServiceAmount = totals.ServiceAmount
	invoice.PreviousDebt = totals.PreviousDebt
	invoice.TotalAmount = totals.TotalAmount
	invoice.PaidAmount = totals.PaidAmount
	invoice.RemainingAmount = totals.RemainingAmount
	invoice.Status = domain.StatusFor(totals.PaidAmount, totals.TotalAmount)
}

func (s *Service) buildLines(invoice *domain.Invoice, items []calc.ServiceLineItem) []domain.InvoiceService {
	return lo.Map(items, func(item calc.ServiceLineItem, i int) domain.InvoiceService {
		amount := decimal.Zero
		if item.Amount != nil {
			amount = *item.Amount
		}
		return domain.InvoiceService{
			ID:          s.genID.Generate(),
			OrgID:       invoice.OrgID,
			InvoiceID:   invoice.ID,
			ServiceID:   item.ServiceID,
			ServiceName: item.ServiceName,
			Unit:        string(item.Unit),
			Price:       item.Price,
			Quantity:    item.Quantity,
			MeterStart:  item.MeterStart,
			MeterEnd:    item.MeterEnd,
			Usage:       item.Usage,
			Amount:      amount,
			Position:    i,
		}
	})
}

// persistDetails writes service lines and records one meter reading per
// metered line, linked to the invoice. Readings carry the invoice's creation
// time so re-saving an old invoice never makes its readings the newest.
func (s *Service) persistDetails(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, lines []domain.InvoiceService) error {
	ptrs := lo.Map(lines, func(_ domain.InvoiceService, i int) *domain.InvoiceService { return &lines[i] })
	if err := s.lines.WithTrx(tx).BatchCreate(ctx, ptrs); err != nil {
		return err
	}

	recordedAt := invoice.CreatedAt
	for _, line := range lines {
		if line.Unit != string(calc.UnitMeter) || line.MeterStart == nil || line.MeterEnd == nil {
			continue
		}
		invoiceID := invoice.ID
		reading := meterreadingdomain.MeterReading{
			ID:          s.genID.Generate(),
			OrgID:       invoice.OrgID,
			RoomID:      invoice.RoomID,
			ServiceID:   line.ServiceID,
			InvoiceID:   &invoiceID,
			MeterStart:  *line.MeterStart,
			MeterEnd:    *line.MeterEnd,
			PeriodMonth: invoice.PeriodMonth,
			PeriodYear:  invoice.PeriodYear,
			RecordedAt:  recordedAt,
		}
		if err := s.readings.Insert(ctx, tx, &reading); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) loadLines(ctx context.Context, orgID snowflake.ID, invoiceIDs []snowflake.ID) (map[snowflake.ID][]domain.InvoiceService, error) {
	if len(invoiceIDs) == 0 {
		return map[snowflake.ID][]domain.InvoiceService{}, nil
	}
	found, err := s.lines.Find(ctx, &domain.InvoiceService{OrgID: orgID},
		option.WithWhere("invoice_id IN ?", invoiceIDs),
		option.WithSortBy("position", false),
	)
	if err != nil {
		return nil, err
	}
	values := lo.Map(found, func(line *domain.InvoiceService, _ int) domain.InvoiceService { return *line })
	return lo.GroupBy(values, func(line domain.InvoiceService) snowflake.ID { return line.InvoiceID }), nil
}

// mergeStoredInputs fills readings and quantities the request leaves out
// from the lines saved with the invoice. Lines for services no longer on
// the contract are dropped.
func mergeStoredInputs(snapshot calc.ContractSnapshot, inputs []invoicingdomain.ServiceInput, stored []domain.InvoiceService) []invoicingdomain.ServiceInput {
	onContract := lo.SliceToMap(snapshot.Services, func(svc calc.ContractedService) (string, calc.ServiceUnit) {
		return svc.ServiceID, svc.Unit
	})
	byID := lo.KeyBy(stored, func(line domain.InvoiceService) string { return line.ServiceID })

	fill := func(in invoicingdomain.ServiceInput, line domain.InvoiceService) invoicingdomain.ServiceInput {
		switch onContract[line.ServiceID] {
		case calc.UnitMeter:
			if in.MeterStart == nil {
				in.MeterStart = line.MeterStart
			}
			if in.MeterEnd == nil {
				in.MeterEnd = line.MeterEnd
			}
		case calc.UnitQuantity:
			if in.Quantity == nil && line.Quantity > 0 {
				quantity := line.Quantity
				in.Quantity = &quantity
			}
		}
		return in
	}

	merged := make([]invoicingdomain.ServiceInput, 0, len(stored)+len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		in.ServiceID = strings.TrimSpace(in.ServiceID)
		seen[in.ServiceID] = struct{}{}
		if line, ok := byID[in.ServiceID]; ok {
			in = fill(in, line)
		}
		merged = append(merged, in)
	}
	for _, line := range stored {
		if _, ok := seen[line.ServiceID]; ok {
			continue
		}
		if _, ok := onContract[line.ServiceID]; !ok {
			continue
		}
		merged = append(merged, fill(invoicingdomain.ServiceInput{ServiceID: line.ServiceID}, line))
	}
	return merged
}

func (s *Service) numberTemplate(ctx context.Context) string {
	if value, ok := s.lookupSetting(ctx, settingdomain.KeyNumberTemplate); ok {
		return value
	}
	return invoiceformat.DefaultInvoiceNumberTemplate
}

func (s *Service) nextNumber(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, template string, issuedAt time.Time) (string, error) {
	var seq int64
	if strings.Contains(template, "{SEQ") {
		count, err := s.repo.CountByOrg(ctx, tx, orgID)
		if err != nil {
			return "", err
		}
		seq = count + 1
	}
	number, err := invoiceformat.FormatInvoiceNumber(template, invoiceformat.NumberInput{
		IssuedAt: issuedAt,
		Seq:      seq,
		ID:       ulid.Make(),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidNumberTemplate, err)
	}
	return number, nil
}

func (s *Service) dueDays(ctx context.Context) int {
	days := s.config.Get().DueDays
	if value, ok := s.lookupSetting(ctx, settingdomain.KeyDueDays); ok {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			days = parsed
		}
	}
	return days
}

func (s *Service) lookupSetting(ctx context.Context, key string) (string, bool) {
	if s.settings == nil {
		return "", false
	}
	value, ok, err := s.settings.Lookup(ctx, key)
	if err != nil {
		obslogger.WithContext(ctx, s.log).Warn("setting lookup failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return value, ok
}

func (s *Service) recordSaveFailure(ctx context.Context, orgID snowflake.ID, operation string, err error) {
	s.invoicingMetrics.IncSaveError(err)
	s.metrics.RecordInvoiceSaved(ctx, orgID.String(), operation, "rejected")
	if errors.Is(err, domain.ErrIncompleteServiceData) || errors.Is(err, domain.ErrPeriodInvoiced) {
		return
	}
	obslogger.WithContext(ctx, s.log).Warn("invoice save failed",
		zap.String("operation", operation),
		zap.Bool("retryable", metrics.IsInvoicingErrorRetryable(err)),
		zap.Error(err),
	)
}

func (s *Service) resolveIDs(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, 0, domain.ErrInvalidOrganization
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return 0, 0, domain.ErrInvalidID
	}
	return orgID, invoiceID, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("zero id")
	}
	return id, nil
}
