package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	"github.com/smallbiznis/rentflow/internal/meterreading/domain"
	"github.com/smallbiznis/rentflow/internal/observability/metrics"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultListLimit = 24

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("meterreading.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Record(ctx context.Context, req domain.RecordRequest) (domain.MeterReading, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.MeterReading{}, domain.ErrInvalidOrganization
	}
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		return domain.MeterReading{}, domain.ErrInvalidRoom
	}
	serviceID := strings.TrimSpace(req.ServiceID)
	if serviceID == "" {
		return domain.MeterReading{}, domain.ErrInvalidService
	}
	if _, err := calc.DaysIn(req.Month, req.Year); err != nil {
		return domain.MeterReading{}, err
	}

	start := decimal.Zero
	if req.MeterStart != nil {
		start = *req.MeterStart
	} else {
		previous, err := s.repo.FindLatestBefore(ctx, s.db, orgID, roomID, serviceID, req.Month, req.Year)
		if err != nil {
			return domain.MeterReading{}, err
		}
		if previous != nil {
			start = previous.MeterEnd
		}
	}
	if req.MeterEnd.LessThan(start) {
		return domain.MeterReading{}, &calc.MeterReadingError{
			ServiceID:  serviceID,
			MeterStart: start,
			MeterEnd:   req.MeterEnd,
		}
	}

	reading := domain.MeterReading{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		RoomID:      roomID,
		ServiceID:   serviceID,
		MeterStart:  start,
		MeterEnd:    req.MeterEnd,
		PeriodMonth: req.Month,
		PeriodYear:  req.Year,
		RecordedAt:  s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &reading); err != nil {
		return domain.MeterReading{}, err
	}
	s.metrics.RecordMeterReading(ctx, orgID.String(), serviceID)
	return reading, nil
}

func (s *Service) Latest(ctx context.Context, roomID, serviceID string) (domain.MeterReading, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.MeterReading{}, domain.ErrInvalidOrganization
	}
	reading, err := s.repo.FindLatest(ctx, s.db, orgID, strings.TrimSpace(roomID), strings.TrimSpace(serviceID))
	if err != nil {
		return domain.MeterReading{}, err
	}
	if reading == nil {
		return domain.MeterReading{}, domain.ErrNotFound
	}
	return *reading, nil
}

func (s *Service) LatestMeterEnd(ctx context.Context, roomID, serviceID string, month, year int) (*decimal.Decimal, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	reading, err := s.repo.FindLatestBefore(ctx, s.db, orgID, strings.TrimSpace(roomID), strings.TrimSpace(serviceID), month, year)
	if err != nil || reading == nil {
		return nil, err
	}
	end := reading.MeterEnd
	return &end, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.MeterReading, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		return nil, domain.ErrInvalidRoom
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.repo.List(ctx, s.db, orgID, roomID, strings.TrimSpace(req.ServiceID), limit)
}
