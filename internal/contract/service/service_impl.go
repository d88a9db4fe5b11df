package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/samber/lo"
	"github.com/smallbiznis/rentflow/internal/cache"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/contract/domain"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
	"github.com/smallbiznis/rentflow/pkg/db/option"
	"github.com/smallbiznis/rentflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const snapshotTTL = 10 * time.Minute

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Cache cache.Store
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	cache cache.Store
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("contract.service"),
		genID: p.GenID,
		repo:  p.Repo,
		cache: p.Cache,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Response, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Response{}, domain.ErrInvalidOrganization
	}

	roomID := strings.TrimSpace(req.RoomID)
	if roomID == "" {
		return domain.Response{}, domain.ErrInvalidRoom
	}
	tenant := strings.TrimSpace(req.TenantName)
	if tenant == "" {
		return domain.Response{}, domain.ErrInvalidTenant
	}
	if req.MonthlyRent.IsNegative() {
		return domain.Response{}, domain.ErrInvalidRent
	}
	if req.StartDate.IsZero() {
		return domain.Response{}, domain.ErrInvalidTerm
	}
	startDate := calc.DateOnly(req.StartDate)
	var endDate *time.Time
	if req.EndDate != nil {
		end := calc.DateOnly(*req.EndDate)
		if end.Before(startDate) {
			return domain.Response{}, domain.ErrInvalidTerm
		}
		endDate = &end
	}

	now := s.clock.Now()
	contract := domain.Contract{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		RoomID:      roomID,
		TenantName:  tenant,
		MonthlyRent: req.MonthlyRent,
		StartDate:   startDate,
		EndDate:     endDate,
		Status:      domain.StatusActive,
		Metadata:    datatypes.JSONMap(req.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	services, err := s.buildServices(orgID, contract.ID, req.Services)
	if err != nil {
		return domain.Response{}, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &contract); err != nil {
			return err
		}
		return s.repo.InsertServices(ctx, tx, services)
	})
	if err != nil {
		return domain.Response{}, err
	}

	s.log.Info("contract created",
		zap.String("contract_id", contract.ID.String()),
		zap.String("room_id", roomID),
		zap.Int("services", len(services)),
	)
	return domain.Response{Contract: contract, Services: services}, nil
}

func (s *Service) buildServices(orgID, contractID snowflake.ID, reqs []domain.ServiceRequest) ([]domain.ContractService, error) {
	services := make([]domain.ContractService, 0, len(reqs))
	seen := make(map[string]struct{}, len(reqs))
	for i, item := range reqs {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return nil, domain.ErrInvalidServiceName
		}
		serviceID := slug.Make(strings.TrimSpace(item.ServiceID))
		if serviceID == "" {
			serviceID = slug.Make(name)
		}
		if serviceID == "" {
			return nil, domain.ErrInvalidServiceName
		}
		if _, dup := seen[serviceID]; dup {
			return nil, domain.ErrDuplicateService
		}
		seen[serviceID] = struct{}{}

		unit := calc.ServiceUnit(strings.ToLower(strings.TrimSpace(item.Unit)))
		if !unit.Valid() {
			return nil, domain.ErrInvalidServiceUnit
		}
		if item.Price.IsNegative() {
			return nil, domain.ErrInvalidServicePrice
		}
		quantity := item.Quantity
		switch unit {
		case calc.UnitQuantity:
			if quantity == 0 {
				quantity = 1
			}
			if quantity < 1 {
				return nil, domain.ErrInvalidQuantity
			}
		case calc.UnitMeter:
			quantity = 0
		}

		services = append(services, domain.ContractService{
			ID:          s.genID.Generate(),
			OrgID:       orgID,
			ContractID:  contractID,
			ServiceID:   serviceID,
			ServiceName: name,
			Unit:        string(unit),
			Price:       item.Price,
			Quantity:    quantity,
			Position:    i,
		})
	}
	return services, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Response, error) {
	orgID, contractID, err := s.resolveIDs(ctx, id)
	if err != nil {
		return domain.Response{}, err
	}

	contract, err := s.repo.FindByID(ctx, s.db, orgID, contractID)
	if err != nil {
		return domain.Response{}, err
	}
	if contract == nil {
		return domain.Response{}, domain.ErrNotFound
	}
	services, err := s.repo.ListServices(ctx, s.db, orgID, []snowflake.ID{contractID})
	if err != nil {
		return domain.Response{}, err
	}
	return domain.Response{Contract: *contract, Services: services}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidOrganization
	}

	pageSize := option.PageSize(req.PageSize, option.DefaultPageSize)
	items, err := s.repo.List(ctx, s.db, orgID, domain.ListFilter{
		RoomID: strings.TrimSpace(req.RoomID),
		Status: strings.TrimSpace(req.Status),
	}, pagination.Pagination{PageToken: req.PageToken, PageSize: pageSize})
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(c *domain.Contract) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        c.ID.String(),
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})

	ids := lo.Map(items, func(c *domain.Contract, _ int) snowflake.ID { return c.ID })
	services, err := s.repo.ListServices(ctx, s.db, orgID, ids)
	if err != nil {
		return domain.ListResponse{}, err
	}
	byContract := lo.GroupBy(services, func(svc domain.ContractService) snowflake.ID { return svc.ContractID })

	resp := domain.ListResponse{
		PageInfo: *pageInfo,
		Contracts: lo.Map(items, func(c *domain.Contract, _ int) domain.Response {
			return domain.Response{Contract: *c, Services: byContract[c.ID]}
		}),
	}
	return resp, nil
}

func (s *Service) Terminate(ctx context.Context, id string) (domain.Response, error) {
	current, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Response{}, err
	}
	if current.Status == domain.StatusTerminated {
		return domain.Response{}, domain.ErrAlreadyTerminated
	}

	now := s.clock.Now()
	endDate := current.EndDate
	if endDate == nil {
		today := calc.DateOnly(now)
		endDate = &today
	}
	if err := s.repo.UpdateStatus(ctx, s.db, current.OrgID, current.ID, domain.StatusTerminated, endDate, now); err != nil {
		return domain.Response{}, err
	}
	s.invalidateSnapshot(ctx, current.OrgID, current.ID)

	current.Status = domain.StatusTerminated
	current.EndDate = endDate
	current.UpdatedAt = now
	return current, nil
}

func (s *Service) Snapshot(ctx context.Context, id string) (calc.ContractSnapshot, error) {
	orgID, contractID, err := s.resolveIDs(ctx, id)
	if err != nil {
		return calc.ContractSnapshot{}, err
	}

	key := snapshotKey(orgID, contractID)
	if s.cache != nil {
		cached, ok, err := cache.GetJSON[calc.ContractSnapshot](ctx, s.cache, key)
		if err != nil {
			s.log.Warn("contract snapshot cache read failed", zap.String("contract_id", id), zap.Error(err))
		}
		if ok {
			return cached, nil
		}
	}

	resp, err := s.GetByID(ctx, id)
	if err != nil {
		return calc.ContractSnapshot{}, err
	}
	snapshot := ToSnapshot(resp)

	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, snapshot, snapshotTTL); err != nil {
			s.log.Warn("contract snapshot cache write failed", zap.String("contract_id", id), zap.Error(err))
		}
	}
	return snapshot, nil
}

// ToSnapshot projects a stored contract onto the computation input.
func ToSnapshot(resp domain.Response) calc.ContractSnapshot {
	return calc.ContractSnapshot{
		ContractID:  resp.ID.String(),
		RoomID:      resp.RoomID,
		MonthlyRent: resp.MonthlyRent,
		Services: lo.Map(resp.Services, func(svc domain.ContractService, _ int) calc.ContractedService {
			return calc.ContractedService{
				ServiceID:   svc.ServiceID,
				ServiceName: svc.ServiceName,
				Unit:        calc.ServiceUnit(svc.Unit),
				Price:       svc.Price,
				Quantity:    svc.Quantity,
			}
		}),
	}
}

func (s *Service) invalidateSnapshot(ctx context.Context, orgID, contractID snowflake.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, snapshotKey(orgID, contractID)); err != nil {
		s.log.Warn("contract snapshot invalidation failed", zap.String("contract_id", contractID.String()), zap.Error(err))
	}
}

func (s *Service) resolveIDs(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return 0, 0, domain.ErrInvalidOrganization
	}
	contractID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || contractID == 0 {
		return 0, 0, domain.ErrInvalidID
	}
	return orgID, contractID, nil
}

func snapshotKey(orgID, contractID snowflake.ID) string {
	return cache.Key("contract_snapshot", orgID.String(), contractID.String())
}
