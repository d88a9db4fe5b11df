package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/rentflow/internal/cache"
	"github.com/smallbiznis/rentflow/internal/clock"
	"github.com/smallbiznis/rentflow/internal/observability/metrics"
	"github.com/smallbiznis/rentflow/internal/orgcontext"
	"github.com/smallbiznis/rentflow/internal/setting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const settingsTTL = 5 * time.Minute

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Cache   cache.Store
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	cache   cache.Store
	clock   clock.Clock
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("setting.service"),
		repo:    p.Repo,
		cache:   p.Cache,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Get(ctx context.Context, key string) (domain.Setting, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Setting{}, domain.ErrInvalidOrganization
	}
	settings, err := s.load(ctx, orgID)
	if err != nil {
		return domain.Setting{}, err
	}
	setting, found := lo.Find(settings, func(item domain.Setting) bool {
		return item.Key == strings.TrimSpace(key)
	})
	if !found {
		return domain.Setting{}, domain.ErrNotFound
	}
	return setting, nil
}

func (s *Service) Lookup(ctx context.Context, key string) (string, bool, error) {
	setting, err := s.Get(ctx, key)
	switch {
	case err == nil:
		return setting.Value, true, nil
	case errors.Is(err, domain.ErrNotFound):
		return "", false, nil
	default:
		return "", false, err
	}
}

func (s *Service) Set(ctx context.Context, key, value string) (domain.Setting, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.Setting{}, domain.ErrInvalidOrganization
	}
	key = strings.TrimSpace(key)
	normalized, err := domain.Normalize(key, value)
	if err != nil {
		return domain.Setting{}, err
	}

	setting := domain.Setting{
		OrgID:     orgID,
		Key:       key,
		Value:     normalized,
		UpdatedAt: s.clock.Now(),
	}
	if err := s.repo.Upsert(ctx, s.db, &setting); err != nil {
		return domain.Setting{}, err
	}
	s.invalidate(ctx, orgID)
	s.metrics.RecordSettingChange(ctx, orgID.String(), key)
	s.log.Info("setting updated",
		zap.String("org_id", orgID.String()),
		zap.String("key", key),
		zap.String("value", normalized),
	)
	return setting, nil
}

func (s *Service) Delete(ctx context.Context, key string) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidOrganization
	}
	key = strings.TrimSpace(key)
	if !lo.Contains(domain.KnownKeys(), key) {
		return domain.ErrUnknownKey
	}
	if err := s.repo.Delete(ctx, s.db, orgID, key); err != nil {
		return err
	}
	s.invalidate(ctx, orgID)
	s.metrics.RecordSettingChange(ctx, orgID.String(), key)
	return nil
}

func (s *Service) List(ctx context.Context) ([]domain.Setting, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	return s.load(ctx, orgID)
}

func (s *Service) load(ctx context.Context, orgID snowflake.ID) ([]domain.Setting, error) {
	key := cacheKey(orgID)
	if s.cache != nil {
		cached, ok, err := cache.GetJSON[[]domain.Setting](ctx, s.cache, key)
		if err != nil {
			s.log.Warn("settings cache read failed", zap.String("org_id", orgID.String()), zap.Error(err))
		}
		if ok {
			return cached, nil
		}
	}

	settings, err := s.repo.List(ctx, s.db, orgID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		settings = []domain.Setting{}
	}
	if s.cache != nil {
		if err := cache.SetJSON(ctx, s.cache, key, settings, settingsTTL); err != nil {
			s.log.Warn("settings cache write failed", zap.String("org_id", orgID.String()), zap.Error(err))
		}
	}
	return settings, nil
}

func (s *Service) invalidate(ctx context.Context, orgID snowflake.ID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKey(orgID)); err != nil {
		s.log.Warn("settings cache invalidation failed", zap.String("org_id", orgID.String()), zap.Error(err))
	}
}

func cacheKey(orgID snowflake.ID) string {
	return cache.Key("settings", orgID.String())
}
