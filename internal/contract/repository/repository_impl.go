package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/contract/domain"
	"github.com/smallbiznis/rentflow/pkg/db/option"
	"github.com/smallbiznis/rentflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, contract *domain.Contract) error {
	return db.WithContext(ctx).Create(contract).Error
}

func (r *repo) InsertServices(ctx context.Context, db *gorm.DB, services []domain.ContractService) error {
	if len(services) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&services).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Contract, error) {
	var contract domain.Contract
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&contract).Error
	if err != nil {
		return nil, err
	}
	if contract.ID == 0 {
		return nil, nil
	}
	return &contract, nil
}

func (r *repo) ListServices(ctx context.Context, db *gorm.DB, orgID snowflake.ID, contractIDs []snowflake.ID) ([]domain.ContractService, error) {
	if len(contractIDs) == 0 {
		return nil, nil
	}
	var services []domain.ContractService
	err := db.WithContext(ctx).
		Where("org_id = ? AND contract_id IN ?", orgID, contractIDs).
		Order("contract_id, position, id").
		Find(&services).Error
	if err != nil {
		return nil, err
	}
	return services, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter domain.ListFilter, page pagination.Pagination) ([]*domain.Contract, error) {
	var contracts []*domain.Contract
	stmt := db.WithContext(ctx).
		Model(&domain.Contract{}).
		Where("org_id = ?", orgID)
	if filter.RoomID != "" {
		stmt = stmt.Where("room_id = ?", filter.RoomID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("id desc").
		Find(&contracts).Error
	if err != nil {
		return nil, err
	}
	return contracts, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, status string, endDate *time.Time, updatedAt time.Time) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": updatedAt,
	}
	if endDate != nil {
		updates["end_date"] = *endDate
	}
	return db.WithContext(ctx).
		Model(&domain.Contract{}).
		Where("org_id = ? AND id = ?", orgID, id).
		Updates(updates).Error
}
