package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, contract *Contract) error
	InsertServices(ctx context.Context, db *gorm.DB, services []ContractService) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Contract, error)
	ListServices(ctx context.Context, db *gorm.DB, orgID snowflake.ID, contractIDs []snowflake.ID) ([]ContractService, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, filter ListFilter, page pagination.Pagination) ([]*Contract, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID, status string, endDate *time.Time, updatedAt time.Time) error
}
