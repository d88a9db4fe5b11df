package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, setting *Setting) error
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]Setting, error)
	Delete(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) error
}
