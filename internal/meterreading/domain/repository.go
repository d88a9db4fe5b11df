package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reading *MeterReading) error
	// FindLatest returns nil, nil when the room has no reading for the service.
	FindLatest(ctx context.Context, db *gorm.DB, orgID snowflake.ID, roomID, serviceID string) (*MeterReading, error)
	// FindLatestBefore only considers readings billed for a period strictly
	// earlier than month/year.
	FindLatestBefore(ctx context.Context, db *gorm.DB, orgID snowflake.ID, roomID, serviceID string, month, year int) (*MeterReading, error)
	List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, roomID, serviceID string, limit int) ([]MeterReading, error)
	DeleteByInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) error
}
