package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/meterreading/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, reading *domain.MeterReading) error {
	return db.WithContext(ctx).Create(reading).Error
}

const latestFirst = "period_year desc, period_month desc, recorded_at desc, id desc"

func (r *repo) FindLatest(ctx context.Context, db *gorm.DB, orgID snowflake.ID, roomID, serviceID string) (*domain.MeterReading, error) {
	return r.findFirst(ctx, db.
		Where("org_id = ? AND room_id = ? AND service_id = ?", orgID, roomID, serviceID))
}

func (r *repo) FindLatestBefore(ctx context.Context, db *gorm.DB, orgID snowflake.ID, roomID, serviceID string, month, year int) (*domain.MeterReading, error) {
	return r.findFirst(ctx, db.
		Where("org_id = ? AND room_id = ? AND service_id = ?", orgID, roomID, serviceID).
		Where("period_year < ? OR (period_year = ? AND period_month < ?)", year, year, month))
}

func (r *repo) findFirst(ctx context.Context, stmt *gorm.DB) (*domain.MeterReading, error) {
	var reading domain.MeterReading
	err := stmt.WithContext(ctx).
		Order(latestFirst).
		Limit(1).
		Find(&reading).Error
	if err != nil {
		return nil, err
	}
	if reading.ID == 0 {
		return nil, nil
	}
	return &reading, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID snowflake.ID, roomID, serviceID string, limit int) ([]domain.MeterReading, error) {
	var readings []domain.MeterReading
	stmt := db.WithContext(ctx).
		Where("org_id = ? AND room_id = ?", orgID, roomID)
	if serviceID != "" {
		stmt = stmt.Where("service_id = ?", serviceID)
	}
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	err := stmt.Order(latestFirst).Find(&readings).Error
	if err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *repo) DeleteByInvoice(ctx context.Context, db *gorm.DB, orgID, invoiceID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM meter_readings WHERE org_id = ? AND invoice_id = ?`,
		orgID,
		invoiceID,
	).Error
}
