package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// MeterReading is one start/end pair for a metered service in a room.
type MeterReading struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID    `json:"organization_id" gorm:"column:org_id;not null;index:idx_meter_readings_lookup,priority:1"`
	RoomID      string          `json:"room_id" gorm:"type:varchar(64);not null;index:idx_meter_readings_lookup,priority:2"`
	ServiceID   string          `json:"service_id" gorm:"type:varchar(128);not null;index:idx_meter_readings_lookup,priority:3"`
	InvoiceID   *snowflake.ID   `json:"invoice_id,omitempty" gorm:"index"`
	MeterStart  decimal.Decimal `json:"meter_start" gorm:"type:numeric(20,4);not null"`
	MeterEnd    decimal.Decimal `json:"meter_end" gorm:"type:numeric(20,4);not null"`
	PeriodMonth int             `json:"period_month" gorm:"not null;index:idx_meter_readings_lookup,priority:5"`
	PeriodYear  int             `json:"period_year" gorm:"not null;index:idx_meter_readings_lookup,priority:4"`
	RecordedAt  time.Time       `json:"recorded_at" gorm:"not null;index:idx_meter_readings_lookup,priority:6"`
}

func (MeterReading) TableName() string { return "meter_readings" }
