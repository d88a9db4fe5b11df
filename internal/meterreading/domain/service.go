package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Service interface {
	Record(ctx context.Context, req RecordRequest) (MeterReading, error)
	Latest(ctx context.Context, roomID, serviceID string) (MeterReading, error)
	List(ctx context.Context, req ListRequest) ([]MeterReading, error)
	// LatestMeterEnd returns the meter_end of the latest period before
	// month/year, or nil when the room has no earlier reading for the service.
	LatestMeterEnd(ctx context.Context, roomID, serviceID string, month, year int) (*decimal.Decimal, error)
}

type RecordRequest struct {
	RoomID    string `json:"room_id"`
	ServiceID string `json:"service_id"`
	// MeterStart defaults to the meter_end of the latest earlier period, or zero.
	MeterStart *decimal.Decimal `json:"meter_start,omitempty"`
	MeterEnd   decimal.Decimal  `json:"meter_end"`
	Month      int              `json:"month"`
	Year       int              `json:"year"`
}

type ListRequest struct {
	RoomID    string
	ServiceID string
	Limit     int
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidRoom         = errors.New("invalid_room_id")
	ErrInvalidService      = errors.New("invalid_service_id")
	ErrNotFound            = errors.New("meter_reading_not_found")
)
