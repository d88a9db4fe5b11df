// Package domain defines the invoicing orchestrator contract and the ports
// it reads from.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
)

const (
	TriggerPreview = "preview"
	TriggerSave    = "save"
)

// Service computes invoice totals for a contract period without persisting anything.
type Service interface {
	Compute(ctx context.Context, req ComputeRequest) (ComputeResponse, error)
}

type ComputeRequest struct {
	ContractID  string           `json:"contract_id" validate:"required"`
	Month       int              `json:"month" validate:"min=1,max=12"`
	Year        int              `json:"year" validate:"min=1970,max=9999"`
	ActualDays  *int             `json:"actual_days,omitempty" validate:"omitempty,min=0"`
	InvoiceDate *time.Time       `json:"invoice_date,omitempty"`
	PaidAmount  *decimal.Decimal `json:"paid_amount,omitempty"`
	Services    []ServiceInput   `json:"services,omitempty" validate:"dive"`
	// ExcludeInvoiceID keeps an invoice being edited out of its own debt.
	ExcludeInvoiceID string `json:"exclude_invoice_id,omitempty"`
	// DraftKey identifies an editing session. When set, a result computed
	// for an older request of the same session is discarded.
	DraftKey string `json:"draft_key,omitempty" validate:"omitempty,max=128"`
	Trigger  string `json:"-"`
}

// ServiceInput overrides contract defaults for one service line.
type ServiceInput struct {
	ServiceID  string           `json:"service_id" validate:"required"`
	Quantity   *int             `json:"quantity,omitempty"`
	MeterStart *decimal.Decimal `json:"meter_start,omitempty"`
	MeterEnd   *decimal.Decimal `json:"meter_end,omitempty"`
}

type ComputeResponse struct {
	calc.Result
	ContractID  string        `json:"contract_id"`
	RoomID      string        `json:"room_id"`
	Month       int           `json:"month"`
	Year        int           `json:"year"`
	ActualDays  *int          `json:"actual_days,omitempty"`
	InvoiceDate time.Time     `json:"invoice_date"`
	Currency    string        `json:"currency"`
	Rounding    calc.Rounding `json:"rounding"`
}

// ContractSource resolves the contract a computation is based on.
type ContractSource interface {
	Snapshot(ctx context.Context, contractID string) (calc.ContractSnapshot, error)
}

// InvoiceHistory lists the persisted invoices of a contract.
type InvoiceHistory interface {
	ListPriorInvoices(ctx context.Context, contractID string) ([]calc.PriorInvoice, error)
}

// MeterReadingSource returns the meter_end of a room service for the latest
// period before month/year, or nil when there is none.
type MeterReadingSource interface {
	LatestMeterEnd(ctx context.Context, roomID, serviceID string, month, year int) (*decimal.Decimal, error)
}

// SettingSource exposes per-organization overrides.
type SettingSource interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
}

var (
	ErrInvalidRequest      = errors.New("invalid_request")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrUnknownService      = errors.New("unknown_service")
	ErrStaleResult         = errors.New("stale_result")
)
