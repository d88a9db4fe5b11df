package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	invoicingdomain "github.com/smallbiznis/rentflow/internal/invoicing/domain"
	"github.com/smallbiznis/rentflow/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req SaveRequest) (Response, error)
	Update(ctx context.Context, id string, req SaveRequest) (Response, error)
	RecordPayment(ctx context.Context, id string, req PaymentRequest) (Response, error)
	GetByID(ctx context.Context, id string) (Response, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

// SaveRequest carries the same inputs as a preview. The contract and period
// of an existing invoice cannot change on update.
type SaveRequest struct {
	ContractID  string                         `json:"contract_id"`
	Month       int                            `json:"month"`
	Year        int                            `json:"year"`
	ActualDays  *int                           `json:"actual_days,omitempty"`
	InvoiceDate *time.Time                     `json:"invoice_date,omitempty"`
	PaidAmount  *decimal.Decimal               `json:"paid_amount,omitempty"`
	Services    []invoicingdomain.ServiceInput `json:"services,omitempty"`
	Metadata    map[string]any                 `json:"metadata,omitempty"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type ListRequest struct {
	ContractID string
	Status     string
	PageToken  string
	PageSize   int
}

type Response struct {
	Invoice
	Services []InvoiceService `json:"services"`
	Warnings []calc.Warning   `json:"warnings,omitempty"`
}

type ListResponse struct {
	pagination.PageInfo
	Invoices []Response `json:"invoices"`
}

var (
	ErrInvalidOrganization   = errors.New("invalid_organization")
	ErrInvalidID             = errors.New("invalid_invoice_id")
	ErrInvalidContract       = errors.New("invalid_contract_id")
	ErrNotFound              = errors.New("invoice_not_found")
	ErrPeriodInvoiced        = errors.New("period_already_invoiced")
	ErrPeriodLocked          = errors.New("period_locked")
	ErrIncompleteServiceData = errors.New("incomplete_service_data")
	ErrDebtLookupFailed      = errors.New("debt_lookup_failed")
	ErrInvalidPayment        = errors.New("invalid_payment_amount")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvalidNumberTemplate = errors.New("invalid_number_template")
)
