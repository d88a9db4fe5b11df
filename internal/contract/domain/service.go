package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rentflow/internal/invoicing/calc"
	"github.com/smallbiznis/rentflow/pkg/db/pagination"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Response, error)
	GetByID(ctx context.Context, id string) (Response, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Terminate(ctx context.Context, id string) (Response, error)
	// Snapshot returns the read-only view invoice computation works from.
	Snapshot(ctx context.Context, id string) (calc.ContractSnapshot, error)
}

type CreateRequest struct {
	RoomID      string                 `json:"room_id"`
	TenantName  string                 `json:"tenant_name"`
	MonthlyRent decimal.Decimal        `json:"monthly_rent"`
	StartDate   time.Time              `json:"start_date"`
	EndDate     *time.Time             `json:"end_date,omitempty"`
	Services    []ServiceRequest       `json:"services"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type ServiceRequest struct {
	// ServiceID is optional; it defaults to the slug of Name.
	ServiceID string          `json:"service_id,omitempty"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity,omitempty"`
}

type ListRequest struct {
	RoomID    string
	Status    string
	PageToken string
	PageSize  int
}

type ListFilter struct {
	RoomID string
	Status string
}

type Response struct {
	Contract
	Services []ContractService `json:"services"`
}

type ListResponse struct {
	pagination.PageInfo
	Contracts []Response `json:"contracts"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("contract_not_found")
	ErrInvalidRoom         = errors.New("invalid_room_id")
	ErrInvalidTenant       = errors.New("invalid_tenant_name")
	ErrInvalidRent         = errors.New("invalid_monthly_rent")
	ErrInvalidTerm         = errors.New("invalid_contract_term")
	ErrInvalidServiceName  = errors.New("invalid_service_name")
	ErrInvalidServiceUnit  = errors.New("invalid_service_unit")
	ErrInvalidServicePrice = errors.New("invalid_service_price")
	ErrInvalidQuantity     = errors.New("invalid_service_quantity")
	ErrDuplicateService    = errors.New("duplicate_service")
	ErrAlreadyTerminated   = errors.New("contract_already_terminated")
)
