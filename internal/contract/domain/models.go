package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusActive     = "active"
	StatusTerminated = "terminated"
)

// Contract is a lease of one room to one tenant.
type Contract struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index:idx_contracts_org_room,priority:1"`
	RoomID      string            `json:"room_id" gorm:"type:varchar(64);not null;index:idx_contracts_org_room,priority:2"`
	TenantName  string            `json:"tenant_name" gorm:"type:text;not null"`
	MonthlyRent decimal.Decimal   `json:"monthly_rent" gorm:"type:numeric(20,4);not null"`
	StartDate   time.Time         `json:"start_date" gorm:"type:date;not null"`
	EndDate     *time.Time        `json:"end_date,omitempty" gorm:"type:date"`
	Status      string            `json:"status" gorm:"type:varchar(16);not null;default:active"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null"`
}

func (Contract) TableName() string { return "contracts" }

// ContractService is one service line attached to a contract. ServiceID is
// a slug that stays stable for the room across contracts, so meter
// readings recorded under one contract carry over to the next.
type ContractService struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID    `json:"organization_id" gorm:"column:org_id;not null"`
	ContractID  snowflake.ID    `json:"contract_id" gorm:"not null;uniqueIndex:ux_contract_services_contract_service,priority:1"`
	ServiceID   string          `json:"service_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_contract_services_contract_service,priority:2"`
	ServiceName string          `json:"service_name" gorm:"type:text;not null"`
	Unit        string          `json:"unit" gorm:"type:text;not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(20,4);not null"`
	Quantity    int             `json:"quantity" gorm:"not null;default:1"`
	Position    int             `json:"position" gorm:"not null;default:0"`
}

func (ContractService) TableName() string { return "contract_services" }
