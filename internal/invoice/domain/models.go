// Package domain contains persistence models for rent invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// InvoiceStatus tracks how much of an invoice has been paid.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// Invoice is a saved monthly rent invoice for a contract.
type Invoice struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	OrgID           snowflake.ID      `json:"organization_id" gorm:"column:org_id;not null;index;uniqueIndex:ux_invoices_number,priority:1;uniqueIndex:ux_invoices_contract_period,priority:1"`
	ContractID      snowflake.ID      `json:"contract_id" gorm:"not null;index;uniqueIndex:ux_invoices_contract_period,priority:2"`
	RoomID          string            `json:"room_id" gorm:"type:varchar(64);not null"`
	InvoiceNumber   string            `json:"invoice_number" gorm:"type:varchar(64);not null;uniqueIndex:ux_invoices_number,priority:2"`
	InvoiceDate     time.Time         `json:"invoice_date" gorm:"type:date;not null"`
	DueDate         time.Time         `json:"due_date" gorm:"type:date;not null"`
	PeriodMonth     int               `json:"period_month" gorm:"not null;uniqueIndex:ux_invoices_contract_period,priority:4"`
	PeriodYear      int               `json:"period_year" gorm:"not null;uniqueIndex:ux_invoices_contract_period,priority:3"`
	ActualDays      *int              `json:"actual_days,omitempty"`
	Currency        string            `json:"currency" gorm:"type:varchar(8);not null"`
	RentAmount      decimal.Decimal   `json:"rent_amount" gorm:"type:numeric(20,4);not null"`
	ServiceAmount   decimal.Decimal   `json:"service_amount" gorm:"type:numeric(20,4);not null"`
	PreviousDebt    decimal.Decimal   `json:"previous_debt" gorm:"type:numeric(20,4);not null"`
	TotalAmount     decimal.Decimal   `json:"total_amount" gorm:"type:numeric(20,4);not null"`
	PaidAmount      decimal.Decimal   `json:"paid_amount" gorm:"type:numeric(20,4);not null"`
	RemainingAmount decimal.Decimal   `json:"remaining_amount" gorm:"type:numeric(20,4);not null"`
	Status          InvoiceStatus     `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time         `json:"updated_at" gorm:"not null"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceService is one computed service line of a saved invoice.
type InvoiceService struct {
	ID          snowflake.ID     `json:"id" gorm:"primaryKey"`
	OrgID       snowflake.ID     `json:"organization_id" gorm:"column:org_id;not null;index"`
	InvoiceID   snowflake.ID     `json:"invoice_id" gorm:"not null;index"`
	ServiceID   string           `json:"service_id" gorm:"type:varchar(128);not null"`
	ServiceName string           `json:"service_name" gorm:"type:text;not null"`
	Unit        string           `json:"unit" gorm:"type:varchar(16);not null"`
	Price       decimal.Decimal  `json:"price" gorm:"type:numeric(20,4);not null"`
	Quantity    int              `json:"quantity" gorm:"not null;default:0"`
	MeterStart  *decimal.Decimal `json:"meter_start,omitempty" gorm:"type:numeric(20,4)"`
	MeterEnd    *decimal.Decimal `json:"meter_end,omitempty" gorm:"type:numeric(20,4)"`
	Usage       *decimal.Decimal `json:"usage,omitempty" gorm:"type:numeric(20,4)"`
	Amount      decimal.Decimal  `json:"amount" gorm:"type:numeric(20,4);not null"`
	Position    int              `json:"-" gorm:"not null;default:0"`
}

func (InvoiceService) TableName() string { return "invoice_services" }

// StatusFor derives the payment status from the paid and total amounts.
func StatusFor(paid, total decimal.Decimal) InvoiceStatus {
	switch {
	case paid.IsPositive() && paid.GreaterThanOrEqual(total):
		return InvoiceStatusPaid
	case total.LessThanOrEqual(decimal.Zero):
		return InvoiceStatusPaid
	case paid.IsPositive():
		return InvoiceStatusPartial
	default:
		return InvoiceStatusPending
	}
}
