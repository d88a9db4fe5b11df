package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	KeyRoundingMode   = "invoice.rounding_mode"
	KeyDueDays        = "invoice.due_days"
	KeyNumberTemplate = "invoice.number_template"
)

// Setting is one per-organization key/value override.
type Setting struct {
	OrgID     snowflake.ID `json:"organization_id" gorm:"column:org_id;primaryKey"`
	Key       string       `json:"key" gorm:"column:setting_key;type:varchar(64);primaryKey"`
	Value     string       `json:"value" gorm:"type:text;not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Setting) TableName() string { return "settings" }
