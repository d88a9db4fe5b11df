package rls

import (
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// WithOrg scopes the current postgres transaction to one organization so
// row-level security policies on org_id apply. Other dialects have no
// session GUCs and are left untouched.
func WithOrg(tx *gorm.DB, orgID snowflake.ID) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT set_config('app.current_org_id', ?, true)", orgID.String()).Error
}
