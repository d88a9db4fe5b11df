package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentflow/internal/config"
	settingdomain "github.com/smallbiznis/rentflow/internal/setting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultOrgNumberTemplate numbers the default organization's invoices
// sequentially per month instead of by ULID.
const DefaultOrgNumberTemplate = "INV-{YYYY}{MM}-{SEQ4}"

var Module = fx.Module("seed",
	fx.Invoke(func(db *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if cfg.DefaultOrgID <= 0 {
			return nil
		}
		if err := EnsureDefaultOrg(db, snowflake.ID(cfg.DefaultOrgID)); err != nil {
			return err
		}
		log.Named("seed").Info("default organization ready", zap.Int64("org_id", cfg.DefaultOrgID))
		return nil
	}),
)

// EnsureDefaultOrg seeds the settings of the organization requests fall
// back to when they carry no X-Org-ID header. Existing values are kept.
func EnsureDefaultOrg(db *gorm.DB, orgID snowflake.ID) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if orgID <= 0 {
		return errors.New("seed organization id is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return ensureSettingTx(ctx, tx, orgID, settingdomain.KeyNumberTemplate, DefaultOrgNumberTemplate)
	})
}

func ensureSettingTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, key, value string) error {
	row := settingdomain.Setting{
		OrgID:     orgID,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}
