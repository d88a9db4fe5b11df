package seed

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	settingdomain "github.com/smallbiznis/rentflow/internal/setting/domain"
	"github.com/smallbiznis/rentflow/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDefaultOrgSeedsNumberTemplate(t *testing.T) {
	db := dbtest.Open(t, &settingdomain.Setting{})

	require.NoError(t, EnsureDefaultOrg(db, snowflake.ID(9)))

	var row settingdomain.Setting
	require.NoError(t, db.Where("org_id = ? AND setting_key = ?", 9, settingdomain.KeyNumberTemplate).First(&row).Error)
	assert.Equal(t, DefaultOrgNumberTemplate, row.Value)
}

func TestEnsureDefaultOrgKeepsExistingValue(t *testing.T) {
	db := dbtest.Open(t, &settingdomain.Setting{})
	require.NoError(t, db.Create(&settingdomain.Setting{
		OrgID: 9,
		Key:   settingdomain.KeyNumberTemplate,
		Value: "R-{SEQ}",
	}).Error)

	require.NoError(t, EnsureDefaultOrg(db, snowflake.ID(9)))
	require.NoError(t, EnsureDefaultOrg(db, snowflake.ID(9)))

	var rows []settingdomain.Setting
	require.NoError(t, db.Where("org_id = ?", 9).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "R-{SEQ}", rows[0].Value)
}

func TestEnsureDefaultOrgRequiresOrg(t *testing.T) {
	db := dbtest.Open(t, &settingdomain.Setting{})
	assert.Error(t, EnsureDefaultOrg(db, 0))
}
