package invoicing

import (
	contractdomain "github.com/smallbiznis/rentflow/internal/contract/domain"
	"github.com/smallbiznis/rentflow/internal/invoicing/domain"
	"github.com/smallbiznis/rentflow/internal/invoicing/service"
	meterreadingdomain "github.com/smallbiznis/rentflow/internal/meterreading/domain"
	settingdomain "github.com/smallbiznis/rentflow/internal/setting/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("invoicing.service",
	fx.Provide(
		func(s contractdomain.Service) domain.ContractSource { return s },
		func(s meterreadingdomain.Service) domain.MeterReadingSource { return s },
		func(s settingdomain.Service) domain.SettingSource { return s },
	),
	fx.Provide(service.New),
)
