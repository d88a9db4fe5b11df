package setting

import (
	"github.com/smallbiznis/rentflow/internal/setting/repository"
	"github.com/smallbiznis/rentflow/internal/setting/service"
	"go.uber.org/fx"
)

var Module = fx.Module("setting.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
