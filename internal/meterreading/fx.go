package meterreading

import (
	"github.com/smallbiznis/rentflow/internal/meterreading/repository"
	"github.com/smallbiznis/rentflow/internal/meterreading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("meterreading.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
