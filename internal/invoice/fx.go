package invoice

import (
	"github.com/smallbiznis/rentflow/internal/invoice/domain"
	"github.com/smallbiznis/rentflow/internal/invoice/repository"
	"github.com/smallbiznis/rentflow/internal/invoice/service"
	pkgrepository "github.com/smallbiznis/rentflow/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("invoice.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(db *gorm.DB) pkgrepository.Repository[domain.InvoiceService] {
		return pkgrepository.ProvideStore[domain.InvoiceService](db)
	}),
	fx.Provide(service.NewHistory),
	fx.Provide(service.New),
)
