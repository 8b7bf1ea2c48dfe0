package invoice

import (
	"github.com/smallbiznis/payables/internal/invoice/cache"
	"github.com/smallbiznis/payables/internal/invoice/repository"
	"github.com/smallbiznis/payables/internal/invoice/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	fx.Provide(cache.NewRedisClient),
	fx.Provide(cache.New),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
