package numberhistory

import (
	"github.com/smallbiznis/numberpool/internal/numberhistory/repository"
	"github.com/smallbiznis/numberpool/internal/numberhistory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("numberhistory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
