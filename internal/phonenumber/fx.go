package phonenumber

import (
	"github.com/smallbiznis/numberpool/internal/phonenumber/repository"
	"github.com/smallbiznis/numberpool/internal/phonenumber/service"
	"go.uber.org/fx"
)

var Module = fx.Module("phonenumber.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
