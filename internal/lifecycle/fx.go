package lifecycle

import (
	"github.com/smallbiznis/numberpool/internal/config"
	"github.com/smallbiznis/numberpool/internal/lifecycle/guard"
	"github.com/smallbiznis/numberpool/internal/lifecycle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lifecycle.service",
	fx.Provide(providePolicy),
	fx.Provide(service.NewService),
)

func providePolicy(holder *config.LifecyclePolicyHolder) guard.Policy {
	return holder
}
