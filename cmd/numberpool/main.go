package main

import (
	"github.com/smallbiznis/numberpool/internal/clock"
	"github.com/smallbiznis/numberpool/internal/config"
	"github.com/smallbiznis/numberpool/internal/cooloff"
	"github.com/smallbiznis/numberpool/internal/idgen"
	"github.com/smallbiznis/numberpool/internal/lifecycle"
	"github.com/smallbiznis/numberpool/internal/migration"
	"github.com/smallbiznis/numberpool/internal/numberhistory"
	"github.com/smallbiznis/numberpool/internal/observability"
	"github.com/smallbiznis/numberpool/internal/phonenumber"
	"github.com/smallbiznis/numberpool/internal/server"
	"github.com/smallbiznis/numberpool/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		migration.Module,
		clock.Module,

		// Number lifecycle
		phonenumber.Module,
		numberhistory.Module,
		lifecycle.Module,
		cooloff.Module,

		server.Module,
	)
	app.Run()
}
