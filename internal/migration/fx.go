package migration

import (
	"github.com/smallbiznis/numberpool/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, log *zap.Logger) error {
		dialect := db.DialectName(conn)
		log.Info("applying schema migrations", zap.String("dialect", dialect))
		if dialect != db.DialectPostgres {
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
