package cooloff

import (
	"context"

	"github.com/bwmarrin/snowflake"
	lifecycledomain "github.com/smallbiznis/numberpool/internal/lifecycle/domain"
	obslogger "github.com/smallbiznis/numberpool/internal/observability/logger"
	"github.com/smallbiznis/numberpool/internal/observability/metrics"
	"github.com/smallbiznis/numberpool/pkg/db"
	"go.uber.org/zap"
)

func (s *Sweeper) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Sweeper) logSweepStart(ctx context.Context, result SweepResult) {
	s.logger(ctx).Info("cooloff.sweep.start",
		zap.Time("cutoff", result.Cutoff),
		zap.Int("window_days", s.policy.CooloffWindowDays()),
		zap.Int("batch_size", s.cfg.BatchSize),
	)
}

func (s *Sweeper) logSweepFinish(ctx context.Context, result SweepResult, err error) {
	fields := []zap.Field{
		zap.Int64("duration_ms", result.Duration.Milliseconds()),
		zap.Int("batches", result.Batches),
		zap.Int("failed_batches", result.FailedBatches),
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	}
	log := s.logger(ctx)
	if err != nil {
		log.Error("cooloff.sweep.finish", append(fields, zap.Error(err))...)
		return
	}
	if result.FailedBatches > 0 {
		log.Warn("cooloff.sweep.finish", fields...)
		return
	}
	log.Info("cooloff.sweep.finish", fields...)
}

func (s *Sweeper) logBatchDone(ctx context.Context, ids []snowflake.ID, result lifecycledomain.ExpireResult) {
	s.logger(ctx).Debug("cooloff.batch.done",
		zap.String("first_id", ids[0].String()),
		zap.String("last_id", ids[len(ids)-1].String()),
		zap.Int("expired", len(result.Expired)),
		zap.Int("skipped", len(result.Skipped)),
	)
}

func (s *Sweeper) logBatchError(ctx context.Context, ids []snowflake.ID, err error) {
	s.logger(ctx).Error("cooloff.batch.failed",
		zap.String("first_id", ids[0].String()),
		zap.String("last_id", ids[len(ids)-1].String()),
		zap.Int("size", len(ids)),
		zap.String("error_type", metrics.ClassifyReason(err)),
		zap.Bool("retryable", db.IsRetryable(err)),
		zap.Error(err),
	)
}
