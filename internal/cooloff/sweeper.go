// Package cooloff releases numbers whose cooloff window has elapsed.
package cooloff

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/numberpool/internal/clock"
	lifecycledomain "github.com/smallbiznis/numberpool/internal/lifecycle/domain"
	"github.com/smallbiznis/numberpool/internal/lifecycle/guard"
	obscontext "github.com/smallbiznis/numberpool/internal/observability/context"
	"github.com/smallbiznis/numberpool/internal/observability/metrics"
	"github.com/smallbiznis/numberpool/internal/observability/tracing"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	"github.com/smallbiznis/numberpool/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_sweeper_config")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Policy    guard.Policy
	Repo      phonenumberdomain.Repository
	Lifecycle lifecycledomain.Service
	Metrics   *metrics.SweeperMetrics `optional:"true"`
	Config    Config                  `optional:"true"`
}

type Sweeper struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	policy    guard.Policy
	repo      phonenumberdomain.Repository
	lifecycle lifecycledomain.Service
	metrics   *metrics.SweeperMetrics
}

// SweepResult summarizes one sweep run.
type SweepResult struct {
	RunID         string
	Cutoff        time.Time
	Batches       int
	FailedBatches int
	Scanned       int
	Expired       int
	Skipped       int
	Failed        int
	Duration      time.Duration
}

func New(p Params) (*Sweeper, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Policy == nil || p.Repo == nil || p.Lifecycle == nil {
		return nil, ErrInvalidConfig
	}
	return &Sweeper{
		db:        p.DB,
		log:       p.Log.Named("cooloff").With(zap.String("component", "cooloff_sweeper")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		policy:    p.Policy,
		repo:      p.Repo,
		lifecycle: p.Lifecycle,
		metrics:   p.Metrics,
	}, nil
}

// RunOnce scans cooloff numbers older than the cutoff in keyset batches and
// releases them. The cutoff is fixed for the whole run. A failed batch is
// counted and the scan moves on; a failed scan query ends the run.
func (s *Sweeper) RunOnce(parent context.Context) (SweepResult, error) {
	start := s.clock.Now()
	result := SweepResult{
		RunID:  ulid.Make().String(),
		Cutoff: guard.Cutoff(start, s.policy.CooloffWindowDays()),
	}

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()
	ctx = obscontext.WithActor(ctx, lifecycledomain.SystemActorCooloffSweeper)
	ctx = obscontext.WithRunID(ctx, result.RunID)
	ctx = correlation.ContextWithCorrelationID(ctx, result.RunID)
	ctx, span := tracing.Start(ctx, "cooloff.sweep",
		attribute.String("sweep.run_id", result.RunID),
		attribute.String("sweep.cutoff", result.Cutoff.Format(time.RFC3339)),
	)

	s.logSweepStart(ctx, result)
	err := s.sweep(ctx, &result)
	result.Duration = s.clock.Now().Sub(start)
	tracing.End(span, err)

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncTimeout()
		s.logger(ctx).Warn("cooloff sweep timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		err = nil
	}

	switch {
	case err != nil:
		s.metrics.ObserveRun(metrics.SweepResultFailure, result.Duration, s.clock.Now())
	case result.FailedBatches > 0 || isTimeout:
		s.metrics.ObserveRun(metrics.SweepResultPartial, result.Duration, s.clock.Now())
	default:
		s.metrics.ObserveRun(metrics.SweepResultSuccess, result.Duration, s.clock.Now())
	}
	s.metrics.AddExpired(result.Expired)
	s.metrics.AddSkipped(result.Skipped)
	s.logSweepFinish(ctx, result, err)
	return result, err
}

func (s *Sweeper) sweep(ctx context.Context, result *SweepResult) error {
	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		candidates, err := s.repo.ListCooloffExpired(ctx, s.db, result.Cutoff, afterID, s.cfg.BatchSize)
		if err != nil {
			return phonenumberdomain.StorageError("cooloff.scan", err)
		}
		if len(candidates) == 0 {
			return nil
		}

		ids := make([]snowflake.ID, 0, len(candidates))
		for _, candidate := range candidates {
			ids = append(ids, candidate.ID)
		}
		afterID = ids[len(ids)-1]
		result.Batches++
		result.Scanned += len(ids)

		expired, err := s.lifecycle.ExpireCooloff(ctx, ids, lifecycledomain.ExpireOptions{
			RunID:  result.RunID,
			Cutoff: result.Cutoff,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Failed += len(ids)
				return errors.Join(err, ctxErr)
			}
			result.FailedBatches++
			result.Failed += len(ids)
			s.metrics.IncFailedBatch(err)
			s.logBatchError(ctx, ids, err)
		} else {
			result.Expired += len(expired.Expired)
			result.Skipped += len(expired.Skipped)
			s.logBatchDone(ctx, ids, expired)
		}

		if len(candidates) < s.cfg.BatchSize {
			return nil
		}
	}
}

// RunForever sweeps on every tick until ctx is cancelled.
func (s *Sweeper) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("cooloff sweep failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
