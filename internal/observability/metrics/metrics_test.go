package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	lifecycledomain "github.com/smallbiznis/numberpool/internal/lifecycle/domain"
	"gorm.io/gorm"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: ReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: ReasonUniqueViolation},
		{name: "not_found", err: lifecycledomain.ErrNotFound, want: ReasonNotFound},
		{
			name: "wrapped_transition",
			err:  fmt.Errorf("%w: %w", lifecycledomain.ErrInvalidTransition, lifecycledomain.ErrCooloffActive),
			want: ReasonInvalidTransition,
		},
		{name: "validation", err: lifecycledomain.ErrMissingNotes, want: ReasonValidation},
		{
			name: "storage_wrapping_deadline",
			err:  fmt.Errorf("assign: %w: %w", lifecycledomain.ErrStorageFailure, context.DeadlineExceeded),
			want: ReasonDeadlineExceeded,
		},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIsExpected(t *testing.T) {
	if !IsExpected(lifecycledomain.ErrNotFound) {
		t.Fatalf("expected not found to be an expected error")
	}
	if IsExpected(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected serialization failure to be unexpected")
	}
}

func TestLifecycleMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newLifecycleMetrics(registry, Config{ServiceName: "numberpool", Environment: "test"})

	m.IncTransition("assign", "unassigned", "assigned")
	m.AddTransitions("sweep", "cooloff", "unassigned", 3)
	m.IncError("assign", lifecycledomain.ErrNotFound)
	m.IncError("assign", nil)

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("assign", "unassigned", "assigned")); got != 1 {
		t.Fatalf("expected 1 assign transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("sweep", "cooloff", "unassigned")); got != 3 {
		t.Fatalf("expected 3 sweep transitions, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("assign", ReasonNotFound)); got != 1 {
		t.Fatalf("expected 1 not_found error, got %v", got)
	}
}

func TestSweeperMetricsRecordsLastSuccess(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSweeperMetrics(registry, Config{})

	finished := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	m.ObserveRun(SweepResultSuccess, time.Second, finished)
	m.ObserveRun(SweepResultPartial, time.Second, finished.Add(time.Hour))
	m.AddExpired(4)
	m.AddSkipped(0)

	if got := testutil.ToFloat64(m.lastSuccess); got != float64(finished.Unix()) {
		t.Fatalf("expected last success %d, got %v", finished.Unix(), got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues(SweepResultPartial)); got != 1 {
		t.Fatalf("expected 1 partial run, got %v", got)
	}
	if got := testutil.ToFloat64(m.expired); got != 4 {
		t.Fatalf("expected 4 expired, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var lm *LifecycleMetrics
	lm.IncTransition("assign", "a", "b")
	lm.ObserveDuration("assign", time.Second)
	var sm *SweeperMetrics
	sm.IncFailedBatch(errors.New("boom"))
	sm.ObserveRunLoopLag(-time.Second)
}
