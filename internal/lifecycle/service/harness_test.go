package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/numberpool/internal/clock"
	"github.com/smallbiznis/numberpool/internal/config"
	lifecycledomain "github.com/smallbiznis/numberpool/internal/lifecycle/domain"
	numberhistorydomain "github.com/smallbiznis/numberpool/internal/numberhistory/domain"
	numberhistoryrepository "github.com/smallbiznis/numberpool/internal/numberhistory/repository"
	numberhistoryservice "github.com/smallbiznis/numberpool/internal/numberhistory/service"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	phonenumberrepository "github.com/smallbiznis/numberpool/internal/phonenumber/repository"
	phonenumberservice "github.com/smallbiznis/numberpool/internal/phonenumber/service"
	"github.com/smallbiznis/numberpool/internal/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var epoch = time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)

type harness struct {
	t         *testing.T
	db        *gorm.DB
	clock     *clock.FakeClock
	policy    *config.LifecyclePolicyHolder
	numbers   phonenumberdomain.Service
	history   numberhistorydomain.Service
	lifecycle lifecycledomain.Service
}

// harnessOptions overrides parts of the wiring. Zero values use the real
// in-memory setup with a 5s transition timeout.
type harnessOptions struct {
	windowDays int
	history    numberhistorydomain.Service
	wrapRepo   func(phonenumberdomain.Repository) phonenumberdomain.Repository
	db         *gorm.DB
	timeout    time.Duration
}

func newHarness(t *testing.T, windowDays int) *harness {
	return newHarnessWith(t, harnessOptions{windowDays: windowDays})
}

func newHarnessWith(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	conn := opts.db
	if conn == nil {
		conn = testutil.OpenDB(t)
	}
	timeout := opts.timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	fake := clock.NewFakeClock(epoch)
	policy := config.NewStaticPolicyHolder(config.LifecyclePolicy{CooloffDays: opts.windowDays})
	log := zap.NewNop()
	numberRepo := phonenumberrepository.Provide()
	lifecycleRepo := numberRepo
	if opts.wrapRepo != nil {
		lifecycleRepo = opts.wrapRepo(numberRepo)
	}

	realHistory := numberhistoryservice.NewService(numberhistoryservice.ServiceParam{
		DB:         conn,
		Log:        log,
		Repo:       numberhistoryrepository.Provide(),
		NumberRepo: numberRepo,
	})
	history := opts.history
	if history == nil {
		history = realHistory
	}

	return &harness{
		t:      t,
		db:     conn,
		clock:  fake,
		policy: policy,
		numbers: phonenumberservice.NewService(phonenumberservice.ServiceParam{
			DB:     conn,
			Log:    log,
			GenID:  testutil.Node(t),
			Clock:  fake,
			Policy: policy,
			Repo:   numberRepo,
		}),
		history: realHistory,
		lifecycle: NewService(ServiceParam{
			DB:      conn,
			Log:     log,
			Clock:   fake,
			Policy:  policy,
			Config:  config.Config{Lifecycle: config.LifecycleConfig{TransitionTimeout: timeout}},
			Repo:    lifecycleRepo,
			History: history,
		}),
	}
}

func (h *harness) provision(number string) phonenumberdomain.PhoneNumber {
	h.t.Helper()
	n, err := h.numbers.Provision(context.Background(), phonenumberdomain.ProvisionRequest{FullNumber: number})
	require.NoError(h.t, err)
	return n
}

func (h *harness) get(id string) phonenumberdomain.PhoneNumber {
	h.t.Helper()
	n, err := h.numbers.Get(context.Background(), id)
	require.NoError(h.t, err)
	return n
}

func (h *harness) entries(id string) []numberhistorydomain.Entry {
	h.t.Helper()
	entries, err := h.history.ListByNumber(context.Background(), id)
	require.NoError(h.t, err)
	return entries
}

// requireInvariant checks that assigned status and assignment fields go together.
func (h *harness) requireInvariant() {
	h.t.Helper()
	var all []phonenumberdomain.PhoneNumber
	require.NoError(h.t, h.db.Find(&all).Error)
	for _, n := range all {
		require.Equal(h.t, n.Status == phonenumberdomain.StatusAssigned, n.HasAssignment(), "number %s", n.FullNumber)
		if n.Status == phonenumberdomain.StatusCooloff {
			require.NotNil(h.t, n.UnassignmentDate, "number %s", n.FullNumber)
		}
	}
}

// requireLatestMatches checks the newest history entry against the stored record.
func (h *harness) requireLatestMatches(id string) {
	h.t.Helper()
	n := h.get(id)
	entries := h.entries(id)
	require.NotEmpty(h.t, entries)
	latest := entries[0]
	require.Equal(h.t, n.Status, latest.NewStatus)
	require.Equal(h.t, deref(n.CompanyName), deref(latest.NewCompany))
	require.Equal(h.t, deref(n.Gateway), deref(latest.NewGateway))
	require.Equal(h.t, deref(n.SubscriberName), deref(latest.NewSubscriber))
}

func assignReq(id, subscriber, company, gateway, username string) lifecycledomain.AssignRequest {
	return lifecycledomain.AssignRequest{
		NumberID:        id,
		SubscriberName:  subscriber,
		CompanyName:     company,
		Gateway:         gateway,
		GatewayUsername: username,
		Actor:           "ops@example.com",
	}
}

func strPtr(s string) *string { return &s }
