package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	lifecycledomain "github.com/smallbiznis/numberpool/internal/lifecycle/domain"
	numberhistorydomain "github.com/smallbiznis/numberpool/internal/numberhistory/domain"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	"github.com/smallbiznis/numberpool/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAssignThenUnassign(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 90)
	n := h.provision("+1 555 0100")
	id := n.ID.String()

	assigned, err := h.lifecycle.Assign(ctx, assignReq(id, "Alice", "AcmeCo", "GW1", "user1"))
	require.NoError(t, err)
	assert.Equal(t, phonenumberdomain.StatusAssigned, assigned.Status)
	assert.Equal(t, phonenumberdomain.EffectiveStatusAssigned, assigned.Effective)
	require.NotNil(t, assigned.AssignmentDate)
	assert.True(t, assigned.AssignmentDate.Equal(epoch))

	entries := h.entries(id)
	require.Len(t, entries, 1)
	assert.Equal(t, numberhistorydomain.ChangeTypeAssignment, entries[0].ChangeType)
	assert.Equal(t, phonenumberdomain.StatusUnassigned, entries[0].PreviousStatus)
	assert.Equal(t, "ops@example.com", *entries[0].Actor)
	h.requireLatestMatches(id)
	h.requireInvariant()

	h.clock.Advance(2 * time.Hour)
	cooled, err := h.lifecycle.Unassign(ctx, lifecycledomain.UnassignRequest{NumberID: id, Notes: "customer churned"})
	require.NoError(t, err)
	assert.Equal(t, phonenumberdomain.StatusCooloff, cooled.Status)
	assert.Equal(t, "AcmeCo", *cooled.PreviousCompany)
	assert.Equal(t, "Alice", *cooled.PreviousSubscriber)
	assert.Nil(t, cooled.SubscriberName)
	assert.Nil(t, cooled.AssignmentDate)

	stored := h.get(id)
	assert.Equal(t, "AcmeCo", *stored.PreviousCompany)
	require.NotNil(t, stored.UnassignmentDate)
	assert.True(t, stored.UnassignmentDate.Equal(epoch.Add(2*time.Hour)))

	entries = h.entries(id)
	require.Len(t, entries, 2)
	assert.Equal(t, numberhistorydomain.ChangeTypeUnassignment, entries[0].ChangeType)
	assert.Equal(t, "customer churned", *entries[0].Notes)
	assert.Equal(t, "AcmeCo", *entries[0].PreviousCompany)
	assert.Equal(t, "GW1", *entries[0].PreviousGateway)
	h.requireLatestMatches(id)
	h.requireInvariant()
}

func TestReassignBeforeWindowFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 90)
	id := h.provision("5550101").ID.String()

	_, err := h.lifecycle.Assign(ctx, assignReq(id, "Alice", "AcmeCo", "GW1", "user1"))
	require.NoError(t, err)
	_, err = h.lifecycle.Unassign(ctx, lifecycledomain.UnassignRequest{NumberID: id, Notes: "moved"})
	require.NoError(t, err)

	_, err = h.lifecycle.Assign(ctx, assignReq(id, "Bob", "BetaCo", "GW2", "user2"))
	require.ErrorIs(t, err, lifecycledomain.ErrInvalidTransition)
	require.ErrorIs(t, err, lifecycledomain.ErrCooloffActive)
	assert.Len(t, h.entries(id), 2)
	assert.Equal(t, phonenumberdomain.StatusCooloff, h.get(id).Status)

	// Day 89 is still inside the window, day 90 is not.
	h.clock.Set(time.Date(2025, 4, 9, 23, 59, 0, 0, time.UTC))
	_, err = h.lifecycle.Assign(ctx, assignReq(id, "Bob", "BetaCo", "GW2", "user2"))
	require.ErrorIs(t, err, lifecycledomain.ErrCooloffActive)

	h.clock.Set(time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
	assigned, err := h.lifecycle.Assign(ctx, assignReq(id, "Bob", "BetaCo", "GW2", "user2"))
	require.NoError(t, err)
	assert.Equal(t, "Bob", *assigned.SubscriberName)
	assert.Len(t, h.entries(id), 3)
	h.requireLatestMatches(id)
	h.requireInvariant()
}

func TestGuardFailuresDoNotMutate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 90)
	id := h.provision("5550102").ID.String()

	_, err := h.lifecycle.Unassign(ctx, lifecycledomain.UnassignRequest{NumberID: id, Notes: "nope"})
	assert.ErrorIs(t, err, lifecycledomain.ErrNotAssigned)
	assert.ErrorIs(t, err, lifecycledomain.ErrInvalidTransition)

	_, err = h.lifecycle.Unassign(ctx, lifecycledomain.UnassignRequest{NumberID: id, Notes: "   "})
	assert.ErrorIs(t, err, lifecycledomain.ErrMissingNotes)
	assert.ErrorIs(t, err, lifecycledomain.ErrValidation)

	_, err = h.lifecycle.Assign(ctx, assignReq(id, "", "AcmeCo", "GW1", ""))
	assert.ErrorIs(t, err, lifecycledomain.ErrMissingRequiredField)

	_, err = h.lifecycle.Assign(ctx, assignReq(id, "Alice", "AcmeCo", " ", ""))
	assert.ErrorIs(t, err, lifecycledomain.ErrMissingRequiredField)

	_, err = h.lifecycle.Assign(ctx, assignReq(snowflake.ID(42).String(), "Alice", "AcmeCo", "GW1", ""))
	assert.ErrorIs(t, err, lifecycledomain.ErrNotFound)

	_, err = h.lifecycle.Assign(ctx, assignReq("not-an-id", "Alice", "AcmeCo", "GW1", ""))
	assert.ErrorIs(t, err, lifecycledomain.ErrInvalidID)

	_, err = h.lifecycle.Assign(ctx, assignReq(id, "Alice", "AcmeCo", "GW1", ""))
	require.NoError(t, err)
	_, err = h.lifecycle.Assign(ctx, assignReq(id, "Bob", "BetaCo", "GW2", ""))
	assert.ErrorIs(t, err, lifecycledomain.ErrAlreadyAssigned)

	assert.Len(t, h.entries(id), 1)
	assert.Equal(t, "Alice", *h.get(id).SubscriberName)
	h.requireInvariant()
}

func TestUpdateMetadata(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 90)
	id := h.provision("5550103").ID.String()

	_, err := h.lifecycle.Update(ctx, lifecycledomain.UpdateRequest{NumberID: id, CompanyName: strPtr("AcmeCo")})
	assert.ErrorIs(t, err, lifecycledomain.ErrMetadataRequiresAssignment)

	_, err = h.lifecycle.Assign(ctx, assignReq(id, "Alice", "AcmeCo", "GW1", "user1"))
	require.NoError(t, err)

	_, err = h.lifecycle.Update(ctx, lifecycledomain.UpdateRequest{NumberID: id})
	assert.ErrorIs(t, err, lifecycledomain.ErrEmptyUpdate)

	unchanged, err := h.lifecycle.Update(ctx, lifecycledomain.UpdateRequest{NumberID: id, CompanyName: strPtr(" AcmeCo ")})
	require.NoError(t, err)
	assert.Equal(t, "AcmeCo", *unchanged.CompanyName)
	assert.Len(t, h.entries(id), 1)

	_, err = h.lifecycle.Update(ctx, lifecycledomain.UpdateRequest{NumberID: id, Gateway: strPtr("")})
	assert.ErrorIs(t, err, lifecycledomain.ErrMissingRequiredField)

	updated, err := h.lifecycle.Update(ctx, lifecycledomain.UpdateRequest{
		NumberID:        id,
		CompanyName:     strPtr("AcmeCorp"),
		GatewayUsername: strPtr(""),
		Notes:           "rebrand",
	})
	require.NoError(t, err)
	assert.Equal(t, "AcmeCorp", *updated.CompanyName)
	assert.Nil(t, updated.GatewayUsername)
	assert.Equal(t, phonenumberdomain.StatusAssigned, updated.Status)

	entries := h.entries(id)
	require.Len(t, entries, 2)
	assert.Equal(t, numberhistorydomain.ChangeTypeUpdate, entries[0].ChangeType)
	assert.Equal(t, "AcmeCo", *entries[0].PreviousCompany)
	assert.Equal(t, "rebrand", *entries[0].Notes)
	h.requireLatestMatches(id)
	h.requireInvariant()
}

func TestPublishIsOrthogonal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 90)
	id := h.provision("5550104").ID.String()

	published, err := h.lifecycle.Publish(ctx, lifecycledomain.PublishRequest{NumberID: id, PublishedBy: "sales"})
	require.NoError(t, err)
	assert.True(t, published.IsPublished)
	assert.Equal(t, phonenumberdomain.StatusUnassigned, published.Status)
	require.NotNil(t, published.PublishedDate)

	h.clock.Advance(time.Hour)
	again, err := h.lifecycle.Publish(ctx, lifecycledomain.PublishRequest{NumberID: id, PublishedBy: "other"})
	require.NoError(t, err)
	assert.True(t, again.PublishedDate.Equal(epoch))
	assert.Equal(t, "sales", *again.PublishedBy)

	unpublished, err := h.lifecycle.Unpublish(ctx, id)
	require.NoError(t, err)
	assert.False(t, unpublished.IsPublished)
	assert.Nil(t, h.get(id).PublishedDate)

	_, err = h.lifecycle.Assign(ctx, assignReq(id, "Alice", "AcmeCo", "GW1", ""))
	require.NoError(t, err)
	_, err = h.lifecycle.Publish(ctx, lifecycledomain.PublishRequest{NumberID: id})
	assert.ErrorIs(t, err, lifecycledomain.ErrNotPublishable)

	// Only the assignment reached the ledger.
	assert.Len(t, h.entries(id), 1)
}

// The test DB has one connection, so these transactions queue in the pool
// rather than race on the row lock. TestAssignLosesToConcurrentWriter covers
// the lost compare-and-swap.
func TestConcurrentAssignExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 90)
	id := h.provision("5550105").ID.String()

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		errs    []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.lifecycle.Assign(ctx, assignReq(id, "Caller", "Co", "GW", ""))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				success++
				return
			}
			errs = append(errs, err)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, success)
	require.Len(t, errs, callers-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, lifecycledomain.ErrInvalidTransition)
	}
	assert.Len(t, h.entries(id), 1)
	h.requireInvariant()
}

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) Append(ctx context.Context, tx *gorm.DB, entry numberhistorydomain.Entry) (int64, error) {
	args := m.Called(ctx, tx, entry)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockHistory) ListByNumber(ctx context.Context, numberID string) ([]numberhistorydomain.Entry, error) {
	args := m.Called(ctx, numberID)
	return args.Get(0).([]numberhistorydomain.Entry), args.Error(1)
}

func TestHistoryFailureRollsBackTransition(t *testing.T) {
	ctx := context.Background()
	history := &mockHistory{}
	history.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), errors.New("disk full"))

	h := newHarnessWith(t, harnessOptions{windowDays: 90, history: history})
	id := h.provision("5550106").ID.String()

	_, err := h.lifecycle.Assign(ctx, assignReq(id, "Alice", "AcmeCo", "GW1", ""))
	require.ErrorIs(t, err, lifecycledomain.ErrStorageFailure)
	assert.False(t, lifecycledomain.IsExpected(err))
	history.AssertNumberOfCalls(t, "Append", 1)

	stored := h.get(id)
	assert.Equal(t, phonenumberdomain.StatusUnassigned, stored.Status)
	assert.Nil(t, stored.SubscriberName)
	assert.Nil(t, stored.AssignmentDate)
}

func TestExpireCooloffRechecksUnderLock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 10)

	expired := h.provision("5550107")
	fresh := h.provision("5550108")
	idle := h.provision("5550109")

	for _, n := range []phonenumberdomain.PhoneNumber{expired, fresh} {
		_, err := h.lifecycle.Assign(ctx, assignReq(n.ID.String(), "Alice", "AcmeCo", "GW1", ""))
		require.NoError(t, err)
	}
	_, err := h.lifecycle.Unassign(ctx, lifecycledomain.UnassignRequest{NumberID: expired.ID.String(), Notes: "churn"})
	require.NoError(t, err)
	h.clock.Advance(5 * 24 * time.Hour)
	_, err = h.lifecycle.Unassign(ctx, lifecycledomain.UnassignRequest{NumberID: fresh.ID.String(), Notes: "churn"})
	require.NoError(t, err)
	h.clock.Advance(6 * 24 * time.Hour)

	result, err := h.lifecycle.ExpireCooloff(ctx, []snowflake.ID{expired.ID, fresh.ID, idle.ID}, lifecycledomain.ExpireOptions{RunID: "run-1"})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{expired.ID}, result.Expired)
	assert.ElementsMatch(t, []snowflake.ID{fresh.ID, idle.ID}, result.Skipped)

	after := h.get(expired.ID.String())
	assert.Equal(t, phonenumberdomain.StatusUnassigned, after.Status)
	assert.Equal(t, "AcmeCo", *after.PreviousCompany)
	require.NotNil(t, after.UnassignmentDate)

	entries := h.entries(expired.ID.String())
	require.Len(t, entries, 3)
	assert.Equal(t, numberhistorydomain.ChangeTypeSystemCooloffExpired, entries[0].ChangeType)
	assert.Equal(t, lifecycledomain.SystemActorCooloffSweeper, *entries[0].Actor)
	assert.Equal(t, "run-1", entries[0].Metadata["run_id"])
	h.requireLatestMatches(expired.ID.String())
	h.requireInvariant()

	assert.Equal(t, phonenumberdomain.StatusCooloff, h.get(fresh.ID.String()).Status)
}

// staleLockRepo hands out the row as it was before a competing writer
// assigned it, so the engine's compare-and-swap sees a changed status.
type staleLockRepo struct {
	phonenumberdomain.Repository
}

func (r staleLockRepo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*phonenumberdomain.PhoneNumber, error) {
	snapshot, err := r.Repository.FindByIDForUpdate(ctx, tx, id)
	if err != nil || snapshot == nil {
		return snapshot, err
	}
	err = r.Repository.Update(ctx, tx, id, map[string]any{
		"status":          phonenumberdomain.StatusAssigned,
		"subscriber_name": "Mallory",
		"company_name":    "OtherCo",
		"gateway":         "GW9",
		"assignment_date": epoch,
	})
	return snapshot, err
}

func TestAssignLosesToConcurrentWriter(t *testing.T) {
	ctx := context.Background()
	h := newHarnessWith(t, harnessOptions{
		windowDays: 90,
		wrapRepo: func(inner phonenumberdomain.Repository) phonenumberdomain.Repository {
			return staleLockRepo{Repository: inner}
		},
	})
	id := h.provision("5550110").ID.String()

	_, err := h.lifecycle.Assign(ctx, assignReq(id, "Alice", "AcmeCo", "GW1", ""))
	require.ErrorIs(t, err, lifecycledomain.ErrInvalidTransition)
	assert.True(t, lifecycledomain.IsExpected(err))

	stored := h.get(id)
	assert.Equal(t, phonenumberdomain.StatusUnassigned, stored.Status)
	assert.Nil(t, stored.SubscriberName)
	assert.Empty(t, h.entries(id))
	h.requireInvariant()
}

// slowHistory holds Append until the transaction deadline passes.
type slowHistory struct {
	numberhistorydomain.Service
}

func (s slowHistory) Append(ctx context.Context, tx *gorm.DB, entry numberhistorydomain.Entry) (int64, error) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
	}
	return s.Service.Append(ctx, tx, entry)
}

func TestTransitionTimeoutRollsBack(t *testing.T) {
	ctx := context.Background()
	conn := testutil.OpenFileDB(t)
	base := newHarnessWith(t, harnessOptions{windowDays: 90, db: conn})
	h := newHarnessWith(t, harnessOptions{
		windowDays: 90,
		db:         conn,
		timeout:    20 * time.Millisecond,
		history:    slowHistory{Service: base.history},
	})
	id := h.provision("5550111").ID.String()

	_, err := h.lifecycle.Assign(ctx, assignReq(id, "Alice", "AcmeCo", "GW1", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, lifecycledomain.ErrStorageFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, lifecycledomain.IsExpected(err))

	stored := h.get(id)
	assert.Equal(t, phonenumberdomain.StatusUnassigned, stored.Status)
	assert.Nil(t, stored.AssignmentDate)
	assert.Empty(t, h.entries(id))
}
