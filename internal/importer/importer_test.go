package importer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/smallbiznis/numberpool/internal/clock"
	"github.com/smallbiznis/numberpool/internal/lifecycle/guard"
	lifecycleservice "github.com/smallbiznis/numberpool/internal/lifecycle/service"
	numberhistoryrepository "github.com/smallbiznis/numberpool/internal/numberhistory/repository"
	numberhistoryservice "github.com/smallbiznis/numberpool/internal/numberhistory/service"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	phonenumberrepository "github.com/smallbiznis/numberpool/internal/phonenumber/repository"
	phonenumberservice "github.com/smallbiznis/numberpool/internal/phonenumber/service"
	"github.com/smallbiznis/numberpool/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestImporter(t *testing.T) (*Importer, phonenumberdomain.Service) {
	t.Helper()
	conn := testutil.OpenDB(t)
	fake := clock.NewFakeClock(time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC))
	policy := guard.StaticPolicy(90)
	log := zap.NewNop()
	repo := phonenumberrepository.Provide()

	numbers := phonenumberservice.NewService(phonenumberservice.ServiceParam{
		DB: conn, Log: log, GenID: testutil.Node(t), Clock: fake, Policy: policy, Repo: repo,
	})
	history := numberhistoryservice.NewService(numberhistoryservice.ServiceParam{
		DB: conn, Log: log, Repo: numberhistoryrepository.Provide(), NumberRepo: repo,
	})
	lifecycle := lifecycleservice.NewService(lifecycleservice.ServiceParam{
		DB: conn, Log: log, Clock: fake, Policy: policy, Repo: repo, History: history,
	})
	return New(Params{Log: log, Numbers: numbers, Lifecycle: lifecycle}), numbers
}

func mustRows(t *testing.T, csv string) []Row {
	t.Helper()
	rows, err := ReadRows("input.csv", strings.NewReader(csv))
	require.NoError(t, err)
	return rows
}

func TestProvisionSummarizesEveryRow(t *testing.T) {
	ctx := context.Background()
	imp, numbers := newTestImporter(t)

	summary, err := imp.Provision(ctx, mustRows(t, "full_number,is_golden\n5550100,true\n5550101,no-idea\n555-0100,false\n,true\n5550102,\n"))
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, ResultFailed, summary.Rows[1].Result)
	assert.Equal(t, ResultSkipped, summary.Rows[2].Result)

	golden, err := numbers.GetByNumber(ctx, "5550100")
	require.NoError(t, err)
	assert.True(t, golden.IsGolden)
}

func TestAssignAndUnassignThroughLifecycle(t *testing.T) {
	ctx := context.Background()
	imp, numbers := newTestImporter(t)

	_, err := imp.Provision(ctx, mustRows(t, "full_number\n5550100\n5550101\n"))
	require.NoError(t, err)

	summary, err := imp.Assign(ctx, mustRows(t,
		"full_number,subscriber_name,company_name,gateway,gateway_username\n"+
			"5550100,Alice,AcmeCo,GW1,user1\n"+
			"5550100,Bob,BetaCo,GW2,user2\n"+
			"5559999,Carol,,GW3,\n"+
			"5550101,,,GW1,\n"), "import@example.com")
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 3, summary.Failed)
	assert.Contains(t, summary.Rows[1].Error, "number_already_assigned")
	assert.Contains(t, summary.Rows[2].Error, "number_not_found")

	assigned, err := numbers.GetByNumber(ctx, "5550100")
	require.NoError(t, err)
	assert.Equal(t, "Alice", *assigned.SubscriberName)

	summary, err = imp.Unassign(ctx, mustRows(t, "full_number,notes\n5550100,contract ended\n5550101,never assigned\n"), "import@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	released, err := numbers.GetByNumber(ctx, "5550100")
	require.NoError(t, err)
	assert.Equal(t, phonenumberdomain.StatusCooloff, released.Status)
}

func TestAssignRequiresColumns(t *testing.T) {
	imp, _ := newTestImporter(t)
	_, err := imp.Assign(context.Background(), mustRows(t, "full_number\n5550100\n"), "ops")
	assert.ErrorIs(t, err, ErrMissingColumn)
}
