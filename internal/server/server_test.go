package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/numberpool/internal/clock"
	"github.com/smallbiznis/numberpool/internal/config"
	"github.com/smallbiznis/numberpool/internal/cooloff"
	lifecycleservice "github.com/smallbiznis/numberpool/internal/lifecycle/service"
	numberhistoryrepository "github.com/smallbiznis/numberpool/internal/numberhistory/repository"
	numberhistoryservice "github.com/smallbiznis/numberpool/internal/numberhistory/service"
	phonenumberrepository "github.com/smallbiznis/numberpool/internal/phonenumber/repository"
	phonenumberservice "github.com/smallbiznis/numberpool/internal/phonenumber/service"
	"github.com/smallbiznis/numberpool/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	engine *gin.Engine
	clock  *clock.FakeClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn := testutil.OpenDB(t)
	fake := clock.NewFakeClock(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
	policy := config.NewStaticPolicyHolder(config.LifecyclePolicy{CooloffDays: 30})
	log := zap.NewNop()
	repo := phonenumberrepository.Provide()

	history := numberhistoryservice.NewService(numberhistoryservice.ServiceParam{
		DB: conn, Log: log, Repo: numberhistoryrepository.Provide(), NumberRepo: repo,
	})
	lifecycle := lifecycleservice.NewService(lifecycleservice.ServiceParam{
		DB: conn, Log: log, Clock: fake, Policy: policy, Repo: repo, History: history,
	})
	sweeper, err := cooloff.New(cooloff.Params{
		DB: conn, Log: log, Clock: fake, Policy: policy, Repo: repo, Lifecycle: lifecycle,
	})
	require.NoError(t, err)

	engine := NewEngine(config.Config{}, log)
	srv := NewServer(Params{
		Engine: engine,
		DB:     conn,
		Log:    log,
		Numbers: phonenumberservice.NewService(phonenumberservice.ServiceParam{
			DB: conn, Log: log, GenID: testutil.Node(t), Clock: fake, Policy: policy, Repo: repo,
		}),
		History:   history,
		Lifecycle: lifecycle,
		Sweeper:   sweeper,
	})
	srv.RegisterRoutes()
	return &testServer{engine: engine, clock: fake}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(actorHeader, "ops@example.com")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func data(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	d, ok := out["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", out)
	return d
}

func errorPayloadOf(t *testing.T, out map[string]any) map[string]any {
	t.Helper()
	e, ok := out["error"].(map[string]any)
	require.True(t, ok, "response has no error object: %v", out)
	return e
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t)

	code, out := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", out["status"])

	code, out = ts.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", out["status"])
}

func TestNumberLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	code, out := ts.do(t, http.MethodPost, "/v1/numbers", provisionNumberRequest{FullNumber: "+1 555 0100"})
	require.Equal(t, http.StatusCreated, code)
	id := data(t, out)["id"].(string)
	assert.Equal(t, "available", data(t, out)["effective_status"])

	code, out = ts.do(t, http.MethodPost, "/v1/numbers/"+id+"/assign", assignNumberRequest{
		SubscriberName: "Alice", CompanyName: "AcmeCo", Gateway: "GW1",
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "assigned", data(t, out)["status"])

	code, out = ts.do(t, http.MethodPost, "/v1/numbers/"+id+"/assign", assignNumberRequest{
		SubscriberName: "Bob", Gateway: "GW2",
	})
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "number_already_assigned", errorPayloadOf(t, out)["code"])

	code, out = ts.do(t, http.MethodPost, "/v1/numbers/"+id+"/unassign", unassignNumberRequest{})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", errorPayloadOf(t, out)["type"])

	code, _ = ts.do(t, http.MethodPost, "/v1/numbers/"+id+"/unassign", unassignNumberRequest{Notes: "churned"})
	require.Equal(t, http.StatusOK, code)

	code, out = ts.do(t, http.MethodPost, "/v1/numbers/"+id+"/assign", assignNumberRequest{
		SubscriberName: "Bob", Gateway: "GW2",
	})
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "cooloff_active", errorPayloadOf(t, out)["code"])

	code, out = ts.do(t, http.MethodGet, "/v1/numbers/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, code)
	entries := out["data"].([]any)
	require.Len(t, entries, 2)
	latest := entries[0].(map[string]any)
	assert.Equal(t, "unassignment", latest["change_type"])
	assert.Equal(t, "ops@example.com", latest["actor"])

	ts.clock.Advance(31 * 24 * time.Hour)
	code, out = ts.do(t, http.MethodPost, "/v1/sweeps", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), data(t, out)["expired"])

	code, out = ts.do(t, http.MethodGet, "/v1/numbers/lookup?number=15550100", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "unassigned", data(t, out)["status"])
	assert.Equal(t, "AcmeCo", data(t, out)["previous_company"])
}

func TestListNumbersOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	for _, n := range []string{"5550103", "5550101", "5550102"} {
		code, _ := ts.do(t, http.MethodPost, "/v1/numbers", provisionNumberRequest{FullNumber: n})
		require.Equal(t, http.StatusCreated, code)
	}

	code, out := ts.do(t, http.MethodGet, "/v1/numbers?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["data"].([]any), 2)
	pageInfo := out["page_info"].(map[string]any)
	assert.Equal(t, float64(3), pageInfo["total"])
	assert.Equal(t, true, pageInfo["has_more"])

	code, out = ts.do(t, http.MethodGet, "/v1/numbers?is_golden=maybe", nil)
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", errorPayloadOf(t, out)["type"])

	code, _ = ts.do(t, http.MethodGet, "/v1/numbers?page_size=1000", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	code, out := ts.do(t, http.MethodGet, "/v1/numbers/123456789", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", errorPayloadOf(t, out)["type"])

	code, _ = ts.do(t, http.MethodGet, "/v1/numbers/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodPost, "/v1/numbers", provisionNumberRequest{FullNumber: "abc"})
	assert.Equal(t, http.StatusBadRequest, code)
}
