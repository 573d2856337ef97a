package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsinha/lineplan/pkg/application/dto"
	"github.com/vsinha/lineplan/pkg/application/services/orchestration"
	testhelpers "github.com/vsinha/lineplan/pkg/application/services/testing"
	"github.com/vsinha/lineplan/pkg/domain/entities"
	"github.com/vsinha/lineplan/pkg/infrastructure/lock"
)

func newTestRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	store := testhelpers.BuildScenarioStore()
	orchestrator := orchestration.NewOrchestrator(store, lock.NewLocalLocker(), nil, nil, orchestration.Options{CommitRetries: 1})
	return NewRouter(orchestrator, nil, opts)
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func scheduleBody(order, line, date, policy string) map[string]any {
	return map[string]any{
		"order_id":         order,
		"line_id":          line,
		"target_date":      date,
		"planning_method":  "flat",
		"placement_policy": policy,
	}
}

func TestHealthz(t *testing.T) {
	rec := do(t, newTestRouter(t, Options{}), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestSchedule_CommitsAndReportsPlan(t *testing.T) {
	router := newTestRouter(t, Options{})

	rec := do(t, router, http.MethodPost, "/api/v1/schedule", scheduleBody("PO-A", "L1", "2025-06-09", "none"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[dto.ScheduleResult](t, rec)
	require.Len(t, result.Committed, 1)
	assert.Equal(t, entities.OrderID("PO-A"), result.Committed[0].OrderID)
	assert.Equal(t, testhelpers.June(11), result.Committed[0].PlanEndDate)

	rec = do(t, router, http.MethodGet, "/api/v1/orders/PO-A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	order := decode[entities.Order](t, rec)
	assert.Equal(t, entities.Scheduled, order.Status)
}

func TestSchedule_ConflictReturnsChoice(t *testing.T) {
	router := newTestRouter(t, Options{})
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/schedule",
		scheduleBody("PO-A", "L1", "2025-06-09", "none")).Code)

	rec := do(t, router, http.MethodPost, "/api/v1/schedule", scheduleBody("PO-B", "L1", "2025-06-10", "none"))
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "placement_choice_required", resp.Code)
	require.NotNil(t, resp.Choice)
	require.Len(t, resp.Choice.Conflicts, 1)
	assert.Equal(t, entities.OrderID("PO-A"), resp.Choice.Conflicts[0].OrderID)

	rec = do(t, router, http.MethodPost, "/api/v1/schedule", scheduleBody("PO-B", "L1", "2025-06-10", "insert_before"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[dto.ScheduleResult](t, rec)
	assert.Equal(t, []entities.OrderID{"PO-A"}, result.Displaced)
}

func TestSchedule_ErrorMapping(t *testing.T) {
	router := newTestRouter(t, Options{})

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"weekend", scheduleBody("PO-A", "L1", "2025-06-14", "none"), http.StatusUnprocessableEntity, "invalid_date"},
		{"bad date", scheduleBody("PO-A", "L1", "June 9th", "none"), http.StatusUnprocessableEntity, "invalid_date"},
		{"unknown order", scheduleBody("PO-Z", "L1", "2025-06-09", "none"), http.StatusNotFound, "not_found"},
		{"unknown line", scheduleBody("PO-A", "L9", "2025-06-09", "none"), http.StatusNotFound, "not_found"},
		{"missing fields", map[string]any{"order_id": "PO-A"}, http.StatusUnprocessableEntity, "invalid_request"},
		{"bad policy", scheduleBody("PO-A", "L1", "2025-06-09", "sideways"), http.StatusUnprocessableEntity, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/v1/schedule", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[errorResponse](t, rec).Code)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("commit: %w", entities.ErrAllocationConflict), http.StatusConflict, "allocation_conflict"},
		{errors.Join(entities.ErrCascadeAborted, entities.ErrNotFound), http.StatusUnprocessableEntity, "cascade_aborted"},
		{entities.ErrPlanningHorizonExceeded, http.StatusUnprocessableEntity, "planning_horizon_exceeded"},
		{entities.ErrNoAvailableCapacity, http.StatusUnprocessableEntity, "no_available_capacity"},
		{entities.ErrLineInactive, http.StatusUnprocessableEntity, "line_inactive"},
		{orchestration.ErrInvalidIntent, http.StatusUnprocessableEntity, "invalid_intent"},
		{lock.ErrNotAcquired, http.StatusServiceUnavailable, "line_busy"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		status, code := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}

func TestBatch_AndUnschedule(t *testing.T) {
	router := newTestRouter(t, Options{})

	rec := do(t, router, http.MethodPost, "/api/v1/schedule/batch", map[string]any{
		"line_id":     "L1",
		"target_date": "2025-06-09",
		"orders": []map[string]any{
			{"order_id": "PO-A", "planning_method": "flat"},
			{"order_id": "PO-B", "planning_method": "flat"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[dto.ScheduleResult](t, rec).Committed, 2)

	rec = do(t, router, http.MethodPost, "/api/v1/orders/PO-B/unschedule", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []entities.OrderID{"PO-B"}, decode[dto.ScheduleResult](t, rec).Released)

	rec = do(t, router, http.MethodPost, "/api/v1/orders/PO-B/unschedule", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSplit(t *testing.T) {
	router := newTestRouter(t, Options{})

	rec := do(t, router, http.MethodPost, "/api/v1/orders/PO-C/split", map[string]any{"quantity": 120})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[dto.SplitResult](t, rec)
	assert.Equal(t, entities.OrderID("PO-C"), result.ParentID)
	require.Len(t, result.Children, 2)
	assert.Equal(t, entities.Quantity(180), result.Children[1].OrderQuantity)

	rec = do(t, router, http.MethodPost, "/api/v1/orders/PO-C/split", map[string]any{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCapacity(t *testing.T) {
	router := newTestRouter(t, Options{})
	require.Equal(t, http.StatusOK, do(t, router, http.MethodPost, "/api/v1/schedule",
		scheduleBody("PO-A", "L1", "2025-06-09", "none")).Code)

	rec := do(t, router, http.MethodGet, "/api/v1/lines/L1/capacity?from=2025-06-09&to=2025-06-13", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Days []struct {
			Used entities.Quantity `json:"used"`
			Free entities.Quantity `json:"free"`
		} `json:"days"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 5, body.Count)
	assert.Equal(t, entities.Quantity(100), body.Days[0].Used)
	assert.Equal(t, entities.Quantity(50), body.Days[2].Free)

	rec = do(t, router, http.MethodGet, "/api/v1/lines/L1/capacity?from=2025-06-13&to=2025-06-09", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRateLimit(t *testing.T) {
	router := newTestRouter(t, Options{RateLimit: 0.001, Burst: 1})

	first := do(t, router, http.MethodGet, "/api/v1/orders/PO-A", nil)
	assert.Equal(t, http.StatusOK, first.Code)
	second := do(t, router, http.MethodGet, "/api/v1/orders/PO-A", nil)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// health checks are not limited
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", nil).Code)
}
