package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/SheetNest/internal/engine"
	"github.com/piwi3910/SheetNest/internal/model"
	"github.com/piwi3910/SheetNest/internal/solver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type solveBody struct {
	ID       string          `json:"id"`
	State    string          `json:"state"`
	Percent  float64         `json:"percent"`
	CacheHit bool            `json:"cache_hit"`
	Warnings []model.Warning `json:"warnings"`
	Result   *model.Result   `json:"result"`
}

const plywoodRequest = `{
  "parts": [
    {"part": {"name": "Side", "width": 600, "height": 400, "thickness": 18,
              "material": "Plywood", "grain_direction": "Length", "edge_banding": "2 edges"},
     "quantity": 3}
  ],
  "settings": {
    "kerf_width": 3,
    "allow_rotation": true,
    "stock_materials": {"Plywood": {"width": 2440, "height": 1220, "thickness": 18}}
  }
}`

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, solveBody) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out solveBody
	if w.Code < 300 && w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func waitForState(t *testing.T, router http.Handler, id, state string) solveBody {
	t.Helper()
	var last solveBody
	require.Eventually(t, func() bool {
		_, last = doRequest(t, router, http.MethodGet, "/api/v1/solves/"+id, "")
		return last.State == state
	}, 5*time.Second, 10*time.Millisecond, "job never reached %s", state)
	return last
}

func TestHealth(t *testing.T) {
	router := SetupRouter(solver.New(), nil)

	w, _ := doRequest(t, router, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","runs":0}`, w.Body.String())
}

func TestCreateSolveCompletes(t *testing.T) {
	router := SetupRouter(solver.New(), nil)

	w, created := doRequest(t, router, http.MethodPost, "/api/v1/solves", plywoodRequest)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/v1/solves/"+created.ID, w.Header().Get("Location"))

	done := waitForState(t, router, created.ID, "complete")
	require.NotNil(t, done.Result)
	assert.Equal(t, 100.0, done.Percent)
	assert.Equal(t, 3, done.Result.PlacedCount())
	require.Len(t, done.Result.Boards, 1)
	for _, p := range done.Result.Boards[0].Parts {
		assert.False(t, p.Rotated, "length grain parts stay unrotated")
		assert.Equal(t, model.Banding2Edges, p.EdgeBanding)
	}
}

func TestCreateSolveWithoutSettingsUsesDefaultSheet(t *testing.T) {
	router := SetupRouter(solver.New(), nil)
	body := `{"parts": [{"part": {"name": "Side", "width": 600, "height": 400, "thickness": 18,
		"material": "Plywood"}, "quantity": 3}]}`

	w, created := doRequest(t, router, http.MethodPost, "/api/v1/solves", body)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, created.Warnings, 1)
	assert.Equal(t, "Plywood", created.Warnings[0].Material)
	assert.Contains(t, created.Warnings[0].Message, "2440x1220")

	done := waitForState(t, router, created.ID, "complete")
	require.NotNil(t, done.Result)
	assert.Equal(t, 3, done.Result.PlacedCount())
	assert.Empty(t, done.Result.Unplaced)
	require.Len(t, done.Result.Boards, 1)
	board := done.Result.Boards[0]
	assert.Equal(t, model.DefaultStockWidth, board.StockWidth)
	assert.Equal(t, model.DefaultStockHeight, board.StockHeight)
	assert.Len(t, done.Warnings, 1, "warnings stay with the job")
}

func TestCreateSolveWithStockHasNoWarnings(t *testing.T) {
	router := SetupRouter(solver.New(), nil)

	_, created := doRequest(t, router, http.MethodPost, "/api/v1/solves", plywoodRequest)
	assert.Empty(t, created.Warnings)
}

func TestRepeatedSolveIsServedFromCache(t *testing.T) {
	orch := solver.New()
	router := SetupRouter(orch, nil)

	_, first := doRequest(t, router, http.MethodPost, "/api/v1/solves", plywoodRequest)
	waitForState(t, router, first.ID, "complete")

	w, second := doRequest(t, router, http.MethodPost, "/api/v1/solves", plywoodRequest)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, second.CacheHit)
	assert.Equal(t, "complete", second.State)
	assert.EqualValues(t, 1, orch.Runs())
}

func TestCreateSolveRejectsBadInput(t *testing.T) {
	router := SetupRouter(solver.New(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"parts": [`},
		{"missing parts", `{"settings": {"kerf_width": 3}}`},
		{"unknown grain", `{"parts": [{"part": {"name": "A", "width": 1, "height": 1, "thickness": 1,
			"material": "M", "grain_direction": "diagonal"}, "quantity": 1}]}`},
		{"invalid stock", `{"parts": [], "settings": {"stock_materials": {"M": {"width": 0, "height": 100}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := doRequest(t, router, http.MethodPost, "/api/v1/solves", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

// blockingEngine runs until cancelled unless it has nothing to nest.
func blockingEngine(ctx context.Context, parts model.PartsByMaterial, _ model.Settings, _ engine.ProgressFunc) (model.Result, error) {
	if len(parts) == 0 {
		return model.Result{}, nil
	}
	<-ctx.Done()
	return model.Result{}, ctx.Err()
}

func TestCancelSolve(t *testing.T) {
	router := SetupRouter(solver.New(solver.WithEngine(blockingEngine)), nil)

	_, created := doRequest(t, router, http.MethodPost, "/api/v1/solves", plywoodRequest)
	require.Equal(t, "running", created.State)

	w, cancelled := doRequest(t, router, http.MethodDelete, "/api/v1/solves/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", cancelled.State)
	assert.Nil(t, cancelled.Result)

	// Cancelling again is harmless.
	w, again := doRequest(t, router, http.MethodDelete, "/api/v1/solves/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cancelled", again.State)
}

func TestNewSolveSupersedesRunningOne(t *testing.T) {
	router := SetupRouter(solver.New(solver.WithEngine(blockingEngine)), nil)

	_, first := doRequest(t, router, http.MethodPost, "/api/v1/solves", plywoodRequest)
	_, second := doRequest(t, router, http.MethodPost, "/api/v1/solves", `{"parts": []}`)

	assert.Equal(t, "cancelled", waitForState(t, router, first.ID, "cancelled").State)
	assert.Equal(t, "complete", waitForState(t, router, second.ID, "complete").State)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/solves", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var statuses []solver.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	assert.Equal(t, first.ID, statuses[0].ID)
}

func TestUnknownSolve(t *testing.T) {
	router := SetupRouter(solver.New(), nil)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w, _ := doRequest(t, router, method, "/api/v1/solves/does-not-exist", "")
		assert.Equal(t, http.StatusNotFound, w.Code, method)
	}
}

func TestClosedOrchestrator(t *testing.T) {
	orch := solver.New()
	require.NoError(t, orch.Close())
	router := SetupRouter(orch, nil)

	w, _ := doRequest(t, router, http.MethodPost, "/api/v1/solves", plywoodRequest)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
