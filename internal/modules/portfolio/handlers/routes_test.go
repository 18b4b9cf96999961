package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/greenfin/internal/database"
	"github.com/aristath/greenfin/internal/domain"
	"github.com/aristath/greenfin/internal/modules/decoupling"
	"github.com/aristath/greenfin/internal/modules/optimization"
	"github.com/aristath/greenfin/internal/modules/reporting"
	"github.com/aristath/greenfin/internal/modules/runs"
	"github.com/aristath/greenfin/internal/modules/scoring"
	testingpkg "github.com/aristath/greenfin/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, seed bool) http.Handler {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, database.NameAnalytics)
	t.Cleanup(cleanup)

	repo := runs.NewRepository(db, zerolog.Nop())
	if seed {
		full := &optimization.Result{AssetIDs: []string{"L001", "L002"}, Weights: []float64{0.5, 0.5}, Sharpe: 0.3}
		dec := &optimization.Result{AssetIDs: []string{"L001"}, Weights: []float64{1}, Sharpe: 0.4}
		now := time.Now()
		scored := scoring.NewDefaultCalculator().Score(testingpkg.NewAssetFixtures())
		_, err := repo.Create(context.Background(), runs.NewRun(decoupling.Evaluate(full, dec), domain.DataSourceFile, now, now), scored)
		require.NoError(t, err)
	}

	router := chi.NewRouter()
	NewHandler(repo, zerolog.Nop()).RegisterRoutes(router)
	return router
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandleGetScores(t *testing.T) {
	router := newRouter(t, true)

	rec := get(t, router, "/portfolio/scores")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ScoresResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, 5, resp.Count)
	assert.Equal(t, "L001", resp.Assets[0].LoanID)

	rec = get(t, router, "/portfolio/scores?tier=d")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	for _, a := range resp.Assets {
		assert.Equal(t, domain.TierDivestment, a.Tier)
	}

	rec = get(t, router, "/portfolio/scores?tier=Z")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetTiers(t *testing.T) {
	rec := get(t, newRouter(t, true), "/portfolio/tiers")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RunID   string            `json:"run_id"`
		Summary reporting.Summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Summary.LoanCount)
	assert.Equal(t, "810", resp.Summary.TotalExposure.String())

	total := 0.0
	for _, tier := range resp.Summary.Tiers {
		total += tier.ExposurePct
	}
	assert.InDelta(t, 100.0, total, 1e-9)
}

func TestHandleGetChart(t *testing.T) {
	rec := get(t, newRouter(t, true), "/portfolio/chart")
	require.Equal(t, http.StatusOK, rec.Code)

	var chart reporting.ChartSeries
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chart))
	require.NotEmpty(t, chart.Points)
	for i := 1; i < len(chart.Points); i++ {
		assert.LessOrEqual(t, chart.Points[i-1].AvgScore, chart.Points[i].AvgScore)
	}
}

func TestRoutes_NoRunYet(t *testing.T) {
	router := newRouter(t, false)

	for _, path := range []string{"/portfolio/scores", "/portfolio/tiers", "/portfolio/chart"} {
		t.Run(path, func(t *testing.T) {
			rec := get(t, router, path)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Contains(t, rec.Body.String(), "no pipeline run")
		})
	}
}
