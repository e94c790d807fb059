package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedcore/pricefeed-go/pkg/config"
	"github.com/feedcore/pricefeed-go/pkg/feed/aggregator"
	"github.com/feedcore/pricefeed-go/pkg/feed/health"
	"github.com/feedcore/pricefeed-go/pkg/feed/history"
	"github.com/feedcore/pricefeed-go/pkg/feed/manager"
	"github.com/feedcore/pricefeed-go/pkg/feed/quality"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources/simulated"
	"github.com/feedcore/pricefeed-go/pkg/logging"
)

type testEnv struct {
	router  http.Handler
	manager *manager.Manager
	primary *simulated.Adapter
	backup  *simulated.Adapter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	newAdapter := func(name string, prices map[string]interface{}) *simulated.Adapter {
		adapter, err := simulated.New(name, map[string]interface{}{
			"prices":              prices,
			"confidence_interval": "0.5",
		})
		require.NoError(t, err)
		return adapter.(*simulated.Adapter)
	}

	primary := newAdapter("primary", map[string]interface{}{"SOL": "100", "BTC": "64000"})
	backup := newAdapter("backup", map[string]interface{}{"SOL": "101"})

	cfg := &config.Config{
		Fetch: config.FetchConfig{
			MaxAttempts:        3,
			BaseBackoff:        config.Duration(time.Millisecond),
			AdapterTimeout:     config.Duration(time.Second),
			AggregationTimeout: config.Duration(time.Second),
		},
		Scoring: config.ScoringConfig{
			Staleness:      config.StalenessBands{FreshMaxSeconds: 30, AgingMaxSeconds: 90, StaleMaxSeconds: 180},
			Confidence:     config.ConfidenceBands{VeryHighMaxPercent: 0.5, HighMaxPercent: 1.0, MediumMaxPercent: 2.5},
			Volatility:     config.VolatilityBands{StableMaxPercent: 0.5, ModerateMaxPercent: 2.0, VolatileMaxPercent: 5.0},
			ReportCacheTTL: config.Duration(10 * time.Second),
			RejectCutoff:   50,
		},
		Feeds: []config.FeedConfig{
			{
				Symbol:              "SOL",
				PrimarySource:       "primary",
				FallbackSources:     []string{"backup"},
				RefreshInterval:     config.Duration(30 * time.Second),
				MaxStaleness:        config.Duration(180 * time.Second),
				ConfidenceThreshold: 0.8,
			},
			{
				Symbol:              "BTC",
				PrimarySource:       "primary",
				RefreshInterval:     config.Duration(30 * time.Second),
				MaxStaleness:        config.Duration(180 * time.Second),
				ConfidenceThreshold: 0.8,
			},
		},
	}

	adapters := map[string]sources.Adapter{"primary": primary, "backup": backup}
	scorer := quality.NewScorer(cfg.Scoring, nil, history.NewStore(history.DefaultCapacity), logging.NewNoopLogger())
	agg := aggregator.New(scorer, time.Second, logging.NewNoopLogger())
	mgr := manager.New(cfg, adapters, scorer, agg, logging.NewNoopLogger())
	monitor := health.NewMonitor(mgr, time.Minute, time.Second, logging.NewNoopLogger())

	server := NewServer(":0", mgr, monitor, logging.NewNoopLogger())
	return &testEnv{
		router:  server.Router(),
		manager: mgr,
		primary: primary,
		backup:  backup,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	decode(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
}

func TestAPI_GetPrice(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/prices/sol", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp priceResponse
	decode(t, rec, &resp)
	assert.Equal(t, "SOL", resp.Symbol)
	assert.Equal(t, "100", resp.Price)
	assert.Equal(t, "primary", resp.Source)
	assert.False(t, resp.Stale)
	assert.Equal(t, "use", resp.Recommendation)
}

func TestAPI_GetPriceUnknownSymbol(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/prices/DOGE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_GetPriceServesStaleOnFailure(t *testing.T) {
	env := newTestEnv(t)

	// Warm the cache, then break every source.
	rec := env.do(t, http.MethodGet, "/v1/prices/SOL", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env.primary.SetError("SOL", sources.ErrSourceUnavailable)
	env.backup.SetError("SOL", sources.ErrSourceUnavailable)

	rec = env.do(t, http.MethodGet, "/v1/prices/SOL?refresh=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp priceResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Stale)
	assert.Equal(t, "100", resp.Price)
}

func TestAPI_GetPriceBadGatewayWithoutHistory(t *testing.T) {
	env := newTestEnv(t)

	env.primary.SetError("SOL", sources.ErrSourceUnavailable)
	env.backup.SetError("SOL", sources.ErrSourceUnavailable)

	rec := env.do(t, http.MethodGet, "/v1/prices/SOL", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAPI_GetPrices(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/prices?symbols=SOL,BTC", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]priceResponse
	decode(t, rec, &resp)
	require.Len(t, resp, 2)
	assert.Equal(t, "100", resp["SOL"].Price)
	assert.Equal(t, "64000", resp["BTC"].Price)
}

func TestAPI_GetPricesDefaultsToTracked(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/prices", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]priceResponse
	decode(t, rec, &resp)
	assert.Len(t, resp, 2)
}

func TestAPI_Feeds(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/feeds", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var statuses map[string]manager.FeedStatus
	decode(t, rec, &statuses)
	assert.Contains(t, statuses, "SOL")
	assert.Contains(t, statuses, "BTC")

	rec = env.do(t, http.MethodGet, "/v1/feeds/SOL", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/feeds/DOGE", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_UpdateFeedConfig(t *testing.T) {
	env := newTestEnv(t)

	body := []byte(`{"primary_source": "backup", "refresh_interval": "10s"}`)
	rec := env.do(t, http.MethodPut, "/v1/feeds/SOL/config", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var status manager.FeedStatus
	decode(t, rec, &status)
	assert.Equal(t, "SOL", status.Symbol)
}

func TestAPI_UpdateFeedConfigRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/feeds/SOL/config", []byte(`{bad json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/feeds/SOL/config", []byte(`{"refresh_interval": "soon"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/feeds/SOL/config", []byte(`{"primary_source": "missing"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_QualityReport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/quality/SOL", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report quality.QualityReport
	decode(t, rec, &report)
	assert.Equal(t, "SOL", report.Symbol)
	assert.Equal(t, quality.RecommendationUse, report.Recommendation)
	assert.Greater(t, report.OverallScore, 0)
}

func TestAPI_SystemHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/system/health", nil)
	// No feed has succeeded yet, so the snapshot is critical.
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.do(t, http.MethodGet, "/v1/prices/SOL", nil)
	env.do(t, http.MethodGet, "/v1/prices/BTC", nil)

	rec = env.do(t, http.MethodGet, "/v1/system/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot health.SystemHealth
	decode(t, rec, &snapshot)
	assert.Equal(t, "healthy", snapshot.Status)
	assert.Equal(t, 2, snapshot.HealthyFeeds)
}

func TestAPI_Stats(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/v1/prices/SOL", nil)
	env.do(t, http.MethodGet, "/v1/prices/SOL", nil)

	rec := env.do(t, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats map[string]interface{}
	decode(t, rec, &stats)
	assert.Equal(t, float64(2), stats["total_requests"])
	assert.Equal(t, float64(2), stats["total_feeds"])
	assert.Equal(t, 0.5, stats["cache_hit_rate"])
}

func TestAPI_ClearCache(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodGet, "/v1/prices/SOL", nil)

	rec := env.do(t, http.MethodDelete, "/v1/cache/SOL", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env.do(t, http.MethodGet, "/v1/prices/SOL", nil)
	assert.Equal(t, 2, env.primary.CallCount())

	rec = env.do(t, http.MethodDelete, "/v1/cache", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decode(t, rec, &resp)
	assert.Equal(t, "all", resp["cleared"])
}
