// Package api exposes the feed manager over HTTP and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/feedcore/pricefeed-go/pkg/feed/health"
	"github.com/feedcore/pricefeed-go/pkg/feed/manager"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
	"github.com/feedcore/pricefeed-go/pkg/logging"
	"github.com/feedcore/pricefeed-go/pkg/metrics"
)

// Server is the HTTP API server over the feed manager.
type Server struct {
	addr     string
	manager  *manager.Manager
	monitor  *health.Monitor
	server   *http.Server
	logger   *logging.Logger
	wsServer *WebSocketServer
}

// NewServer creates an HTTP API server.
func NewServer(addr string, mgr *manager.Manager, monitor *health.Monitor, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &Server{
		addr:    addr,
		manager: mgr,
		monitor: monitor,
		logger:  logger,
	}
}

// SetWebSocketServer sets the WebSocket server reported in /health.
func (s *Server) SetWebSocketServer(ws *WebSocketServer) {
	s.wsServer = ws
}

// Router builds the route table. Exposed so tests can drive handlers through
// httptest without binding a listener.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.recordRequest)

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/prices", s.handlePrices)
		r.Get("/prices/{symbol}", s.handlePrice)
		r.Get("/feeds", s.handleFeeds)
		r.Get("/feeds/{symbol}", s.handleFeed)
		r.Put("/feeds/{symbol}/config", s.handleFeedConfig)
		r.Get("/quality/{symbol}", s.handleQuality)
		r.Get("/system/health", s.handleSystemHealth)
		r.Get("/stats", s.handleStats)
		r.Delete("/cache", s.handleClearCache)
		r.Delete("/cache/{symbol}", s.handleClearCache)
	})

	return r
}

// Start starts the HTTP server and blocks until it is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		s.logger.Info("Stopping HTTP server")
		return s.server.Shutdown(ctx)
	}
	return nil
}

// recordRequest is the metrics middleware.
func (s *Server) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		metrics.RecordHTTPRequest(r.URL.Path, fmt.Sprintf("%d", ww.Status()), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"status":    "ok",
		"websocket": s.wsServer != nil,
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// priceResponse is the wire form of a fetch result.
type priceResponse struct {
	Symbol         string    `json:"symbol"`
	Price          string    `json:"price"`
	Source         string    `json:"source"`
	Aggregated     bool      `json:"aggregated"`
	Stale          bool      `json:"stale"`
	QualityScore   int       `json:"quality_score,omitempty"`
	Recommendation string    `json:"recommendation,omitempty"`
	FetchedAt      time.Time `json:"fetched_at"`
}

func toPriceResponse(result *manager.PriceResult) priceResponse {
	resp := priceResponse{
		Symbol:     result.Symbol,
		Price:      result.Price.String(),
		Source:     result.Source,
		Aggregated: result.Aggregated != nil,
		Stale:      result.Stale,
		FetchedAt:  result.FetchedAt,
	}
	if result.Report != nil {
		resp.QualityScore = result.Report.OverallScore
		resp.Recommendation = string(result.Report.Recommendation)
	} else if result.Aggregated != nil {
		resp.QualityScore = result.Aggregated.QualityScore
	}
	return resp
}

// handlePrice serves GET /v1/prices/{symbol}. When the live fetch fails but a
// previous result exists, the stale value is returned with stale=true instead
// of an error.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	forceRefresh := r.URL.Query().Get("refresh") == "true"

	result, err := s.manager.GetPrice(r.Context(), symbol, forceRefresh)
	if err != nil {
		if last, ok := s.manager.LastKnown(symbol); ok {
			s.logger.Warn("Serving stale price after fetch failure",
				"symbol", symbol, "error", err.Error())
			s.sendJSON(w, http.StatusOK, toPriceResponse(last))
			return
		}
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toPriceResponse(result))
}

// handlePrices serves GET /v1/prices?symbols=BTC,ETH. Without a symbols
// parameter it returns every tracked feed.
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	symbols := splitSymbols(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		symbols = s.manager.TrackedSymbols()
	}

	results := s.manager.GetPrices(r.Context(), symbols)

	type entry struct {
		priceResponse
		Error string `json:"error,omitempty"`
	}
	out := make(map[string]entry, len(results))
	for symbol, result := range results {
		if result.Err != nil {
			out[symbol] = entry{
				priceResponse: priceResponse{Symbol: symbol},
				Error:         result.Err.Error(),
			}
			continue
		}
		out[symbol] = entry{priceResponse: toPriceResponse(result.Result)}
	}
	s.sendJSON(w, http.StatusOK, out)
}

func (s *Server) handleFeeds(w http.ResponseWriter, _ *http.Request) {
	s.sendJSON(w, http.StatusOK, s.manager.GetAllFeedStatuses())
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	status := s.manager.GetFeedStatus(symbol)
	if status == nil {
		s.sendJSON(w, http.StatusNotFound, map[string]string{
			"error": "unknown feed: " + strings.ToUpper(symbol),
		})
		return
	}
	s.sendJSON(w, http.StatusOK, status)
}

// feedConfigRequest is the wire form of a partial feed config update.
type feedConfigRequest struct {
	PrimarySource       *string   `json:"primary_source,omitempty"`
	FallbackSources     *[]string `json:"fallback_sources,omitempty"`
	RefreshInterval     *string   `json:"refresh_interval,omitempty"`
	MaxStaleness        *string   `json:"max_staleness,omitempty"`
	ConfidenceThreshold *float64  `json:"confidence_threshold,omitempty"`
}

func (s *Server) handleFeedConfig(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req feedConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	update := manager.FeedConfigUpdate{
		PrimarySource:       req.PrimarySource,
		FallbackSources:     req.FallbackSources,
		ConfidenceThreshold: req.ConfidenceThreshold,
	}
	if req.RefreshInterval != nil {
		d, err := time.ParseDuration(*req.RefreshInterval)
		if err != nil {
			s.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid refresh_interval"})
			return
		}
		update.RefreshInterval = &d
	}
	if req.MaxStaleness != nil {
		d, err := time.ParseDuration(*req.MaxStaleness)
		if err != nil {
			s.sendJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid max_staleness"})
			return
		}
		update.MaxStaleness = &d
	}

	if err := s.manager.SetFeedConfig(symbol, update); err != nil {
		if errors.Is(err, sources.ErrConfiguration) {
			s.sendJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.manager.GetFeedStatus(symbol))
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	if report := s.manager.GetCachedQualityReport(symbol); report != nil {
		s.sendJSON(w, http.StatusOK, report)
		return
	}

	report, err := s.manager.GenerateQualityReport(r.Context(), symbol)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, report)
}

func (s *Server) handleSystemHealth(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.monitor.GetSystemHealth()
	status := http.StatusOK
	if snapshot.Status == "critical" {
		status = http.StatusServiceUnavailable
	}
	s.sendJSON(w, status, snapshot)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.manager.GetStats()
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"total_requests":           stats.TotalRequests,
		"cache_hit_rate":           stats.CacheHitRate,
		"average_response_time_ms": float64(stats.AverageResponseTime.Microseconds()) / 1000,
		"total_feeds":              stats.TotalFeeds,
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	s.manager.ClearCache(symbol)

	scope := "all"
	if symbol != "" {
		scope = strings.ToUpper(symbol)
	}
	s.logger.Info("Cache cleared", "scope", scope)
	s.sendJSON(w, http.StatusOK, map[string]string{"cleared": scope})
}

// sendError maps domain errors onto HTTP statuses.
func (s *Server) sendError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sources.ErrConfiguration):
		status = http.StatusNotFound
	case errors.Is(err, sources.ErrAllSourcesExhausted):
		status = http.StatusBadGateway
	case errors.Is(err, sources.ErrSourceTimeout), errors.Is(err, sources.ErrSourceUnavailable):
		status = http.StatusServiceUnavailable
	}
	s.sendJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func splitSymbols(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}
