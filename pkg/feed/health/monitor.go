// Package health runs periodic reachability checks against every configured
// source and folds per-feed statuses into one system-level health view.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/feedcore/pricefeed-go/pkg/feed/manager"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
	"github.com/feedcore/pricefeed-go/pkg/logging"
	"github.com/feedcore/pricefeed-go/pkg/metrics"
)

const (
	// errorRateDecay is applied to a source's error rate on every successful
	// check; errorRateStep is added on every failed one.
	errorRateDecay = 0.9
	errorRateStep  = 0.1

	// issueThreshold is the error rate above which a source issue is raised.
	issueThreshold = 0.5

	healthyPercentage  = 80.0
	degradedPercentage = 50.0
)

// Severity classifies how urgent a health issue is.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// HealthIssue is a detected problem with a source or feed. Resolved issues are
// kept for IssueHistory but excluded from SystemHealth snapshots.
type HealthIssue struct {
	Source     string    `json:"source"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	DetectedAt time.Time `json:"detected_at"`
	Resolved   bool      `json:"resolved"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
}

// SourceHealth is the rolling health record for one source adapter.
type SourceHealth struct {
	Name        string    `json:"name"`
	Healthy     bool      `json:"healthy"`
	ErrorRate   float64   `json:"error_rate"`
	LastChecked time.Time `json:"last_checked"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// SystemHealth is the aggregate view over all feeds and sources.
type SystemHealth struct {
	Status           string                  `json:"status"`
	HealthPercentage float64                 `json:"health_percentage"`
	TotalFeeds       int                     `json:"total_feeds"`
	HealthyFeeds     int                     `json:"healthy_feeds"`
	DegradedFeeds    int                     `json:"degraded_feeds"`
	FailedFeeds      int                     `json:"failed_feeds"`
	Sources          map[string]SourceHealth `json:"sources"`
	Issues           []HealthIssue           `json:"issues"`
	Uptime           string                  `json:"uptime"`
	CheckedAt        time.Time               `json:"checked_at"`
}

// FeedManager is the slice of the feed manager the monitor depends on.
type FeedManager interface {
	TrackedSymbols() []string
	FeedAdapters(symbol string) []sources.Adapter
	GetAllFeedStatuses() map[string]manager.FeedStatus
}

// Monitor probes sources on a fixed interval and keeps per-source error rates.
type Monitor struct {
	manager     FeedManager
	interval    time.Duration
	pingTimeout time.Duration
	logger      *logging.Logger

	mu        sync.RWMutex
	sources   map[string]*SourceHealth
	issues    []HealthIssue
	startedAt time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMonitor creates a health monitor over the given feed manager.
func NewMonitor(mgr FeedManager, interval, pingTimeout time.Duration, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	return &Monitor{
		manager:     mgr,
		interval:    interval,
		pingTimeout: pingTimeout,
		logger:      logger,
		sources:     make(map[string]*SourceHealth),
		startedAt:   time.Now(),
	}
}

// Start launches the check loop. It runs an immediate first check so health
// data is available right after startup.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.startedAt = time.Now()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go func() {
		defer close(doneCh)

		m.runChecks(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				m.runChecks(ctx)
			}
		}
	}()
	m.logger.Info("Health monitor started", "interval", m.interval.String())
}

// Stop halts the check loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh = nil
	m.doneCh = nil
	m.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
	m.logger.Info("Health monitor stopped")
}

// RunChecks performs one synchronous check cycle. Exposed for callers that
// want health data on demand rather than on the ticker.
func (m *Monitor) RunChecks(ctx context.Context) {
	m.runChecks(ctx)
}

func (m *Monitor) runChecks(ctx context.Context) {
	adapters := m.collectAdapters()

	for name, adapter := range adapters {
		pingCtx, cancel := context.WithTimeout(ctx, m.pingTimeout)
		err := adapter.Ping(pingCtx)
		cancel()
		m.recordCheck(name, err)
	}
}

// collectAdapters deduplicates the adapters across every tracked feed's chain.
func (m *Monitor) collectAdapters() map[string]sources.Adapter {
	adapters := make(map[string]sources.Adapter)
	for _, symbol := range m.manager.TrackedSymbols() {
		for _, adapter := range m.manager.FeedAdapters(symbol) {
			adapters[adapter.Name()] = adapter
		}
	}
	return adapters
}

func (m *Monitor) recordCheck(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	health, ok := m.sources[name]
	if !ok {
		health = &SourceHealth{Name: name}
		m.sources[name] = health
	}
	health.LastChecked = time.Now()

	if err != nil {
		health.ErrorRate = min(1, health.ErrorRate+errorRateStep)
		health.LastError = err.Error()
		m.logger.Warn("Source check failed", "source", name, "error", err.Error(),
			"error_rate", health.ErrorRate)
	} else {
		health.ErrorRate *= errorRateDecay
		health.LastSuccess = health.LastChecked
		health.LastError = ""
	}

	health.Healthy = health.ErrorRate <= issueThreshold
	metrics.RecordSourceHealth(name, health.Healthy)
	m.reconcileIssueLocked(name, health)
}

// reconcileIssueLocked raises an issue when a source crosses the error-rate
// threshold and resolves it once the rate decays back below. Callers must
// hold m.mu.
func (m *Monitor) reconcileIssueLocked(name string, health *SourceHealth) {
	var open *HealthIssue
	for i := range m.issues {
		if m.issues[i].Source == name && !m.issues[i].Resolved {
			open = &m.issues[i]
			break
		}
	}

	if !health.Healthy {
		if open == nil {
			severity := SeverityWarning
			if health.ErrorRate >= 1 {
				severity = SeverityCritical
			}
			m.issues = append(m.issues, HealthIssue{
				Source:     name,
				Severity:   severity,
				Message:    "source failing reachability checks",
				DetectedAt: time.Now(),
			})
			m.logger.Error("Source health issue raised", "source", name,
				"error_rate", health.ErrorRate)
		} else if health.ErrorRate >= 1 {
			open.Severity = SeverityCritical
		}
		return
	}

	if open != nil {
		open.Resolved = true
		open.ResolvedAt = time.Now()
		m.logger.Info("Source health issue resolved", "source", name)
	}
}

// GetSourceHealth returns a copy of the rolling record for one source.
func (m *Monitor) GetSourceHealth(name string) (SourceHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	health, ok := m.sources[name]
	if !ok {
		return SourceHealth{}, false
	}
	return *health, true
}

// GetSystemHealth folds feed statuses and source records into one snapshot.
// Overall status is healthy at 80% healthy feeds or better, degraded at 50%,
// critical below that.
func (m *Monitor) GetSystemHealth() SystemHealth {
	statuses := m.manager.GetAllFeedStatuses()

	snapshot := SystemHealth{
		TotalFeeds: len(statuses),
		Sources:    make(map[string]SourceHealth),
		CheckedAt:  time.Now(),
	}
	for _, feedStatus := range statuses {
		switch feedStatus.Status {
		case manager.StatusHealthy:
			snapshot.HealthyFeeds++
		case manager.StatusDegraded:
			snapshot.DegradedFeeds++
		case manager.StatusFailed:
			snapshot.FailedFeeds++
		}
	}

	if snapshot.TotalFeeds > 0 {
		snapshot.HealthPercentage = float64(snapshot.HealthyFeeds) / float64(snapshot.TotalFeeds) * 100
	}
	switch {
	case snapshot.HealthPercentage >= healthyPercentage:
		snapshot.Status = "healthy"
	case snapshot.HealthPercentage >= degradedPercentage:
		snapshot.Status = "degraded"
	default:
		snapshot.Status = "critical"
	}

	m.mu.RLock()
	for name, health := range m.sources {
		snapshot.Sources[name] = *health
	}
	for _, issue := range m.issues {
		if !issue.Resolved {
			snapshot.Issues = append(snapshot.Issues, issue)
		}
	}
	snapshot.Uptime = time.Since(m.startedAt).Round(time.Second).String()
	m.mu.RUnlock()

	metrics.RecordSystemHealth(snapshot.HealthPercentage)
	return snapshot
}

// IssueHistory returns every issue seen so far, resolved ones included, so
// operators can inspect recent flapping.
func (m *Monitor) IssueHistory() []HealthIssue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := make([]HealthIssue, len(m.issues))
	copy(history, m.issues)
	return history
}
