package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedcore/pricefeed-go/pkg/feed/manager"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources/simulated"
	"github.com/feedcore/pricefeed-go/pkg/logging"
)

// fakeManager satisfies FeedManager with fixed feeds and adapters.
type fakeManager struct {
	adapters map[string]sources.Adapter
	statuses map[string]manager.FeedStatus
}

func (f *fakeManager) TrackedSymbols() []string {
	out := make([]string, 0, len(f.statuses))
	for symbol := range f.statuses {
		out = append(out, symbol)
	}
	return out
}

func (f *fakeManager) FeedAdapters(string) []sources.Adapter {
	out := make([]sources.Adapter, 0, len(f.adapters))
	for _, adapter := range f.adapters {
		out = append(out, adapter)
	}
	return out
}

func (f *fakeManager) GetAllFeedStatuses() map[string]manager.FeedStatus {
	return f.statuses
}

func newSim(t *testing.T, name string) *simulated.Adapter {
	t.Helper()
	adapter, err := simulated.New(name, map[string]interface{}{})
	require.NoError(t, err)
	return adapter.(*simulated.Adapter)
}

func newTestMonitor(mgr FeedManager) *Monitor {
	return NewMonitor(mgr, time.Minute, time.Second, logging.NewNoopLogger())
}

func TestMonitor_ErrorRateGrowsAndDecays(t *testing.T) {
	adapter := newSim(t, "flaky")
	mgr := &fakeManager{
		adapters: map[string]sources.Adapter{"flaky": adapter},
		statuses: map[string]manager.FeedStatus{"SOL": {Symbol: "SOL"}},
	}
	monitor := newTestMonitor(mgr)

	adapter.SetPingError(sources.ErrSourceUnavailable)
	for i := 0; i < 3; i++ {
		monitor.RunChecks(context.Background())
	}

	health, ok := monitor.GetSourceHealth("flaky")
	require.True(t, ok)
	assert.InDelta(t, 0.3, health.ErrorRate, 1e-9)
	assert.True(t, health.Healthy)

	adapter.SetPingError(nil)
	monitor.RunChecks(context.Background())

	health, _ = monitor.GetSourceHealth("flaky")
	assert.InDelta(t, 0.27, health.ErrorRate, 1e-9)
	assert.Empty(t, health.LastError)
	assert.False(t, health.LastSuccess.IsZero())
}

func TestMonitor_ErrorRateCappedAtOne(t *testing.T) {
	adapter := newSim(t, "dead")
	mgr := &fakeManager{
		adapters: map[string]sources.Adapter{"dead": adapter},
		statuses: map[string]manager.FeedStatus{"SOL": {Symbol: "SOL"}},
	}
	monitor := newTestMonitor(mgr)

	adapter.SetPingError(sources.ErrSourceUnavailable)
	for i := 0; i < 20; i++ {
		monitor.RunChecks(context.Background())
	}

	health, ok := monitor.GetSourceHealth("dead")
	require.True(t, ok)
	assert.InDelta(t, 1.0, health.ErrorRate, 1e-9)
	assert.False(t, health.Healthy)
}

func TestMonitor_IssueRaisedAndResolved(t *testing.T) {
	adapter := newSim(t, "flaky")
	mgr := &fakeManager{
		adapters: map[string]sources.Adapter{"flaky": adapter},
		statuses: map[string]manager.FeedStatus{"SOL": {Symbol: "SOL"}},
	}
	monitor := newTestMonitor(mgr)

	adapter.SetPingError(sources.ErrSourceUnavailable)
	for i := 0; i < 6; i++ { // error rate passes the 0.5 threshold
		monitor.RunChecks(context.Background())
	}

	snapshot := monitor.GetSystemHealth()
	require.Len(t, snapshot.Issues, 1)
	assert.Equal(t, "flaky", snapshot.Issues[0].Source)
	assert.False(t, snapshot.Issues[0].Resolved)

	adapter.SetPingError(nil)
	for i := 0; i < 3; i++ { // decay back under the threshold
		monitor.RunChecks(context.Background())
	}

	snapshot = monitor.GetSystemHealth()
	assert.Empty(t, snapshot.Issues)

	history := monitor.IssueHistory()
	require.Len(t, history, 1)
	assert.True(t, history[0].Resolved)
	assert.False(t, history[0].ResolvedAt.IsZero())
}

func TestMonitor_SystemHealthBands(t *testing.T) {
	tests := []struct {
		name     string
		statuses map[string]manager.FeedStatus
		status   string
		percent  float64
	}{
		{
			name: "all healthy",
			statuses: map[string]manager.FeedStatus{
				"A": {Status: manager.StatusHealthy},
				"B": {Status: manager.StatusHealthy},
			},
			status:  "healthy",
			percent: 100,
		},
		{
			name: "half healthy",
			statuses: map[string]manager.FeedStatus{
				"A": {Status: manager.StatusHealthy},
				"B": {Status: manager.StatusDegraded},
			},
			status:  "degraded",
			percent: 50,
		},
		{
			name: "mostly failed",
			statuses: map[string]manager.FeedStatus{
				"A": {Status: manager.StatusHealthy},
				"B": {Status: manager.StatusFailed},
				"C": {Status: manager.StatusFailed},
				"D": {Status: manager.StatusFailed},
			},
			status:  "critical",
			percent: 25,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			monitor := newTestMonitor(&fakeManager{statuses: tc.statuses})
			snapshot := monitor.GetSystemHealth()

			assert.Equal(t, tc.status, snapshot.Status)
			assert.InDelta(t, tc.percent, snapshot.HealthPercentage, 1e-9)
			assert.Equal(t, len(tc.statuses), snapshot.TotalFeeds)
		})
	}
}

func TestMonitor_StartStop(t *testing.T) {
	adapter := newSim(t, "ok")
	mgr := &fakeManager{
		adapters: map[string]sources.Adapter{"ok": adapter},
		statuses: map[string]manager.FeedStatus{"SOL": {Status: manager.StatusHealthy}},
	}
	monitor := NewMonitor(mgr, 10*time.Millisecond, time.Second, logging.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	monitor.Stop()

	health, ok := monitor.GetSourceHealth("ok")
	require.True(t, ok)
	assert.True(t, health.Healthy)

	// Stop twice is safe.
	monitor.Stop()
}
