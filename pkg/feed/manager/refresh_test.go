package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedcore/pricefeed-go/pkg/config"
	"github.com/feedcore/pricefeed-go/pkg/feed/sources"
)

func TestManager_StartRefreshFetchesPeriodically(t *testing.T) {
	primary := simAdapter(t, "primary", map[string]string{"SOL": "100"})

	feed := solFeed("primary")
	feed.RefreshInterval = config.Duration(100 * time.Millisecond)
	mgr := newTestManager(t, testConfig(feed),
		map[string]sources.Adapter{"primary": primary})

	require.NoError(t, mgr.StartRefresh())
	defer mgr.StopAllRefresh()

	// Starting twice is a no-op.
	require.NoError(t, mgr.StartRefresh())

	deadline := time.Now().Add(2 * time.Second)
	for primary.CallCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	assert.Greater(t, primary.CallCount(), 0)

	status := mgr.GetFeedStatus("SOL")
	require.NotNil(t, status)
	assert.Equal(t, StatusHealthy, status.Status)
}

func TestManager_StopAllRefreshHaltsFetching(t *testing.T) {
	primary := simAdapter(t, "primary", map[string]string{"SOL": "100"})

	feed := solFeed("primary")
	feed.RefreshInterval = config.Duration(50 * time.Millisecond)
	mgr := newTestManager(t, testConfig(feed),
		map[string]sources.Adapter{"primary": primary})

	require.NoError(t, mgr.StartRefresh())

	deadline := time.Now().Add(2 * time.Second)
	for primary.CallCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	mgr.StopAllRefresh()

	calls := primary.CallCount()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, calls, primary.CallCount())

	// Stop twice is safe.
	mgr.StopAllRefresh()
}

func TestManager_CleanupClearsState(t *testing.T) {
	primary := simAdapter(t, "primary", map[string]string{"SOL": "100"})
	mgr := newTestManager(t, testConfig(solFeed("primary")),
		map[string]sources.Adapter{"primary": primary})

	updates := make(chan PriceUpdate, 1)
	mgr.Subscribe(updates)

	_, err := mgr.GetPrice(context.Background(), "SOL", false)
	require.NoError(t, err)
	<-updates

	mgr.Cleanup()

	_, ok := mgr.LastKnown("SOL")
	assert.False(t, ok)

	// Subscribers are dropped; a new fetch must not deliver.
	_, err = mgr.GetPrice(context.Background(), "SOL", true)
	require.NoError(t, err)
	select {
	case <-updates:
		t.Fatal("cleaned-up manager notified a dropped subscriber")
	default:
	}
}
