package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// refreshJobTimeout bounds one scheduled refresh cycle.
const refreshJobTimeout = 30 * time.Second

type refreshEntry struct {
	id       cron.EntryID
	interval time.Duration
}

type refreshRunner struct {
	cron *cron.Cron
}

// StartRefresh starts one periodic refresh schedule per configured feed,
// keyed by that feed's refresh interval. Calling it twice is a no-op.
func (m *Manager) StartRefresh() error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if m.refreshRunner != nil {
		return nil
	}
	runner := &refreshRunner{cron: cron.New()}

	m.mu.RLock()
	feeds := make(map[string]time.Duration, len(m.feeds))
	for symbol, cfg := range m.feeds {
		feeds[symbol] = cfg.RefreshInterval.ToDuration()
	}
	m.mu.RUnlock()

	for symbol, interval := range feeds {
		id, err := runner.cron.AddFunc(cronSpec(interval), m.refreshJob(symbol))
		if err != nil {
			return fmt.Errorf("failed to schedule refresh for %s: %w", symbol, err)
		}
		m.refreshEntries[symbol] = refreshEntry{id: id, interval: interval}
	}

	runner.cron.Start()
	m.refreshRunner = runner
	m.logger.Info("Started refresh schedules", "feeds", len(feeds))
	return nil
}

// StopAllRefresh cancels every refresh schedule and waits for in-flight jobs
// so no goroutines are leaked.
func (m *Manager) StopAllRefresh() {
	m.refreshMu.Lock()
	runner := m.refreshRunner
	m.refreshRunner = nil
	m.refreshEntries = make(map[string]refreshEntry)
	m.refreshMu.Unlock()

	if runner == nil {
		return
	}
	<-runner.cron.Stop().Done()
	m.logger.Info("Stopped all refresh schedules")
}

// rescheduleRefresh replaces a symbol's schedule when its interval changes.
// A no-op when the refresh runner is not started.
func (m *Manager) rescheduleRefresh(symbol string, interval time.Duration) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if m.refreshRunner == nil {
		return
	}
	if entry, ok := m.refreshEntries[symbol]; ok {
		if entry.interval == interval {
			return
		}
		m.refreshRunner.cron.Remove(entry.id)
	}
	id, err := m.refreshRunner.cron.AddFunc(cronSpec(interval), m.refreshJob(symbol))
	if err != nil {
		m.logger.Error("Failed to reschedule refresh", "symbol", symbol, "error", err.Error())
		return
	}
	m.refreshEntries[symbol] = refreshEntry{id: id, interval: interval}
}

func (m *Manager) refreshJob(symbol string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshJobTimeout)
		defer cancel()
		if _, err := m.GetPrice(ctx, symbol, true); err != nil {
			m.logger.Warn("Scheduled refresh failed", "symbol", symbol, "error", err.Error())
		}
	}
}

func cronSpec(interval time.Duration) string {
	return "@every " + interval.String()
}

// Subscribe registers a channel to receive price updates after every
// successful fetch cycle.
func (m *Manager) Subscribe(ch chan<- PriceUpdate) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	m.subscribers = append(m.subscribers, ch)
}

// Unsubscribe removes a previously registered channel.
func (m *Manager) Unsubscribe(ch chan<- PriceUpdate) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	for i, subscriber := range m.subscribers {
		if subscriber == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			break
		}
	}
}

func (m *Manager) notifySubscribers(update PriceUpdate) {
	m.subscribersMu.RLock()
	defer m.subscribersMu.RUnlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- update:
		default:
			// Channel full, skip
			m.logger.Warn("Subscriber channel full, skipping update", "symbol", update.Symbol)
		}
	}
}

// Cleanup stops all background work and drops cached state. The manager must
// not be used after Cleanup returns.
func (m *Manager) Cleanup() {
	m.StopAllRefresh()

	m.subscribersMu.Lock()
	m.subscribers = nil
	m.subscribersMu.Unlock()

	m.mu.Lock()
	m.cache = make(map[string]cacheEntry)
	m.mu.Unlock()

	m.logger.Info("Feed manager cleaned up")
}
