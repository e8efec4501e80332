// Package poller provides background watching of data-set deliveries for
// active coordination rounds.
package poller

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/researchportal/datashare-coordinator/internal/coordination"
	"github.com/researchportal/datashare-coordinator/internal/telemetry"
)

const (
	// basePollingInterval is the base interval at which the watcher checks for deliveries
	basePollingInterval = 2 * time.Minute
	// pollingJitter is the maximum random offset applied to the polling interval
	pollingJitter = 30 * time.Second
	// maxPollAttempts bounds the retries of one poll pass against a flaky endpoint
	maxPollAttempts = 3
)

// DeliverySource is the slice of the coordination service the watcher needs.
type DeliverySource interface {
	PollReceivedDataSets(ctx context.Context, businessKey string, since *time.Time) ([]coordination.ReceivedDataSet, error)
}

// Notifier receives every newly observed delivery notification.
type Notifier func(dataSet coordination.ReceivedDataSet)

// Watcher periodically polls the deliveries of all tracked coordination rounds.
type Watcher interface {
	// Track registers a coordination round for background watching
	Track(businessKey string)

	// Untrack removes a round from background watching
	Untrack(businessKey string)

	// Start begins background delivery watching.
	// Blocks until the context is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully stops the watcher
	Stop() error
}

type defaultWatcher struct {
	source   DeliverySource
	interval time.Duration
	notifier Notifier
	metrics  *telemetry.PollMetrics

	mu     sync.Mutex
	rounds map[string]*roundState

	cancelFunc context.CancelFunc
	done       chan struct{}
}

// roundState remembers what a round has already delivered, so restarts of the
// poll loop do not re-announce old notifications.
type roundState struct {
	since *time.Time
	seen  map[string]struct{}
}

// Option is a function that configures the watcher
type Option func(*defaultWatcher)

// WithInterval overrides the base polling interval
func WithInterval(interval time.Duration) Option {
	return func(w *defaultWatcher) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithNotifier sets the callback invoked for each new delivery
func WithNotifier(notifier Notifier) Option {
	return func(w *defaultWatcher) {
		w.notifier = notifier
	}
}

// WithPollMetrics sets the poll metrics for the watcher
func WithPollMetrics(metrics *telemetry.PollMetrics) Option {
	return func(w *defaultWatcher) {
		w.metrics = metrics
	}
}

// New creates a new delivery watcher with injected dependencies
func New(source DeliverySource, opts ...Option) Watcher {
	w := &defaultWatcher{
		source:   source,
		interval: basePollingInterval,
		rounds:   make(map[string]*roundState),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

func (w *defaultWatcher) Track(businessKey string) {
	if businessKey == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.rounds[businessKey]; ok {
		return
	}
	w.rounds[businessKey] = &roundState{seen: make(map[string]struct{})}
	slog.Info("Tracking coordination round", "business_key", businessKey)
}

func (w *defaultWatcher) Untrack(businessKey string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.rounds[businessKey]; ok {
		delete(w.rounds, businessKey)
		slog.Info("Stopped tracking coordination round", "business_key", businessKey)
	}
}

// calculatePollingInterval returns the base interval with a random jitter so
// multiple instances do not poll the delivery endpoint simultaneously.
func (w *defaultWatcher) calculatePollingInterval() time.Duration {
	jitter := pollingJitter
	if jitter >= w.interval {
		jitter = w.interval / 4
	}
	if jitter <= 0 {
		return w.interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return w.interval + jitterOffset
}

// Start begins background delivery watching for all tracked rounds
func (w *defaultWatcher) Start(ctx context.Context) error {
	slog.Info("Starting delivery watcher", "base_interval", w.interval)

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel
	defer func() {
		close(w.done)
		slog.Info("Delivery watcher shutting down")
	}()

	pollingInterval := w.calculatePollingInterval()
	slog.Info("Configured delivery watcher interval",
		"base_interval", w.interval,
		"actual_interval", pollingInterval)

	ticker := time.NewTicker(pollingInterval)
	defer ticker.Stop()

	w.pollAll(watchCtx)

	for {
		select {
		case <-ticker.C:
			w.pollAll(watchCtx)

			// Recalculate with new jitter for the next iteration
			ticker.Reset(w.calculatePollingInterval())
		case <-watchCtx.Done():
			slog.Info("Delivery watcher stopping")
			return nil
		}
	}
}

// Stop gracefully stops the watcher
func (w *defaultWatcher) Stop() error {
	if w.cancelFunc != nil {
		slog.Info("Stopping delivery watcher")
		w.cancelFunc()
		<-w.done
	}
	return nil
}

// pollAll polls the deliveries of every tracked round once
func (w *defaultWatcher) pollAll(ctx context.Context) {
	for _, businessKey := range w.trackedKeys() {
		if ctx.Err() != nil {
			return
		}
		w.pollRound(ctx, businessKey)
	}
}

func (w *defaultWatcher) trackedKeys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	keys := make([]string, 0, len(w.rounds))
	for key := range w.rounds {
		keys = append(keys, key)
	}
	return keys
}

// pollRound fetches the deliveries of one round, retrying transient failures,
// and announces every notification not seen before.
func (w *defaultWatcher) pollRound(ctx context.Context, businessKey string) {
	since := w.roundSince(businessKey)
	startTime := time.Now()

	operation := func() ([]coordination.ReceivedDataSet, error) {
		return w.source.PollReceivedDataSets(ctx, businessKey, since)
	}

	dataSets, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxPollAttempts),
	)

	w.metrics.RecordPoll(ctx, time.Since(startTime), err == nil)

	if err != nil {
		slog.Error("Failed to poll deliveries",
			"business_key", businessKey,
			"error", err)
		return
	}

	newDataSets := w.recordDeliveries(businessKey, dataSets, startTime)
	if len(newDataSets) == 0 {
		return
	}

	w.metrics.RecordDataSets(ctx, int64(len(newDataSets)))
	slog.Info("Observed new data-set deliveries",
		"business_key", businessKey,
		"count", len(newDataSets))

	if w.notifier != nil {
		for _, dataSet := range newDataSets {
			w.notifier(dataSet)
		}
	}
}

func (w *defaultWatcher) roundSince(businessKey string) *time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, ok := w.rounds[businessKey]
	if !ok {
		return nil
	}
	return state.since
}

// recordDeliveries merges a poll result into the round state and returns the
// notifications that were not seen before. The round may have been untracked
// while the poll was in flight; its results are dropped then.
func (w *defaultWatcher) recordDeliveries(
	businessKey string,
	dataSets []coordination.ReceivedDataSet,
	polledAt time.Time,
) []coordination.ReceivedDataSet {
	w.mu.Lock()
	defer w.mu.Unlock()

	state, ok := w.rounds[businessKey]
	if !ok {
		return nil
	}

	var fresh []coordination.ReceivedDataSet
	for _, dataSet := range dataSets {
		key := dataSet.DICIdentifier + "\x00" + dataSet.DataSetURL
		if _, seen := state.seen[key]; seen {
			continue
		}
		state.seen[key] = struct{}{}
		fresh = append(fresh, dataSet)
	}

	// The engine applies a lookback window to the reference time, so
	// advancing it to the poll start cannot skip in-flight updates.
	since := polledAt
	state.since = &since

	return fresh
}
