package services

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/naisu-labs/naisu/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const metricsUpdateInterval = 15 * time.Second

// MetricsService handles Prometheus metrics collection and exposition
type MetricsService struct {
	// listener gauges, refreshed from GetMetrics snapshots
	listenersUp              *prometheus.GaugeVec
	activeGoroutines         *prometheus.GaugeVec
	subscriptionCount        *prometheus.GaugeVec
	eventsProcessedTotal     *prometheus.GaugeVec
	eventsSkippedTotal       *prometheus.GaugeVec
	processingErrorsTotal    *prometheus.GaugeVec
	reconnectionCount        *prometheus.GaugeVec
	lastEventTimestamp       *prometheus.GaugeVec
	timeSinceLastEvent       *prometheus.GaugeVec
	lastHealthCheckTimestamp *prometheus.GaugeVec

	// pipeline metrics, updated as things happen
	intentStatusTotal *prometheus.CounterVec
	auctionBidsTotal  *prometheus.CounterVec
	attestationWait   prometheus.Histogram

	listeners map[uint64]*HookListenerService
	mu        sync.RWMutex
	logger    zerolog.Logger
	registry  *prometheus.Registry
}

// NewMetricsService creates a new metrics service
func NewMetricsService(logger zerolog.Logger) *MetricsService {
	registry := prometheus.NewRegistry()

	chainGauge := func(name, help string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: name, Help: help},
			[]string{"chain_id", "chain_name"},
		)
		registry.MustRegister(g)
		return g
	}

	m := &MetricsService{
		listenersUp: chainGauge(
			"naisu_hook_listeners_up",
			"Whether hook listeners are healthy (1 = healthy, 0 = unhealthy)",
		),
		activeGoroutines: chainGauge(
			"naisu_active_goroutines",
			"Number of active listener goroutines per chain",
		),
		subscriptionCount: chainGauge(
			"naisu_subscriptions_active",
			"Number of active log subscriptions (or healthy pollers) per chain",
		),
		eventsProcessedTotal: chainGauge(
			"naisu_events_processed_total",
			"Total number of hook events processed per chain",
		),
		eventsSkippedTotal: chainGauge(
			"naisu_events_skipped_total",
			"Total number of hook events skipped (duplicates) per chain",
		),
		processingErrorsTotal: chainGauge(
			"naisu_processing_errors_total",
			"Total number of processing errors per chain",
		),
		reconnectionCount: chainGauge(
			"naisu_reconnections_total",
			"Total number of reconnections per chain",
		),
		lastEventTimestamp: chainGauge(
			"naisu_last_event_timestamp",
			"Timestamp of the last processed event per chain",
		),
		timeSinceLastEvent: chainGauge(
			"naisu_time_since_last_event_seconds",
			"Time in seconds since the last processed event per chain",
		),
		lastHealthCheckTimestamp: chainGauge(
			"naisu_last_health_check_timestamp",
			"Timestamp of the last health check per chain",
		),
		intentStatusTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naisu_intent_status_total",
				Help: "Intent status transitions by direction and status",
			},
			[]string{"direction", "status"},
		),
		auctionBidsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "naisu_auction_bids_total",
				Help: "Accepted solver bids and fills by auction kind",
			},
			[]string{"kind"},
		),
		attestationWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "naisu_attestation_wait_seconds",
			Help:    "Time spent waiting for CCTP attestations",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		listeners: make(map[uint64]*HookListenerService),
		logger:    logger,
		registry:  registry,
	}

	registry.MustRegister(m.intentStatusTotal, m.auctionBidsTotal, m.attestationWait)

	return m
}

// RegisterListener registers a hook listener for metrics collection
func (m *MetricsService) RegisterListener(chainID uint64, listener *HookListenerService) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners[chainID] = listener
	m.logger.Info().Uint64("chain_id", chainID).Msg("Registered hook listener in metrics collector")
}

// UnregisterListener removes a hook listener from metrics collection
func (m *MetricsService) UnregisterListener(chainID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.listeners, chainID)
	m.logger.Info().Uint64("chain_id", chainID).Msg("Unregistered hook listener from metrics collector")
}

// GetChainName returns a human-readable chain name for metrics labels
func (m *MetricsService) GetChainName(chainID uint64) string {
	chain, err := models.EvmChainFromID(chainID)
	if err != nil {
		return "chain_" + strconv.FormatUint(chainID, 10)
	}
	return string(chain)
}

// ObserveIntentStatus counts an intent reaching a status
func (m *MetricsService) ObserveIntentStatus(direction models.Direction, status models.IntentStatus) {
	m.intentStatusTotal.WithLabelValues(string(direction), string(status)).Inc()
}

// ObserveBid counts an accepted bid or fill
func (m *MetricsService) ObserveBid(kind models.AuctionKind) {
	m.auctionBidsTotal.WithLabelValues(string(kind)).Inc()
}

// ObserveAttestationWait records how long an attestation took to become available
func (m *MetricsService) ObserveAttestationWait(d time.Duration) {
	m.attestationWait.Observe(d.Seconds())
}

// UpdateMetrics collects and updates all gauges from registered listeners
func (m *MetricsService) UpdateMetrics() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()

	for chainID, listener := range m.listeners {
		if listener == nil {
			continue
		}

		metrics := listener.GetMetrics()
		chainName := m.GetChainName(chainID)
		chainIDStr := strconv.FormatUint(chainID, 10)

		if metrics.IsHealthy {
			m.listenersUp.WithLabelValues(chainIDStr, chainName).Set(1)
		} else {
			m.listenersUp.WithLabelValues(chainIDStr, chainName).Set(0)
		}

		m.activeGoroutines.WithLabelValues(chainIDStr, chainName).Set(float64(metrics.ActiveGoroutines))

		// polling listeners have no subscription, report 1 while polling works
		if metrics.Polling {
			if metrics.PollingHealthy {
				m.subscriptionCount.WithLabelValues(chainIDStr, chainName).Set(1)
			} else {
				m.subscriptionCount.WithLabelValues(chainIDStr, chainName).Set(0)
			}
		} else {
			m.subscriptionCount.WithLabelValues(chainIDStr, chainName).Set(float64(metrics.SubscriptionCount))
		}

		// counters reset on restart, so these are gauges of the current values
		m.eventsProcessedTotal.WithLabelValues(chainIDStr, chainName).Set(float64(metrics.EventsProcessed))
		m.eventsSkippedTotal.WithLabelValues(chainIDStr, chainName).Set(float64(metrics.EventsSkipped))
		m.processingErrorsTotal.WithLabelValues(chainIDStr, chainName).Set(float64(metrics.ProcessingErrors))
		m.reconnectionCount.WithLabelValues(chainIDStr, chainName).Set(float64(metrics.ReconnectionCount))

		if !metrics.LastEventTime.IsZero() {
			m.lastEventTimestamp.WithLabelValues(chainIDStr, chainName).Set(float64(metrics.LastEventTime.Unix()))
			m.timeSinceLastEvent.WithLabelValues(chainIDStr, chainName).Set(now.Sub(metrics.LastEventTime).Seconds())
		}

		if !metrics.LastHealthCheck.IsZero() {
			m.lastHealthCheckTimestamp.WithLabelValues(chainIDStr, chainName).Set(float64(metrics.LastHealthCheck.Unix()))
		}
	}
}

// StartMetricsUpdater starts a goroutine that periodically updates metrics
func (m *MetricsService) StartMetricsUpdater(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(metricsUpdateInterval)
		defer ticker.Stop()

		m.logger.Info().Msg("Started Prometheus metrics updater")

		for {
			select {
			case <-ticker.C:
				m.UpdateMetrics()
			case <-ctx.Done():
				m.logger.Info().Msg("Stopped Prometheus metrics updater")
				return
			}
		}
	}()
}

// GetHandler returns the Prometheus metrics HTTP handler
func (m *MetricsService) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// GetMetricsSummary returns a summary of listener metrics for debugging
func (m *MetricsService) GetMetricsSummary() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chainMetrics := make(map[string]any, len(m.listeners))

	for chainID, listener := range m.listeners {
		if listener == nil {
			continue
		}

		metrics := listener.GetMetrics()

		chainMetrics[m.GetChainName(chainID)] = map[string]any{
			"chain_id":              chainID,
			"is_healthy":            metrics.IsHealthy,
			"polling":               metrics.Polling,
			"active_goroutines":     metrics.ActiveGoroutines,
			"subscription_count":    metrics.SubscriptionCount,
			"events_processed":      metrics.EventsProcessed,
			"events_skipped":        metrics.EventsSkipped,
			"processing_errors":     metrics.ProcessingErrors,
			"reconnection_count":    metrics.ReconnectionCount,
			"last_event_time":       metrics.LastEventTime,
			"last_health_check":     metrics.LastHealthCheck,
			"time_since_last_event": metrics.TimeSinceLastEvent,
		}
	}

	return map[string]any{
		"chains":       chainMetrics,
		"total_chains": len(m.listeners),
		"timestamp":    time.Now(),
	}
}
