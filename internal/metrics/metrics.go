// Package metrics registers the Prometheus instruments for the core
// runtime. Everything is registered once via promauto on construction;
// components that run without metrics simply pass a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus instruments for the Semptify core.
type Metrics struct {
	// Event bus
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	WebsocketsOpen  prometheus.Gauge

	// Context loop
	MailboxDropped  *prometheus.CounterVec
	EventsReduced   *prometheus.CounterVec
	IntensityScore  *prometheus.GaugeVec

	// Vault
	AccessDecisions *prometheus.CounterVec
	TamperDetected  prometheus.Counter

	// Storage
	StorageRetries *prometheus.CounterVec
}

// New creates and registers all instruments on the default registry.
func New() *Metrics {
	return &Metrics{
		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "semptify_events_published_total",
				Help: "Events accepted by the bus, by type",
			},
			[]string{"type"},
		),
		EventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "semptify_events_dropped_total",
				Help: "Events dropped by backpressure, by reason",
			},
			[]string{"reason"}, // queue_full, subscriber_slow, mailbox_full
		),
		WebsocketsOpen: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "semptify_websocket_clients",
				Help: "Currently connected websocket clients",
			},
		),
		MailboxDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "semptify_mailbox_dropped_total",
				Help: "Per-user mailbox drops, by user",
			},
			[]string{"user_id"},
		),
		EventsReduced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "semptify_events_reduced_total",
				Help: "Events processed by the context loop, by type and outcome",
			},
			[]string{"type", "outcome"}, // outcome: ok, reducer_error
		),
		IntensityScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "semptify_intensity_score",
				Help: "Aggregate intensity per user",
			},
			[]string{"user_id"},
		),
		AccessDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "semptify_vault_decisions_total",
				Help: "Vault access decisions, by action and decision",
			},
			[]string{"action", "decision"}, // decision: allowed, denied
		),
		TamperDetected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "semptify_vault_tamper_detected_total",
				Help: "Documents whose content hash stopped matching",
			},
		),
		StorageRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "semptify_storage_retries_total",
				Help: "Storage operation retries, by operation",
			},
			[]string{"op"},
		),
	}
}
