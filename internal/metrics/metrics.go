// Package metrics holds the prometheus collectors shared by the cache,
// connection and repository layers. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector of the module.
type Metrics struct {
	cacheLookups   *prometheus.CounterVec
	fetchAttempts  *prometheus.CounterVec
	fetchLatency   *prometheus.HistogramVec
	notifications  *prometheus.CounterVec
	poolSelections *prometheus.CounterVec
}

// New builds the collectors and registers them on reg. A nil reg leaves
// them unregistered. Collectors already registered by another Metrics are
// reused so several containers can share one registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docrepo_cache_lookups_total",
			Help: "Local cache lookups by outcome (hit, absent, miss)",
		}, []string{"namespace", "outcome"}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docrepo_backend_fetch_attempts_total",
			Help: "Backend reads by result (found, missing, error)",
		}, []string{"namespace", "result"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docrepo_backend_fetch_seconds",
			Help:    "Backend read latency including retries",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"namespace"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docrepo_notifications_total",
			Help: "Change notifications handled, by kind and result",
		}, []string{"namespace", "kind", "result"}),
		poolSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docrepo_pool_selections_total",
			Help: "Pool connection selections by strategy and path (fill, vote, redial)",
		}, []string{"strategy", "path"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.cacheLookups, err = register(reg, m.cacheLookups); err != nil {
		return nil, err
	}
	if m.fetchAttempts, err = register(reg, m.fetchAttempts); err != nil {
		return nil, err
	}
	if m.fetchLatency, err = register(reg, m.fetchLatency); err != nil {
		return nil, err
	}
	if m.notifications, err = register(reg, m.notifications); err != nil {
		return nil, err
	}
	if m.poolSelections, err = register(reg, m.poolSelections); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

// CacheLookup counts one local cache lookup.
func (m *Metrics) CacheLookup(namespace, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(namespace, outcome).Inc()
}

// FetchAttempt counts one backend read attempt.
func (m *Metrics) FetchAttempt(namespace, result string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(namespace, result).Inc()
}

// FetchDuration observes the time spent in a retrying backend read.
func (m *Metrics) FetchDuration(namespace string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchLatency.WithLabelValues(namespace).Observe(d.Seconds())
}

// Notification counts one handled change notification.
func (m *Metrics) Notification(namespace, kind, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(namespace, kind, result).Inc()
}

// PoolSelection counts one pool pick.
func (m *Metrics) PoolSelection(strategy, path string) {
	if m == nil {
		return
	}
	m.poolSelections.WithLabelValues(strategy, path).Inc()
}
