// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery outcomes recorded by the dispatcher.
const (
	OutcomeProcessed = "processed"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Recorder is the interface the dispatcher records through. It exists so
// service code depends on one method, not on the prometheus client.
type Recorder interface {
	RecordDelivery(outcome string)
	RecordLogin(success bool)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	deliveries *prometheus.CounterVec
	logins     *prometheus.CounterVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
// Tests pass prometheus.NewRegistry() to avoid collisions with the
// default registry across test cases.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autohook_deliveries_total",
			Help: "Inbound webhook deliveries by outcome.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autohook_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(c.deliveries, c.logins)
	return c
}

// RecordDelivery counts one inbound delivery with the given outcome.
func (c *Collector) RecordDelivery(outcome string) {
	c.deliveries.WithLabelValues(outcome).Inc()
}

// RecordLogin counts one login attempt.
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// Handler returns the HTTP handler serving the given registry at /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
