// Package metrics exposes Prometheus collectors for registrations and schedulers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "batch_registry"

// Metrics groups the collectors; a nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registrations   *prometheus.CounterVec
	events          *prometheus.CounterVec
	applications    prometheus.Gauge
	schedulersArmed prometheus.Gauge
	jobRuns         *prometheus.CounterVec
}

func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Application registrations by result (new, refreshed, rejected, failed).",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_events_total",
			Help:      "Registration events published by type.",
		}, []string{"type"}),
		applications: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "applications",
			Help:      "Applications currently registered.",
		}),
		schedulersArmed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schedulers_armed",
			Help:      "Scheduler handles with a live trigger.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and result.",
		}, []string{"job", "result"}),
	}

	if registerer != nil {
		registerer.MustRegister(m.registrations, m.events, m.applications, m.schedulersArmed, m.jobRuns)
	}

	return m
}

func (m *Metrics) RegistrationResult(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SetApplications(n int) {
	if m == nil {
		return
	}
	m.applications.Set(float64(n))
}

func (m *Metrics) SetSchedulersArmed(n int) {
	if m == nil {
		return
	}
	m.schedulersArmed.Set(float64(n))
}

func (m *Metrics) JobRun(job, result string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}
