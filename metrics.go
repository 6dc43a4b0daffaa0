// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kproducer

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "kproducer"
	metricsSubsystem = "producer"

	// errorTypeNone labels successful deliveries.
	errorTypeNone = "none"
)

// Metrics exports producer activity to Prometheus.  It is fed by the
// producer's listeners; see Attach.
type Metrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	deliveries      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	faults          *prometheus.CounterVec
	transportErrors prometheus.Counter
}

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// NewMetrics creates the collectors.  A nil registerer means the default
// registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &Metrics{
		registerer: registerer,
		deliveries: newCounterVec("deliveries_total",
			"Delivery reports received, by topic and error type", []string{"topic", "error_type"}),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "delivery_latency_seconds",
				Help:      "Time from the produce call to its delivery report",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"topic"},
		),
		faults: newCounterVec("handler_faults_total",
			"Panics recovered from delivery handlers and listeners", []string{"topic"}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "transport_errors_total",
			Help:      "Transport level errors such as failed broker connections",
		}),
	}
}

// Register registers the collectors.  Safe to call multiple times.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.deliveries,
		m.latency,
		m.faults,
		m.transportErrors,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// Attach subscribes the metrics to p's listeners.  The returned function
// detaches them.
func (m *Metrics) Attach(p *Producer) func() {
	cancels := []func(){
		p.AddDeliveryListener(m.ObserveDelivery),
		p.AddFaultListener(m.ObserveFault),
		p.AddErrorListener(m.ObserveError),
	}

	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// ObserveDelivery records one delivery event.
func (m *Metrics) ObserveDelivery(e *DeliveryEvent) {
	label := e.ErrorType
	if label == "" {
		label = errorTypeNone
	}

	m.deliveries.WithLabelValues(e.Topic, label).Inc()
	if e.Latency > 0 {
		m.latency.WithLabelValues(e.Topic).Observe(e.Latency.Seconds())
	}
}

// ObserveFault records one recovered handler panic.
func (m *Metrics) ObserveFault(e *FaultEvent) {
	m.faults.WithLabelValues(e.Topic).Inc()
}

// ObserveError records one transport error.
func (m *Metrics) ObserveError(error) {
	m.transportErrors.Inc()
}
