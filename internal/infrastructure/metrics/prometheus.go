// Package metrics métricas Prometheus del libro y del relay de outbox.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implementa inventory.Recorder y outbox.Recorder sobre un registro propio.
type Metrics struct {
	registry *prometheus.Registry

	commands            *prometheus.CounterVec
	commandDuration     *prometheus.HistogramVec
	lockTimeouts        prometheus.Counter
	invariantViolations prometheus.Counter
	outboxPublished     *prometheus.CounterVec
	outboxPublishTime   prometheus.Histogram
	outboxPending       prometheus.Gauge
}

// New crea el registro con los collectors de Go y de proceso más los del libro.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_commands_total",
			Help: "Comandos de stock ejecutados por tipo y resultado.",
		}, []string{"command", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_command_duration_seconds",
			Help:    "Duración de Execute incluida la espera del bloqueo.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		lockTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_lock_timeouts_total",
			Help: "Comandos que no obtuvieron el bloqueo del saldo a tiempo.",
		}),
		invariantViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_invariant_violations_total",
			Help: "Violaciones de invariante de saldo detectadas antes del commit.",
		}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_outbox_published_total",
			Help: "Eventos del outbox enviados al broker por resultado.",
		}, []string{"event_type", "outcome"}),
		outboxPublishTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_outbox_publish_duration_seconds",
			Help:    "Duración de cada publicación al broker.",
			Buckets: prometheus.DefBuckets,
		}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_outbox_pending",
			Help: "Eventos pendientes en el último sondeo del relay.",
		}),
	}
	registry.MustRegister(
		m.commands, m.commandDuration, m.lockTimeouts, m.invariantViolations,
		m.outboxPublished, m.outboxPublishTime, m.outboxPending,
	)
	return m
}

func (m *Metrics) ObserveCommand(command, outcome string, elapsed time.Duration) {
	m.commands.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) LockTimeout()        { m.lockTimeouts.Inc() }
func (m *Metrics) InvariantViolation() { m.invariantViolations.Inc() }

func (m *Metrics) OutboxPublished(eventType string, ok bool, elapsed time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.outboxPublished.WithLabelValues(eventType, outcome).Inc()
	m.outboxPublishTime.Observe(elapsed.Seconds())
}

func (m *Metrics) OutboxPending(n int) { m.outboxPending.Set(float64(n)) }

// Handler expone el registro en formato Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry para tests y para registrar collectors adicionales.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
