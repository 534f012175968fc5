// Package outbox entrega al broker los eventos que el libro escribió en la misma transacción
// del commit. La entrega es al-menos-una-vez: un consumidor debe deduplicar por ce-id.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// Publisher destino de los eventos (Kafka en producción).
type Publisher interface {
	Publish(ctx context.Context, e *entity.OutboxEvent) error
}

// Recorder métricas del relay.
type Recorder interface {
	OutboxPublished(eventType string, ok bool, elapsed time.Duration)
	OutboxPending(n int)
}

type nopRecorder struct{}

func (nopRecorder) OutboxPublished(string, bool, time.Duration) {}
func (nopRecorder) OutboxPending(int)                           {}

// Config del relay y de su circuit breaker.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int

	BreakerFailures uint32        // fallas consecutivas que abren el circuito
	BreakerTimeout  time.Duration // tiempo abierto antes de probar de nuevo
}

// DefaultConfig valores por defecto.
func DefaultConfig() Config {
	return Config{
		PollInterval:    time.Second,
		BatchSize:       100,
		MaxRetries:      10,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Relay sondea el outbox y publica. Debe correr una sola instancia por base de datos.
type Relay struct {
	repo    repository.OutboxRepository
	pub     Publisher
	cb      *gobreaker.CircuitBreaker
	metrics Recorder
	log     *logger.Logger
	cfg     Config
}

// NewRelay construye el relay. repo debe operar fuera de transacción.
func NewRelay(repo repository.OutboxRepository, pub Publisher, log *logger.Logger, cfg Config) *Relay {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = def.BreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Component("outbox")

	r := &Relay{repo: repo, pub: pub, metrics: nopRecorder{}, log: log, cfg: cfg}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-publisher",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker cambió de estado")
		},
	})
	return r
}

// WithRecorder instala el receptor de métricas.
func (r *Relay) WithRecorder(m Recorder) *Relay {
	if m != nil {
		r.metrics = m
	}
	return r
}

// Run sondea hasta que ctx se cancele.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.cfg.PollInterval).Int("batch", r.cfg.BatchSize).Msg("relay de outbox iniciado")
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("relay de outbox detenido")
			return nil
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Error().Err(err).Msg("no se pudo procesar el lote del outbox")
			}
		}
	}
}

// ProcessBatch publica un lote de pendientes en orden de creación y devuelve cuántos salieron.
// Con el circuito abierto corta el lote sin gastar reintentos.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	events, err := r.repo.FindUnpublished(ctx, r.cfg.BatchSize, r.cfg.MaxRetries)
	if err != nil {
		return 0, err
	}
	r.metrics.OutboxPending(len(events))

	published := 0
	for _, e := range events {
		start := time.Now()
		_, err := r.cb.Execute(func() (interface{}, error) {
			return nil, r.pub.Publish(ctx, e)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.log.Warn().Str("event_id", e.ID).Msg("circuit breaker abierto, se corta el lote")
			break
		}
		r.metrics.OutboxPublished(e.EventType, err == nil, time.Since(start))

		if err != nil {
			r.log.Error().Err(err).Str("event_id", e.ID).Str("event_type", e.EventType).Int("retry", e.RetryCount+1).Msg("falló la publicación del evento")
			if rerr := r.repo.IncrementRetry(ctx, e.ID, err.Error()); rerr != nil {
				r.log.Error().Err(rerr).Str("event_id", e.ID).Msg("no se pudo registrar el reintento")
			}
			continue
		}
		if err := r.repo.MarkPublished(ctx, e.ID); err != nil {
			r.log.Error().Err(err).Str("event_id", e.ID).Msg("no se pudo marcar el evento como publicado")
			continue
		}
		published++
	}
	return published, nil
}

// State estado actual del circuit breaker (para /health).
func (r *Relay) State() string {
	return r.cb.State().String()
}
