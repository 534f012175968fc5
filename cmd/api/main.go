package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/application/usecase"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/kafka"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/memory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/metrics"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/outbox"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	infraredis "github.com/jhoicas/stock-ledger/internal/infrastructure/redis"
	httpRouter "github.com/jhoicas/stock-ledger/internal/interfaces/http"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

const swaggerFile = "./docs/swagger.json"

// storage repositorios de lectura, el runner transaccional y el outbox para el relay.
type storage struct {
	txRunner     inventory.TxRunner
	products     repository.ProductRepository
	balances     repository.StockBalanceRepository
	transactions repository.StockTransactionRepository
	lots         repository.LotRepository
	outbox       repository.OutboxRepository
	close        func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	level := cfg.App.LogLevel
	if level == "" {
		level = "info"
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: level})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("storage", cfg.DB.Driver).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("almacenamiento")
	}
	defer store.close()

	idempotency := openIdempotency(ctx, cfg, log)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	ledger := inventory.NewLedger(
		store.txRunner, store.products, store.balances, store.transactions, store.lots,
		idempotency, log, inventory.Config{
			DefaultStrategy: cfg.Ledger.DefaultStrategy,
			IdempotencyTTL:  cfg.Redis.IdempotencyTTL,
			PendingTTL:      cfg.Redis.PendingTTL,
		},
	)
	if m != nil {
		ledger.WithRecorder(m)
	}
	productUC := usecase.NewProductUseCase(store.products)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 10,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	if _, err := os.Stat(swaggerFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/",
			FilePath: swaggerFile,
			Path:     "docs",
			Title:    "Stock Ledger API",
		}))
	}

	httpRouter.Router(app, httpRouter.RouterDeps{
		AppName:   cfg.App.Name,
		Ledger:    ledger,
		ProductUC: productUC,
		Metrics:   m,
		JWTSecret: cfg.JWT.Secret,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.Listen(cfg.HTTP.Addr())
	})

	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(kafka.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			Source:       cfg.App.Name,
			RequiredAcks: -1,
		})
		defer func() {
			if err := producer.Close(); err != nil {
				log.Warn().Err(err).Msg("cerrar productor kafka")
			}
		}()
		relay := outbox.NewRelay(store.outbox, producer, log, outbox.Config{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
			MaxRetries:   cfg.Outbox.MaxRetries,
		})
		if m != nil {
			relay.WithRecorder(m)
		}
		g.Go(func() error { return relay.Run(gctx) })
	} else {
		log.Warn().Msg("KAFKA_BROKERS vacío: los eventos quedan en el outbox sin publicar")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("señal de apagado recibida, cerrando servidor...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("aplicación finalizada con error")
	}
	log.Info().Msg("aplicación detenida")
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.DB.Driver == config.StorageMemory {
		mem := memory.NewStore(cfg.Ledger.LockTimeout)
		return &storage{
			txRunner:     mem,
			products:     mem.Products(),
			balances:     mem.Balances(),
			transactions: mem.Transactions(),
			lots:         mem.Lots(),
			outbox:       mem.Outbox(),
			close:        func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &storage{
		txRunner:     postgres.NewTxRunner(pool, cfg.Ledger.LockTimeout),
		products:     postgres.NewProductRepository(pool),
		balances:     postgres.NewStockBalanceRepository(pool),
		transactions: postgres.NewStockTransactionRepository(pool),
		lots:         postgres.NewLotRepository(pool),
		outbox:       postgres.NewOutboxRepository(pool),
		close:        pool.Close,
	}, nil
}

// openIdempotency Redis si está configurado y responde; si no, el chequeo durable bajo
// bloqueo sigue cubriendo las llaves repetidas.
func openIdempotency(ctx context.Context, cfg *config.Config, log *logger.Logger) inventory.IdempotencyStore {
	if cfg.DB.Driver == config.StorageMemory {
		return memory.NewIdempotencyStore()
	}
	if !cfg.Redis.Enabled() {
		return infraredis.NewNoopIdempotencyStore()
	}
	client, err := infraredis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis no disponible, solo idempotencia durable")
		return infraredis.NewNoopIdempotencyStore()
	}
	return infraredis.NewIdempotencyStore(client, "")
}
