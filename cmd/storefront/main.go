package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/MateusMoreirac/Podscrebr/internal/repository"
	"github.com/MateusMoreirac/Podscrebr/internal/service"
	"github.com/MateusMoreirac/Podscrebr/internal/transport/http"
	"github.com/MateusMoreirac/Podscrebr/internal/transport/http/handler"
	storefrontKafka "github.com/MateusMoreirac/Podscrebr/internal/transport/kafka"
	"github.com/MateusMoreirac/Podscrebr/pkg/config"
	"github.com/MateusMoreirac/Podscrebr/pkg/db"
	kafka2 "github.com/MateusMoreirac/Podscrebr/pkg/kafka"
	"github.com/MateusMoreirac/Podscrebr/pkg/metrics"
	outbox "github.com/MateusMoreirac/Podscrebr/pkg/outbox/repository"
	"github.com/MateusMoreirac/Podscrebr/pkg/outbox/worker"
	"github.com/MateusMoreirac/Podscrebr/pkg/utils"
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, cfg.TracerConfig())
	if err != nil {
		log.Fatalf("Error init tracer: %v", err)
	}

	if err := db.Migrate(cfg.Postgres.URL, cfg.Postgres.MigrationsPath, logger); err != nil {
		log.Fatalf("Error running migrations: %v", err)
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres.URL, logger)
	if err != nil {
		log.Fatalf("Error creating new postgres DB: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})

	stockStore, stockMirror := newStockStore(cfg.Stock.Backend, pool, rdb, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	gateway := service.NewStockGateway(stockStore, utils.BreakerSettings{
		Name:         "stock-store",
		MaxRequests:  cfg.Stock.Breaker.MaxRequests,
		Interval:     cfg.Stock.Breaker.Interval,
		Timeout:      cfg.Stock.Breaker.Timeout,
		MinRequests:  cfg.Stock.Breaker.MinRequests,
		FailureRatio: cfg.Stock.Breaker.FailureRatio,
	}, logger)

	productRepository := repository.NewProductRepository(pool, logger)
	outboxRepository := outbox.NewOutboxRepository(logger)
	cartRepository := repository.NewCartRepository(rdb, cfg.Cart.TTL, logger)

	productService := service.NewProductService(
		productRepository,
		outboxRepository,
		gateway,
		stockMirror,
		pool,
		cfg.Kafka.ProductTopic,
		logger,
	)
	cachedProductService := service.NewCachedProductService(productService, rdb, logger)

	if _, err := cachedProductService.SyncStock(ctx); err != nil {
		log.Fatalf("Error syncing stock store: %v", err)
	}

	reconciler := service.NewReconciler(gateway, cfg.Stock.Concurrency, checkoutMetrics, logger)
	orderHandoff := service.NewOrderHandoff(service.HandoffConfig{
		StoreName: cfg.Handoff.StoreName,
		Phone:     cfg.Handoff.Phone,
		Topic:     cfg.Kafka.OrderTopic,
	}, pool, outboxRepository, logger)

	cartService := service.NewCartService(cartRepository, cachedProductService, logger)
	checkoutService := service.NewCheckoutService(
		cartRepository,
		reconciler,
		orderHandoff,
		cachedProductService,
		checkoutMetrics,
		logger,
	)

	kafkaProducer, err := kafka2.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepository, kafkaProducer, logger)
	go outboxProcessor.Start(ctx)

	consumer := storefrontKafka.NewConsumer(cachedProductService, pool, logger)
	go func() {
		if err := consumer.Start(ctx, cfg.Kafka.Brokers, cfg.Kafka.ConsumerGID, cfg.Kafka.OrderTopic); err != nil {
			logger.Error("Order events consumer stopped", zap.Error(err))
		}
	}()

	app := fiber.New()

	app.Use(otelfiber.Middleware())

	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
			})
		},
	}))

	handlers := &http.Handlers{
		Product:  handler.NewProductHandler(cachedProductService, cfg.HTTP.Timeout, logger),
		Cart:     handler.NewCartHandler(cartService, cfg.HTTP.Timeout, logger),
		Checkout: handler.NewCheckoutHandler(checkoutService, cfg.HTTP.Timeout, logger),
		Metrics:  adaptor.HTTPHandler(metrics.Handler(registry)),
	}

	http.RegisterRoutes(app, handlers)

	logger.Info("Storefront started", zap.String("stock_backend", cfg.Stock.Backend))

	go func() {
		log.Println("HTTP Service listening on: " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	} else {
		log.Println("Stopped HTTP server successfully")
	}

	if err := kafkaProducer.Close(); err != nil {
		log.Printf("Error closing kafka producer: %v", err)
	}

	if err := rdb.Close(); err != nil {
		log.Printf("Error closing redis client: %v", err)
	}

	pool.Close()
	log.Println("Closed db pool successfully")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping telemetry: %v\n", err)
	} else {
		log.Println("Telemetry closed correctly")
	}
}

// newStockStore picks the authoritative stock store. The mirror is nil when stock
// lives in the catalog table.
func newStockStore(
	backend string,
	pool *pgxpool.Pool,
	rdb redis.UniversalClient,
	logger *zap.Logger,
) (repository.StockStore, repository.StockMirror) {
	switch backend {
	case "redis":
		store := repository.NewRedisStockStore(rdb, logger)
		return store, store
	case "memory":
		store := repository.NewMemoryStockStore(nil)
		return store, store
	case "postgres", "":
		return repository.NewPostgresStockStore(pool, logger), nil
	default:
		log.Fatalf("unknown stock backend %q", backend)
		return nil, nil
	}
}
