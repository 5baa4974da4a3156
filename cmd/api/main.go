package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"example.com/coachcontext/internal/aggregate"
	"example.com/coachcontext/internal/api"
	"example.com/coachcontext/internal/auth"
	"example.com/coachcontext/internal/cache"
	"example.com/coachcontext/internal/config"
	"example.com/coachcontext/internal/consumer"
	"example.com/coachcontext/internal/domain"
	"example.com/coachcontext/internal/notify"
	"example.com/coachcontext/internal/session"
	"example.com/coachcontext/internal/sources/dgraph"
	"example.com/coachcontext/internal/sources/memory"
	"example.com/coachcontext/internal/sources/postgres"
	httptransport "example.com/coachcontext/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sources domain.Sources
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		sources = domain.AllSourcesFrom(postgres.NewRepository(pool, cfg.TenantID,
			postgres.WithDashboardLimit(cfg.DashboardLimit),
			postgres.WithHistoryLimit(cfg.HistoryLimit),
			postgres.WithWeightWindow(cfg.WeightWindow),
		))
		log.Printf("context sources: postgres (tenant=%s)", cfg.TenantID)
	} else {
		sources = domain.AllSourcesFrom(memory.NewRepository(memory.WithLimits(memory.Limits{
			Dashboard:    cfg.DashboardLimit,
			History:      cfg.HistoryLimit,
			WeightWindow: cfg.WeightWindow,
		})))
		log.Printf("context sources: in-memory demo data (user=%s)", memory.DemoUserID)
	}
	if cfg.DgraphURL != "" {
		sources.Catalog = dgraph.NewCatalog(cfg.DgraphURL, cfg.DgraphTimeout, cfg.CatalogLimit)
		log.Printf("exercise catalog: dgraph at %s", cfg.DgraphURL)
	}

	aggregator := aggregate.New(sources,
		aggregate.WithPolicy(cfg.AggregationPolicy),
		aggregate.WithAdapterTimeout(cfg.AdapterTimeout),
	)

	var invalidators cache.MultiInvalidator
	if len(cfg.KafkaBrokers) > 0 {
		producer := notify.NewKafkaProducer(cfg.KafkaBrokers, notify.WithWriteTimeout(cfg.InvalidationTimeout))
		defer producer.Close()

		var publisher *notify.Publisher
		if cfg.SchemaRegistryURL != "" {
			publisher = notify.NewPublisher(producer, notify.NewSchemaRegistryClient(cfg.SchemaRegistryURL), cfg.ContextEventsTopic)
		} else {
			publisher = notify.NewPublisher(producer, nil, cfg.ContextEventsTopic)
		}
		invalidators = append(invalidators, publisher)
	}
	if cfg.CacheInvalidationURL != "" {
		invalidators = append(invalidators, cache.NewHTTPInvalidator(cfg.CacheInvalidationURL, cfg.CacheInvalidationToken, cfg.InvalidationTimeout))
	}

	cacheOpts := []cache.Option{cache.WithInvalidationTimeout(cfg.InvalidationTimeout)}
	if len(invalidators) > 0 {
		cacheOpts = append(cacheOpts, cache.WithInvalidator(invalidators))
	}
	registry := cache.NewRegistry(aggregator, cacheOpts...)
	bridge := session.NewBridge(registry)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.SessionEventsTopic != "" {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.SessionConsumerGroup,
			Topic:           cfg.SessionEventsTopic,
			MinBytes:        1,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			ReadLagInterval: -1,
		})
		proc := consumer.NewProcessor(reader, bridge)

		g.Go(func() error {
			defer reader.Close()

			log.Printf("session consumer started (topic=%s, group=%s)", cfg.SessionEventsTopic, cfg.SessionConsumerGroup)
			if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("session consumer: %w", err)
			}
			return nil
		})
	}
	if cfg.SessionIdleTimeout > 0 {
		g.Go(func() error {
			return registry.Run(gctx, cfg.SessionSweepEvery, cfg.SessionIdleTimeout)
		})
	}

	handler := api.NewHandler(bridge, registry, api.WithWaitTimeout(cfg.WaitTimeout))
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		TenantID: cfg.TenantID,
		Leeway:   cfg.JWTLeeway,
	})
	requestLogger := log.New(log.Writer(), "[http] ", log.LstdFlags)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.WaitTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.RequestLogger(requestLogger, httptransport.CORS(cfg.CORSOrigins, authMiddleware.Wrap(mux))))

	g.Go(func() error {
		log.Printf("coach-context listening on %s (policy=%s)", cfg.HTTPAddress, aggregator.Policy())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("shutdown requested")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("coach-context stopped: %v", err)
	}
	registry.Close()
}
