package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Merilairon/colruyt-scraper/config"
	"github.com/Merilairon/colruyt-scraper/internal/app"
	"github.com/Merilairon/colruyt-scraper/internal/business"
	"github.com/Merilairon/colruyt-scraper/internal/colruyt"
	"github.com/Merilairon/colruyt-scraper/internal/events"
	"github.com/Merilairon/colruyt-scraper/internal/storage"
	"github.com/Merilairon/colruyt-scraper/pkg/dbconnect/postgres"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "main").Logger()

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "optional yaml overlay on top of the environment")
	runNow := flag.Bool("run-now", false, "run both pipelines once at startup")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	connector := postgres.NewPgConnector(cfg.Postgres)
	db, err := connector.Connect()
	if err != nil {
		logger.Fatal().Err(err).Msg("connecting to postgres")
	}
	defer db.Close()

	for _, m := range storage.Migrations() {
		if err := m.UpMigration(db); err != nil {
			logger.Fatal().Err(err).Msg("applying migrations")
		}
	}
	logger.Info().Msg("migrations applied")

	client, err := colruyt.NewClient(cfg.Colruyt)
	if err != nil {
		logger.Fatal().Err(err).Msg("building gateway client")
	}
	collector := colruyt.NewCollector(client, cfg.Colruyt, func(done, total int) {
		if done == total || done%25 == 0 {
			logger.Info().Msgf("collected %d/%d pages", done, total)
		}
	})

	var publisher business.ChangePublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher := events.NewPublisher(events.NewKafkaWriter(cfg.Kafka))
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	var cache *app.ResponseCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		cache = app.NewResponseCache(rdb, cfg.Redis.CacheTTL())
	}

	retention := cfg.Pipeline.RetentionDays
	orch := business.NewOrchestrator(collector, connector,
		func(db *sql.DB) business.IngestRunner {
			return business.NewIngestor(
				storage.NewTxRunner(db),
				storage.NewProductRepository(db),
				storage.NewPriceRepository(db),
				storage.NewPromotionRepository(db),
				retention)
		},
		func(db *sql.DB) business.ChangeRunner {
			return business.NewChangeSyncer(
				storage.NewTxRunner(db),
				storage.NewPriceRepository(db),
				storage.NewPriceChangeRepository(db))
		},
		publisher,
		cache)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Pipeline.CatalogCron, func() {
		if err := orch.RunCatalogSync(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduled catalog sync failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Pipeline.CatalogCron).Msg("invalid catalog schedule")
	}
	if _, err := scheduler.AddFunc(cfg.Pipeline.PriceChangeCron, func() {
		if err := orch.RunPriceChangeSync(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduled price change sync failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Pipeline.PriceChangeCron).Msg("invalid price change schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	if *runNow {
		go func() {
			if err := orch.RunCatalogSync(ctx); err != nil {
				return
			}
			if err := orch.RunPriceChangeSync(ctx); err != nil {
				logger.Error().Err(err).Msg("startup price change sync failed")
			}
		}()
	}

	handler := app.NewHandler(
		storage.NewProductRepository(db),
		storage.NewPriceRepository(db),
		storage.NewPromotionRepository(db),
		storage.NewPriceChangeRepository(db),
		cache,
		orch.Status)
	e := app.NewEcho(cfg.API, handler)

	go func() {
		if err := e.Start(cfg.API.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api server stopped")
		}
	}()
	logger.Info().Str("addr", cfg.API.Addr).Msg("api listening")

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown")
	}
}
