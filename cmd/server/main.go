package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"stock-alerting/internal/api"
	"stock-alerting/internal/auth"
	"stock-alerting/internal/cache"
	"stock-alerting/internal/config"
	"stock-alerting/internal/database"
	"stock-alerting/internal/engine"
	"stock-alerting/internal/kafka"
	"stock-alerting/internal/logger"
	"stock-alerting/internal/notify"
	"stock-alerting/internal/pricefeed"
)

// Retention windows for the cleanup loop
const (
	sampleRetention    = 7 * 24 * time.Hour
	triggeredRetention = 90 * 24 * time.Hour
	cleanupInterval    = 24 * time.Hour
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	log := logger.WithComponent("main")

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to database")

	// Redis is advisory: without it current prices fall back to the store
	// and the external API quota is not enforced.
	redisCache, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, continuing without cache")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	priceProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PriceTopic)
	defer priceProducer.Close()
	triggerProducer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TriggerTopic)
	defer triggerProducer.Close()

	engineCfg := engine.Config{
		Store:     db,
		Publisher: triggerProducer,
	}
	if redisCache != nil {
		engineCfg.Cache = redisCache
	}
	eng := engine.New(engineCfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.PriceTopic, cfg.Kafka.ConsumerGroup, eng)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("price consumer stopped")
		}
	}()

	sender := notify.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	notifier := notify.New(db, sender)
	triggerConsumer := kafka.NewTriggerConsumer(cfg.Kafka.Brokers, cfg.Kafka.TriggerTopic, cfg.Kafka.NotifierGroup, notifier)
	go func() {
		if err := triggerConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("trigger consumer stopped")
		}
	}()

	var fetcher *pricefeed.Fetcher
	if cfg.PriceFeed.APIKey != "" {
		fetcherCfg := pricefeed.Config{
			BaseURL:    cfg.PriceFeed.BaseURL,
			APIKey:     cfg.PriceFeed.APIKey,
			Interval:   cfg.PriceFeed.FetchInterval,
			DailyLimit: cfg.PriceFeed.DailyLimit,
			Stocks:     db,
			Publisher:  priceProducer,
		}
		if redisCache != nil {
			fetcherCfg.Counter = redisCache
		}
		fetcher = pricefeed.New(fetcherCfg)
		fetcher.Start()
	} else {
		log.Warn().Msg("no price API key configured, price polling disabled")
	}

	go runCleanup(ctx, db)

	issuer := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	handler := api.NewHandler(db, redisCache, issuer, eng)

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if fetcher != nil {
		fetcher.Stop()
	}

	// Consumers exit on context cancellation; the engine drains its
	// per-stock queues before the process exits.
	eng.Stop()

	log.Info().Msg("shutdown complete")
}

// runCleanup prunes old price samples and trigger history once a day
func runCleanup(ctx context.Context, db *database.DB) {
	log := logger.WithComponent("cleanup")
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			samples, err := db.DeleteSamplesOlderThan(time.Now().UTC().Add(-sampleRetention))
			if err != nil {
				log.Error().Err(err).Msg("failed to prune price samples")
			} else if samples > 0 {
				log.Info().Int64("deleted", samples).Msg("pruned old price samples")
			}

			triggered, err := db.DeleteTriggeredAlertsOlderThan(time.Now().UTC().Add(-triggeredRetention))
			if err != nil {
				log.Error().Err(err).Msg("failed to prune triggered alerts")
			} else if triggered > 0 {
				log.Info().Int64("deleted", triggered).Msg("pruned old triggered alerts")
			}
		}
	}
}
