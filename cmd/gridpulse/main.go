// Package main provides the CLI entry point for the gridpulse service.
// It handles command-line flag parsing, pipeline wiring, and HTTP server setup.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gridpulse/internal/config"
	"gridpulse/internal/database"
	"gridpulse/internal/dispatcher"
	"gridpulse/internal/dispatcher/channel"
	"gridpulse/internal/dispatcher/channel/discord"
	"gridpulse/internal/dispatcher/channel/email"
	"gridpulse/internal/dispatcher/channel/sms"
	"gridpulse/internal/evaluator"
	"gridpulse/internal/events"
	"gridpulse/internal/export"
	"gridpulse/internal/gateway"
	"gridpulse/internal/handlers"
	"gridpulse/internal/lifecycle"
	"gridpulse/internal/metrics"
	"gridpulse/internal/pipeline"
	"gridpulse/internal/registry"
	"gridpulse/internal/retry"
	"gridpulse/internal/router"
	"gridpulse/internal/schema"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Parse command-line flags
	cfg := &config.Config{}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	// Set up structured logging
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("Starting gridpulse service",
		"mqtt_broker", cfg.MQTTBroker,
		"kafka_brokers", cfg.KafkaBrokers,
		"alerts_topic", cfg.AlertsTopic,
		"postgres_dsn", maskDSN(cfg.PostgresDSN),
		"redis_addr", cfg.RedisAddr,
		"http_port", cfg.HTTPPort,
		"queue_capacity", cfg.QueueCapacity,
		"worker_limit", cfg.WorkerLimit,
		"rule_reload_interval", cfg.RuleReloadInterval,
	)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	// Initialize Redis client
	slog.Info("Connecting to Redis", "addr", cfg.RedisAddr)
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		slog.Info("Tip: Start Redis with 'docker compose up -d redis' or ensure Redis is running")
		os.Exit(1)
	}
	slog.Info("Successfully connected to Redis")

	// Initialize metrics collector
	collector := metrics.NewCollector("gridpulse", redisClient)
	collector.Start(ctx)
	defer collector.Stop()

	// Initialize database connection
	slog.Info("Connecting to PostgreSQL database")
	db, err := database.NewDB(cfg.PostgresDSN)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		slog.Info("Tip: Start Postgres with 'docker compose up -d postgres' or ensure Postgres is running")
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("Successfully connected to PostgreSQL database")

	// Initialize collaborator clients
	deviceRegistry := registry.NewHTTPRegistry(cfg.RegistryURL)
	auth := registry.NewHTTPAuthorization(cfg.AuthURL)
	validator := schema.NewValidator(deviceRegistry)

	// Initialize Kafka export producer
	slog.Info("Connecting to Kafka producer", "topic", cfg.AlertsTopic)
	exporter, err := export.NewProducer(cfg.KafkaBrokers, cfg.AlertsTopic, collector)
	if err != nil {
		slog.Error("Failed to create Kafka producer", "error", err)
		slog.Info("Tip: Start Kafka with 'docker compose up -d kafka'")
		os.Exit(1)
	}
	defer exporter.Close()
	slog.Info("Successfully connected to Kafka producer")

	// Register notification channels
	channels := channel.NewRegistry()
	channels.Register(email.NewSender(getEnvOrDefault("EMAIL_FROM", "alerts@gridpulse.local")))
	channels.Register(discord.NewSender())
	if cfg.SMSGateway != "" {
		channels.Register(sms.NewSender(cfg.SMSGateway))
	}
	slog.Info("Notification channels registered", "channels", channels.List())

	// Initialize dispatcher and event fan-out
	disp := dispatcher.NewDispatcher(db, auth, channels, collector, retry.DefaultConfig())
	defer disp.Close()
	sink := events.MultiSink{disp, exporter}

	// Load rules and start the periodic reload
	ruleCache := evaluator.NewRuleCache(db)
	if err := ruleCache.Reload(ctx); err != nil {
		slog.Error("Failed to load rules", "error", err)
		os.Exit(1)
	}
	ruleCache.StartReloading(ctx, cfg.RuleReloadInterval)
	slog.Info("Rules loaded", "count", ruleCache.Count())

	// Initialize evaluation and lifecycle
	eval := evaluator.NewEvaluator(ruleCache, db, sink, collector, cfg.RecoveryMisses, cfg.RuleFailureLimit)
	lc := lifecycle.NewManager(db, sink, collector)

	// Initialize the telemetry pipeline
	pipe := pipeline.NewPipeline(pipeline.Options{
		QueueCapacity: cfg.QueueCapacity,
		WorkerLimit:   cfg.WorkerLimit,
		IdleTimeout:   cfg.DeviceIdleTimeout,
		PersistRetry:  retry.PersistenceConfig(),
	}, validator, db, eval, lc, collector)
	pipe.Start(ctx)

	// Connect the MQTT ingest gateway
	slog.Info("Connecting to MQTT broker", "broker", cfg.MQTTBroker)
	gw := gateway.NewGateway(cfg.MQTTBroker, cfg.MQTTClientID, pipe.Enqueue, collector)
	if err := gw.Start(); err != nil {
		slog.Error("Failed to connect to MQTT broker", "error", err)
		slog.Info("Tip: Start Mosquitto with 'docker compose up -d mosquitto'")
		os.Exit(1)
	}
	slog.Info("Successfully connected to MQTT broker")

	// Initialize HTTP handlers and server
	h := handlers.NewHandlers(db, lc, ruleCache, collector)
	server := router.NewServer(cfg.HTTPPort, h)

	// Start HTTP server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
	case err := <-serverErrChan:
		slog.Error("HTTP server error", "error", err)
		cancel()
	}

	// Stop intake first so workers can drain, then stop the API.
	slog.Info("Disconnecting MQTT gateway...")
	gw.Close()

	slog.Info("Draining telemetry pipeline...")
	pipe.Shutdown()

	slog.Info("Waiting for in-flight notifications...")
	disp.Close()

	slog.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down server", "error", err)
	}

	slog.Info("Gridpulse service stopped")
}

// maskDSN masks sensitive information in the DSN for logging.
func maskDSN(dsn string) string {
	if len(dsn) > 50 {
		return dsn[:20] + "***" + dsn[len(dsn)-20:]
	}
	return "***"
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
