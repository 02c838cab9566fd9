// GridPulse Core - Device Telemetry Monitoring Platform
//
// This is the main entry point for the GridPulse Core service: a
// multi-tenant monitoring core for metered field devices reporting over
// MQTT. It ingests telemetry, classifies device state against configured
// working-hours schedules, raises and distributes alerts, and fans out
// live updates to connected viewers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/baotran97/gridpulse-core/migrations"

	"github.com/baotran97/gridpulse-core/internal/alert"
	"github.com/baotran97/gridpulse-core/internal/api"
	"github.com/baotran97/gridpulse-core/internal/device"
	"github.com/baotran97/gridpulse-core/internal/eventbus"
	"github.com/baotran97/gridpulse-core/internal/fanout"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/config"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/database"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/influxdb"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/mqtt"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/redis"
	"github.com/baotran97/gridpulse-core/internal/ingest"
	"github.com/baotran97/gridpulse-core/internal/status"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting GridPulse Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to Redis
	redisClient, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to Redis: %w", err)
	}
	defer func() {
		log.Info("closing Redis connection")
		if closeErr := redisClient.Close(); closeErr != nil {
			log.Error("error closing Redis", "error", closeErr)
		}
	}()
	log.Info("Redis connected", "addr", cfg.Redis.Addr)

	// Event bus over Redis pub/sub
	bus := eventbus.New(redisClient.Raw(), log.With("component", "eventbus"),
		cfg.Monitor.BusRetryBackoffDuration())
	defer bus.Stop()

	// Live device state store + durable catalog
	store := device.NewStore(redisClient.Raw(), log.With("component", "store"),
		cfg.Monitor.DeviceTTLDuration(),
		time.Duration(cfg.Monitor.UnknownDeviceTTL)*time.Second,
		bus)
	catalog := device.NewSQLiteCatalog(db.DB)

	// Warm the cache from the catalog so viewers see registered devices
	// before first telemetry.
	registered, err := catalog.List(ctx)
	if err != nil {
		return fmt.Errorf("loading device catalog: %w", err)
	}
	loaded := store.WarmLoad(ctx, registered)
	log.Info("device cache warmed", "registered", len(registered), "loaded", loaded)

	// Connect to InfluxDB (optional telemetry history)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled, telemetry history off")
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Alert pipeline + idle sweep
	classifier := status.NewClassifier(cfg.Monitor.PowerMinThreshold)
	alertRepo := alert.NewSQLiteRepository(db.DB)
	pipeline := alert.NewPipeline(store, classifier, alertRepo, bus,
		log.With("component", "pipeline"),
		cfg.Monitor.IdleTimeoutDuration(), cfg.Location())
	sweeper := alert.NewSweeper(pipeline, bus, log.With("component", "sweeper"),
		cfg.Monitor.SweepIntervalDuration())
	go sweeper.Run(ctx)

	// Telemetry ingestion
	qos := byte(cfg.MQTT.QoS)
	ingestSvc := ingest.NewService(store, catalog, pipeline, influxClient,
		log.With("component", "ingest"), qos)
	if err := ingestSvc.Start(mqttClient); err != nil {
		return fmt.Errorf("starting telemetry ingestion: %w", err)
	}
	commander := ingest.NewCommander(mqttClient, qos)

	// Viewer fan-out
	monitor := fanout.NewManager(store, bus, log.With("component", "fanout"),
		eventbus.DeviceStatusPattern)
	alertHub := fanout.NewAlertManager(store, bus, log.With("component", "fanout"))
	if err := alertHub.Start(); err != nil {
		return fmt.Errorf("starting alert fan-out: %w", err)
	}

	// HTTP API + WebSocket server
	server, err := api.New(api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log.With("component", "api"),
		Store:     store,
		Catalog:   catalog,
		Alerts:    alertRepo,
		Monitor:   monitor,
		AlertHub:  alertHub,
		Commander: commander,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, redisClient, mqttClient, influxClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. MQTT
	// 3. InfluxDB (if enabled)
	// 4. Event bus, Redis
	// 5. Database

	log.Info("GridPulse Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRIDPULSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRIDPULSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, redisClient *redis.Client,
	mqttClient *mqtt.Client, influxClient *influxdb.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
