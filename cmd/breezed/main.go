// Breeze Core - Atmeex breezer bridge
//
// This is the main entry point for the Breeze Core daemon. It keeps a
// local, always-current model of every breezer on an Atmeex cloud
// account and exposes it over MQTT, a REST API, and WebSocket so
// home-automation systems never talk to the vendor cloud directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/atmeex-community/breeze-core/migrations"

	"github.com/atmeex-community/breeze-core/internal/api"
	"github.com/atmeex-community/breeze-core/internal/breezer"
	"github.com/atmeex-community/breeze-core/internal/bridge"
	"github.com/atmeex-community/breeze-core/internal/cloud"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/config"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/database"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/influxdb"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/logging"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/mqtt"
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
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Breeze Core",
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

	repo := breezer.NewSQLiteRepository(db.DB)

	// Sign in to the Atmeex cloud
	cloudClient := cloud.New(cfg.Cloud, log.With("component", "cloud"))
	if err := cloudClient.Login(ctx, cfg.Cloud.Email, cfg.Cloud.Password); err != nil {
		return fmt.Errorf("cloud sign-in: %w", err)
	}
	log.Info("cloud session established", "base_url", cfg.Cloud.BaseURL)

	// Build the reconciliation coordinator
	tracker := breezer.NewTracker(cfg.GuardWindow())
	coordinator := breezer.NewCoordinator(
		cloudClient,
		tracker,
		repo,
		log.With("component", "coordinator"),
		nil,
	)

	// Connect to InfluxDB (optional) and wire telemetry
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		coordinator.SetPollObserver(func(duration time.Duration, devices int, err error) {
			influxClient.WritePollStats(float64(duration.Milliseconds()), devices, err == nil)
		})
		coordinator.Subscribe(func(states map[string]breezer.DeviceState) {
			for id, state := range states {
				if !state.Online || state.RoomTemp == breezer.UnknownRoomTemp {
					continue
				}
				humidity := 0
				hasHumidity := state.RoomHumidity != nil
				if hasHumidity {
					humidity = *state.RoomHumidity
				}
				influxClient.WriteClimateSample(id, state.RoomTemp, humidity, hasHumidity, state.FanSpeed, state.ObservedAt)
			}
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Start polling
	if err := coordinator.Start(ctx, cfg.PollInterval()); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}
	defer func() {
		log.Info("stopping coordinator")
		coordinator.Stop()
	}()

	// Real-time push channel (optional). Push frames only tell us which
	// device changed; the coordinator re-reads it over REST.
	if cfg.Cloud.EnableWebSocket {
		pushListener := cloud.NewPushListener(
			cfg.Cloud.WSURL,
			cloudClient,
			func(msg cloud.PushMessage) {
				coordinator.HandlePushMessage(ctx, msg.DeviceID)
			},
			log.With("component", "push"),
		)
		pushListener.Start()
		defer func() {
			log.Info("stopping push listener")
			pushListener.Stop()
		}()
		log.Info("push listener started", "url", cfg.Cloud.WSURL)
	} else {
		log.Info("push channel disabled, polling only")
	}

	// MQTT bridge (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
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

		mqttBridge, bridgeErr := bridge.NewBridge(bridge.BridgeOptions{
			Coordinator: coordinator,
			MQTT:        mqttClient,
			Logger:      log.With("component", "bridge"),
			QoS:         byte(cfg.MQTT.QoS),
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		if startErr := mqttBridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			mqttBridge.Stop()
		}()
		log.Info("MQTT bridge started")
	} else {
		log.Info("MQTT bridge disabled")
	}

	// HTTP API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log.With("component", "api"),
		Coordinator: coordinator,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	// Deferred calls unwind in reverse order: API server, bridge, MQTT,
	// push listener, coordinator, InfluxDB, database.

	log.Info("Breeze Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses BREEZE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("BREEZE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT client may be nil when the bridge is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
