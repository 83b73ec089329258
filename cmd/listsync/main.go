// list-to-entities mirrors Home Assistant todo lists as one sensor entity
// per item.
//
// It watches todo lists over the Home Assistant WebSocket API, reconciles
// each list into sensors announced through MQTT discovery, and keeps an
// entity registry and the configured lists in SQLite.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/list-to-entities/migrations"

	"github.com/nerrad567/list-to-entities/internal/api"
	"github.com/nerrad567/list-to-entities/internal/configentry"
	"github.com/nerrad567/list-to-entities/internal/discovery"
	"github.com/nerrad567/list-to-entities/internal/homeassistant"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/config"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/database"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/influxdb"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/logging"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/mqtt"
	"github.com/nerrad567/list-to-entities/internal/listsync"
	"github.com/nerrad567/list-to-entities/internal/registry"
	"github.com/nerrad567/list-to-entities/internal/todo"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "token":
		err = mintToken(os.Args[2:], os.Stdout)
	case len(os.Args) > 1 && os.Args[1] == "migrate":
		err = migrateCommand(ctx, os.Args[2:], os.Stdout)
	default:
		err = run(ctx)
	}
	if err != nil {
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
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup wiring is linear
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting list-to-entities",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Entity registry and config entries
	entityRegistry := registry.NewRegistry(registry.NewSQLiteRepository(db.DB))
	entityRegistry.SetLogger(log.Component("registry"))
	if refreshErr := entityRegistry.RefreshCache(ctx); refreshErr != nil {
		return fmt.Errorf("loading entity registry: %w", refreshErr)
	}
	log.Info("entity registry initialised", "entities", entityRegistry.Count())

	entries := configentry.NewSQLiteRepository(db.DB)

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
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	platform := discovery.New(mqttClient, mqttClient.Topics(), version, log.Component("discovery"))
	defer func() {
		if closeErr := platform.Close(); closeErr != nil {
			log.Warn("error closing discovery platform", "error", closeErr)
		}
	}()

	// Connect to InfluxDB (optional)
	recorders := multiRecorder{}
	influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		recorders = append(recorders, influxRecorder{client: influxClient})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// Connect to Home Assistant
	haClient, err := homeassistant.Connect(ctx, cfg.HomeAssistant, log.Component("homeassistant"))
	if err != nil {
		return fmt.Errorf("connecting to Home Assistant: %w", err)
	}
	defer func() {
		log.Info("disconnecting from Home Assistant")
		if closeErr := haClient.Close(); closeErr != nil {
			log.Error("error closing Home Assistant client", "error", closeErr)
		}
	}()
	log.Info("Home Assistant connected", "ha_version", haClient.HAVersion())

	hub := api.NewHub(cfg.API.WebSocket, log.Component("api"))
	recorders = append(recorders, hub)

	manager, err := listsync.NewManager(listsync.Deps{
		Entries:  entries,
		Registry: entityRegistry,
		Platform: platform,
		Fetcher:  todo.NewFetcher(haClient, log.Component("todo")),
		States:   haClient,
		Events:   eventSource{client: haClient},
		Metrics:  recorders,
		Logger:   log.Component("listsync"),
		Options:  syncOptions(cfg),
	})
	if err != nil {
		return fmt.Errorf("creating list sync manager: %w", err)
	}
	if startErr := manager.Start(ctx); startErr != nil {
		return fmt.Errorf("starting list sync manager: %w", startErr)
	}
	defer func() {
		//nolint:contextcheck // shutdown runs after ctx is cancelled
		if stopErr := manager.Stop(context.Background()); stopErr != nil {
			log.Warn("error stopping list sync manager", "error", stopErr)
		}
	}()

	// Events may have been missed while disconnected.
	haClient.SetOnReconnect(manager.ResyncAll)
	haClient.SetOnDisconnect(func(err error) {
		log.Warn("Home Assistant disconnected", "error", err)
	})

	// Home Assistant drops MQTT entities when it restarts; announce them again.
	if subErr := platform.OnHomeAssistantOnline(func() { manager.Republish(ctx) }); subErr != nil {
		log.Warn("failed to watch Home Assistant birth messages", "error", subErr)
	}
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
		go manager.Republish(ctx)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Start the operator API
	server, err := api.New(api.Deps{
		Config:        cfg.API,
		Logger:        log.Component("api"),
		Manager:       manager,
		HomeAssistant: haClient,
		MQTT:          mqttClient,
		DB:            db.DB,
		Hub:           hub,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, haClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, cleaning up")
	case <-haClient.Done():
		return errors.New("home assistant connection lost and reconnection gave up")
	}

	log.Info("list-to-entities stopped")
	return nil
}

// migrateCommand inspects or changes the schema of the configured database.
//
// Usage: listsync migrate status|up|down
func migrateCommand(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: listsync migrate status|up|down")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // CLI exit

	switch args[0] {
	case "status":
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
	case "down":
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
	default:
		return fmt.Errorf("unknown migrate command %q (want status, up or down)", args[0])
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, m := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}

// mintToken prints an operator API token for the subject in args, signed
// with the configured api.auth.jwt_secret.
//
// Usage: listsync token <subject>
func mintToken(args []string, out io.Writer) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: listsync token <subject>")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is not set (set LISTSYNC_API_JWT_SECRET)")
	}

	ttl := time.Duration(cfg.API.Auth.TokenTTL) * 24 * time.Hour
	token, err := api.IssueToken(cfg.API.Auth.JWTSecret, args[0], ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

// getConfigPath returns the configuration file path.
// Uses LISTSYNC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LISTSYNC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// syncOptions maps the sync and instances sections to manager options.
func syncOptions(cfg *config.Config) listsync.Options {
	seed := make([]string, 0, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		seed = append(seed, inst.EntityID)
	}
	return listsync.Options{
		Delays: listsync.Delays{
			PreInvocation: cfg.Sync.PreInvocation(),
			Settle:        cfg.Sync.Settle(),
		},
		PollInterval: cfg.Sync.PollInterval(),
		Seed:         seed,
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - haClient: Home Assistant client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, haClient *homeassistant.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := haClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("homeassistant: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
