// PowerWatch - building electricity telemetry
//
// This is the main entry point for the PowerWatch ingestion service. It
// subscribes to meter readings on an MQTT broker, keeps the latest reading
// of every apartment in memory and serves them over HTTP and WebSocket.
// History snapshots go to SQLite or PostgreSQL; InfluxDB and Redis are
// optional fan-out targets.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/powerwatch/migrations"

	"github.com/nerrad567/powerwatch/internal/api"
	"github.com/nerrad567/powerwatch/internal/apartment"
	"github.com/nerrad567/powerwatch/internal/history"
	"github.com/nerrad567/powerwatch/internal/infrastructure/broker"
	"github.com/nerrad567/powerwatch/internal/infrastructure/config"
	"github.com/nerrad567/powerwatch/internal/infrastructure/database"
	"github.com/nerrad567/powerwatch/internal/infrastructure/influxdb"
	"github.com/nerrad567/powerwatch/internal/infrastructure/logging"
	"github.com/nerrad567/powerwatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/powerwatch/internal/infrastructure/postgres"
	"github.com/nerrad567/powerwatch/internal/infrastructure/redis"
	"github.com/nerrad567/powerwatch/internal/ingest"
	"github.com/nerrad567/powerwatch/internal/mirror"
	"github.com/nerrad567/powerwatch/internal/store"
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

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// checkFunc adapts a probe function to api.HealthChecker.
type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting PowerWatch",
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

	db, err := database.Open(ctx, cfg.Database)
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

	checks := map[string]api.HealthChecker{"database": db}

	// Embedded broker (development only)
	if cfg.MQTT.Embedded.Enabled {
		b, startErr := startEmbeddedBroker(cfg, log)
		if startErr != nil {
			return startErr
		}
		defer func() {
			log.Info("stopping embedded broker")
			if closeErr := b.Close(); closeErr != nil {
				log.Error("error stopping embedded broker", "error", closeErr)
			}
		}()
	}

	// MQTT session and ingest
	client := mqtt.New(cfg.MQTT, mqtt.WithStatusTopic(mqtt.ServiceStatus(cfg.MQTT.Broker.ClientID)))
	client.SetLogger(log.Component("mqtt"))

	st := store.New()
	sup := ingest.NewSupervisor(client, st, ingest.ConfigFrom(cfg.MQTT))
	sup.SetLogger(log.Component("ingest"))
	sup.SetOnStateChange(func(s ingest.State) {
		switch s {
		case ingest.StateConnected:
			log.Info("MQTT connected",
				"broker", mqtt.BrokerURL(cfg.MQTT.Broker),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
		case ingest.StateDisconnected:
			log.Warn("MQTT disconnected")
		}
	})

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)
	sup.AddObserver(hub)

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
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
		sup.AddObserver(influxClient)
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Redis latest-value mirror (optional)
	if cfg.Redis.Enabled {
		rc, connErr := redis.Connect(ctx, cfg.Redis)
		if connErr != nil {
			return fmt.Errorf("connecting to Redis: %w", connErr)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := rc.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()

		m := mirror.New(rc, cfg.Redis)
		m.SetLogger(log.Component("mirror"))
		go func() {
			if runErr := m.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
				log.Error("redis mirror stopped", "error", runErr)
			}
		}()
		sup.AddObserver(m)
		checks["redis"] = checkFunc(func(ctx context.Context) error { return rc.Ping(ctx).Err() })
		log.Info("Redis mirror enabled", "addr", cfg.Redis.Addr)
	} else {
		log.Info("Redis mirror disabled")
	}

	// History
	repo, closeHistory, err := openHistory(ctx, cfg, db, checks)
	if err != nil {
		return err
	}
	defer closeHistory()

	persister := history.NewPersister(st, repo)
	persister.SetLogger(log.Component("history"))
	if cfg.History.SnapshotInterval > 0 {
		go func() {
			if runErr := persister.Run(ctx, cfg.History.SnapshotInterval, cfg.History.Retention); runErr != nil &&
				!errors.Is(runErr, context.Canceled) {
				log.Error("history persister stopped", "error", runErr)
			}
		}()
		log.Info("periodic snapshots enabled",
			"interval", cfg.History.SnapshotInterval,
			"retention", cfg.History.Retention,
		)
	}

	// Apartment registry: queues every known apartment's filter before the
	// first session so it is issued with the catch-all.
	apartments := apartment.NewRegistry(apartment.NewSQLiteRepository(db.DB), sup)
	apartments.SetLogger(log.Component("apartment"))
	if loadErr := apartments.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading apartments: %w", loadErr)
	}

	if startErr := sup.Start(ctx); startErr != nil {
		return fmt.Errorf("starting ingest: %w", startErr)
	}
	defer func() {
		log.Info("stopping ingest")
		sup.Stop()
	}()

	// API
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log.Component("api"),
		Store:      st,
		Ingest:     sup,
		Version:    version,
		Apartments: apartments,
		History:    persister,
		Checks:     checks,
		Hub:        hub,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API, ingest, history, mirror,
	// InfluxDB, embedded broker, database.

	return nil
}

// getConfigPath returns the configuration file path.
// Uses POWERWATCH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("POWERWATCH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// startEmbeddedBroker runs the in-process broker and points the MQTT
// client section at it.
func startEmbeddedBroker(cfg *config.Config, log *logging.Logger) (*broker.Broker, error) {
	b, err := broker.New(cfg.MQTT.Embedded, log.Component("broker").Logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedded broker: %w", err)
	}
	if err := b.Start(); err != nil {
		return nil, fmt.Errorf("starting embedded broker: %w", err)
	}

	if host, _, splitErr := net.SplitHostPort(b.Address()); splitErr == nil {
		cfg.MQTT.Broker.Host = host
		cfg.MQTT.Broker.Port = b.Port()
	}
	log.Info("embedded broker started", "address", b.Address())
	return b, nil
}

// openHistory opens the configured history backend and registers its
// health check. The returned func releases the backend.
func openHistory(ctx context.Context, cfg *config.Config, db *database.DB, checks map[string]api.HealthChecker) (history.Repository, func(), error) {
	if cfg.History.Backend != config.HistoryBackendPostgres {
		return history.NewSQLiteRepository(db.DB), func() {}, nil
	}

	pg, err := postgres.Open(ctx, cfg.History.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}

	repo := history.NewPostgresRepository(pg.Pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("preparing history schema: %w", err)
	}
	checks["postgres"] = pg

	return repo, pg.Close, nil
}
