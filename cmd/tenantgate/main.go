// Tenant Gateway - multi-tenant authentication and data access service
//
// This is the main entry point for the tenant gateway. It serves a single
// action envelope endpoint that authenticates principals, enforces
// per-collection permissions and tenant isolation, and executes single and
// batch document operations against SQLite or MongoDB.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/tenantgate/internal/api"
	"github.com/nerrad567/tenantgate/internal/audit"
	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/gateway"
	"github.com/nerrad567/tenantgate/internal/infrastructure/config"
	"github.com/nerrad567/tenantgate/internal/infrastructure/database"
	"github.com/nerrad567/tenantgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/tenantgate/internal/infrastructure/logging"
	"github.com/nerrad567/tenantgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/tenantgate/internal/metrics"
	"github.com/nerrad567/tenantgate/internal/observer"
	"github.com/nerrad567/tenantgate/internal/store"
	"github.com/nerrad567/tenantgate/internal/store/mongostore"
	"github.com/nerrad567/tenantgate/internal/store/sqlitestore"
	"github.com/nerrad567/tenantgate/internal/validation"
	"github.com/nerrad567/tenantgate/migrations"
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

// eventBufferSize is the observer dispatcher queue length.
const eventBufferSize = 1024

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
	log.Info("starting tenant gateway",
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

	docs, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Seed the first organization
	if cfg.Bootstrap.Enabled {
		if _, err := auth.Bootstrap(ctx, auth.NewRepository(docs), auth.BootstrapOptions{
			OrganizationCode: cfg.Bootstrap.OrganizationCode,
			OrganizationName: cfg.Bootstrap.OrganizationName,
			AdminUsername:    cfg.Bootstrap.AdminUsername,
			Capabilities:     auth.DefaultPermissionMap().Capabilities(),
		}, log); err != nil {
			return fmt.Errorf("bootstrapping: %w", err)
		}
	}

	issuer, err := auth.NewTokenIssuer(cfg.Security.JWT.Secret, cfg.GetAccessTokenTTL())
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}
	authService := auth.NewService(auth.ServiceConfig{
		Repository:     auth.NewRepository(docs),
		Issuer:         issuer,
		Revocations:    auth.NewRevocationList(docs),
		Logger:         log,
		StorageTimeout: cfg.GetStorageTimeout(),
	})

	// Event sinks run off the request path
	sinks := []observer.Sink{audit.NewSink(audit.NewStoreRepository(docs))}

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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		sinks = append(sinks, mqtt.NewEventSink(mqttClient, byte(cfg.MQTT.QoS))) //nolint:gosec // QoS validated to 0-2
	} else {
		log.Info("MQTT disabled")
	}

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection", "failed_writes", influxClient.WriteFailures())
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
		sinks = append(sinks, influxdb.NewEventSink(influxClient))
	} else {
		log.Info("InfluxDB disabled")
	}

	dispatcher := observer.NewDispatcher(log, eventBufferSize, sinks...)
	dispatcher.Start(ctx)
	// Runs before the sink clients above are closed.
	defer func() {
		log.Info("draining observer events", "pending", dispatcher.Pending())
		dispatcher.Close()
	}()

	collector := metrics.New()
	collector.WatchDispatcher(dispatcher)

	gw := gateway.New(gateway.Deps{
		Store:       docs,
		Auth:        authService,
		Permissions: auth.DefaultPermissionMap(),
		Rules:       validation.DefaultRules(),
		Observer:    observer.Multi{collector, dispatcher},
		Logger:      log,
		Config: gateway.Config{
			DefaultPageSize:     cfg.Gateway.DefaultPageSize,
			MaxPageSize:         cfg.Gateway.MaxPageSize,
			MaxBatchItems:       cfg.Gateway.MaxBatchItems,
			BatchConcurrency:    cfg.Gateway.BatchConcurrency,
			MaxAggregateResults: cfg.Gateway.MaxAggregateResults,
			StorageTimeout:      cfg.GetStorageTimeout(),
		},
	})

	apiDeps := api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Gateway:  gw,
		Store:    docs,
		Metrics:  collector,
		Events:   dispatcher,
		Version:  version,
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	if influxClient != nil {
		apiDeps.InfluxDB = influxClient
	}
	server, err := api.New(apiDeps)
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

	if err := healthCheck(ctx, docs, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred functions run in reverse order: API server, dispatcher,
	// InfluxDB, MQTT, store.
	log.Info("tenant gateway stopped")
	return nil
}

// openStore connects the configured document store backend. The returned
// function closes it.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMongo:
		ms, err := mongostore.Connect(ctx, mongostore.Config{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: time.Duration(cfg.Mongo.ConnectTimeout) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening MongoDB store: %w", err)
		}
		log.Info("MongoDB connected", "database", cfg.Mongo.Database)
		return ms, func() {
			log.Info("closing MongoDB")
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ms.Close(closeCtx); err != nil {
				log.Error("error closing MongoDB", "error", err)
			}
		}, nil

	default:
		db, err := database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		closeDB := func() {
			log.Info("closing database")
			if err := db.Close(); err != nil {
				log.Error("error closing database", "error", err)
			}
		}
		log.Info("database connected", "path", cfg.Database.Path)

		if err := db.Migrate(ctx, migrations.FS); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		log.Info("database migrations complete")
		return sqlitestore.New(db.DB), closeDB, nil
	}
}

// getConfigPath returns the config file path from TENANTGATE_CONFIG or the default.
func getConfigPath() string {
	if path := os.Getenv("TENANTGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies every connected dependency answers.
func healthCheck(ctx context.Context, docs store.Store, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := docs.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
