// Signal K MQTT Bridge
//
// This is the main entry point for the bridge. It connects a Signal K
// server to an MQTT broker so MQTT consumers can:
//   - Lease interest in bus paths with keepalives and receive their deltas
//   - Read, write and PUT values on the bus
//
// Topics follow {action}/{marker}/{systemId}/{subPath}, see internal/bridge.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/api"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/bridge"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/config"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/database"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/influxdb"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/logging"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/mqtt"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/journal"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/signalk"
	"github.com/iuriaranda/signalk-mqtt-bridge/migrations"
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

// selfLookupTimeout bounds the initial self identity request.
const selfLookupTimeout = 15 * time.Second

// offlinePayload is the retained keepalive value once the bridge is gone.
const offlinePayload = "0"

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
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting signalk-mqtt-bridge",
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

	if cfg.SignalK.Token != "" {
		checkToken(cfg.SignalK.Token, log)
	}

	// Signal K server
	skClient, err := connectSignalK(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing Signal K stream")
		if closeErr := skClient.Close(); closeErr != nil {
			log.Error("error closing Signal K stream", "error", closeErr)
		}
	}()

	lookupCtx, lookupCancel := context.WithTimeout(ctx, selfLookupTimeout)
	selfID, err := skClient.Self(lookupCtx)
	lookupCancel()
	if err != nil {
		return fmt.Errorf("resolving self identity: %w", err)
	}
	topics := bridge.Topics{Marker: cfg.Bridge.BusMarker, SystemID: bridge.DeriveSystemID(selfID)}
	log.Info("self identity resolved", "self", selfID, "system_id", topics.SystemID)

	// Command journal (optional)
	var (
		db       *database.DB
		repo     *journal.SQLiteRepository
		recorder *journal.Recorder
	)
	if cfg.Database.Enabled {
		db, err = openJournalDB(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		repo = journal.NewSQLiteRepository(db.DB)
		recorder = journal.NewRecorder(repo, journal.RecorderOptions{Logger: log})
		recorder.Start()
		defer func() {
			log.Info("stopping command journal")
			recorder.Stop()
		}()
	} else {
		log.Info("command journal disabled")
	}

	// InfluxDB (optional)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT broker. An unreachable broker is retried in the background.
	mqttClient, err := mqtt.Connect(cfg.MQTT, "signalk/"+topics.SystemID, mqtt.Will{
		Topic:    topics.Keepalive(),
		Payload:  offlinePayload,
		QoS:      byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2 by config
		Retained: true,
	})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	if mqttClient.IsConnected() {
		log.Info("MQTT connected", "broker", redactBroker(cfg.MQTT.BrokerAddress))
	} else {
		log.Warn("MQTT broker not reachable yet, retrying in background",
			"broker", redactBroker(cfg.MQTT.BrokerAddress),
			"reconnect_period", cfg.GetReconnectPeriod(),
		)
	}

	// Bridge engine
	opts := bridge.Options{
		SelfID:         selfID,
		Marker:         cfg.Bridge.BusMarker,
		KeepaliveTTL:   cfg.GetKeepaliveTTL(),
		SweepInterval:  cfg.GetSweepInterval(),
		HealthInterval: cfg.GetHealthInterval(),
		QoS:            byte(cfg.MQTT.QoS), //nolint:gosec // validated 0-2 by config
		CommandRate:    cfg.Bridge.CommandRate,
		CommandBurst:   cfg.Bridge.CommandBurst,
		Transport:      &mqttBridgeAdapter{client: mqttClient},
		Host:           skClient,
		Logger:         log,
	}
	if recorder != nil {
		opts.Journal = recorder
	}
	if influxClient != nil {
		opts.Metrics = influxClient
	}
	b, err := bridge.New(opts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	mqttClient.SetOnConnect(b.HandleConnect)
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
		b.HandleDisconnect(err)
	})
	skClient.SetOnDelta(b.HandleDelta)

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
	}()

	if err := skClient.Start(ctx); err != nil {
		return fmt.Errorf("starting Signal K stream: %w", err)
	}
	log.Info("Signal K stream started")

	// Status API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Bridge:  b,
			MQTT:    mqttClient,
			SignalK: skClient,
			Checks:  map[string]api.HealthChecker{"mqtt": mqttClient},
			Version: version,
		}
		if db != nil {
			deps.Journal = repo
			deps.Database = db
			deps.Checks["database"] = db
		}
		if influxClient != nil {
			deps.Checks["influxdb"] = influxClient
		}

		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
		log.Info("API server started", "addr", srv.Addr())
	} else {
		log.Info("API server disabled")
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// API, bridge, MQTT, InfluxDB, journal, database, Signal K.

	log.Info("signalk-mqtt-bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SKMQTT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SKMQTT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// checkToken warns about bearer tokens the server is certain to reject.
func checkToken(token string, log *logging.Logger) {
	exp, err := signalk.CheckToken(token, time.Now())
	switch {
	case errors.Is(err, signalk.ErrTokenExpired):
		log.Warn("Signal K token has expired", "expired_at", exp)
	case err != nil:
		log.Warn("Signal K token is not a readable JWT", "error", err)
	case !exp.IsZero():
		log.Info("Signal K token loaded", "expires_at", exp)
	}
}

// connectSignalK resolves the server URL, discovering it over mDNS when
// none is configured, and creates the client.
func connectSignalK(ctx context.Context, cfg *config.Config, log *logging.Logger) (*signalk.Client, error) {
	serverURL := cfg.SignalK.URL
	if serverURL == "" {
		log.Info("discovering Signal K server", "timeout", cfg.GetDiscoveryTimeout())
		found, err := signalk.Discover(ctx, cfg.GetDiscoveryTimeout())
		if err != nil {
			return nil, fmt.Errorf("discovering Signal K server: %w", err)
		}
		serverURL = found
		log.Info("Signal K server discovered", "url", serverURL)
	}

	client, err := signalk.New(signalk.Options{
		URL:               serverURL,
		Token:             cfg.SignalK.Token,
		Debounce:          cfg.GetDebounce(),
		PutTimeout:        cfg.GetPutTimeout(),
		ReconnectInterval: cfg.GetStreamReconnect(),
		Logger:            log,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Signal K client: %w", err)
	}
	return client, nil
}

// openJournalDB opens the SQLite store and applies pending migrations.
func openJournalDB(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// redactBroker strips credentials from a broker URI before logging.
func redactBroker(address string) string {
	u, err := url.Parse(address)
	if err != nil {
		return "invalid"
	}
	return u.Redacted()
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// Transport interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements bridge.Transport.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements bridge.Transport.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements bridge.Transport.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
