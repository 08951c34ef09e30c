// Gray Logic Actuator - simulated CoAP actuator
//
// The actuator registers with a coordinator over CoAP, serves ON / OFF /
// ON-PULSE commands on its own CoAP endpoint, persists its state and
// re-registers whenever the coordinator goes quiet.
//
// Optional outputs: MQTT state/status, InfluxDB telemetry, a diagnostics
// HTTP API with a WebSocket state stream, and mDNS advertisement.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-actuator/internal/api"
	"github.com/nerrad567/gray-logic-actuator/internal/coap"
	"github.com/nerrad567/gray-logic-actuator/internal/device"
	"github.com/nerrad567/gray-logic-actuator/internal/dispatch"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-actuator/internal/infrastructure/netaddr"
	"github.com/nerrad567/gray-logic-actuator/internal/liveness"
	"github.com/nerrad567/gray-logic-actuator/internal/mdns"
	"github.com/nerrad567/gray-logic-actuator/internal/registration"
	"github.com/nerrad567/gray-logic-actuator/migrations"
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

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing a fatal startup failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear startup sequence
	log := logging.Default()
	log.Info("starting Gray Logic Actuator",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("boot_id", uuid.NewString())
	log.Info("configuration loaded", "path", configPath)

	// Network identity
	ip, err := netaddr.Resolve(cfg.Device.IPAddress)
	if err != nil {
		return fmt.Errorf("resolving local address: %w", err)
	}
	log.Info("local address", "ip", ip)

	pulse := pulseCapable(cfg.Device.PulseMarker)
	log.Info("pulse capability", "marker", cfg.Device.PulseMarker, "pulse", pulse)

	// Persistence
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	history := device.NewSQLiteStateHistoryRepository(db.DB)
	if cfg.State.HistoryRetentionDays > 0 {
		retention := time.Duration(cfg.State.HistoryRetentionDays) * 24 * time.Hour
		if pruned, pruneErr := history.PruneHistory(ctx, retention); pruneErr != nil {
			log.Warn("pruning state history failed", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("pruned state history", "rows", pruned)
		}
	}

	store := newStore(cfg.State, db)
	log.Info("state store ready", "backend", cfg.State.Backend)

	// Registration
	endpoint, err := registration.ParseEndpoint(cfg.Coordinator.RegisterURL)
	if err != nil {
		return fmt.Errorf("parsing coordinator URL: %w", err)
	}
	registrar := registration.NewClient(coap.NewClient(), endpoint, cfg.Coordinator.RequestTimeout)
	registrar.SetLogger(log.Component("registration"))

	attempts := registration.NewSQLiteAttemptLog(db.DB)
	req := registration.NewRequest(ip.String(), cfg.Device.Port, pulse)

	resp, err := bootstrap(ctx, registrar, attempts, req, log)
	if err != nil {
		return fmt.Errorf("registering with coordinator %s: %w", endpoint, err)
	}
	log.Info("registered with coordinator", "coordinator", endpoint.String(), "id", resp.ID, "state", resp.State)

	// Core runtime
	monitor := liveness.NewMonitor(liveness.NewCounter(), registrar, req, liveness.Config{
		TickInterval: cfg.Liveness.TickInterval,
		TimeoutTicks: cfg.Liveness.TimeoutTicks,
		RetryBackoff: cfg.GetRetryBackoff(),
	})
	monitor.SetLogger(log.Component("liveness"))

	var pulseOpts []device.PulseOption
	if cfg.State.PulseLastWriterWins {
		pulseOpts = append(pulseOpts, device.WithLastWriterWins())
	}
	dispatcher := dispatch.New(store, device.NewPulseTimer(cfg.Device.PulseDuration, pulseOpts...), monitor)
	dispatcher.SetLogger(log.Component("dispatch"))

	dispatcher.AddObserver(&historyObserver{repo: history, log: log})

	outcomes := &outcomeRecorder{attempts: attempts, log: log}
	monitor.SetOutcomeHandler(outcomes.handle)

	checks := map[string]api.HealthChecker{"database": db}

	// Optional outputs. Failures here are logged and the actuator carries on.
	telemetry := openTelemetry(cfg.InfluxDB, resp.ID, log)
	if telemetry != nil {
		defer func() {
			log.Info("closing InfluxDB telemetry")
			telemetry.Close() //nolint:errcheck // Close always returns nil
		}()
		checks["influxdb"] = telemetry
		dispatcher.AddObserver(&influxObserver{telemetry: telemetry})
		outcomes.influx = telemetry
		telemetry.RecordRegistration(registration.OutcomeRegistered, true, time.Now())
		monitor.SetTickHandler(func(_ context.Context, n int64) {
			telemetry.RecordLiveness(n, time.Now())
		})
	}

	var inputs []commandInput
	mqttClient := connectMQTT(cfg.MQTT, resp.ID, log)
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
		publisher := newMQTTObserver(mqttClient, log)
		defer publisher.stop()
		dispatcher.AddObserver(publisher)
		outcomes.mqtt = mqttClient

		inputs = append(inputs, &mqttCommandBinding{client: mqttClient, dispatcher: dispatcher, qos: byte(cfg.MQTT.QoS), log: log})
	}

	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Logger:   log.Component("api"),
			Store:    store,
			History:  history,
			Attempts: attempts,
			Liveness: monitor,
			Checks:   checks,
			DeviceID: resp.ID,
			Version:  version,
		})
		if apiErr == nil {
			dispatcher.AddObserver(apiServer.Stream())
			apiErr = apiServer.Start(ctx)
		}
		if apiErr != nil {
			log.Warn("diagnostics API unavailable", "error", apiErr)
		} else {
			defer func() {
				if closeErr := apiServer.Close(); closeErr != nil {
					log.Error("error closing API server", "error", closeErr)
				}
			}()
		}
	}

	// Seed after observers are attached so the initial state is published.
	seedThenListen(ctx, dispatcher, device.FromBool(resp.State), inputs, log)

	// Pending pulse reverts are cancelled once the command endpoint is closed.
	defer dispatcher.Stop()

	// Command endpoint
	coapServer := coap.NewServer(net.JoinHostPort(ip.String(), strconv.Itoa(cfg.Device.Port)), dispatcher)
	coapServer.SetLogger(log.Component("coap"))
	if startErr := coapServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting CoAP server: %w", startErr)
	}
	defer func() {
		log.Info("stopping CoAP server")
		if closeErr := coapServer.Close(); closeErr != nil {
			log.Error("error closing CoAP server", "error", closeErr)
		}
	}()
	log.Info("command endpoint ready", "address", coapServer.Addr().String(), "path", cfg.Device.CommandPath)

	if cfg.MDNS.Enabled {
		advertiser := mdns.NewAdvertiser(cfg.MDNS)
		advertiser.SetLogger(log.Component("mdns"))
		if advErr := advertiser.Advertise(mdns.Info{DeviceID: resp.ID, Port: cfg.Device.Port, Pulse: pulse}); advErr != nil {
			log.Warn("mDNS advertisement unavailable", "error", advErr)
		} else {
			defer advertiser.Stop()
		}
	}

	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(ctx) //nolint:errcheck // Run only returns on cancellation
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	<-monitorDone

	log.Info("Gray Logic Actuator stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ACTUATOR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ACTUATOR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// pulseCapable reports whether the pulse marker file exists.
func pulseCapable(marker string) bool {
	if marker == "" {
		return false
	}
	_, err := os.Stat(marker)
	return err == nil
}

// newStore builds the state store selected by cfg.Backend.
func newStore(cfg config.StateConfig, db *database.DB) device.Store {
	if cfg.Backend == config.StateBackendFile {
		return device.NewFileStore(cfg.FilePath)
	}
	return device.NewSQLiteStore(db.DB)
}

// attemptRecorder persists registration attempts.
type attemptRecorder interface {
	Record(ctx context.Context, a registration.Attempt) error
}

// bootstrap performs the first registration. Any failure is returned so the
// actuator never serves commands unregistered.
func bootstrap(ctx context.Context, registrar liveness.Registrar, attempts attemptRecorder, req registration.Request, log *logging.Logger) (registration.Response, error) {
	resp, err := registrar.Register(ctx, req)
	if recErr := attempts.Record(ctx, registration.NewAttempt(resp, err)); recErr != nil {
		log.Warn("recording registration attempt failed", "error", recErr)
	}
	if err != nil {
		return registration.Response{}, err
	}
	return resp, nil
}

// seeder is satisfied by *dispatch.Dispatcher.
type seeder interface {
	Seed(ctx context.Context, st device.State) error
}

// commandInput is a command source that starts delivering once subscribed.
type commandInput interface {
	subscribe() error
}

// seedThenListen applies the registration state and only then opens the
// command inputs, so a command is never overwritten by the seed.
func seedThenListen(ctx context.Context, d seeder, st device.State, inputs []commandInput, log *logging.Logger) {
	if err := d.Seed(ctx, st); err != nil {
		log.Error("seeding initial state failed", "error", err)
	}
	for _, in := range inputs {
		if err := in.subscribe(); err != nil {
			log.Warn("command input unavailable", "error", err)
		}
	}
}

// openTelemetry returns nil when InfluxDB is disabled or unreachable.
func openTelemetry(cfg config.InfluxDBConfig, deviceID int64, log *logging.Logger) *influxdb.Telemetry {
	telemetry, err := influxdb.Open(cfg, deviceID, func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil
	}
	if err != nil {
		log.Warn("InfluxDB unavailable, telemetry disabled", "error", err)
		return nil
	}

	log.Info("InfluxDB connected", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return telemetry
}

// connectMQTT returns nil when MQTT is disabled or the broker is unreachable.
func connectMQTT(cfg config.MQTTConfig, deviceID int64, log *logging.Logger) *mqtt.Client {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil
	}

	client, err := mqtt.Connect(cfg, mqtt.NewTopics(deviceID))
	if err != nil {
		log.Warn("MQTT unavailable, state publishing disabled", "error", err)
		return nil
	}

	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT connected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client
}
