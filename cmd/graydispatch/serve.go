package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/nerrad567/gray-logic-dispatch/internal/api"
	"github.com/nerrad567/gray-logic-dispatch/internal/dispatch"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dispatch/internal/program"
	"github.com/nerrad567/gray-logic-dispatch/internal/telemetry"
)

// serve runs the API server until ctx is cancelled.
//
// Startup order: config, logger, database, devices and programs, MQTT and
// InfluxDB (when enabled), telemetry, event hub, runner, API. Shutdown runs
// the deferred closes in reverse.
func serve(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting graydispatch",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	c, err := buildCore(cfg, log)
	if err != nil {
		return err
	}

	checks := map[string]api.HealthChecker{"database": db}
	telemetryOpts := telemetry.Options{
		Kinds:  c.service.Registry(),
		Names:  c.directory,
		Logger: log,
	}

	// Connect to MQTT broker (optional)
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

		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		telemetryOpts.Publisher = mqttClient
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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

		telemetryOpts.Metrics = influxClient
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	recorder := telemetry.NewRecorder(telemetryOpts)
	if err := recorder.Start(ctx); err != nil {
		return fmt.Errorf("starting telemetry recorder: %w", err)
	}
	defer func() {
		recorder.Stop()
		if dropped := recorder.Dropped(); dropped > 0 {
			log.Warn("telemetry results dropped", "count", dropped)
		}
	}()

	// Let in-flight device work settle before telemetry stops
	defer c.service.Wait()

	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Observe before anything can send: the MQTT listener dispatches as soon
	// as it is subscribed.
	c.service.SetObserver(dispatch.Observers(hub, recorder))

	if mqttClient != nil {
		listener := telemetry.NewListener(mqttClient, c.service, c.directory, log)
		listener.SetTimeout(cfg.GetCommandTimeout())
		if err := listener.Start(ctx); err != nil {
			return fmt.Errorf("starting MQTT command listener: %w", err)
		}
		defer listener.Stop()
	}

	runner := program.NewRunner(
		c.catalogue,
		c.directory,
		c.service,
		program.NewSQLiteRepository(db.DB),
		program.Hubs(hub, recorder),
		log,
	)
	runner.SetTimeout(cfg.GetProgramTimeout())
	c.checkPrograms(runner, log)

	srv, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Service:    c.service,
		Directory:  c.directory,
		Catalogue:  c.catalogue,
		Runner:     runner,
		Executions: program.NewSQLiteRepository(db.DB),
		Checks:     checks,
		Hub:        hub,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// healthCheck verifies every infrastructure connection, in name order.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := checks[name].HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
