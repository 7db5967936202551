package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-dispatch/internal/appliance"
	"github.com/nerrad567/gray-logic-dispatch/internal/device"
	"github.com/nerrad567/gray-logic-dispatch/internal/dispatch"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-dispatch/internal/program"
)

// core is the dispatch machinery every command needs: the service with its
// registered devices, the name directory and the program catalogue.
type core struct {
	service   *dispatch.Service
	directory *program.Directory
	catalogue *program.Catalogue

	// order lists program names as they were loaded.
	order []string
}

// loadConfig loads configuration and builds the configured logger.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// openDatabase opens the SQLite database and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(databaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")
	return db, nil
}

func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	}
}

// buildCore creates the dispatch service, registers the configured devices
// and loads the program catalogue.
func buildCore(cfg *config.Config, log *logging.Logger) (*core, error) {
	service := dispatch.NewService()
	service.SetLogger(log)
	service.SetCommandTimeout(cfg.GetCommandTimeout())

	directory := program.NewDirectory()
	if err := registerDevices(service, directory, cfg.Devices); err != nil {
		return nil, err
	}
	log.Info("devices registered", "count", len(cfg.Devices), "names", directory.Names())

	programs := program.Defaults()
	source := "built-in"
	if cfg.Programs.Path != "" {
		loaded, err := program.LoadFile(cfg.Programs.Path)
		if err != nil {
			return nil, err
		}
		programs, source = loaded, cfg.Programs.Path
	}

	catalogue := program.NewCatalogue()
	if err := catalogue.AddAll(programs); err != nil {
		return nil, fmt.Errorf("loading programs: %w", err)
	}
	order := make([]string, 0, len(programs))
	for _, p := range programs {
		order = append(order, p.Name)
	}
	log.Info("programs loaded", "source", source, "count", catalogue.Count())

	return &core{
		service:   service,
		directory: directory,
		catalogue: catalogue,
		order:     order,
	}, nil
}

// checkPrograms warns about programs that cannot run yet because they name
// devices that are not bound. They stay in the catalogue: a device created
// later through the API makes them runnable.
func (c *core) checkPrograms(runner *program.Runner, log *logging.Logger) {
	for _, name := range c.order {
		if err := runner.Compile(name); err != nil {
			log.Warn("program cannot run with the current devices", "program", name, "error", err)
		}
	}
}

// registerDevices creates every configured appliance and registers them
// concurrently, then binds each to its configured name.
func registerDevices(service *dispatch.Service, directory *program.Directory, devices []config.DeviceConfig) error {
	ids := make([]device.ID, len(devices))

	var g errgroup.Group
	for i, d := range devices {
		g.Go(func() error {
			dev, err := appliance.New(d.Kind, d.Latency())
			if err != nil {
				return fmt.Errorf("device %q: %w", d.Name, err)
			}
			id, err := service.RegisterDevice(dev)
			if err != nil {
				return fmt.Errorf("registering device %q: %w", d.Name, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, d := range devices {
		if err := directory.Bind(d.Name, ids[i]); err != nil {
			return fmt.Errorf("binding device %q: %w", d.Name, err)
		}
	}
	return nil
}
