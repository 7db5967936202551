package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/api"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dispatch/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-dispatch/internal/program"
)

// runPrograms runs the named programs one after another and prints the
// outcome and elapsed time of each. With no names it runs every loaded
// program in file order. The first failing program stops the command.
func runPrograms(ctx context.Context, configPath string, names []string, out io.Writer) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Close()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := buildCore(cfg, log)
	if err != nil {
		return err
	}
	defer c.service.Wait()

	runner := program.NewRunner(c.catalogue, c.directory, c.service, program.NewSQLiteRepository(db.DB), nil, log)
	runner.SetTimeout(cfg.GetProgramTimeout())
	c.checkPrograms(runner, log)

	if len(names) == 0 {
		names = c.order
	}

	start := time.Now()
	for _, name := range names {
		exec, runErr := runner.Run(ctx, name, "cli")
		if exec != nil {
			fmt.Fprintf(out, "%s: %s in %s\n", exec.Program, exec.Status, elapsedOf(exec))
		}
		if runErr != nil {
			return fmt.Errorf("program %q: %w", name, runErr)
		}
	}
	fmt.Fprintf(out, "Elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// elapsedOf reports a finished execution's duration.
func elapsedOf(exec *program.Execution) time.Duration {
	if exec.DurationMS == nil {
		return 0
	}
	return time.Duration(*exec.DurationMS) * time.Millisecond
}

// issueToken prints a bearer token signed with the configured secret.
// A zero ttl uses security.jwt.access_token_ttl.
func issueToken(configPath, subject string, ttl time.Duration, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return errors.New("security.jwt.secret is not set, the API does not require tokens")
	}
	if ttl <= 0 {
		ttl = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}

	token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// migrateStatus prints applied and pending migrations without applying any.
func migrateStatus(ctx context.Context, configPath string, out io.Writer) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Close()

	db, err := database.Open(databaseConfig(cfg))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

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
	fmt.Fprintf(out, "%d applied, %d pending\n", len(applied), len(pending))
	return nil
}

// migrateUp applies every pending migration.
func migrateUp(ctx context.Context, configPath string, out io.Writer) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Close()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintln(out, "migrations applied")
	return nil
}

// migrateDown rolls back the most recent migration.
func migrateDown(ctx context.Context, configPath string, out io.Writer) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Close()

	db, err := database.Open(databaseConfig(cfg))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}
	fmt.Fprintln(out, "rolled back the most recent migration")
	return nil
}
