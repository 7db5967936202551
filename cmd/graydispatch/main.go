// Gray Logic Dispatch - command dispatch for simulated home appliances.
//
// This is the main entry point for graydispatch. It hosts the dispatch
// service, the program runner and the HTTP/WebSocket API, and can also run
// programs once from the command line.
//
// Commands:
//   - serve (default): run the API server until interrupted
//   - run [program...]: run programs in order and print how long they took
//   - migrate status|up|down: inspect or change the database schema
//   - token --subject NAME: issue an API bearer token
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	_ "github.com/nerrad567/gray-logic-dispatch/migrations"
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
	// Cancel on Ctrl+C and SIGTERM so every command shuts down cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the CLI. It is separate from main so tests can run
// commands against a captured writer.
func newApp() *cli.App {
	return &cli.App{
		Name:            "graydispatch",
		Usage:           "dispatch commands and programs to home appliances",
		Version:         fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML configuration file",
				EnvVars: []string{"GRAYLOGIC_CONFIG"},
				Value:   defaultConfigPath,
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the API server until interrupted",
				Action: serveAction,
			},
			{
				Name:      "run",
				Usage:     "run programs once, in order, and exit",
				ArgsUsage: "[program...]",
				Action:    runAction,
			},
			{
				Name:  "migrate",
				Usage: "inspect, apply or roll back database migrations",
				Subcommands: []*cli.Command{
					{
						Name:   "status",
						Usage:  "list applied and pending migrations",
						Action: migrateAction(migrateStatus),
					},
					{
						Name:   "up",
						Usage:  "apply pending migrations",
						Action: migrateAction(migrateUp),
					},
					{
						Name:   "down",
						Usage:  "roll back the most recent migration",
						Action: migrateAction(migrateDown),
					},
				},
			},
			{
				Name:  "token",
				Usage: "issue a bearer token for the API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "subject",
						Usage:    "who the token is for (e.g. panel-kitchen)",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "token lifetime (default security.jwt.access_token_ttl)",
					},
				},
				Action: tokenAction,
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	return serve(c.Context, c.String("config"))
}

func runAction(c *cli.Context) error {
	return runPrograms(c.Context, c.String("config"), c.Args().Slice(), c.App.Writer)
}

func migrateAction(fn func(ctx context.Context, configPath string, out io.Writer) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		return fn(c.Context, c.String("config"), c.App.Writer)
	}
}

func tokenAction(c *cli.Context) error {
	return issueToken(c.String("config"), c.String("subject"), c.Duration("ttl"), c.App.Writer)
}
