// Package program runs declared programs of device commands for Gray Logic
// Dispatch.
//
// A program is an ordered list of groups. Each group is either "parallel"
// (all commands dispatched at once, awaited together) or "sequence" (each
// command dispatched only after the previous one succeeded). Groups run one
// after another, and the first failing group aborts the rest.
//
// Architecture:
//
//	┌───────────────────────────────────────────────────────┐
//	│                  Runner (runner.go)                    │
//	│  ┌──────────────┐    ┌──────────────┐                 │
//	│  │  Catalogue   │    │  Directory   │                 │
//	│  │(catalogue.go)│    │(directory.go)│                 │
//	│  └──────────────┘    └──────────────┘                 │
//	│        │  name → Program     │  device name → ID      │
//	│        ▼                     ▼                        │
//	│  ┌──────────────────────────────────────────────┐    │
//	│  │  Execution Pipeline                           │    │
//	│  │  1. Compile every command into a Message      │    │
//	│  │  2. parallel: SendMsg + RunParallel           │    │
//	│  │     sequence: RunSteps                        │    │
//	│  │  3. Abort on first failing group              │    │
//	│  │  4. Journal the Execution (repository.go)     │    │
//	│  │  5. Broadcast program.completed               │    │
//	│  └──────────────────────────────────────────────┘    │
//	└───────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Program, Group, Command: The declaration, loaded from YAML (loader.go)
//   - Execution: Journal record of one run with per-command failures
//   - Catalogue: Thread-safe program store
//   - Directory: Thread-safe device name bindings
//   - Runner: Executes programs through a dispatch.Service
//   - SQLiteRepository: Execution journal in the program_executions table
//
// # Usage
//
//	catalogue := program.NewCatalogue()
//	if err := catalogue.AddAll(program.Defaults()); err != nil {
//	    return err
//	}
//
//	directory := program.NewDirectory()
//	id, _ := svc.RegisterDevice(appliance.NewHueLight(0))
//	_ = directory.Bind("hue-light", id)
//
//	runner := program.NewRunner(catalogue, directory, svc, repo, hub, log)
//	exec, err := runner.Run(ctx, "wake-up", "cli")
package program
