package program

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
	"github.com/nerrad567/gray-logic-dispatch/internal/dispatch"
)

// Dispatcher is what the Runner needs from dispatch.Service.
type Dispatcher interface {
	SendMsg(ctx context.Context, msg device.Message) (*dispatch.Pending, error)
	Step(msg device.Message) dispatch.Step
}

// WSHub is the interface for broadcasting WebSocket events.
type WSHub interface {
	// Broadcast sends an event to all clients subscribed to the given channel.
	Broadcast(channel string, payload any)
}

// Hubs fans one broadcast out to several hubs, skipping nil entries.
func Hubs(hubs ...WSHub) WSHub {
	var out multiHub
	for _, h := range hubs {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

type multiHub []WSHub

func (m multiHub) Broadcast(channel string, payload any) {
	for _, h := range m {
		h.Broadcast(channel, payload)
	}
}

// Logger defines the logging interface used by the Runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// DefaultTimeout is the hard limit for a single program run.
const DefaultTimeout = 60 * time.Second

// EventProgramCompleted is the hub channel a finished run is broadcast on.
const EventProgramCompleted = "program.completed"

// Runner executes programs group by group through a Dispatcher.
//
// A parallel group is dispatched with SendMsg and awaited with
// dispatch.RunParallel. A sequence group goes through dispatch.RunSteps, so
// each command is dispatched only after the previous one succeeded. The
// next group is dispatched only after the current group's combinator has
// returned, and the first failing group aborts the rest of the program.
//
// Thread Safety: Run is safe for concurrent use.
type Runner struct {
	catalogue  *Catalogue
	directory  *Directory
	dispatcher Dispatcher
	repo       Repository // may be nil
	hub        WSHub      // may be nil
	logger     Logger
	timeout    time.Duration
}

// NewRunner creates a program runner.
//
// Parameters:
//   - catalogue: Programs that can be run
//   - directory: Device name to dispatch ID bindings
//   - dispatcher: Usually a *dispatch.Service
//   - repo: Execution journal (may be nil)
//   - hub: WebSocket hub for completion events (may be nil)
//   - logger: Logger instance (may be nil)
func NewRunner(catalogue *Catalogue, directory *Directory, dispatcher Dispatcher, repo Repository, hub WSHub, logger Logger) *Runner {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Runner{
		catalogue:  catalogue,
		directory:  directory,
		dispatcher: dispatcher,
		repo:       repo,
		hub:        hub,
		logger:     logger,
		timeout:    DefaultTimeout,
	}
}

// SetTimeout changes the hard limit for one run. Zero or negative restores
// DefaultTimeout.
func (r *Runner) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultTimeout
	}
	r.timeout = d
}

// compiledGroup is a group whose device names and command kinds have been
// resolved into messages.
type compiledGroup struct {
	mode     Mode
	commands []Command
	msgs     []device.Message
}

// Compile resolves every device name and builds every message of the named
// program without dispatching anything. It is how Run rejects a program
// that references unbound devices before any device work starts.
func (r *Runner) Compile(name string) error {
	p, err := r.catalogue.Get(name)
	if err != nil {
		return err
	}
	_, err = r.compile(p)
	return err
}

func (r *Runner) compile(p *Program) ([]compiledGroup, error) {
	groups := make([]compiledGroup, len(p.Groups))
	for gi, g := range p.Groups {
		cg := compiledGroup{mode: g.Mode, commands: g.Commands, msgs: make([]device.Message, len(g.Commands))}

		for ci, c := range g.Commands {
			id, err := r.directory.Resolve(c.Device)
			if err != nil {
				return nil, fmt.Errorf("group %d command %d: %w", gi, ci, err)
			}
			kind, err := device.ParseCommandKind(c.Command)
			if err != nil {
				return nil, fmt.Errorf("group %d command %d: %w", gi, ci, err)
			}

			var msg device.Message
			if c.Payload != nil {
				msg, err = device.NewMessage(id, kind, *c.Payload)
			} else {
				msg, err = device.NewMessage(id, kind)
			}
			if err != nil {
				return nil, fmt.Errorf("group %d command %d: %w", gi, ci, err)
			}
			cg.msgs[ci] = msg
		}
		groups[gi] = cg
	}
	return groups, nil
}

// Run executes the named program.
//
// Parameters:
//   - ctx: Context for cancellation; a hard timeout is applied on top
//   - name: Program name
//   - triggerSource: Where the run was requested from (cli, api, ...)
//
// Returns:
//   - *Execution: The execution record, nil only if the program could not start
//   - error: nil on success, or:
//   - ErrProgramNotFound if the program does not exist
//   - ErrDeviceNotBound / device.ErrUnknownCommand if it cannot be compiled
//   - ErrProgramFailed (wrapping the combinator error) if a group failed or
//     the run was cancelled
func (r *Runner) Run(ctx context.Context, name, triggerSource string) (*Execution, error) { //nolint:gocognit // group loop with abort, cancellation and journalling
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	p, err := r.catalogue.Get(name)
	if err != nil {
		return nil, err
	}

	groups, err := r.compile(p)
	if err != nil {
		return nil, fmt.Errorf("compiling program %s: %w", p.Name, err)
	}

	now := time.Now().UTC()
	exec := &Execution{
		ID:            GenerateID(),
		Program:       p.Name,
		TriggeredAt:   now,
		Status:        StatusPending,
		GroupsTotal:   len(groups),
		CommandsTotal: p.CommandCount(),
	}
	if triggerSource != "" {
		exec.TriggerSource = &triggerSource
	}

	if r.repo != nil {
		if createErr := r.repo.CreateExecution(ctx, exec); createErr != nil {
			r.logger.Error("failed to create execution record", "error", createErr)
			// Continue: running the program matters more than journalling it
		}
	}

	started := time.Now().UTC()
	exec.StartedAt = &started
	exec.Status = StatusRunning

	r.logger.Info("program run started",
		"program", p.Name,
		"execution_id", exec.ID,
		"groups", len(groups),
		"commands", exec.CommandsTotal,
	)

	var runErr error
	for gi, g := range groups {
		if runErr != nil {
			exec.CommandsSkipped += len(g.msgs)
			continue
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			exec.CommandsSkipped += len(g.msgs)
			exec.Status = StatusCancelled
			runErr = fmt.Errorf("%w: %s cancelled before group %d: %w", ErrProgramFailed, p.Name, gi, ctxErr)
			continue
		}

		res := r.runGroup(ctx, gi, g)
		exec.CommandsCompleted += res.completed
		exec.CommandsFailed += len(res.failures)
		exec.CommandsSkipped += res.skipped
		exec.Failures = append(exec.Failures, res.failures...)

		if res.err != nil {
			if ctx.Err() != nil {
				exec.Status = StatusCancelled
			}
			runErr = fmt.Errorf("%w: %s group %d (%s): %w", ErrProgramFailed, p.Name, gi, g.mode, res.err)
			continue
		}
		exec.GroupsCompleted++
	}

	completedAt := time.Now().UTC()
	exec.CompletedAt = &completedAt
	duration := int(completedAt.Sub(started).Milliseconds())
	exec.DurationMS = &duration

	switch {
	case exec.Status == StatusCancelled:
		// Already set
	case runErr != nil:
		exec.Status = StatusFailed
	default:
		exec.Status = StatusCompleted
	}

	if r.repo != nil {
		// The run context may have expired; the journal entry must still land.
		saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if updateErr := r.repo.UpdateExecution(saveCtx, exec); updateErr != nil {
			r.logger.Error("failed to update execution record", "error", updateErr)
		}
		saveCancel()
	}

	r.logger.Info("program run complete",
		"program", p.Name,
		"execution_id", exec.ID,
		"status", exec.Status,
		"completed", exec.CommandsCompleted,
		"failed", exec.CommandsFailed,
		"skipped", exec.CommandsSkipped,
		"duration_ms", duration,
	)

	if r.hub != nil {
		r.hub.Broadcast(EventProgramCompleted, exec.CompletionEvent())
	}

	return exec, runErr
}

// groupResult is the tally of one group.
type groupResult struct {
	completed int
	skipped   int
	failures  []CommandFailure
	err       error
}

func (r *Runner) runGroup(ctx context.Context, gi int, g compiledGroup) groupResult {
	r.logger.Debug("program group started", "group", gi, "mode", g.mode, "commands", len(g.msgs))

	if g.mode == ModeSequence {
		return r.runSequence(ctx, gi, g)
	}
	return r.runParallel(ctx, gi, g)
}

func (r *Runner) runParallel(ctx context.Context, gi int, g compiledGroup) groupResult {
	var res groupResult

	// Dispatch everything first; a command that cannot be dispatched is a
	// failure of this group but does not stop its siblings.
	ops := make([]*dispatch.Pending, 0, len(g.msgs))
	index := make([]int, 0, len(g.msgs))
	var sendErrs []error
	for ci, msg := range g.msgs {
		op, err := r.dispatcher.SendMsg(ctx, msg)
		if err != nil {
			res.failures = append(res.failures, r.failure(gi, ci, g, err))
			sendErrs = append(sendErrs, err)
			continue
		}
		ops = append(ops, op)
		index = append(index, ci)
	}

	_, err := dispatch.RunParallel(ctx, ops...)

	var agg *dispatch.AggregateError
	if errors.As(err, &agg) {
		for _, o := range agg.Outcomes {
			if o.Failed() {
				res.failures = append(res.failures, r.failure(gi, index[o.Index], g, o.Err))
			} else {
				res.completed++
			}
		}
	} else if err == nil {
		res.completed = len(ops)
	}

	if err != nil || len(sendErrs) > 0 {
		res.err = errors.Join(append(sendErrs, err)...)
	}
	return res
}

func (r *Runner) runSequence(ctx context.Context, gi int, g compiledGroup) groupResult {
	var res groupResult

	steps := make([]dispatch.Step, len(g.msgs))
	for ci, msg := range g.msgs {
		steps[ci] = r.dispatcher.Step(msg)
	}

	_, err := dispatch.RunSteps(ctx, steps...)
	if err == nil {
		res.completed = len(steps)
		return res
	}

	var seqErr *dispatch.SequenceError
	if errors.As(err, &seqErr) {
		res.completed = seqErr.Index
		res.skipped = len(steps) - seqErr.Index - 1
		res.failures = append(res.failures, r.failure(gi, seqErr.Index, g, seqErr.Err))
	} else {
		res.skipped = len(steps)
	}
	res.err = err
	return res
}

func (r *Runner) failure(gi, ci int, g compiledGroup, err error) CommandFailure {
	return CommandFailure{
		GroupIndex:   gi,
		CommandIndex: ci,
		Device:       g.commands[ci].Device,
		DeviceID:     string(g.msgs[ci].Target()),
		Command:      string(g.msgs[ci].Kind()),
		ErrorCode:    failureCode(err),
		ErrorMsg:     err.Error(),
	}
}

func failureCode(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrUnknownDevice):
		return CodeUnknownDevice
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	default:
		return CodeDeviceFailure
	}
}
