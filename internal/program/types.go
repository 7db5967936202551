package program

import "time"

// Mode selects the combinator a group's commands run through.
type Mode string

const (
	// ModeParallel dispatches every command at once and waits for all.
	ModeParallel Mode = "parallel"

	// ModeSequence dispatches each command only after the previous one
	// succeeded.
	ModeSequence Mode = "sequence"
)

// AllModes returns every valid group mode.
func AllModes() []Mode {
	return []Mode{ModeParallel, ModeSequence}
}

// Program is a named, ordered list of execution groups.
//
// Groups run one after another; a group starts only once the previous
// group's combinator has returned successfully.
type Program struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Groups      []Group `json:"groups" yaml:"groups"`
}

// Group is a set of commands sharing one ordering discipline.
type Group struct {
	Mode     Mode      `json:"mode" yaml:"mode"`
	Commands []Command `json:"commands" yaml:"commands"`
}

// Command addresses one device by its directory name.
type Command struct {
	// Device is the name the device was bound under, not its dispatch ID.
	Device string `json:"device" yaml:"device"`

	// Command is a device.CommandKind in text form ("switch_on", "play_song").
	Command string `json:"command" yaml:"command"`

	// Payload is passed to the device when set (e.g. a song title).
	Payload *string `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// CommandCount returns the total number of commands across all groups.
func (p *Program) CommandCount() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Commands)
	}
	return n
}

// DeepCopy creates a complete independent copy of the Program.
func (p *Program) DeepCopy() *Program {
	if p == nil {
		return nil
	}

	cpy := *p
	if p.Groups != nil {
		cpy.Groups = make([]Group, len(p.Groups))
		for i, g := range p.Groups {
			cpy.Groups[i] = Group{Mode: g.Mode}
			if g.Commands != nil {
				cpy.Groups[i].Commands = make([]Command, len(g.Commands))
				for j, c := range g.Commands {
					cpy.Groups[i].Commands[j] = c
					cpy.Groups[i].Commands[j].Payload = cloneStringPtr(c.Payload)
				}
			}
		}
	}
	return &cpy
}

// Execution tracks a single run of a program.
type Execution struct {
	ID            string          `json:"id"`
	Program       string          `json:"program"`
	TriggeredAt   time.Time       `json:"triggered_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	TriggerSource *string         `json:"trigger_source,omitempty"` // cli, api, ...
	Status        ExecutionStatus `json:"status"`

	// Group counts
	GroupsTotal     int `json:"groups_total"`
	GroupsCompleted int `json:"groups_completed"`

	// Command counts
	CommandsTotal     int `json:"commands_total"`
	CommandsCompleted int `json:"commands_completed"`
	CommandsFailed    int `json:"commands_failed"`
	CommandsSkipped   int `json:"commands_skipped"`

	// Failure details (populated when commands fail)
	Failures []CommandFailure `json:"failures,omitempty"`

	// Total execution duration in milliseconds
	DurationMS *int `json:"duration_ms,omitempty"`
}

// CompletionEvent is the summary broadcast when a run finishes.
type CompletionEvent struct {
	Program           string          `json:"program"`
	ExecutionID       string          `json:"execution_id"`
	Status            ExecutionStatus `json:"status"`
	TriggerSource     string          `json:"trigger_source,omitempty"`
	DurationMS        int             `json:"duration_ms"`
	CommandsCompleted int             `json:"commands_completed"`
	CommandsFailed    int             `json:"commands_failed"`
	CommandsSkipped   int             `json:"commands_skipped"`
	CompletedAt       time.Time       `json:"completed_at"`
}

// CompletionEvent summarises a finished execution.
func (e *Execution) CompletionEvent() CompletionEvent {
	ev := CompletionEvent{
		Program:           e.Program,
		ExecutionID:       e.ID,
		Status:            e.Status,
		CommandsCompleted: e.CommandsCompleted,
		CommandsFailed:    e.CommandsFailed,
		CommandsSkipped:   e.CommandsSkipped,
	}
	if e.TriggerSource != nil {
		ev.TriggerSource = *e.TriggerSource
	}
	if e.DurationMS != nil {
		ev.DurationMS = *e.DurationMS
	}
	if e.CompletedAt != nil {
		ev.CompletedAt = *e.CompletedAt
	}
	return ev
}

// CommandFailure records one failed command within an execution.
type CommandFailure struct {
	GroupIndex   int    `json:"group_index"`
	CommandIndex int    `json:"command_index"`
	Device       string `json:"device"`
	DeviceID     string `json:"device_id,omitempty"`
	Command      string `json:"command"`
	ErrorCode    string `json:"error_code"`
	ErrorMsg     string `json:"error_message"`
}

// Failure codes stored in CommandFailure.ErrorCode.
const (
	CodeUnknownDevice = "UNKNOWN_DEVICE"
	CodeDeviceFailure = "DEVICE_FAILURE"
	CodeTimeout       = "TIMEOUT"
	CodeCancelled     = "CANCELLED"
)

// ExecutionStatus represents the state of a program execution.
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "pending"
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"    // A group failed, program aborted
	StatusCancelled ExecutionStatus = "cancelled" // Context ended mid-execution
)

// cloneStringPtr creates an independent copy of a *string.
func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
