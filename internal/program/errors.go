package program

import "errors"

// Domain errors for the program package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, program.ErrProgramNotFound) {
//	    // handle not found case
//	}
var (
	// ErrProgramNotFound is returned when a program name is not in the catalogue.
	ErrProgramNotFound = errors.New("program: not found")

	// ErrProgramExists is returned when adding a program whose name is taken.
	ErrProgramExists = errors.New("program: already exists")

	// ErrInvalidProgram is returned when program validation fails.
	ErrInvalidProgram = errors.New("program: invalid")

	// ErrInvalidName is returned when a program name is empty or malformed.
	ErrInvalidName = errors.New("program: invalid name")

	// ErrInvalidGroup is returned when a group has a bad mode or no commands.
	ErrInvalidGroup = errors.New("program: invalid group")

	// ErrInvalidCommand is returned when a command is malformed.
	ErrInvalidCommand = errors.New("program: invalid command")

	// ErrNoGroups is returned when a program has no groups defined.
	ErrNoGroups = errors.New("program: no groups")

	// ErrDeviceNotBound is returned when a command names a device that has
	// no entry in the Directory.
	ErrDeviceNotBound = errors.New("program: device not bound")

	// ErrDeviceNameTaken is returned when binding a name twice.
	ErrDeviceNameTaken = errors.New("program: device name already bound")

	// ErrProgramFailed is returned by Runner.Run when a group failed or the
	// run was cancelled. The Execution is still returned.
	ErrProgramFailed = errors.New("program: run failed")

	// ErrExecutionNotFound is returned when an execution ID does not exist.
	ErrExecutionNotFound = errors.New("program: execution not found")
)
