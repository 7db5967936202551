package program

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// Validation constants.
const (
	maxNameLength        = 50
	maxDescriptionLen    = 500
	maxGroups            = 50
	maxCommandsPerGroup  = 100
	maxPayloadLength     = 500
	maxDeviceNameLength  = 64
	namePattern          = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
	deviceNamePattern    = `^[a-z0-9]+(?:[-_][a-z0-9]+)*$`
	maxExecutionsListed  = 100
	defaultExecutionList = 10
)

var (
	nameRegex       = regexp.MustCompile(namePattern)
	deviceNameRegex = regexp.MustCompile(deviceNamePattern)
)

// ValidateProgram performs comprehensive validation on a program.
// Returns an error describing the first validation failure found.
//
// Device names are checked for shape only; whether they are bound is
// decided when the program is run.
func ValidateProgram(p *Program) error {
	if p == nil {
		return ErrInvalidProgram
	}

	if err := ValidateName(p.Name); err != nil {
		return err
	}

	if len(p.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidProgram, maxDescriptionLen)
	}

	if len(p.Groups) == 0 {
		return ErrNoGroups
	}
	if len(p.Groups) > maxGroups {
		return fmt.Errorf("%w: exceeds maximum of %d groups", ErrInvalidProgram, maxGroups)
	}

	for i, g := range p.Groups {
		if err := validateGroup(g); err != nil {
			return fmt.Errorf("group %d: %w", i, err)
		}
	}
	return nil
}

// ValidateName checks that a program name is a lowercase slug such as
// "wake-up".
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("%w: %q must be lowercase alphanumeric with hyphens", ErrInvalidName, name)
	}
	return nil
}

// ValidateDeviceName checks a directory name such as "hue-light".
func ValidateDeviceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: device name is required", ErrInvalidCommand)
	}
	if len(name) > maxDeviceNameLength {
		return fmt.Errorf("%w: device name exceeds %d characters", ErrInvalidCommand, maxDeviceNameLength)
	}
	if !deviceNameRegex.MatchString(name) {
		return fmt.Errorf("%w: device name %q must be lowercase alphanumeric with hyphens or underscores", ErrInvalidCommand, name)
	}
	return nil
}

func validateGroup(g Group) error {
	switch g.Mode {
	case ModeParallel, ModeSequence:
	default:
		return fmt.Errorf("%w: mode %q must be parallel or sequence", ErrInvalidGroup, g.Mode)
	}

	if len(g.Commands) == 0 {
		return fmt.Errorf("%w: no commands", ErrInvalidGroup)
	}
	if len(g.Commands) > maxCommandsPerGroup {
		return fmt.Errorf("%w: exceeds maximum of %d commands", ErrInvalidGroup, maxCommandsPerGroup)
	}

	for j, c := range g.Commands {
		if err := validateCommand(c); err != nil {
			return fmt.Errorf("command %d: %w", j, err)
		}
	}
	return nil
}

func validateCommand(c Command) error {
	if err := ValidateDeviceName(c.Device); err != nil {
		return err
	}
	if _, err := device.ParseCommandKind(c.Command); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if c.Payload != nil && len(*c.Payload) > maxPayloadLength {
		return fmt.Errorf("%w: payload exceeds %d characters", ErrInvalidCommand, maxPayloadLength)
	}
	return nil
}

// normaliseName trims and lowercases a user-supplied program name.
func normaliseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// GenerateID creates a new unique execution identifier.
func GenerateID() string {
	return uuid.NewString()
}
