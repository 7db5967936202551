package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID was never registered.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidDevice is returned when registering a nil device.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrUnknownCommand is returned when a command kind is not recognised.
	ErrUnknownCommand = errors.New("device: unknown command")

	// ErrInvalidMessage is returned when a message cannot be constructed.
	ErrInvalidMessage = errors.New("device: invalid message")
)
