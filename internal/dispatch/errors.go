package dispatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// Domain errors for the dispatch package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, dispatch.ErrUnknownDevice) {
//	    // the caller addressed a device that was never registered
//	}
var (
	// ErrUnknownDevice is returned synchronously by SendMsg when the message
	// target was never registered with this Service. No device work starts.
	ErrUnknownDevice = errors.New("dispatch: unknown device")

	// ErrAlreadyConsumed is returned when a Pending is awaited a second time.
	ErrAlreadyConsumed = errors.New("dispatch: operation already consumed")

	// ErrNilOperation is returned when a combinator is handed a nil Pending
	// or a zero Step.
	ErrNilOperation = errors.New("dispatch: nil operation")

	// ErrDevicePanic is wrapped in a DeviceError when a device's Accept panics.
	ErrDevicePanic = errors.New("dispatch: device panicked")
)

// DeviceError reports that a device's accept-operation failed.
// The reason is opaque to the dispatcher and is available through Unwrap.
type DeviceError struct {
	DeviceID device.ID
	Command  device.CommandKind
	Err      error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("dispatch: device %s failed %s: %v", e.DeviceID, e.Command, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Outcome is the settled state of one operand of RunParallel.
// Err is nil for a success, in which case Result holds the device's value.
type Outcome struct {
	Index   int
	Message device.Message
	Result  device.Result
	Err     error
}

// Failed reports whether the operand failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// AggregateError is returned by RunParallel when at least one operand failed.
//
// Outcomes holds exactly one entry per operand, in input order, including
// the successes.
type AggregateError struct {
	Outcomes []Outcome
}

// Failures returns only the failed outcomes, in input order.
func (e *AggregateError) Failures() []Outcome {
	var failed []Outcome
	for _, o := range e.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

func (e *AggregateError) Error() string {
	failed := e.Failures()

	var b strings.Builder
	fmt.Fprintf(&b, "dispatch: %d of %d parallel operations failed", len(failed), len(e.Outcomes))
	for _, o := range failed {
		fmt.Fprintf(&b, "; [%d] %s: %v", o.Index, o.Message, o.Err)
	}
	return b.String()
}

// Unwrap exposes every individual failure to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	var errs []error
	for _, o := range e.Outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}

// SequenceError is returned by RunSequence and RunSteps for the first failing
// operand. Index is zero-based. Operands after Index were not observed.
type SequenceError struct {
	Index   int
	Message device.Message
	Err     error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("dispatch: sequence aborted at step %d (%s): %v", e.Index, e.Message, e.Err)
}

func (e *SequenceError) Unwrap() error {
	return e.Err
}
