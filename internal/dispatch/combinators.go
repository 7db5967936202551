package dispatch

import (
	"context"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// RunParallel waits for every operation and returns their results in input
// order, independent of completion order.
//
// A failing operand never cancels its siblings: RunParallel still waits for
// all of them, then returns an *AggregateError holding one Outcome per
// operand. With no operands it returns an empty slice at once.
//
// If ctx ends first, every operand not yet complete is reported as failed
// with ctx.Err() and is left unconsumed.
func RunParallel(ctx context.Context, ops ...*Pending) ([]device.Result, error) {
	results := make([]device.Result, len(ops))
	outcomes := make([]Outcome, len(ops))
	failed := false

	for i, op := range ops {
		res, err := op.Await(ctx)
		outcomes[i] = Outcome{
			Index:   i,
			Message: op.Message(),
			Result:  res,
			Err:     err,
		}
		results[i] = res
		if err != nil {
			failed = true
		}
	}

	if failed {
		return nil, &AggregateError{Outcomes: outcomes}
	}
	return results, nil
}

// RunSequence observes the operations strictly in order and returns the
// last result.
//
// The operations may already be running concurrently (SendMsg starts them
// eagerly); RunSequence only guarantees that the outcome of operand i is
// observed before operand i+1 is looked at. The first failure stops
// observation and is returned as a *SequenceError. Later operands are not
// reported even if they already finished. With no operands it returns a
// zero Result.
//
// Use RunSteps when later operations must not even start before earlier
// ones succeed.
func RunSequence(ctx context.Context, ops ...*Pending) (device.Result, error) {
	var last device.Result

	for i, op := range ops {
		res, err := op.Await(ctx)
		if err != nil {
			return device.Result{}, &SequenceError{Index: i, Message: op.Message(), Err: err}
		}
		last = res
	}
	return last, nil
}

// Step is a dispatch that has not started yet. Build one with Service.Step.
type Step struct {
	msg  device.Message
	send func(context.Context, device.Message) (*Pending, error)
}

// Message returns the message the step will dispatch.
func (s Step) Message() device.Message {
	return s.msg
}

func (s Step) start(ctx context.Context) (*Pending, error) {
	if s.send == nil {
		return nil, ErrNilOperation
	}
	return s.send(ctx, s.msg)
}

// RunSteps dispatches and awaits the steps one at a time, so step i+1 is
// not dispatched until step i has completed successfully.
//
// Failure handling matches RunSequence: the first failure, including an
// ErrUnknownDevice from dispatching a step, is returned as a *SequenceError
// and no later step is dispatched.
func RunSteps(ctx context.Context, steps ...Step) (device.Result, error) {
	var last device.Result

	for i, step := range steps {
		op, err := step.start(ctx)
		if err != nil {
			return device.Result{}, &SequenceError{Index: i, Message: step.Message(), Err: err}
		}

		res, err := op.Await(ctx)
		if err != nil {
			return device.Result{}, &SequenceError{Index: i, Message: step.Message(), Err: err}
		}
		last = res
	}
	return last, nil
}
