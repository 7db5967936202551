package dispatch

import (
	"context"
	"sync/atomic"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// Pending is a handle to one dispatched message whose device work may still
// be in flight.
//
// A Pending moves from pending to completed exactly once. It is consumed by
// the first successful Await (directly or through a combinator); awaiting it
// again returns ErrAlreadyConsumed.
type Pending struct {
	msg  device.Message
	done chan struct{}

	// Written once before done is closed.
	result device.Result
	err    error

	consumed atomic.Bool
}

func newPending(msg device.Message) *Pending {
	return &Pending{
		msg:  msg,
		done: make(chan struct{}),
	}
}

// complete settles the operation. It must be called exactly once.
func (p *Pending) complete(result device.Result, err error) {
	p.result = result
	p.err = err
	close(p.done)
}

// Message returns the message this operation dispatched.
func (p *Pending) Message() device.Message {
	if p == nil {
		return device.Message{}
	}
	return p.msg
}

// Done returns a channel that is closed once the device work has finished.
// Receiving from Done does not consume the operation.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Await blocks until the operation completes or ctx is done.
//
// A completed operation is reported even if ctx is already cancelled. An
// Await abandoned because ctx ended does not consume the operation, so it
// can be awaited again later.
func (p *Pending) Await(ctx context.Context) (device.Result, error) {
	if p == nil {
		return device.Result{}, ErrNilOperation
	}

	select {
	case <-p.done:
	default:
		select {
		case <-p.done:
		case <-ctx.Done():
			return device.Result{}, ctx.Err()
		}
	}

	if !p.consumed.CompareAndSwap(false, true) {
		return device.Result{}, ErrAlreadyConsumed
	}
	return p.result, p.err
}
