package dispatch

import (
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// Observer receives command lifecycle events from a Service.
//
// CommandStarted is called synchronously from SendMsg. CommandFinished is
// called on the delivery goroutine before the Pending settles, so anything
// it records is visible to whoever awaits the operation. Implementations
// must be safe for concurrent use and should not block.
type Observer interface {
	CommandStarted(msg device.Message)
	CommandFinished(msg device.Message, result device.Result, err error, elapsed time.Duration)
}

// observerSlot boxes an Observer so it can be swapped atomically.
type observerSlot struct{ Observer }

type noopObserver struct{}

func (noopObserver) CommandStarted(device.Message) {}
func (noopObserver) CommandFinished(device.Message, device.Result, error, time.Duration) {
}

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var list multiObserver
	for _, o := range obs {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) CommandStarted(msg device.Message) {
	for _, o := range m {
		o.CommandStarted(msg)
	}
}

func (m multiObserver) CommandFinished(msg device.Message, result device.Result, err error, elapsed time.Duration) {
	for _, o := range m {
		o.CommandFinished(msg, result, err, elapsed)
	}
}
