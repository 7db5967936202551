package appliance

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// SmartToilet is a simulated toilet that can flush and self-clean.
// Completed operations are kept in an ordered log.
type SmartToilet struct {
	latency time.Duration

	mu  sync.Mutex // Protects log
	log []device.CommandKind
}

// NewSmartToilet creates a toilet with an empty operation log.
func NewSmartToilet(latency time.Duration) *SmartToilet {
	return &SmartToilet{latency: latency}
}

// Kind implements device.Kinded.
func (t *SmartToilet) Kind() string { return KindSmartToilet }

// Operations returns the completed operations in completion order.
func (t *SmartToilet) Operations() []device.CommandKind {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]device.CommandKind, len(t.log))
	copy(out, t.log)
	return out
}

// Accept implements device.Device.
func (t *SmartToilet) Accept(ctx context.Context, msg device.Message) (device.Result, error) {
	var value string
	switch msg.Kind() {
	case device.CommandFlush:
		value = "flushed"
	case device.CommandClean:
		value = "cleaned"
	default:
		return device.Result{}, unsupported(KindSmartToilet, msg)
	}

	if err := simulate(ctx, t.latency); err != nil {
		return device.Result{}, err
	}

	t.mu.Lock()
	t.log = append(t.log, msg.Kind())
	t.mu.Unlock()
	return device.Result{Value: value}, nil
}
