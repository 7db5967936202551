package appliance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// Appliance kinds accepted by New.
const (
	KindHueLight     = "hue_light"
	KindSmartSpeaker = "smart_speaker"
	KindSmartToilet  = "smart_toilet"
)

// Domain errors for the appliance package.
var (
	// ErrUnknownKind is returned by New for an unrecognised appliance kind.
	ErrUnknownKind = errors.New("appliance: unknown kind")

	// ErrUnsupportedCommand is returned when an appliance receives a command
	// kind it has no behaviour for (for example flush sent to a light).
	ErrUnsupportedCommand = errors.New("appliance: unsupported command")

	// ErrPoweredOff is returned when a command needs the appliance switched on.
	ErrPoweredOff = errors.New("appliance: powered off")

	// ErrMissingPayload is returned when a command needs a payload and has none.
	ErrMissingPayload = errors.New("appliance: missing payload")
)

var constructors = map[string]func(time.Duration) device.Device{
	KindHueLight:     func(d time.Duration) device.Device { return NewHueLight(d) },
	KindSmartSpeaker: func(d time.Duration) device.Device { return NewSmartSpeaker(d) },
	KindSmartToilet:  func(d time.Duration) device.Device { return NewSmartToilet(d) },
}

// Kinds returns every kind New accepts, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New builds a simulated appliance of the given kind. latency is how long
// every command takes to complete; zero makes commands instant.
func New(kind string, latency time.Duration) (device.Device, error) {
	ctor, ok := constructors[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if latency < 0 {
		latency = 0
	}
	return ctor(latency), nil
}

// simulate waits for latency or until ctx ends.
func simulate(ctx context.Context, latency time.Duration) error {
	if latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(latency)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func unsupported(kind string, msg device.Message) error {
	return fmt.Errorf("%w: %s cannot %s", ErrUnsupportedCommand, kind, msg.Kind())
}

// power is the on/off state shared by switchable appliances.
type power struct {
	mu sync.Mutex
	on bool
}

// set switches to the wanted state. Repeating the current state succeeds.
func (p *power) set(on bool) device.Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	state := "off"
	if on {
		state = "on"
	}
	if p.on == on {
		return device.Result{Value: "already " + state}
	}
	p.on = on
	return device.Result{Value: "switched " + state}
}

func (p *power) isOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}
