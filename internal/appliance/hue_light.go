package appliance

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// HueLight is a simulated dimmable bulb that only understands power commands.
type HueLight struct {
	power
	latency time.Duration
}

// NewHueLight creates a light that starts switched off.
func NewHueLight(latency time.Duration) *HueLight {
	return &HueLight{latency: latency}
}

// Kind implements device.Kinded.
func (l *HueLight) Kind() string { return KindHueLight }

// IsOn reports whether the light is switched on.
func (l *HueLight) IsOn() bool { return l.isOn() }

// Accept implements device.Device.
func (l *HueLight) Accept(ctx context.Context, msg device.Message) (device.Result, error) {
	switch msg.Kind() {
	case device.CommandSwitchOn, device.CommandSwitchOff:
	default:
		return device.Result{}, unsupported(KindHueLight, msg)
	}

	if err := simulate(ctx, l.latency); err != nil {
		return device.Result{}, err
	}
	return l.set(msg.Kind() == device.CommandSwitchOn), nil
}
