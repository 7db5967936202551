// Package appliance provides simulated household devices for Gray Logic
// Dispatch.
//
// Each appliance implements device.Device and device.Kinded, keeps its own
// state behind a mutex, and waits a configurable latency before completing a
// command so that ordering behaviour is visible.
//
//   - HueLight: switch_on, switch_off
//   - SmartSpeaker: switch_on, switch_off, play_song (needs power and a title)
//   - SmartToilet: flush, clean
//
// Switching to the state an appliance is already in succeeds with
// "already on" or "already off". Anything else an appliance cannot do fails
// with ErrUnsupportedCommand.
//
// New builds an appliance from a kind string, which is how configuration
// and the HTTP API create devices:
//
//	dev, err := appliance.New("hue_light", 50*time.Millisecond)
package appliance
