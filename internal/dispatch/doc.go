// Package dispatch routes command messages to registered devices and
// composes the resulting in-flight operations.
//
// A Service owns a device.Registry. SendMsg looks up the message target,
// starts the device's Accept on its own goroutine and immediately returns a
// Pending handle. The combinators then decide how those handles are
// observed.
//
// Architecture:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                  Service (service.go)                    │
//	│  ┌──────────────────┐        ┌───────────────────────┐  │
//	│  │ device.Registry  │◀──────│ SendMsg / Step         │  │
//	│  │ (owned)          │ lookup │ goroutine per command  │  │
//	│  └──────────────────┘        └──────────┬────────────┘  │
//	│                                          │ *Pending      │
//	└──────────────────────────────────────────┼──────────────┘
//	                                           ▼
//	┌─────────────────────────────────────────────────────────┐
//	│              Combinators (combinators.go)                │
//	│  RunParallel  wait for all, positional results,          │
//	│               AggregateError on any failure              │
//	│  RunSequence  observation barrier, short-circuit         │
//	│  RunSteps     start barrier, short-circuit               │
//	└─────────────────────────────────────────────────────────┘
//
// # Ordering
//
// RunParallel imposes no order on device work; it only returns once every
// operand has settled. RunSequence works on operations that are already
// running, so it guarantees the order in which outcomes are observed, not the
// order in which work starts. RunSteps dispatches each step only after the
// previous one succeeded, which is what side-effecting devices usually need
// (a toilet should not begin cleaning before the flush is confirmed).
//
// # Errors
//
//   - ErrUnknownDevice: SendMsg target not registered (synchronous)
//   - *DeviceError: the device reported failure, timed out or panicked
//   - *AggregateError: RunParallel with at least one failed operand
//   - *SequenceError: RunSequence or RunSteps aborted at Index
//
// # Usage
//
//	svc := dispatch.NewService()
//	light, _ := svc.RegisterDevice(appliance.NewHueLight(0))
//	speaker, _ := svc.RegisterDevice(appliance.NewSmartSpeaker(0))
//
//	on1, _ := svc.SendMsg(ctx, mustMsg(light, device.CommandSwitchOn))
//	on2, _ := svc.SendMsg(ctx, mustMsg(speaker, device.CommandSwitchOn))
//	if _, err := dispatch.RunParallel(ctx, on1, on2); err != nil {
//	    return err
//	}
//
//	play, _ := device.NewMessage(speaker, device.CommandPlaySong, "Never Gonna Give You Up")
//	_, err := dispatch.RunSteps(ctx, svc.Step(play))
//
// The package logs nothing above Debug and its default logger is a no-op;
// every failure is reported through a return value.
package dispatch
