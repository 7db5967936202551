// Package device provides the device contracts and the Device Registry for
// Gray Logic Dispatch.
//
// A device is anything that can accept a command and report an outcome.
// The package deliberately knows nothing about concrete device kinds: lights,
// speakers and the like live in the appliance package and only have to
// satisfy the Device interface.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────┐
//	│                      Device Registry                       │
//	│                                                            │
//	│  ┌──────────────────┐          ┌──────────────────────┐   │
//	│  │     Registry     │          │       Message        │   │
//	│  │  (registry.go)   │          │      (types.go)      │   │
//	│  │                  │          │                      │   │
//	│  │ • Register       │          │ • target ID          │   │
//	│  │ • Lookup         │          │ • CommandKind (enum) │   │
//	│  │ • RWMutex map    │          │ • optional payload   │   │
//	│  └──────────────────┘          └──────────────────────┘   │
//	└────────────│───────────────────────────────────────────────┘
//	             ▼
//	┌──────────────────────┐
//	│  dispatch.Service    │
//	│  • SendMsg routing   │
//	└──────────────────────┘
//
// # Key Types
//
//   - ID: Opaque identifier assigned at registration (UUID, never reused)
//   - CommandKind: Closed enumeration of commands (switch_on, play_song, ...)
//   - Message: Immutable command addressed to one device
//   - Result: Success value reported by a device
//   - Device: The one-method capability interface
//   - Registry: Thread-safe ID → Device mapping
//
// # Usage
//
//	registry := device.NewRegistry()
//	id, err := registry.Register(appliance.NewHueLight(0))
//	if err != nil {
//	    return err
//	}
//
//	msg, err := device.NewMessage(id, device.CommandSwitchOn)
//	dev, err := registry.Lookup(msg.Target())
//
// # Thread Safety
//
// The Registry is safe for concurrent use. Register and Lookup are guarded
// by a read-write mutex. Messages are values and can be shared freely.
package device
