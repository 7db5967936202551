package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ID identifies a registered device. It is assigned by the Registry and is
// opaque to callers: never construct one by hand outside of tests.
type ID string

// String implements fmt.Stringer.
func (id ID) String() string {
	return string(id)
}

// CommandKind is the closed set of commands a device can be asked to perform.
type CommandKind string

const (
	CommandSwitchOn  CommandKind = "switch_on"
	CommandSwitchOff CommandKind = "switch_off"
	CommandPlaySong  CommandKind = "play_song"
	CommandFlush     CommandKind = "flush"
	CommandClean     CommandKind = "clean"
)

// AllCommandKinds returns every valid command kind.
func AllCommandKinds() []CommandKind {
	return []CommandKind{
		CommandSwitchOn,
		CommandSwitchOff,
		CommandPlaySong,
		CommandFlush,
		CommandClean,
	}
}

// Valid reports whether k is one of the known command kinds.
func (k CommandKind) Valid() bool {
	for _, known := range AllCommandKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ParseCommandKind converts user input (config files, API bodies) into a
// CommandKind. Matching is case-insensitive and accepts "SWITCH_ON" as well
// as "switch_on".
func ParseCommandKind(s string) (CommandKind, error) {
	k := CommandKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
	return k, nil
}

// Message describes one command addressed to one device.
//
// Fields are unexported so a Message cannot be altered after NewMessage
// returns it; copies are cheap and safe to share between goroutines.
type Message struct {
	target     ID
	kind       CommandKind
	payload    string
	hasPayload bool
}

// NewMessage builds a Message. An optional payload may be supplied (for
// example the song title for CommandPlaySong); only the first is used.
//
// Returns ErrUnknownCommand if kind is not a known CommandKind and
// ErrInvalidMessage if target is empty.
func NewMessage(target ID, kind CommandKind, payload ...string) (Message, error) {
	if target == "" {
		return Message{}, fmt.Errorf("%w: target device is required", ErrInvalidMessage)
	}
	if !kind.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}

	msg := Message{target: target, kind: kind}
	if len(payload) > 0 {
		msg.payload = payload[0]
		msg.hasPayload = true
	}
	return msg, nil
}

// Target returns the device the message is addressed to.
func (m Message) Target() ID { return m.target }

// Kind returns the command kind.
func (m Message) Kind() CommandKind { return m.kind }

// Payload returns the optional payload and whether one was set.
func (m Message) Payload() (string, bool) { return m.payload, m.hasPayload }

// String renders the message for logs and error text.
func (m Message) String() string {
	if m.hasPayload {
		return fmt.Sprintf("%s(%s, %q)", m.kind, m.target, m.payload)
	}
	return fmt.Sprintf("%s(%s)", m.kind, m.target)
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	out := struct {
		DeviceID ID          `json:"device_id"`
		Command  CommandKind `json:"command"`
		Payload  *string     `json:"payload,omitempty"`
	}{
		DeviceID: m.target,
		Command:  m.kind,
	}
	if m.hasPayload {
		p := m.payload
		out.Payload = &p
	}
	return json.Marshal(out)
}

// Result is what a device reports after successfully handling a Message.
// The dispatcher passes it through untouched.
type Result struct {
	Value string `json:"value"`
}

// Device is the single capability every device kind provides: accept a
// command and report its outcome.
//
// Accept may block for as long as the device work takes; callers that need
// concurrency run it on their own goroutine. Implementations must honour ctx
// cancellation and must serialise their own state changes if the same device
// can receive several messages at once.
type Device interface {
	Accept(ctx context.Context, msg Message) (Result, error)
}

// Kinded is implemented by devices that can name their kind (for example
// "hue_light"). It is optional and used only for listing.
type Kinded interface {
	Kind() string
}
