package device

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// entry is one registered device and its bookkeeping.
type entry struct {
	device       Device
	kind         string
	registeredAt time.Time
}

// Entry describes a registered device for listing purposes.
type Entry struct {
	ID           ID        `json:"id"`
	Kind         string    `json:"kind"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Registry owns the mapping from device ID to device instance.
//
// Devices are held for the lifetime of the Registry; there is no removal.
// IDs are random UUIDs so they are never reused, even if removal is added
// later.
//
// All public methods are thread-safe.
type Registry struct {
	devices map[ID]*entry
	mu      sync.RWMutex // Protects devices
	logger  Logger
	newID   func() ID
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[ID]*entry),
		logger:  noopLogger{},
		newID:   GenerateID,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register takes ownership of dev and returns its freshly assigned ID.
// Returns ErrInvalidDevice if dev is nil.
func (r *Registry) Register(dev Device) (ID, error) {
	if dev == nil {
		return "", ErrInvalidDevice
	}

	kind := fmt.Sprintf("%T", dev)
	if k, ok := dev.(Kinded); ok {
		kind = k.Kind()
	}

	r.mu.Lock()
	id := r.newID()
	for _, taken := r.devices[id]; taken; _, taken = r.devices[id] {
		id = r.newID()
	}
	r.devices[id] = &entry{
		device:       dev,
		kind:         kind,
		registeredAt: time.Now().UTC(),
	}
	r.mu.Unlock()

	r.logger.Debug("device registered", "id", id, "kind", kind)
	return id, nil
}

// Lookup returns the device registered under id.
// Returns ErrDeviceNotFound if id was never registered.
func (r *Registry) Lookup(id ID) (Device, error) {
	r.mu.RLock()
	e, ok := r.devices[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return e.device, nil
}

// KindOf returns the kind recorded for id, or "" if id is unknown. Devices
// that do not implement Kinded are recorded under their Go type name.
func (r *Registry) KindOf(id ID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.devices[id]; ok {
		return e.kind
	}
	return ""
}

// Entries lists registered devices ordered by registration time, then ID.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.devices))
	for id, e := range r.devices {
		entries = append(entries, Entry{ID: id, Kind: e.kind, RegisteredAt: e.registeredAt})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].RegisteredAt.Equal(entries[j].RegisteredAt) {
			return entries[i].RegisteredAt.Before(entries[j].RegisteredAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// GenerateID returns a new random device ID.
func GenerateID() ID {
	return ID(uuid.NewString())
}
