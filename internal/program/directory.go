package program

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-dispatch/internal/device"
)

// Directory maps human device names used in programs to dispatch IDs.
//
// All public methods are thread-safe.
type Directory struct {
	ids map[string]device.ID
	mu  sync.RWMutex // Protects ids
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{ids: make(map[string]device.ID)}
}

// Bind associates name with id. A name can be bound once.
func (d *Directory) Bind(name string, id device.ID) error {
	if err := ValidateDeviceName(name); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: empty device ID for %q", ErrInvalidCommand, name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, taken := d.ids[name]; taken {
		return fmt.Errorf("%w: %s", ErrDeviceNameTaken, name)
	}
	d.ids[name] = id
	return nil
}

// Resolve returns the ID bound to name.
func (d *Directory) Resolve(name string) (device.ID, error) {
	d.mu.RLock()
	id, ok := d.ids[name]
	d.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDeviceNotBound, name)
	}
	return id, nil
}

// NameOf returns the name bound to id, or "" if none.
func (d *Directory) NameOf(id device.ID) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for name, bound := range d.ids {
		if bound == id {
			return name
		}
	}
	return ""
}

// Names returns every bound name, sorted.
func (d *Directory) Names() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.ids))
	for name := range d.ids {
		names = append(names, name)
	}
	d.mu.RUnlock()

	sort.Strings(names)
	return names
}
