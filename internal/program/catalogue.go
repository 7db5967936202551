package program

import (
	"fmt"
	"sort"
	"sync"
)

// Catalogue is the in-memory set of runnable programs.
//
// Programs are validated on the way in and deep-copied on the way out, so
// callers can never alter a stored program.
//
// All public methods are thread-safe.
type Catalogue struct {
	programs map[string]*Program
	mu       sync.RWMutex // Protects programs
}

// NewCatalogue creates an empty catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{programs: make(map[string]*Program)}
}

// Add validates p and stores a copy of it.
// Returns ErrProgramExists if the name is already taken.
func (c *Catalogue) Add(p *Program) error {
	if p == nil {
		return ErrInvalidProgram
	}
	cpy := p.DeepCopy()
	cpy.Name = normaliseName(cpy.Name)
	if err := ValidateProgram(cpy); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.programs[cpy.Name]; exists {
		return fmt.Errorf("%w: %s", ErrProgramExists, cpy.Name)
	}
	c.programs[cpy.Name] = cpy
	return nil
}

// AddAll adds every program, stopping at the first error.
func (c *Catalogue) AddAll(programs []Program) error {
	for i := range programs {
		if err := c.Add(&programs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a copy of the named program.
func (c *Catalogue) Get(name string) (*Program, error) {
	c.mu.RLock()
	p, ok := c.programs[normaliseName(name)]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProgramNotFound, name)
	}
	return p.DeepCopy(), nil
}

// List returns copies of every program sorted by name.
func (c *Catalogue) List() []Program {
	c.mu.RLock()
	programs := make([]Program, 0, len(c.programs))
	for _, p := range c.programs {
		programs = append(programs, *p.DeepCopy())
	}
	c.mu.RUnlock()

	sort.Slice(programs, func(i, j int) bool {
		return programs[i].Name < programs[j].Name
	})
	return programs
}

// Count returns the number of programs.
func (c *Catalogue) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}
