package command

import (
	"fmt"
	"iter"
	"sort"
	"sync"
)

// Summary is the name and description of a registered command.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry maps unique names to commands. It is populated during startup and
// sealed before any session runs; a sealed registry is read-only.
type Registry struct {
	commands map[string]Command
	sealed   bool
	mu       sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
	}
}

// Register adds cmd under the name its descriptor reports. A name that is
// already present fails with *DuplicateCommandError and the existing command
// stays registered.
func (r *Registry) Register(cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", ErrInvalidCommand)
	}
	name := cmd.Describe().Name
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidCommand)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("register %q: %w", name, ErrRegistrySealed)
	}
	if _, exists := r.commands[name]; exists {
		return &DuplicateCommandError{Name: name}
	}
	r.commands[name] = cmd
	return nil
}

// MustRegister registers cmd and panics on error. Use for static
// registration at startup.
func (r *Registry) MustRegister(cmd Command) {
	if err := r.Register(cmd); err != nil {
		panic(err)
	}
}

// Seal makes the registry read-only. It is idempotent.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get returns the command registered under name, or *UnknownCommandError.
func (r *Registry) Get(name string) (Command, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	if !ok {
		return nil, &UnknownCommandError{Name: name}
	}
	return cmd, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[name]
	return ok
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListAvailable yields a Summary for every registered command, sorted by name.
// The name order is fixed when iteration starts; descriptors are read lazily.
func (r *Registry) ListAvailable() iter.Seq[Summary] {
	return func(yield func(Summary) bool) {
		for d := range r.Descriptors() {
			if !yield(Summary{Name: d.Name, Description: d.Description}) {
				return
			}
		}
	}
}

// Descriptors returns a lazy, name-sorted sequence of command descriptors.
func (r *Registry) Descriptors() iter.Seq[Descriptor] {
	return func(yield func(Descriptor) bool) {
		for _, name := range r.Names() {
			cmd, err := r.Get(name)
			if err != nil {
				continue
			}
			if !yield(cmd.Describe()) {
				return
			}
		}
	}
}
