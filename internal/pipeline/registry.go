package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownStep is returned when a configured name has no registered step.
	ErrUnknownStep = errors.New("unknown step")
	// ErrDuplicateStep is returned when a name is registered or configured twice.
	ErrDuplicateStep = errors.New("duplicate step")
)

// RegistryBuilder accumulates steps in canonical order.
// Call Build() to produce an immutable Registry.
type RegistryBuilder struct {
	steps []Step
}

// NewRegistryBuilder returns a fresh RegistryBuilder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{}
}

// WithStep appends a step and returns the builder, enabling chaining.
func (b *RegistryBuilder) WithStep(s Step) *RegistryBuilder {
	b.steps = append(b.steps, s)
	return b
}

// Build produces a Registry; registration order becomes canonical order.
func (b *RegistryBuilder) Build() (*Registry, error) {
	r := &Registry{
		steps: make([]Step, 0, len(b.steps)),
		index: make(map[string]int, len(b.steps)),
	}
	for _, s := range b.steps {
		name := s.Name()
		if _, dup := r.index[name]; dup {
			return nil, fmt.Errorf("register %q: %w", name, ErrDuplicateStep)
		}
		r.index[name] = len(r.steps)
		r.steps = append(r.steps, s)
	}
	return r, nil
}

// Registry maps step names to implementations in canonical order.
type Registry struct {
	steps []Step
	index map[string]int
}

// Get returns the step registered as name.
func (r *Registry) Get(name string) (Step, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.steps[i], true
}

// Names returns every registered name in canonical order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.steps))
	for i, s := range r.steps {
		out[i] = s.Name()
	}
	return out
}
