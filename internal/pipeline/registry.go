package pipeline

import "fmt"

// Registry maps a step descriptor's Type to its implementation, validating
// every template's configs up front at load time rather than at first
// execution.
type Registry struct {
	steps map[string]Step
}

func NewRegistry() *Registry {
	return &Registry{steps: map[string]Step{}}
}

func (r *Registry) Register(s Step) {
	r.steps[s.Type()] = s
}

func (r *Registry) Lookup(stepType string) (Step, bool) {
	s, ok := r.steps[stepType]
	return s, ok
}

// ValidateTemplate checks every descriptor in the tree resolves to a
// registered step type with a config the step accepts.
func (r *Registry) ValidateTemplate(t Template) error {
	for _, flat := range t.Flatten() {
		s, ok := r.steps[flat.Descriptor.Type]
		if !ok {
			return fmt.Errorf("pipeline template %s: unknown step type %q", t.ID, flat.Descriptor.Type)
		}
		if err := s.ValidateConfig(flat.Descriptor.Config); err != nil {
			return fmt.Errorf("pipeline template %s: step %q: %w", t.ID, flat.Descriptor.Name, err)
		}
	}
	return nil
}
