package timegrid

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Field carries a Spec through YAML: a mapping with start/end/steps decodes
// to a Range, a sequence to an Explicit list, anything else is rejected.
type Field struct {
	Spec Spec
}

type rangeYAML struct {
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Steps int     `yaml:"steps"`
}

func (f *Field) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		var r rangeYAML
		if err := n.Decode(&r); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		f.Spec = Range{Start: r.Start, End: r.End, Steps: r.Steps}
	case yaml.SequenceNode:
		var ts []float64
		if err := n.Decode(&ts); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		f.Spec = Explicit(ts)
	default:
		return fmt.Errorf("%w: got %q at line %d", ErrMalformed, n.Value, n.Line)
	}
	return nil
}

func (f Field) MarshalYAML() (interface{}, error) {
	switch s := f.Spec.(type) {
	case Range:
		return rangeYAML{Start: s.Start, End: s.End, Steps: s.Steps}, nil
	case Explicit:
		return []float64(s), nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: got %T", ErrMalformed, f.Spec)
}
