package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StringList decodes either a YAML sequence of strings or a bare string
// (treated as a single-element list). The singular form survives from
// early configs that carried one mixer control.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = StringList(list)
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", value.Line)
	}
}
