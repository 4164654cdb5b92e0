package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// wireSettings is the configuration schema: a "rule" discriminator plus the ranges
// used by MayRunAs and MustRunAs.
type wireSettings struct {
	Rule   *string `json:"rule,omitempty" yaml:"rule,omitempty"`
	Ranges []Range `json:"ranges,omitempty" yaml:"ranges,omitempty"`
}

func (w wireSettings) settings() (Settings, error) {
	if w.Rule == nil {
		return Settings{}, fmt.Errorf("missing field %q", "rule")
	}
	ranges := Ranges(w.Ranges)
	switch *w.Rule {
	case RuleRunAsAny:
		return Settings{Rule: RunAsAny{}}, nil
	case RuleMayRunAs:
		return Settings{Rule: MayRunAs{Ranges: ranges}}, nil
	case RuleMustRunAs:
		return Settings{Rule: MustRunAs{Ranges: ranges}}, nil
	default:
		return Settings{}, fmt.Errorf("unknown rule %q", *w.Rule)
	}
}

func (s Settings) wire() wireSettings {
	name := s.Active().String()
	return wireSettings{Rule: &name, Ranges: s.Ranges()}
}

// UnmarshalJSON decodes the configuration schema. null and {} decode to Default().
func (s *Settings) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = Default()
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	if len(fields) == 0 {
		*s = Default()
		return nil
	}

	var w wireSettings
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return err
	}
	decoded, err := w.settings()
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func (s Settings) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.wire())
}

// UnmarshalYAML decodes the same schema from YAML.
func (s *Settings) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" || (value.Kind == yaml.MappingNode && len(value.Content) == 0) {
		*s = Default()
		return nil
	}

	var w wireSettings
	if err := value.Decode(&w); err != nil {
		return err
	}
	decoded, err := w.settings()
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

func (s Settings) MarshalYAML() (interface{}, error) {
	return s.wire(), nil
}

// Parse decodes settings from a JSON or YAML document without validating them.
// An empty document yields Default().
func Parse(data []byte) (Settings, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Default(), nil
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	return s, nil
}

// Load reads, parses and validates a settings file.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("settings file %s: %w", path, err)
	}
	return s, nil
}
