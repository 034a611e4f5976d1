package extension

import (
	"bytes"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"
)

// UnknownPolicy decides what happens to scoped settings keys an extension
// does not declare.
type UnknownPolicy string

const (
	// UnknownIgnore silently drops unrecognized keys.
	UnknownIgnore UnknownPolicy = "ignore"
	// UnknownReject fails instantiation on unrecognized scoped keys.
	UnknownReject UnknownPolicy = "reject"
)

// Settings is the host-supplied settings map handed to every extension
// constructor.
//
// Values are shared by all extensions and are always decoded leniently,
// since each extension only knows a subset of them. Scoped holds per
// extension sections keyed by identifier; those are decoded according to
// Unknown.
type Settings struct {
	Values  map[string]any            `yaml:"values" json:"values"`
	Scoped  map[string]map[string]any `yaml:"scoped" json:"scoped"`
	Unknown UnknownPolicy             `yaml:"unknown" json:"unknown"`

	scope string
}

// For returns the settings view of a single extension.
func (s Settings) For(name string) Settings {
	out := Settings{
		Values:  s.Values,
		Scoped:  s.Scoped,
		Unknown: s.Unknown,
		scope:   name,
	}
	return out
}

// Scope returns the extension identifier the view was built for.
func (s Settings) Scope() string {
	return s.scope
}

// Merged returns shared values overlaid with the scoped section.
func (s Settings) Merged() map[string]any {
	out := make(map[string]any, len(s.Values))
	maps.Copy(out, s.Values)
	if s.scope != "" {
		maps.Copy(out, s.Scoped[s.scope])
	}
	return out
}

// IsZero reports whether no settings are present at all.
func (s Settings) IsZero() bool {
	return len(s.Values) == 0 && len(s.Scoped) == 0
}

// Decode fills dst, a pointer to a settings struct with yaml tags. Fields
// keep their current values unless a key overrides them.
func (s Settings) Decode(dst any) error {
	if err := decodeInto(s.Values, dst, false); err != nil {
		return fmt.Errorf("decode shared settings: %w", err)
	}
	if s.scope == "" {
		return nil
	}
	scoped, ok := s.Scoped[s.scope]
	if !ok {
		return nil
	}
	if err := decodeInto(scoped, dst, s.Unknown == UnknownReject); err != nil {
		return fmt.Errorf("decode settings for %s: %w", s.scope, err)
	}
	return nil
}

func decodeInto(values map[string]any, dst any, strict bool) error {
	if len(values) == 0 {
		return nil
	}
	data, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(strict)
	return dec.Decode(dst)
}
