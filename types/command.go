package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Param is a single declared command parameter. A nil Default means the
// parameter has no default value.
type Param struct {
	Name    string `json:"name"`
	Default any    `json:"default"`
}

// ParamSchema is the ordered parameter list of a command.
type ParamSchema []Param

// Names returns the parameter names in declaration order.
func (s ParamSchema) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// Has reports whether name is a declared parameter.
func (s ParamSchema) Has(name string) bool {
	_, ok := s.lookup(name)
	return ok
}

// Default returns the declared default of name. ok is false when the
// parameter is not declared.
func (s ParamSchema) Default(name string) (any, bool) {
	p, ok := s.lookup(name)
	if !ok {
		return nil, false
	}
	return p.Default, true
}

func (s ParamSchema) lookup(name string) (Param, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Map returns the schema as an unordered name → default map.
func (s ParamSchema) Map() map[string]any {
	m := make(map[string]any, len(s))
	for _, p := range s {
		m[p.Name] = p.Default
	}
	return m
}

// MarshalJSON encodes the schema as a JSON object keeping declaration order.
func (s ParamSchema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.Default)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", p.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the schema keeping key order.
func (s *ParamSchema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("param schema: expected object")
	}
	out := ParamSchema{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("param schema: expected string key")
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("param %s: %w", key, err)
		}
		out = append(out, Param{Name: key, Default: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// CommandDefinition describes one command exposed by an extension.
// Definitions are immutable once built by the loader.
type CommandDefinition struct {
	// FriendlyName is the human-facing lookup key.
	FriendlyName string `json:"friendly_name"`
	// FunctionName is the underlying function identifier.
	FunctionName string `json:"name"`
	// Extension is the identifier of the owning extension.
	Extension string `json:"extension"`
	// Params is the declared parameter schema.
	Params ParamSchema `json:"args"`
}

// AvailableCommand is a CommandDefinition projected for a caller together
// with its resolved enabled flag.
type AvailableCommand struct {
	FriendlyName string      `json:"friendly_name"`
	Name         string      `json:"name"`
	Args         ParamSchema `json:"args"`
	Enabled      bool        `json:"enabled"`
}

// CommandConfig maps friendly names to enabled flags. It is owned by the
// caller (typically an agent's configuration).
type CommandConfig map[string]any

// Enabled reports whether name is explicitly switched on. Only the boolean
// true and the string "true" count.
func (c CommandConfig) Enabled(name string) bool {
	v, ok := c[name]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}

// Result is the outcome of a command dispatch.
//
// Found is false when no command with the requested name exists; in that
// case Output is empty and Err is nil. When the command ran but failed, Err is
// set and Output carries the error-prefixed message.
type Result struct {
	CallID   string        `json:"call_id"`
	Command  string        `json:"command"`
	Found    bool          `json:"found"`
	Output   string        `json:"output"`
	Err      *Error        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the command was found but did not succeed.
func (r Result) Failed() bool {
	return r.Found && r.Err != nil
}

// ErrorPrefix marks a command output as an error.
const ErrorPrefix = "Error: "
