package extension

import (
	"fmt"
	"time"

	"github.com/BaSui01/agentcmd/types"
)

// Source kinds of a loaded module.
const (
	SourceBuiltin = "builtin"
	SourceScript  = "script"
)

// Module is a loaded extension: its identifier, how to build a fresh
// instance, and the commands it declared at load time.
type Module struct {
	Name     string                    `json:"name"`
	Source   string                    `json:"source"`
	Path     string                    `json:"path,omitempty"`
	Commands []types.CommandDefinition `json:"commands"`
	Settings types.ParamSchema         `json:"settings,omitempty"`

	factory  Factory
	timeouts map[string]time.Duration // by friendly name
}

// New builds a fresh instance of the module.
func (m *Module) New(settings Settings) (Extension, error) {
	return instantiate(m.Name, m.factory, settings.For(m.Name))
}

func (m *Module) timeout(command string) time.Duration {
	return m.timeouts[command]
}

// LoadError records an extension that could not be loaded. It never aborts
// a scan.
type LoadError struct {
	Extension string `json:"extension"`
	Path      string `json:"path,omitempty"`
	Err       error  `json:"-"`
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("load extension %s (%s): %v", e.Extension, e.Path, e.Err)
	}
	return fmt.Sprintf("load extension %s: %v", e.Extension, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// AsTypesError converts the load error to the structured error type.
func (e *LoadError) AsTypesError() *types.Error {
	return types.NewError(types.ErrExtensionLoad, "extension failed to load").
		WithCause(e.Err).
		WithExtension(e.Extension)
}

// Snapshot is the immutable registry state produced by one scan.
type Snapshot struct {
	Generation  uint64
	LoadedAt    time.Time
	Definitions []types.CommandDefinition
	Modules     []*Module
	Errors      []*LoadError

	index   map[string]entry
	modules map[string]*Module
}

// entry locates a definition and the module that declared it.
type entry struct {
	pos    int
	module *Module
}

// NewSnapshot builds a snapshot from loaded modules. Definitions keep module
// order, then declaration order.
func NewSnapshot(modules []*Module, errs []*LoadError) *Snapshot {
	s := &Snapshot{
		LoadedAt: time.Now(),
		Modules:  modules,
		Errors:   errs,
		index:    make(map[string]entry),
		modules:  make(map[string]*Module, len(modules)),
	}
	for _, m := range modules {
		if _, dup := s.modules[m.Name]; !dup {
			s.modules[m.Name] = m
		}
		for _, def := range m.Commands {
			// First registration wins; later duplicates stay listed but are
			// unreachable by lookup.
			if _, dup := s.index[def.FriendlyName]; !dup {
				s.index[def.FriendlyName] = entry{pos: len(s.Definitions), module: m}
			}
			s.Definitions = append(s.Definitions, def)
		}
	}
	return s
}

func emptySnapshot() *Snapshot {
	return NewSnapshot(nil, nil)
}

// Find returns the first definition with the friendly name.
func (s *Snapshot) Find(name string) (types.CommandDefinition, bool) {
	e, ok := s.index[name]
	if !ok {
		return types.CommandDefinition{}, false
	}
	return s.Definitions[e.pos], true
}

// Lookup returns the definition and the module that declared it.
func (s *Snapshot) Lookup(name string) (types.CommandDefinition, *Module, bool) {
	e, ok := s.index[name]
	if !ok {
		return types.CommandDefinition{}, nil, false
	}
	return s.Definitions[e.pos], e.module, true
}

// Module returns the module with the identifier.
func (s *Snapshot) Module(name string) (*Module, bool) {
	m, ok := s.modules[name]
	return m, ok
}

// Names returns all friendly names in declaration order, duplicates
// included.
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.Definitions))
	for i, d := range s.Definitions {
		names[i] = d.FriendlyName
	}
	return names
}
