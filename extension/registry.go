package extension

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcmd/types"
)

// Observer receives registry and dispatch measurements.
type Observer interface {
	ObserveReload(snap *Snapshot, duration time.Duration, err error)
	ObserveDispatch(command, status string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveReload(*Snapshot, time.Duration, error) {}
func (nopObserver) ObserveDispatch(string, string, time.Duration) {}

// Observers fans every measurement out to each observer in order.
type Observers []Observer

func (o Observers) ObserveReload(snap *Snapshot, duration time.Duration, err error) {
	for _, obs := range o {
		obs.ObserveReload(snap, duration, err)
	}
}

func (o Observers) ObserveDispatch(command, status string, duration time.Duration) {
	for _, obs := range o {
		obs.ObserveDispatch(command, status, duration)
	}
}

// Registry holds the current command snapshot. Readers always see one
// complete snapshot: Reload builds a new one and swaps it in atomically, so
// in-flight lookups keep the snapshot they started with.
type Registry struct {
	scanner    Scanner
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
	reloadMu   sync.Mutex
	observer   Observer
	logger     *zap.Logger

	listenersMu sync.RWMutex
	listeners   []func(*Snapshot)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithObserver sets the metrics observer.
func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *zap.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a registry with an empty snapshot. Call Reload to
// populate it.
func NewRegistry(scanner Scanner, opts ...RegistryOption) *Registry {
	r := &Registry{
		scanner:  scanner,
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "command_registry"))
	r.current.Store(emptySnapshot())
	return r
}

// Reload scans all extensions and replaces the snapshot. On failure the
// previous snapshot stays in place.
func (r *Registry) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	start := time.Now()
	snap, err := r.scanner.Scan(ctx)
	if err != nil {
		r.observer.ObserveReload(nil, time.Since(start), err)
		r.logger.Error("registry reload failed", zap.Error(err))
		return fmt.Errorf("registry reload: %w", err)
	}
	snap.Generation = r.generation.Add(1)
	r.current.Store(snap)
	r.observer.ObserveReload(snap, time.Since(start), nil)

	r.logger.Info("registry reloaded",
		zap.Uint64("generation", snap.Generation),
		zap.Int("commands", len(snap.Definitions)),
		zap.Int("load_errors", len(snap.Errors)))

	r.listenersMu.RLock()
	listeners := append([]func(*Snapshot){}, r.listeners...)
	r.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
	return nil
}

// OnReload registers a callback invoked after every successful reload.
func (r *Registry) OnReload(fn func(*Snapshot)) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Snapshot returns the current snapshot.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Find returns the first definition registered under the friendly name.
func (r *Registry) Find(name string) (types.CommandDefinition, bool) {
	return r.Snapshot().Find(name)
}

// Lookup returns a definition and its owning module from one snapshot.
func (r *Registry) Lookup(name string) (types.CommandDefinition, *Module, bool) {
	return r.Snapshot().Lookup(name)
}

// CommandArgs returns the parameter schema of the named command.
func (r *Registry) CommandArgs(name string) (types.ParamSchema, bool) {
	def, ok := r.Find(name)
	if !ok {
		return nil, false
	}
	return def.Params, true
}

// FilterEnabled returns the commands switched on in cfg. Commands not
// mentioned in cfg are excluded.
func (r *Registry) FilterEnabled(cfg types.CommandConfig) []types.AvailableCommand {
	snap := r.Snapshot()
	out := make([]types.AvailableCommand, 0)
	for _, def := range snap.Definitions {
		if !cfg.Enabled(def.FriendlyName) {
			continue
		}
		out = append(out, types.AvailableCommand{
			FriendlyName: def.FriendlyName,
			Name:         def.FunctionName,
			Args:         def.Params,
			Enabled:      true,
		})
	}
	return out
}

// EnabledCommands narrows FilterEnabled to entries flagged enabled.
func (r *Registry) EnabledCommands(cfg types.CommandConfig) []types.AvailableCommand {
	available := r.FilterEnabled(cfg)
	out := available[:0]
	for _, c := range available {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// ListNames reloads the registry and returns every friendly name. Each call
// costs a full scan.
func (r *Registry) ListNames(ctx context.Context) ([]string, error) {
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r.Snapshot().Names(), nil
}

// Extensions returns the identifiers of the loaded extensions in load order.
func (r *Registry) Extensions() []string {
	modules := r.Snapshot().Modules
	names := make([]string, len(modules))
	for i, m := range modules {
		names[i] = m.Name
	}
	return names
}

// ExtensionSettings returns the settings schema of each loaded extension
// that declares one.
func (r *Registry) ExtensionSettings() map[string]types.ParamSchema {
	out := make(map[string]types.ParamSchema)
	for _, m := range r.Snapshot().Modules {
		if len(m.Settings) > 0 {
			out[m.Name] = m.Settings
		}
	}
	return out
}
