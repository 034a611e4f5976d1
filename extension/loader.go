package extension

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentcmd/types"
)

// DefaultDir is the directory scanned for script extensions.
const DefaultDir = "extensions"

// Scanner produces registry snapshots.
type Scanner interface {
	Scan(ctx context.Context) (*Snapshot, error)
}

// Loader discovers extensions from the compiled catalog and the script
// directory. A failing extension is recorded in the snapshot and skipped;
// Scan itself only fails when ctx is cancelled.
type Loader struct {
	catalog     *Catalog
	dir         string
	settings    Settings
	concurrency int
	logger      *zap.Logger
}

var _ Scanner = (*Loader)(nil)

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithCatalog sets the compiled catalog. Defaults to DefaultCatalog.
func WithCatalog(c *Catalog) LoaderOption {
	return func(l *Loader) { l.catalog = c }
}

// WithDir sets the script directory. An empty dir disables script discovery.
func WithDir(dir string) LoaderOption {
	return func(l *Loader) { l.dir = dir }
}

// WithSettings sets the settings passed to every constructor.
func WithSettings(s Settings) LoaderOption {
	return func(l *Loader) { l.settings = s }
}

// WithConcurrency bounds how many scripts are evaluated in parallel.
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *zap.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		catalog:     DefaultCatalog(),
		dir:         DefaultDir,
		concurrency: 4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "extension_loader"))
	return l
}

// Settings returns the load-time settings.
func (l *Loader) Settings() Settings {
	return l.settings
}

// Dir returns the script directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Scan loads every candidate extension and returns a new snapshot.
func (l *Loader) Scan(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	var (
		modules []*Module
		errs    []*LoadError
	)

	for _, name := range l.catalog.Names() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		factory, ok := l.catalog.Get(name)
		if !ok {
			continue
		}
		m, err := l.load(name, SourceBuiltin, "", factory)
		if err != nil {
			errs = append(errs, l.skip(name, "", err))
			continue
		}
		modules = append(modules, m)
	}

	scripts, scriptErrs, err := l.scanDir(ctx, l.catalog.Names())
	if err != nil {
		return nil, err
	}
	modules = append(modules, scripts...)
	errs = append(errs, scriptErrs...)

	snap := NewSnapshot(modules, errs)
	l.logger.Info("extensions scanned",
		zap.Int("modules", len(modules)),
		zap.Int("commands", len(snap.Definitions)),
		zap.Int("failed", len(errs)),
		zap.Duration("duration", time.Since(start)))
	return snap, nil
}

// scanDir loads the scripts in dir. A script named like a catalog extension
// is rejected: identifiers scope settings and dispatch.
func (l *Loader) scanDir(ctx context.Context, taken []string) ([]*Module, []*LoadError, error) {
	if l.dir == "" {
		return nil, nil, nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Debug("extension directory does not exist", zap.String("dir", l.dir))
			return nil, nil, nil
		}
		return nil, []*LoadError{l.skip(filepath.Base(l.dir), l.dir, err)}, nil
	}

	reserved := make(map[string]struct{}, len(taken))
	for _, name := range taken {
		reserved[name] = struct{}{}
	}

	var (
		paths      []string
		duplicates []*LoadError
	)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ScriptExt || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		name := strings.TrimSuffix(e.Name(), ScriptExt)
		if _, dup := reserved[name]; dup {
			duplicates = append(duplicates, l.skip(name, path,
				fmt.Errorf("%w: %q is a builtin extension", ErrDuplicateName, name)))
			continue
		}
		paths = append(paths, path)
	}

	results := make([]*Module, len(paths))
	failures := make([]*LoadError, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src, err := readScript(path)
			if err != nil {
				failures[i] = l.skip(strings.TrimSuffix(filepath.Base(path), ScriptExt), path, err)
				return nil
			}
			m, err := l.load(src.name, SourceScript, path, src.Factory())
			if err != nil {
				failures[i] = l.skip(src.name, path, err)
				return nil
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var modules []*Module
	errs := duplicates
	for i := range paths {
		if results[i] != nil {
			modules = append(modules, results[i])
		}
		if failures[i] != nil {
			errs = append(errs, failures[i])
		}
	}
	return modules, errs, nil
}

// load instantiates one extension with the shared settings and describes its
// commands.
func (l *Loader) load(name, source, path string, factory Factory) (*Module, error) {
	ext, err := instantiate(name, factory, l.settings.For(name))
	if err != nil {
		return nil, err
	}
	if ext.Name() != name {
		return nil, fmt.Errorf("%w: %q declares name %q", ErrNameMismatch, name, ext.Name())
	}

	cmds, err := commandsOf(ext)
	if err != nil {
		return nil, err
	}

	m := &Module{
		Name:     name,
		Source:   source,
		Path:     path,
		Settings: DescribeSettings(ext),
		factory:  factory,
		timeouts: make(map[string]time.Duration),
	}
	for _, c := range cmds {
		if c.FriendlyName == "" || c.Handler == nil {
			return nil, fmt.Errorf("%w: command %q has no name or handler", ErrExtensionInvalid, c.FriendlyName)
		}
		fn := c.FunctionName
		if fn == "" {
			fn = c.FriendlyName
		}
		m.Commands = append(m.Commands, types.CommandDefinition{
			FriendlyName: c.FriendlyName,
			FunctionName: fn,
			Extension:    name,
			Params:       Describe(c),
		})
		if c.Timeout > 0 {
			m.timeouts[c.FriendlyName] = c.Timeout
		}
	}
	l.logger.Debug("extension loaded",
		zap.String("extension", name),
		zap.String("source", source),
		zap.Int("commands", len(m.Commands)))
	return m, nil
}

func (l *Loader) skip(name, path string, err error) *LoadError {
	l.logger.Warn("extension skipped",
		zap.String("extension", name),
		zap.String("path", path),
		zap.Error(err))
	return &LoadError{Extension: name, Path: path, Err: err}
}

// instantiate runs a factory, converting panics and nil results to errors.
func instantiate(name string, factory Factory, settings Settings) (ext Extension, err error) {
	defer func() {
		if r := recover(); r != nil {
			ext = nil
			err = fmt.Errorf("extension %s constructor panicked: %v", name, r)
		}
	}()
	ext, err = factory(settings)
	if err != nil {
		return nil, fmt.Errorf("extension %s constructor: %w", name, err)
	}
	if ext == nil {
		return nil, fmt.Errorf("%w: %s constructor returned nil", ErrExtensionInvalid, name)
	}
	return ext, nil
}

func commandsOf(ext Extension) (cmds []Command, err error) {
	defer func() {
		if r := recover(); r != nil {
			cmds = nil
			err = fmt.Errorf("%w: listing commands panicked: %v", ErrExtensionInvalid, r)
		}
	}()
	return ext.Commands(), nil
}
