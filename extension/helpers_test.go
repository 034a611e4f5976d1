package extension

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcmd/types"
)

// --- fake extension ---

type fakeExtension struct {
	name     string
	commands []Command
}

func (f *fakeExtension) Name() string        { return f.name }
func (f *fakeExtension) Commands() []Command { return f.commands }

func factoryOf(name string, commands ...Command) Factory {
	return func(Settings) (Extension, error) {
		return &fakeExtension{name: name, commands: commands}, nil
	}
}

func echoCommand(friendly string, params ...types.Param) Command {
	return Command{
		FriendlyName: friendly,
		FunctionName: friendly + "_fn",
		Params:       params,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return formatArgs(args), nil
		},
	}
}

func failingCommand(friendly string, err error) Command {
	return Command{
		FriendlyName: friendly,
		FunctionName: "fail",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", err
		},
	}
}

func panickingCommand(friendly string) Command {
	return Command{
		FriendlyName: friendly,
		FunctionName: "explode",
		Handler: func(context.Context, map[string]any) (string, error) {
			panic("kaboom")
		},
	}
}

func blockingCommand(friendly string, timeout time.Duration) Command {
	return Command{
		FriendlyName: friendly,
		FunctionName: "block",
		Timeout:      timeout,
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return "late", nil
		},
	}
}

// formatArgs renders args deterministically as key=value pairs.
func formatArgs(args map[string]any) string {
	keys := sortedKeys(args)
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		out += k + "=" + stringify(args[k])
	}
	return out
}

// --- settings-aware extension ---

type tunedSettings struct {
	Greeting string `yaml:"greeting"`
}

type tunedExtension struct {
	settings tunedSettings
}

func newTuned(s Settings) (Extension, error) {
	cfg := tunedSettings{Greeting: "hello"}
	if err := s.Decode(&cfg); err != nil {
		return nil, err
	}
	return &tunedExtension{settings: cfg}, nil
}

func (t *tunedExtension) Name() string           { return "tuned" }
func (t *tunedExtension) SettingsPrototype() any { return &t.settings }
func (t *tunedExtension) Commands() []Command {
	return []Command{{
		FriendlyName: "Greet",
		FunctionName: "greet",
		Params:       []types.Param{{Name: "who", Default: "world"}},
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return t.settings.Greeting + " " + stringify(args["who"]), nil
		},
	}}
}

// --- scanner stub ---

type stubScanner struct {
	snaps []*Snapshot
	err   error
	calls atomic.Int32
}

func (s *stubScanner) Scan(ctx context.Context) (*Snapshot, error) {
	n := int(s.calls.Add(1)) - 1
	if s.err != nil {
		return nil, s.err
	}
	if n >= len(s.snaps) {
		n = len(s.snaps) - 1
	}
	// Hand out a copy so generations do not leak between calls.
	src := s.snaps[n]
	return NewSnapshot(src.Modules, src.Errors), nil
}

var errBoom = errors.New("boom")

// writeScript writes a Lua extension file into dir.
func writeScript(t *testing.T, dir, file, code string) string {
	t.Helper()
	path := filepath.Join(dir, file)
	require.NoError(t, os.WriteFile(path, []byte(code), 0o644))
	return path
}

// newTestRegistry loads the given catalog (no script dir) and returns a
// populated registry.
func newTestRegistry(t *testing.T, catalog *Catalog, opts ...LoaderOption) *Registry {
	t.Helper()
	opts = append([]LoaderOption{WithCatalog(catalog), WithDir("")}, opts...)
	r := NewRegistry(NewLoader(opts...))
	require.NoError(t, r.Reload(context.Background()))
	return r
}
