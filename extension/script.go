package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lua "github.com/Shopify/go-lua"

	"github.com/BaSui01/agentcmd/types"
)

// ScriptExt is the file extension of script extensions.
const ScriptExt = ".lua"

// maxValueDepth bounds Lua → Go table conversion.
const maxValueDepth = 32

// hookInterval is how many VM instructions run between context checks.
const hookInterval = 1000

// A script extension is a Lua file whose base name is its identifier. The
// file must define a global table of the same name with a commands table:
//
//	web_lookup = {
//	    commands = {
//	        ["Lookup Page"] = { fn = "lookup", params = { "url", { "timeout", 10 } } },
//	    },
//	}
//
//	function web_lookup:lookup(args)
//	    return "fetched " .. args.url
//	end
//
// The settings map is visible to the script as the global table settings.
type scriptSource struct {
	name string
	path string
	code string
}

// readScript reads a script file and derives its identifier.
func readScript(path string) (*scriptSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	base := filepath.Base(path)
	return &scriptSource{
		name: strings.TrimSuffix(base, filepath.Ext(base)),
		path: path,
		code: string(data),
	}, nil
}

// Factory returns a factory that evaluates the script in a fresh Lua state.
func (s *scriptSource) Factory() Factory {
	return func(settings Settings) (Extension, error) {
		return s.instantiate(settings)
	}
}

type scriptCommand struct {
	friendly string
	fn       string
	params   []types.Param
	timeout  time.Duration
}

// scriptExtension is one evaluated script. A Lua state is not safe for
// concurrent use, so calls are serialized.
type scriptExtension struct {
	name     string
	mu       sync.Mutex
	state    *lua.State
	commands []Command
}

func (e *scriptExtension) Name() string        { return e.name }
func (e *scriptExtension) Commands() []Command { return e.commands }

func (s *scriptSource) instantiate(settings Settings) (*scriptExtension, error) {
	l := lua.NewState()
	lua.OpenLibraries(l)

	pushValue(l, settings.Merged(), 0)
	l.SetGlobal("settings")

	if err := lua.LoadBuffer(l, s.code, "@"+s.path, "t"); err != nil {
		return nil, fmt.Errorf("compile %s: %w", s.path, luaError(l, err))
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", s.path, luaError(l, err))
	}

	l.Global(s.name)
	if !l.IsTable(-1) {
		return nil, fmt.Errorf("%w: %s does not define table %q", ErrExtensionInvalid, s.path, s.name)
	}
	plugin := l.AbsIndex(-1)

	l.Field(plugin, "commands")
	if !l.IsTable(-1) {
		return nil, fmt.Errorf("%w: table %q has no commands table", ErrExtensionInvalid, s.name)
	}
	commandsIdx := l.AbsIndex(-1)

	var specs []scriptCommand
	l.PushNil()
	for l.Next(commandsIdx) {
		if l.TypeOf(-2) != lua.TypeString {
			return nil, fmt.Errorf("%w: command names of %q must be strings", ErrExtensionInvalid, s.name)
		}
		friendly, _ := l.ToString(-2)
		spec, err := readCommandSpec(l, l.AbsIndex(-1), plugin)
		if err != nil {
			return nil, fmt.Errorf("%w: command %q: %v", ErrExtensionInvalid, friendly, err)
		}
		spec.friendly = friendly
		specs = append(specs, spec)
		l.Pop(1)
	}
	l.SetTop(0)

	// Lua tables have no iteration order.
	sort.Slice(specs, func(i, j int) bool { return specs[i].friendly < specs[j].friendly })

	ext := &scriptExtension{name: s.name, state: l}
	for _, spec := range specs {
		fn := spec.fn
		ext.commands = append(ext.commands, Command{
			FriendlyName: spec.friendly,
			FunctionName: fn,
			Params:       spec.params,
			Timeout:      spec.timeout,
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				return ext.call(ctx, fn, args)
			},
		})
	}
	return ext, nil
}

// readCommandSpec reads a command entry at idx: either a function name or a
// table { fn = "...", params = {...}, timeout = seconds }.
func readCommandSpec(l *lua.State, idx, plugin int) (scriptCommand, error) {
	var spec scriptCommand
	switch l.TypeOf(idx) {
	case lua.TypeString:
		spec.fn, _ = l.ToString(idx)
	case lua.TypeTable:
		l.Field(idx, "fn")
		fn, ok := l.ToString(-1)
		l.Pop(1)
		if !ok || fn == "" {
			return spec, fmt.Errorf("missing fn")
		}
		spec.fn = fn

		l.Field(idx, "timeout")
		if secs, ok := l.ToNumber(-1); ok && secs > 0 {
			spec.timeout = time.Duration(secs * float64(time.Second))
		}
		l.Pop(1)

		l.Field(idx, "params")
		if l.IsTable(-1) {
			params, err := readParams(l, l.AbsIndex(-1))
			if err != nil {
				l.Pop(1)
				return spec, err
			}
			spec.params = params
		}
		l.Pop(1)
	default:
		return spec, fmt.Errorf("expected string or table, got %s", lua.TypeNameOf(l, idx))
	}

	l.Field(plugin, spec.fn)
	isFn := l.IsFunction(-1)
	l.Pop(1)
	if !isFn {
		return spec, fmt.Errorf("function %q is not defined", spec.fn)
	}
	return spec, nil
}

// readParams reads a params list. Entries are either "name" or
// { "name", default }.
func readParams(l *lua.State, idx int) ([]types.Param, error) {
	n := l.RawLength(idx)
	params := make([]types.Param, 0, n)
	for i := 1; i <= n; i++ {
		l.RawGetInt(idx, i)
		entry := l.AbsIndex(-1)
		switch l.TypeOf(entry) {
		case lua.TypeString:
			name, _ := l.ToString(entry)
			params = append(params, types.Param{Name: name})
		case lua.TypeTable:
			l.RawGetInt(entry, 1)
			name, ok := l.ToString(-1)
			l.Pop(1)
			if !ok || name == "" {
				l.Pop(1)
				return nil, fmt.Errorf("param %d has no name", i)
			}
			l.RawGetInt(entry, 2)
			def := toValue(l, -1, 0)
			l.Pop(1)
			params = append(params, types.Param{Name: name, Default: def})
		default:
			l.Pop(1)
			return nil, fmt.Errorf("param %d must be a string or table", i)
		}
		l.Pop(1)
	}
	return params, nil
}

// call invokes plugin:fn(args) and converts the first result to a string.
func (e *scriptExtension) call(ctx context.Context, fn string, args map[string]any) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	l := e.state
	top := l.Top()
	defer l.SetTop(top)

	lua.SetDebugHook(l, func(l *lua.State, _ lua.Debug) {
		if err := ctx.Err(); err != nil {
			lua.Errorf(l, "interrupted: %s", err.Error())
		}
	}, lua.MaskCount, hookInterval)
	defer lua.SetDebugHook(l, nil, 0, 0)

	l.Global(e.name)
	l.Field(-1, fn)
	if !l.IsFunction(-1) {
		return "", fmt.Errorf("function %q is not defined", fn)
	}
	l.PushValue(-2)
	pushValue(l, args, 0)
	if err := l.ProtectedCall(2, 1, 0); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", luaError(l, err)
	}
	return stringify(toValue(l, -1, 0)), nil
}

// luaError attaches the error message left on the stack by a failed load or
// call.
func luaError(l *lua.State, err error) error {
	msg, ok := l.ToString(-1)
	if !ok || msg == "" || strings.Contains(err.Error(), msg) {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// pushValue pushes a Go value onto the Lua stack.
func pushValue(l *lua.State, v any, depth int) {
	if depth > maxValueDepth {
		l.PushNil()
		return
	}
	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case string:
		l.PushString(x)
	case int:
		l.PushInteger(x)
	case int32:
		l.PushInteger(int(x))
	case int64:
		l.PushNumber(float64(x))
	case uint:
		l.PushNumber(float64(x))
	case uint64:
		l.PushNumber(float64(x))
	case float32:
		l.PushNumber(float64(x))
	case float64:
		l.PushNumber(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			l.PushString(x.String())
			return
		}
		l.PushNumber(f)
	case []string:
		l.CreateTable(len(x), 0)
		for i, s := range x {
			l.PushString(s)
			l.RawSetInt(-2, i+1)
		}
	case []any:
		l.CreateTable(len(x), 0)
		for i, item := range x {
			pushValue(l, item, depth+1)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.CreateTable(0, len(x))
		for k, item := range x {
			pushValue(l, item, depth+1)
			l.SetField(-2, k)
		}
	default:
		l.PushString(fmt.Sprint(x))
	}
}

// toValue converts the Lua value at idx to a Go value. Integral numbers
// become int.
func toValue(l *lua.State, idx, depth int) any {
	idx = l.AbsIndex(idx)
	switch l.TypeOf(idx) {
	case lua.TypeNil, lua.TypeNone:
		return nil
	case lua.TypeBoolean:
		return l.ToBoolean(idx)
	case lua.TypeNumber:
		n, _ := l.ToNumber(idx)
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int(n)
		}
		return n
	case lua.TypeString:
		s, _ := l.ToString(idx)
		return s
	case lua.TypeTable:
		if depth >= maxValueDepth {
			return nil
		}
		return tableValue(l, idx, depth)
	default:
		return "<" + lua.TypeNameOf(l, idx) + ">"
	}
}

func tableValue(l *lua.State, idx, depth int) any {
	n := l.RawLength(idx)
	count := 0
	l.PushNil()
	for l.Next(idx) {
		count++
		l.Pop(1)
	}

	if n > 0 && count == n {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			l.RawGetInt(idx, i)
			out = append(out, toValue(l, -1, depth+1))
			l.Pop(1)
		}
		return out
	}

	out := make(map[string]any, count)
	l.PushNil()
	for l.Next(idx) {
		var key string
		switch l.TypeOf(-2) {
		case lua.TypeString:
			key, _ = l.ToString(-2)
		case lua.TypeNumber:
			// ToString converts in place, which would break Next.
			l.PushValue(-2)
			key, _ = l.ToString(-1)
			l.Pop(1)
		default:
			l.Pop(1)
			continue
		}
		out[key] = toValue(l, -1, depth+1)
		l.Pop(1)
	}
	return out
}
