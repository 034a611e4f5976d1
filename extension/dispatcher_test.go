package extension

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/agentcmd/internal/ctxkeys"
	"github.com/BaSui01/agentcmd/types"
)

func newTestDispatcher(t *testing.T, catalog *Catalog, opts ...DispatcherOption) (*Dispatcher, *recordingObserver) {
	t.Helper()
	r := newTestRegistry(t, catalog)
	obs := newRecordingObserver()
	opts = append([]DispatcherOption{WithDispatchObserver(obs)}, opts...)
	return NewDispatcher(r, opts...), obs
}

func TestReconcile(t *testing.T) {
	schema := types.ParamSchema{{Name: "a"}, {Name: "b", Default: 5}}

	tests := []struct {
		name string
		args map[string]any
		want map[string]any
	}{
		{name: "nil args", args: nil, want: map[string]any{"a": nil, "b": 5}},
		{name: "extra keys dropped", args: map[string]any{"a": 1, "bogus": 2}, want: map[string]any{"a": 1, "b": 5}},
		{name: "explicit values kept", args: map[string]any{"a": 1, "b": 7}, want: map[string]any{"a": 1, "b": 7}},
		{name: "nil takes default", args: map[string]any{"a": 1, "b": nil}, want: map[string]any{"a": 1, "b": 5}},
		{name: "implicit names dropped", args: map[string]any{ReceiverParam: 1, CatchAllParam: 2, CatchAllPositional: 3}, want: map[string]any{"a": nil, "b": 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var before map[string]any
			if tt.args != nil {
				before = make(map[string]any, len(tt.args))
				for k, v := range tt.args {
					before[k] = v
				}
			}
			assert.Equal(t, tt.want, Reconcile(schema, tt.args))
			assert.Equal(t, before, tt.args, "args must not be modified")
		})
	}
}

func TestDispatcher_NotFound(t *testing.T) {
	d, obs := newTestDispatcher(t, NewCatalog())

	res := d.Execute(context.Background(), "Nope", map[string]any{"x": 1})
	assert.False(t, res.Found)
	assert.Empty(t, res.Output)
	assert.Nil(t, res.Err)
	assert.False(t, res.Failed())
	assert.NotEmpty(t, res.CallID)
	assert.Equal(t, []string{StatusNotFound}, obs.statusesOf("Nope"))
}

func TestDispatcher_ReconciledCallsAreEquivalent(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("math", factoryOf("math",
		echoCommand("Echo", types.Param{Name: "a"}, types.Param{Name: "b", Default: 5}),
	)))
	d, obs := newTestDispatcher(t, catalog)
	ctx := context.Background()

	withExtra := d.Execute(ctx, "Echo", map[string]any{"a": 1, "bogus": 2})
	explicit := d.Execute(ctx, "Echo", map[string]any{"a": 1, "b": 5})

	require.True(t, withExtra.Found)
	require.Nil(t, withExtra.Err)
	assert.Equal(t, "a=1,b=5", withExtra.Output)
	assert.Equal(t, explicit.Output, withExtra.Output)
	assert.NotEqual(t, withExtra.CallID, explicit.CallID)
	assert.Equal(t, []string{StatusSuccess, StatusSuccess}, obs.statusesOf("Echo"))
}

func TestDispatcher_LogsCaller(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("math", factoryOf("math", echoCommand("Echo", types.Param{Name: "a"}))))
	core, logs := observer.New(zap.InfoLevel)
	d, _ := newTestDispatcher(t, catalog, WithDispatchLogger(zap.New(core)))

	ctx := ctxkeys.WithAgent(ctxkeys.WithRequestID(context.Background(), "req-7"), "writer")
	require.Nil(t, d.Execute(ctx, "Echo", map[string]any{"a": 1}).Err)

	entries := logs.FilterMessage("executing command").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, "writer", fields["agent"])
	assert.Equal(t, "Echo", fields["command"])
}

func TestDispatcher_Failures(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("bad", factoryOf("bad",
		failingCommand("Fail", errBoom),
		panickingCommand("Panic"),
		blockingCommand("Block", 30*time.Millisecond),
	)))
	d, obs := newTestDispatcher(t, catalog)

	tests := []struct {
		command    string
		wantCode   types.ErrorCode
		wantStatus string
		wantCause  error
	}{
		{command: "Fail", wantCode: types.ErrCommandExecution, wantStatus: StatusError, wantCause: errBoom},
		{command: "Panic", wantCode: types.ErrCommandExecution, wantStatus: StatusError, wantCause: ErrCommandPanic},
		{command: "Block", wantCode: types.ErrCommandTimeout, wantStatus: StatusTimeout, wantCause: ErrCommandTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			res := d.Execute(context.Background(), tt.command, nil)
			require.True(t, res.Found)
			require.NotNil(t, res.Err)
			assert.True(t, res.Failed())
			assert.True(t, strings.HasPrefix(res.Output, types.ErrorPrefix), res.Output)
			assert.Equal(t, tt.wantCode, res.Err.Code)
			assert.Equal(t, "bad", res.Err.Extension)
			assert.ErrorIs(t, res.Err, tt.wantCause)
			assert.Equal(t, []string{tt.wantStatus}, obs.statusesOf(tt.command))
		})
	}
}

func TestDispatcher_ErrorMessageIsPrefixed(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("bad", factoryOf("bad", failingCommand("Fail", errors.New("disk full")))))
	d, _ := newTestDispatcher(t, catalog)

	res := d.Execute(context.Background(), "Fail", nil)
	assert.Equal(t, "Error: disk full", res.Output)
}

func TestDispatcher_DefaultTimeout(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("slow", factoryOf("slow", blockingCommand("Block", 0))))
	d, _ := newTestDispatcher(t, catalog, WithTimeout(20*time.Millisecond))

	start := time.Now()
	res := d.Execute(context.Background(), "Block", nil)
	require.NotNil(t, res.Err)
	assert.Equal(t, types.ErrCommandTimeout, res.Err.Code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDispatcher_CallerCancellation(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("slow", factoryOf("slow", blockingCommand("Block", 0))))
	d, _ := newTestDispatcher(t, catalog)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res := d.Execute(ctx, "Block", nil)
	require.NotNil(t, res.Err)
	assert.Equal(t, types.ErrCommandExecution, res.Err.Code)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestDispatcher_SettingsPolicy(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("tuned", newTuned))
	settings := Settings{Scoped: map[string]map[string]any{"tuned": {"greeting": "hola"}}}
	r := newTestRegistry(t, catalog, WithSettings(settings))

	tests := []struct {
		policy SettingsPolicy
		want   string
	}{
		{policy: SettingsShared, want: "hola world"},
		{policy: SettingsEmpty, want: "hello world"},
		{policy: "", want: "hola world"},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			d := NewDispatcher(r, WithDispatchSettings(settings, tt.policy))
			res := d.Execute(context.Background(), "Greet", nil)
			require.Nil(t, res.Err)
			assert.Equal(t, tt.want, res.Output)
		})
	}
}

func TestDispatcher_ConstructorFailureAtDispatch(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("tuned", newTuned))
	r := newTestRegistry(t, catalog)

	strict := Settings{
		Scoped:  map[string]map[string]any{"tuned": {"unknown_key": 1}},
		Unknown: UnknownReject,
	}
	d := NewDispatcher(r, WithDispatchSettings(strict, SettingsShared))

	res := d.Execute(context.Background(), "Greet", nil)
	require.NotNil(t, res.Err)
	assert.Equal(t, types.ErrCommandExecution, res.Err.Code)
	assert.Contains(t, res.Output, "tuned")
}

func TestDispatcher_RateLimit(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("math", factoryOf("math", echoCommand("Echo"), echoCommand("Other"))))
	d, obs := newTestDispatcher(t, catalog, WithRateLimit(0.001, 1))
	ctx := context.Background()

	first := d.Execute(ctx, "Echo", nil)
	require.Nil(t, first.Err)

	second := d.Execute(ctx, "Echo", nil)
	require.NotNil(t, second.Err)
	assert.True(t, second.Found)
	assert.Equal(t, types.ErrRateLimited, second.Err.Code)
	assert.True(t, second.Err.Retryable)
	assert.True(t, strings.HasPrefix(second.Output, types.ErrorPrefix))

	// Limits are per command.
	assert.Nil(t, d.Execute(ctx, "Other", nil).Err)
	assert.Equal(t, []string{StatusSuccess, StatusRateLimited}, obs.statusesOf("Echo"))
}

func TestDispatcher_ScriptCommandTimeout(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "spin.lua", `
spin = { commands = { ["Spin"] = { fn = "spin", timeout = 0.05 }, ["Quick"] = "quick" } }
function spin:spin(args)
    local start = os.time()
    while os.time() - start < 2 do end
    return "finished"
end
function spin:quick(args) return "done" end
`)
	r := NewRegistry(NewLoader(WithCatalog(NewCatalog()), WithDir(dir)))
	require.NoError(t, r.Reload(context.Background()))
	d := NewDispatcher(r)

	res := d.Execute(context.Background(), "Spin", nil)
	require.NotNil(t, res.Err)
	assert.Equal(t, types.ErrCommandTimeout, res.Err.Code)

	// A fresh instance per call keeps a stuck call from blocking others.
	res = d.Execute(context.Background(), "Quick", nil)
	require.Nil(t, res.Err)
	assert.Equal(t, "done", res.Output)
}

func TestDispatcher_CommandsSharingAFunction(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "slow.lua", `
slow = {
    commands = {
        ["A Normal"] = { fn = "work" },
        ["B Fast Timeout"] = { fn = "work", timeout = 0.1 },
    },
}
function slow:work(args)
    local start = os.clock()
    while os.clock() - start < 0.3 do end
    return "worked"
end
`)
	r := NewRegistry(NewLoader(WithCatalog(NewCatalog()), WithDir(dir)))
	require.NoError(t, r.Reload(context.Background()))
	d := NewDispatcher(r, WithTimeout(5*time.Second))

	res := d.Execute(context.Background(), "A Normal", nil)
	require.Nil(t, res.Err)
	assert.Equal(t, "worked", res.Output)

	res = d.Execute(context.Background(), "B Fast Timeout", nil)
	require.NotNil(t, res.Err)
	assert.Equal(t, types.ErrCommandTimeout, res.Err.Code)
}

func TestDispatcher_BuiltinCommandsSharingAFunction(t *testing.T) {
	handler := func(out string) Handler {
		return func(context.Context, map[string]any) (string, error) { return out, nil }
	}
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("shared", factoryOf("shared",
		Command{FriendlyName: "First", FunctionName: "run", Handler: handler("first")},
		Command{FriendlyName: "Second", FunctionName: "run", Handler: handler("second")},
	)))
	d, _ := newTestDispatcher(t, catalog)

	assert.Equal(t, "first", d.Execute(context.Background(), "First", nil).Output)
	assert.Equal(t, "second", d.Execute(context.Background(), "Second", nil).Output)
}

func TestDispatcher_TimedOutScriptsStopRunning(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "loop.lua", `
loop = { commands = { ["Loop"] = "loop" } }
function loop:loop(args)
    while true do end
end
`)
	r := NewRegistry(NewLoader(WithCatalog(NewCatalog()), WithDir(dir)))
	require.NoError(t, r.Reload(context.Background()))
	d := NewDispatcher(r, WithTimeout(50*time.Millisecond))

	baseline := runtime.NumGoroutine()
	for i := 0; i < 5; i++ {
		res := d.Execute(context.Background(), "Loop", nil)
		require.NotNil(t, res.Err)
		assert.Equal(t, types.ErrCommandTimeout, res.Err.Code)
	}

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond, "abandoned script goroutines must exit")
}

type panickingResolver struct{}

func (panickingResolver) Lookup(string) (types.CommandDefinition, *Module, bool) {
	panic("resolver exploded")
}

func TestDispatcher_NeverPanics(t *testing.T) {
	d := NewDispatcher(panickingResolver{})

	var res types.Result
	require.NotPanics(t, func() { res = d.Execute(context.Background(), "Any", nil) })
	require.NotNil(t, res.Err)
	assert.Equal(t, types.ErrInternalError, res.Err.Code)
	assert.ErrorIs(t, res.Err, ErrCommandPanic)
	assert.Equal(t, "Error: resolver exploded", res.Output)
}

func TestDispatcher_ConcurrentExecute(t *testing.T) {
	catalog := NewCatalog()
	require.NoError(t, catalog.Add("math", factoryOf("math", echoCommand("Echo", types.Param{Name: "n"}))))
	d, _ := newTestDispatcher(t, catalog)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res := d.Execute(context.Background(), "Echo", map[string]any{"n": n, "junk": true})
			assert.Nil(t, res.Err)
			assert.Equal(t, "n="+stringify(n), res.Output)
		}(i)
	}
	wg.Wait()
}
