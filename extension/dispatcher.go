package extension

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentcmd/internal/ctxkeys"
	"github.com/BaSui01/agentcmd/types"
)

// Dispatch outcomes reported to the Observer.
const (
	StatusSuccess     = "success"
	StatusError       = "error"
	StatusTimeout     = "timeout"
	StatusNotFound    = "not_found"
	StatusRateLimited = "rate_limited"
)

// DefaultTimeout bounds a single command invocation.
const DefaultTimeout = 30 * time.Second

// SettingsPolicy decides which settings a dispatch-time instance receives.
type SettingsPolicy string

const (
	// SettingsShared builds the per-call instance with the load-time settings.
	SettingsShared SettingsPolicy = "shared"
	// SettingsEmpty builds the per-call instance without settings.
	SettingsEmpty SettingsPolicy = "empty"
)

// Resolver resolves a friendly name to a definition and its module.
type Resolver interface {
	Lookup(name string) (types.CommandDefinition, *Module, bool)
}

// Dispatcher executes commands by friendly name. Execute never panics and
// never returns a Go error: every outcome is encoded in types.Result.
type Dispatcher struct {
	resolver Resolver
	settings Settings
	policy   SettingsPolicy
	timeout  time.Duration
	rps      float64
	burst    int
	observer Observer
	tracer   trace.Tracer
	logger   *zap.Logger

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchSettings sets the settings and the policy for per-call
// instances.
func WithDispatchSettings(s Settings, policy SettingsPolicy) DispatcherOption {
	return func(d *Dispatcher) {
		d.settings = s
		if policy != "" {
			d.policy = policy
		}
	}
}

// WithTimeout sets the default per-call timeout.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithRateLimit limits calls per command. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		d.rps = rps
		d.burst = burst
		if d.burst <= 0 {
			d.burst = 1
		}
	}
}

// WithDispatchObserver sets the metrics observer.
func WithDispatchObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithDispatchLogger sets the logger.
func WithDispatchLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher resolving commands through resolver.
func NewDispatcher(resolver Resolver, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		resolver: resolver,
		policy:   SettingsShared,
		timeout:  DefaultTimeout,
		observer: nopObserver{},
		tracer:   otel.Tracer("github.com/BaSui01/agentcmd/extension"),
		logger:   zap.NewNop(),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "command_dispatcher"))
	return d
}

// Reconcile aligns args with a schema. Declared parameters missing from args
// are added, undeclared keys are dropped, and nil values take the declared
// default. args itself is not modified.
func Reconcile(schema types.ParamSchema, args map[string]any) map[string]any {
	out := make(map[string]any, len(schema))
	for _, p := range schema {
		if isImplicitParam(p.Name) {
			continue
		}
		v, ok := args[p.Name]
		if !ok || v == nil {
			v = p.Default
		}
		out[p.Name] = v
	}
	return out
}

// Execute runs the named command with args.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any) (result types.Result) {
	start := time.Now()
	result = types.Result{CallID: uuid.NewString(), Command: name}

	ctx, span := d.tracer.Start(ctx, "extension.execute",
		trace.WithAttributes(
			attribute.String("command.name", name),
			attribute.String("command.call_id", result.CallID),
		))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result.Output = types.ErrorPrefix + fmt.Sprint(r)
			result.Err = types.NewError(types.ErrInternalError, "dispatch panicked").
				WithCause(fmt.Errorf("%w: %v", ErrCommandPanic, r))
			result.Duration = time.Since(start)
			d.logger.Error("dispatch panicked", zap.String("command", name), zap.Any("panic", r))
		}
	}()

	def, module, ok := d.resolver.Lookup(name)
	if !ok {
		result.Duration = time.Since(start)
		span.SetAttributes(attribute.Bool("command.found", false))
		d.observer.ObserveDispatch(name, StatusNotFound, result.Duration)
		d.logger.Warn("command not found", zap.String("command", name))
		return result
	}
	result.Found = true
	span.SetAttributes(
		attribute.Bool("command.found", true),
		attribute.String("command.extension", def.Extension),
		attribute.String("command.function", def.FunctionName),
	)

	if !d.allow(name) {
		err := types.NewError(types.ErrRateLimited, fmt.Sprintf("rate limit exceeded for command %s", name)).
			WithCause(ErrRateLimited).
			WithExtension(def.Extension).
			WithRetryable(true)
		return d.fail(span, result, start, StatusRateLimited, err)
	}

	callArgs := Reconcile(def.Params, args)
	d.logger.Info("executing command", append(callerFields(ctx),
		zap.String("command", name),
		zap.String("call_id", result.CallID),
		zap.String("extension", def.Extension),
		zap.String("function", def.FunctionName),
		zap.Strings("args", sortedKeys(callArgs)),
		zap.Strings("dropped", droppedKeys(def.Params, args)))...)

	output, err := d.invoke(ctx, def, module, callArgs)
	if err != nil {
		status := StatusError
		code := types.ErrCommandExecution
		if errors.Is(err, ErrCommandTimeout) {
			status = StatusTimeout
			code = types.ErrCommandTimeout
		}
		typed := types.NewError(code, err.Error()).WithCause(err).WithExtension(def.Extension)
		return d.fail(span, result, start, status, typed)
	}

	result.Output = output
	result.Duration = time.Since(start)
	span.SetStatus(codes.Ok, "")
	d.observer.ObserveDispatch(name, StatusSuccess, result.Duration)
	d.logger.Info("command executed",
		zap.String("command", name),
		zap.String("call_id", result.CallID),
		zap.Duration("duration", result.Duration))
	return result
}

// callerFields tags log lines with the HTTP request and agent that triggered the call.
func callerFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id, ok := ctxkeys.RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if agent, ok := ctxkeys.Agent(ctx); ok {
		fields = append(fields, zap.String("agent", agent))
	}
	return fields
}

func (d *Dispatcher) fail(span trace.Span, result types.Result, start time.Time, status string, err *types.Error) types.Result {
	result.Err = err
	result.Output = types.ErrorPrefix + err.Message
	result.Duration = time.Since(start)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Message)
	d.observer.ObserveDispatch(result.Command, status, result.Duration)
	d.logger.Error("command failed",
		zap.String("command", result.Command),
		zap.String("call_id", result.CallID),
		zap.String("status", status),
		zap.Error(err))
	return result
}

type outcome struct {
	output string
	err    error
}

// invoke builds a fresh instance and runs the handler under a deadline. The
// handler runs on its own goroutine; on timeout its result is discarded.
// Handlers are expected to return once ctx is done, and script handlers are
// interrupted by the interpreter.
func (d *Dispatcher) invoke(ctx context.Context, def types.CommandDefinition, module *Module, args map[string]any) (string, error) {
	timeout := d.timeout
	if t := module.timeout(def.FriendlyName); t > 0 {
		timeout = t
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	settings := d.settings
	if d.policy == SettingsEmpty {
		settings = Settings{}
	}

	// Buffered so the goroutine can always finish after a timeout.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrCommandPanic, r)}
			}
		}()
		ext, err := module.New(settings)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		cmd, ok := findCommand(ext, def)
		if !ok {
			done <- outcome{err: fmt.Errorf("%w: %s on %s", ErrCommandNotFound, def.FunctionName, def.Extension)}
			return
		}
		out, err := cmd.Handler(execCtx, args)
		done <- outcome{output: out, err: err}
	}()

	select {
	case o := <-done:
		return o.output, o.err
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrCommandTimeout, timeout)
		}
		return "", execCtx.Err()
	}
}

func (d *Dispatcher) allow(name string) bool {
	if d.rps <= 0 {
		return true
	}
	d.limitersMu.Lock()
	limiter, ok := d.limiters[name]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(d.rps), d.burst)
		d.limiters[name] = limiter
	}
	d.limitersMu.Unlock()
	return limiter.Allow()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range maps.Keys(m) {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func droppedKeys(schema types.ParamSchema, args map[string]any) []string {
	var dropped []string
	for k := range args {
		if !schema.Has(k) || isImplicitParam(k) {
			dropped = append(dropped, k)
		}
	}
	sort.Strings(dropped)
	return dropped
}
