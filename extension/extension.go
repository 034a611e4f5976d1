package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/BaSui01/agentcmd/types"
)

// Sentinel errors for loading and dispatching extensions.
var (
	ErrExtensionInvalid = errors.New("extension does not satisfy the extension capability")
	ErrNameMismatch     = errors.New("extension name does not match its identifier")
	ErrDuplicateName    = errors.New("extension identifier already loaded")
	ErrCommandNotFound  = errors.New("command not found")
	ErrCommandTimeout   = errors.New("command execution timed out")
	ErrCommandPanic     = errors.New("command panicked")
	ErrRateLimited      = errors.New("command rate limit exceeded")
)

// Extension is a pluggable unit exposing named commands.
type Extension interface {
	// Name returns the extension identifier. It must equal the identifier
	// the extension was registered or discovered under.
	Name() string
	// Commands returns the commands declared by this instance.
	Commands() []Command
}

// Configurable is implemented by extensions that expose a typed settings
// struct. The returned value is only inspected, never mutated.
type Configurable interface {
	SettingsPrototype() any
}

// Factory builds a fresh extension instance from settings.
type Factory func(settings Settings) (Extension, error)

// Handler executes a command with reconciled arguments.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Command is a named, invocable operation declared by an extension.
type Command struct {
	// FriendlyName is the human-facing name used for lookup and enablement.
	FriendlyName string
	// FunctionName identifies the handler inside its extension.
	FunctionName string
	// Params declares the parameter schema explicitly. Ignored for commands
	// built with Typed.
	Params []types.Param
	// Handler runs the command.
	Handler Handler
	// Timeout overrides the dispatcher's default per-call timeout.
	Timeout time.Duration

	argsType reflect.Type
}

// Typed builds a command whose parameter schema is derived from the fields
// of A. Parameter names come from json tags and defaults from default tags:
//
//	type searchArgs struct {
//	    Query      string `json:"query"`
//	    MaxResults int    `json:"max_results" default:"5"`
//	}
func Typed[A any](friendlyName, functionName string, fn func(ctx context.Context, args A) (string, error)) Command {
	argsType := reflect.TypeOf((*A)(nil)).Elem()
	return Command{
		FriendlyName: friendlyName,
		FunctionName: functionName,
		argsType:     argsType,
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			var typed A
			data, err := json.Marshal(args)
			if err != nil {
				return "", fmt.Errorf("encode arguments: %w", err)
			}
			if err := json.Unmarshal(data, &typed); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
			return fn(ctx, typed)
		},
	}
}

// findCommand returns the command of ext with the definition's friendly
// name. Several friendly names may share one function, so the function name
// is only a fallback for instances that renamed the command.
func findCommand(ext Extension, def types.CommandDefinition) (Command, bool) {
	cmds := ext.Commands()
	for _, c := range cmds {
		if c.FriendlyName == def.FriendlyName {
			return c, true
		}
	}
	for _, c := range cmds {
		if c.FunctionName == def.FunctionName {
			return c, true
		}
	}
	return Command{}, false
}
