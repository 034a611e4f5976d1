package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BaSui01/agentcmd/agentconfig"
	"github.com/BaSui01/agentcmd/types"
)

func commandsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List and execute extension commands",
	}
	cmd.AddCommand(commandsListCmd(opts))
	cmd.AddCommand(commandsExecCmd(opts))
	return cmd
}

// withComponents 加载配置、组装组件并在返回前释放
func withComponents(ctx context.Context, opts *rootOptions, fn func(c *components) error) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c, err := buildComponents(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func commandsListCmd(opts *rootOptions) *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List loaded commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withComponents(cmd.Context(), opts, func(c *components) error {
				out := cmd.OutOrStdout()
				if agent != "" {
					available, err := agentconfig.AvailableCommands(cmd.Context(), c.agents, c.registry, agent)
					if err != nil {
						return err
					}
					return printAvailable(out, available)
				}
				snap := c.registry.Snapshot()
				for _, le := range snap.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", le)
				}
				return printDefinitions(out, snap.Definitions)
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "show only commands enabled for this agent")
	return cmd
}

func commandsExecCmd(opts *rootOptions) *cobra.Command {
	var (
		pairs    []string
		argsJSON string
		agent    string
	)
	cmd := &cobra.Command{
		Use:   "exec <name>",
		Short: "Execute a command by friendly name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			name := positional[0]
			args, err := parseArgs(argsJSON, pairs)
			if err != nil {
				return err
			}
			return withComponents(cmd.Context(), opts, func(c *components) error {
				if agent != "" {
					cfg, err := c.agents.Get(cmd.Context(), agent)
					if err != nil {
						return err
					}
					if !cfg.Enabled(name) {
						return types.NewError(types.ErrCommandDisabled,
							fmt.Sprintf("command %q is not enabled for agent %q", name, agent))
					}
				}

				result := c.dispatcher.Execute(cmd.Context(), name, args)
				if !result.Found {
					return types.NewError(types.ErrCommandNotFound, fmt.Sprintf("command not found: %s", name))
				}
				fmt.Fprintln(cmd.OutOrStdout(), result.Output)
				if result.Failed() {
					return result.Err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&pairs, "arg", nil, "argument as key=value, repeatable")
	cmd.Flags().StringVar(&argsJSON, "args-json", "", "arguments as a JSON object")
	cmd.Flags().StringVar(&agent, "agent", "", "refuse to run unless the command is enabled for this agent")
	return cmd
}

// parseArgs 合并 JSON 参数与 key=value 参数，后者优先。
// value 能解析为 JSON 标量时按 JSON 处理，否则视为字符串。
func parseArgs(argsJSON string, pairs []string) (map[string]any, error) {
	args := map[string]any{}
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("invalid --args-json: %w", err)
		}
	}
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --arg %q, expected key=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		switch v.(type) {
		case map[string]any, []any:
			v = raw
		}
		args[key] = v
	}
	return args, nil
}

func printDefinitions(w io.Writer, defs []types.CommandDefinition) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tFUNCTION\tEXTENSION\tARGS")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.FriendlyName, d.FunctionName, d.Extension, formatSchema(d.Params))
	}
	return tw.Flush()
}

func printAvailable(w io.Writer, cmds []types.AvailableCommand) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMAND\tFUNCTION\tARGS")
	for _, c := range cmds {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.FriendlyName, c.Name, formatSchema(c.Args))
	}
	return tw.Flush()
}

// formatSchema 渲染为 name=default 列表，无默认值的参数只显示名称
func formatSchema(s types.ParamSchema) string {
	if len(s) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(s))
	for _, p := range s {
		if p.Default == nil {
			parts = append(parts, p.Name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", p.Name, p.Default))
	}
	return strings.Join(parts, " ")
}
