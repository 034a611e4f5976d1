package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/BaSui01/agentcmd/prompts"
)

func promptsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage prompt templates",
	}
	cmd.AddCommand(
		promptsListCmd(opts),
		promptsGetCmd(opts),
		promptsAddCmd(opts),
		promptsDeleteCmd(opts),
	)
	return cmd
}

// openPrompts 只打开提示词存储，不加载扩展
func openPrompts(opts *rootOptions) (*prompts.Store, error) {
	cfg, logger, err := opts.load()
	if err != nil {
		return nil, err
	}
	return prompts.NewStore(cfg.Prompts.BaseDir, logger)
}

func promptsListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List prompt names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openPrompts(opts)
			if err != nil {
				return err
			}
			names, err := store.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
}

func promptsGetCmd(opts *rootOptions) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print a prompt, preferring the model-specific variant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPrompts(opts)
			if err != nil {
				return err
			}
			var text string
			if model != "" {
				text, err = store.GetModelPrompt(args[0], model)
			} else {
				text, err = store.Get(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model name for a model-specific prompt")
	return cmd
}

func promptsAddCmd(opts *rootOptions) *cobra.Command {
	var (
		file      string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "add <name> [text]",
		Short: "Create a prompt from text or a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			switch {
			case file != "" && len(args) == 2:
				return fmt.Errorf("pass either text or --file, not both")
			case file != "":
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read prompt file: %w", err)
				}
				text = string(data)
			case len(args) == 2:
				text = args[1]
			default:
				return fmt.Errorf("prompt text is required")
			}

			store, err := openPrompts(opts)
			if err != nil {
				return err
			}
			if overwrite {
				return store.Update(args[0], text)
			}
			return store.Add(args[0], text)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read prompt text from file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing prompt")
	return cmd
}

func promptsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openPrompts(opts)
			if err != nil {
				return err
			}
			return store.Delete(args[0])
		},
	}
}
