// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-extract/internal/prompt"
)

var templatesCmd = &cobra.Command{
	Use:   "templates [name-or-file]",
	Short: "List the built-in prompt templates or show one rendered",
	Long: `Without arguments, templates lists the built-in prompt templates. With a
template name or YAML file it prints the rendered message sequence, with
--text (or a placeholder) in place of the record text.

Examples:
  pubmed-extract templates
  pubmed-extract templates exposures
  pubmed-extract templates my-template.yaml --text "Smoking and lung cancer..."`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTemplates,
}

func init() {
	templatesCmd.Flags().String("text", "<record text>", "text substituted into the variable message")
	rootCmd.AddCommand(templatesCmd)
}

func runTemplates(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		for _, name := range prompt.Builtins() {
			t, err := prompt.Builtin(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-12s %-12s %s\n", t.Name, t.Input, t.Description)
		}
		return nil
	}

	t, err := prompt.Resolve(args[0])
	if err != nil {
		return err
	}
	text, _ := cmd.Flags().GetString("text")

	fmt.Fprintf(out, "# %s (input: %s)\n", t.Name, t.Input)
	for i, m := range t.Render(text) {
		fmt.Fprintf(out, "\n[%d %s]\n%s\n", i+1, m.Role, strings.TrimRight(m.Content, "\n"))
	}
	return nil
}
