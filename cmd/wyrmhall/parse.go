package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hearthloom/wyrmhall/command"
)

var parseAggressive bool

var parseCmd = &cobra.Command{
	Use:   "parse [text...]",
	Short: "Dry-run the command parser over a block of text",
	Long: `Normalizes and parses command text the way the interpreter stage does,
then lints the result. Prints the parsed commands, warnings and lint
findings without touching any mailbox.`,
	Args: cobra.MinimumNArgs(1),
	RunE: parseText,
}

func init() {
	parseCmd.Flags().BoolVar(&parseAggressive, "aggressive", false, "apply the aggressive repair pass up front")
}

func parseText(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	normalized := command.Normalize(text)
	if parseAggressive {
		normalized = command.NormalizeAggressive(text)
	}

	result := command.Parse(normalized)
	if !result.OK() && !parseAggressive {
		// Same second chance the interpreter gives malformed text.
		repaired := command.NormalizeAggressive(text)
		if repaired != normalized {
			if retry := command.Parse(repaired); retry.OK() {
				result = retry
			}
		}
	}

	out := cmd.OutOrStdout()
	for _, node := range result.Commands {
		fmt.Fprintln(out, node.String())
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "warning: %s at line %d col %d: %s\n", w.Code, w.Line, w.Column, w.Message)
	}
	for _, issue := range command.Lint(result.Commands) {
		fmt.Fprintf(out, "lint: %s\n", issue.Error())
	}
	if !result.OK() {
		for _, e := range result.Errors {
			fmt.Fprintf(out, "error: %s\n", e.Error())
		}
		return fmt.Errorf("%d parse error(s)", len(result.Errors))
	}
	return nil
}
