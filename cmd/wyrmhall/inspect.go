package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hearthloom/wyrmhall/mailbox"
	"github.com/hearthloom/wyrmhall/pipeline/envelope"
)

var (
	inspectStage  string
	inspectStatus string
	inspectJSON   bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [mailbox]",
	Short: "Dump a mailbox file (pipeline, outbound or audit)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  inspectMailbox,
}

func init() {
	inspectCmd.Flags().StringVar(&inspectStage, "stage", "", "only envelopes whose stage name matches")
	inspectCmd.Flags().StringVar(&inspectStatus, "status", "", "only envelopes with this status")
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "emit raw JSON instead of a summary")
}

func inspectMailbox(cmd *cobra.Command, args []string) error {
	name := "pipeline"
	if len(args) == 1 {
		name = args[0]
	}
	var path string
	if name == "audit" {
		path = cfg.AuditPath()
	} else {
		path = cfg.MailboxPath(name)
	}

	doc, err := mailbox.NewStore(path, cfg.PruneMax).Read()
	if err != nil {
		return err
	}

	matched := make([]*envelope.MessageEnvelope, 0, len(doc.Messages))
	for _, m := range doc.Messages {
		if inspectStage != "" && m.StageRef().Name != inspectStage {
			continue
		}
		if inspectStatus != "" && string(m.Status) != inspectStatus {
			continue
		}
		matched = append(matched, m)
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(matched)
	}

	fmt.Fprintf(out, "%s: %d envelope(s)\n", path, len(matched))
	for _, m := range matched {
		fmt.Fprintf(out, "%-20s %-16s %-10s %-12s %s\n",
			m.ID, m.Stage, m.Status, m.Sender, truncate(m.Content, 60))
	}
	return nil
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
