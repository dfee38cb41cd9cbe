package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hearthloom/wyrmhall/mailbox"
	"github.com/hearthloom/wyrmhall/pipeline/envelope"
	"github.com/hearthloom/wyrmhall/pipeline/session"
)

var (
	sendSender  string
	sendSession string
)

var sendCmd = &cobra.Command{
	Use:   "send [text...]",
	Short: "Enqueue player input for the running pipeline",
	Long: `Appends a player-input envelope to the pipeline mailbox, stamped with
the running session's id so the broker will claim it. Requires an active
` + "`wyrmhall run`" + ` against the same save directory.`,
	Args: cobra.MinimumNArgs(1),
	RunE: sendInput,
}

func init() {
	sendCmd.Flags().StringVar(&sendSender, "sender", "player", "envelope sender")
	sendCmd.Flags().StringVar(&sendSession, "session", "", "session id (default: the running pipeline's)")
}

func sendInput(cmd *cobra.Command, args []string) error {
	sessionID := sendSession
	if sessionID == "" {
		data, err := os.ReadFile(cfg.SessionPath())
		if err != nil {
			return fmt.Errorf("no active session for %s (is `wyrmhall run` running?): %w", cfg.SaveDir, err)
		}
		sessionID = strings.TrimSpace(string(data))
	}
	reg := session.NewRegistryWithID(sessionID)

	env := envelope.New(sendSender, strings.Join(args, " "),
		envelope.StageRef{Name: "user_input"},
		envelope.WithType("user_input"))
	reg.Stamp(env)
	if err := env.TransitionTo(envelope.StatusSent); err != nil {
		return err
	}

	store := mailbox.NewStore(cfg.MailboxPath("pipeline"), cfg.PruneMax)
	if err := store.Append(env); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), env.ID)
	return nil
}
