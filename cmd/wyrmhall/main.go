// Wyrmhall pipeline CLI.
//
// Runs the mailbox coordination workers for one save directory and ships
// the small operational tools that go with them: sending player input,
// inspecting mailbox files and dry-running the command parser.
//
// Usage:
//
//	wyrmhall run --save-dir save            # start broker + interpreter
//	wyrmhall send "attack the goblin"       # enqueue player input
//	wyrmhall inspect pipeline --status sent # dump a mailbox
//	wyrmhall parse 'actor.henry.LOOK()'     # dry-run the parser
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthloom/wyrmhall/config"
	"github.com/hearthloom/wyrmhall/logging"
)

var (
	configPath string
	saveDir    string
	logLevel   string

	cfg *config.Config
	log logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "wyrmhall",
	Short: "File-mailbox coordination pipeline for the Wyrmhall text engine",
	Long: `Wyrmhall coordinates the stages of a text-game request pipeline over
durable JSON mailbox files: player input is brokered into command text,
interpreted against the world state, and refined through a bounded
error/re-prompt exchange before a result ships outbound.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if saveDir != "" {
			cfg.SaveDir = saveDir
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		log, err = logging.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("initialize logging: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "wyrmhall.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&saveDir, "save-dir", "", "save directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(parseCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
