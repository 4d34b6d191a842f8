// stride is the conversational endurance-training coach. The binary hosts
// three roles behind one CLI: the data tool server, the prompt tool server,
// and the chat controller that talks to both over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stridecoach/internal/config"
	"stridecoach/internal/logging"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "stride",
	Short: "stridecoach - conversational endurance-training coach",
	Long: `stridecoach turns race goals stated in plain language into concrete
training calendars.

The controller fills the slots a plan needs (race distance, date, target
time, current mileage) one question at a time, then executes a deterministic
planning pipeline the moment the last slot lands. All state lives behind two
HTTP tool servers; the controller itself is stateless between turns.

Typical setup runs three processes:

  stride serve-data      # conversations, sessions, planning
  stride serve-prompts   # read-only prompt files
  stride chat            # interactive coaching session`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnvFile(".env")
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Debug = true
		}
		if err := logging.Init(cfg.Logging.Debug); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "stride.yaml", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveDataCmd)
	rootCmd.AddCommand(servePromptsCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(turnCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
