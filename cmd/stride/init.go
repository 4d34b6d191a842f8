package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stridecoach/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Writes the default stride.yaml with the local tool-server endpoints
filled in, ready for the three-process setup on one machine.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}

		c := config.DefaultConfig()
		c.Tools.DataEndpoint = "http://127.0.0.1:8701"
		c.Tools.PromptEndpoint = "http://127.0.0.1:8702"
		if err := c.Save(configPath); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", configPath)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}
