package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"stridecoach/internal/corpus"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Validate and list the retrieval corpus",
	Long: `Parses every document in the corpus directory and prints what loaded.
A document that fails to parse fails the whole command; the data server
refuses a broken corpus the same way.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := corpus.LoadDir(cfg.Corpus.Dir)
		if err != nil {
			return fmt.Errorf("corpus at %s is invalid: %w", cfg.Corpus.Dir, err)
		}

		phils := c.Philosophies()
		fmt.Printf("Corpus %s: %d philosophies, %d templates\n", cfg.Corpus.Dir, len(phils), len(c.Templates()))
		for _, p := range phils {
			fmt.Printf("  philosophy %-24s priority=%d races=%v\n",
				p.Metadata.ID, p.Metadata.Priority, p.Metadata.RaceTypes)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(corpusCmd)
}
