// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/analog-engine/internal/match"
	"github.com/pdiddy/analog-engine/internal/scorer"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of analog-engine and its curated tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		lex, err := loadLexicon(app.cfg.Match)
		if err != nil {
			return err
		}
		fmt.Printf("analog-engine %s\n", version)
		fmt.Printf("  lexicon  %s\n", lex.Version())
		fmt.Printf("  scorer   %s\n", scorer.MustNew().Version())
		fmt.Printf("  strategy %s\n", match.MultiFactorName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
