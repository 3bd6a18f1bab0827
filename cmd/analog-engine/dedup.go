// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/analog-engine/internal/dedup"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Filter candidates against the discovery registry",
	Long: `Dedup manages the registry of paper pairs surfaced in earlier sessions.
Use subcommands to filter a candidate file, confirm curated pairs into the
registry, or inspect it.`,
}

// --- filter subcommand ---

var dedupFilterCmd = &cobra.Command{
	Use:   "filter <candidates.json>",
	Short: "Remove candidates whose paper pair is already registered",
	Args:  cobra.ExactArgs(1),
	RunE:  runDedupFilter,
}

func runDedupFilter(cmd *cobra.Command, args []string) error {
	data, err := afero.ReadFile(app.fs, args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	cands, malformed, err := dedup.DecodeCandidates(data, app.logger)
	if err != nil {
		return err
	}

	reg, err := dedup.Load(app.fs, app.cfg.Dedup.RegistryPath)
	if err != nil {
		return err
	}
	res := reg.Filter(cands)

	st := res.Stats
	fmt.Fprintf(os.Stderr, "registry: %d pairs\n", reg.Len())
	fmt.Fprintf(os.Stderr, "original: %d, new: %d, duplicates: %d, repeated: %d, malformed: %d, duplication rate: %.1f%%\n",
		st.Original, st.New, st.Duplicates, st.Repeated, malformed, 100*st.DuplicationRate)

	force, _ := cmd.Flags().GetBool("force")
	if st.Stale(app.cfg.Dedup.StaleThreshold) {
		app.logger.Warn("registry looks stale",
			zap.Float64("duplication_rate", st.DuplicationRate),
			zap.Float64("threshold", app.cfg.Dedup.StaleThreshold))
		if !force {
			return fmt.Errorf("duplication rate %.1f%% above %.1f%%; re-validate the corpus and registry or pass --force",
				100*st.DuplicationRate, 100*app.cfg.Dedup.StaleThreshold)
		}
	}

	out, err := json.MarshalIndent(map[string]any{"stats": st, "candidates": res.New}, "", "  ")
	if err != nil {
		return err
	}
	target, _ := cmd.Flags().GetString("out")
	if target == "" || target == "-" {
		_, err = os.Stdout.Write(append(out, '\n'))
		return err
	}
	return dedup.WriteFileAtomic(app.fs, target, append(out, '\n'))
}

// --- confirm subcommand ---

var dedupConfirmCmd = &cobra.Command{
	Use:   "confirm <candidates.json>",
	Short: "Add curated candidates to the registry",
	Long: `Confirm appends the paper pairs of a curated candidate file to the
registry so later batches do not surface them again. Registered pairs are
never rewritten.`,
	Args: cobra.ExactArgs(1),
	RunE: runDedupConfirm,
}

func runDedupConfirm(cmd *cobra.Command, args []string) error {
	data, err := afero.ReadFile(app.fs, args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	cands, malformed, err := dedup.DecodeCandidates(data, app.logger)
	if err != nil {
		return err
	}

	reg, err := dedup.Load(app.fs, app.cfg.Dedup.RegistryPath)
	if err != nil {
		return err
	}

	session, _ := cmd.Flags().GetString("session")
	if session == "" {
		session = time.Now().UTC().Format("2006-01-02")
	}
	sum := reg.Append(dedup.DiscoveredFromCandidates(cands, session))
	if err := reg.Save(time.Now()); err != nil {
		return err
	}
	fmt.Printf("added %d, already registered %d, invalid %d, malformed %d; registry now %d pairs\n",
		sum.Added, sum.Existing, sum.Invalid, malformed, reg.Len())
	return nil
}

// --- check subcommand ---

var dedupCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the registry and its paper references against the corpus",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := dedup.Load(app.fs, app.cfg.Dedup.RegistryPath)
		if err != nil {
			return err
		}
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := reg.Verify(cmd.Context(), store); err != nil {
			var ref *dedup.ReferenceError
			if errors.As(err, &ref) {
				fmt.Printf("%s: %d pairs, %d papers not in the corpus\n",
					app.cfg.Dedup.RegistryPath, reg.Len(), len(ref.Missing))
				for _, id := range ref.Missing {
					fmt.Printf("  missing paper %d\n", id)
				}
			}
			return err
		}
		fmt.Printf("%s: %d pairs, %d papers, all in the corpus\n",
			app.cfg.Dedup.RegistryPath, reg.Len(), len(reg.PaperIDs()))
		return nil
	},
}

func init() {
	dedupFilterCmd.Flags().String("out", "", "write new candidates to this file (default stdout)")
	dedupFilterCmd.Flags().Bool("force", false, "write output even when the registry looks stale")
	dedupConfirmCmd.Flags().String("session", "", "session label recorded with each pair (default today)")

	dedupCmd.AddCommand(dedupFilterCmd, dedupConfirmCmd, dedupCheckCmd)
	rootCmd.AddCommand(dedupCmd)
}
