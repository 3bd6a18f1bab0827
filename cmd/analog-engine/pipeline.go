// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/analog-engine/internal/corpus"
	"github.com/pdiddy/analog-engine/internal/dedup"
	"github.com/pdiddy/analog-engine/internal/match"
	"github.com/pdiddy/analog-engine/internal/metrics"
	"github.com/pdiddy/analog-engine/internal/pipeline"
)

// --- embed ---

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed mechanism text with the configured provider",
	Long: `Embed computes a vector for every mechanism that has none and is not
flagged as a false positive, using the configured provider (ollama, openai
or tei) and cache. Batches that keep failing are left unembedded and
reported; the matcher skips them.`,
	RunE: runEmbed,
}

func runEmbed(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	svc, closeCache, err := newEmbedService(ctx, store, metrics.NewBatch())
	if err != nil {
		return err
	}
	defer closeCache()

	mechs, err := store.Mechanisms(ctx, corpus.MechanismFilter{})
	if err != nil {
		return err
	}
	summary, err := svc.EmbedMechanisms(ctx, mechs, os.Stdout)
	if _, saveErr := store.SaveEmbeddings(ctx, mechs); saveErr != nil {
		return errors.Join(err, saveErr)
	}
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d mechanism(s) could not be embedded", summary.Failed)
	}
	return nil
}

// --- match ---

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match cross-domain mechanism pairs without dedup or audit",
	Long: `Match scores every eligible cross-domain pair of embedded mechanisms
and writes the candidates at or above match.min_confidence as JSON, ranked
by confidence. Use "run" for a full batch with dedup and audit.`,
	RunE: runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	store, lex, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	strategy, err := loadStrategy(app.cfg.Match)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	mechs, err := store.Mechanisms(ctx, corpus.MechanismFilter{})
	if err != nil {
		return err
	}

	mc := app.cfg.Match
	batchID, _ := cmd.Flags().GetString("batch-id")
	opts := match.Options{
		MinConfidence: mc.MinConfidence,
		Scope:         mc.Scope,
		Workers:       mc.Workers,
	}
	if batchID != "" {
		opts.BatchID = batchID
		opts.Checkpointer = store
	}

	res, err := match.New(strategy, lex, opts, app.logger).Match(ctx, mechs, os.Stderr)
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	data, err := json.MarshalIndent(map[string]any{"candidates": res.Candidates}, "", "  ")
	if err != nil {
		return err
	}
	if out == "" || out == "-" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := dedup.WriteFileAtomic(app.fs, out, append(data, '\n')); err != nil {
		return err
	}
	if batchID != "" {
		if err := store.ClearCheckpoint(ctx, batchID); err != nil {
			app.logger.Warn("could not clear checkpoint", zap.Error(err))
		}
	}
	fmt.Fprintf(os.Stderr, "wrote %d candidates to %s\n", len(res.Candidates), out)
	return nil
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one discovery batch end to end",
	Long: `Run tags false positives, embeds missing vectors, matches cross-domain
pairs, drops pairs already in the discovery registry, records the audit
trail and writes the new candidates to output.candidates_path.

An interrupted batch resumes from its checkpoint when rerun with the same
--batch-id. A duplication rate above dedup.stale_threshold, or a registry
naming papers missing from the corpus, aborts without output unless --force
is set.`,
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	store, lex, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	strategy, err := loadStrategy(app.cfg.Match)
	if err != nil {
		return err
	}
	trail, err := openTrail(ctx, store, lex)
	if err != nil {
		return err
	}

	m := metrics.NewBatch()
	deps := pipeline.Deps{
		Store:    store,
		Lexicon:  lex,
		Strategy: strategy,
		Trail:    trail,
		Fs:       app.fs,
		Metrics:  m,
		Logger:   app.logger,
	}
	if skip, _ := cmd.Flags().GetBool("skip-embed"); !skip {
		svc, closeCache, err := newEmbedService(ctx, store, m)
		if err != nil {
			return err
		}
		defer closeCache()
		deps.Embedder = svc
	}

	batchID, _ := cmd.Flags().GetString("batch-id")
	force, _ := cmd.Flags().GetBool("force")
	_, err = pipeline.New(app.cfg, deps).Run(ctx, pipeline.Options{BatchID: batchID, Force: force}, os.Stdout)
	return err
}

func init() {
	matchCmd.Flags().String("out", "", "write candidates to this file (default stdout)")
	matchCmd.Flags().String("batch-id", "", "checkpoint key; rerun with the same ID to resume")
	matchCmd.Flags().Float64("min-confidence", 0, "override match.min_confidence")
	matchCmd.Flags().String("scope", "", "override match.scope: all or canonical")
	bindFlag(matchCmd, "match.min_confidence", "min-confidence")
	bindFlag(matchCmd, "match.scope", "scope")

	runCmd.Flags().String("batch-id", "", "batch ID (default: date plus random suffix); reuse to resume")
	runCmd.Flags().Bool("force", false, "write output even when the registry looks stale or names unknown papers")
	runCmd.Flags().Bool("skip-embed", false, "match with stored embeddings only")
	runCmd.Flags().Float64("min-confidence", 0, "override match.min_confidence")
	bindFlag(runCmd, "match.min_confidence", "min-confidence")

	rootCmd.AddCommand(embedCmd, matchCmd, runCmd)
}
