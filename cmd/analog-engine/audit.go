// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/analog-engine/internal/audit"
	"github.com/pdiddy/analog-engine/pkg/types"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect and rate the audit trail of emitted candidates",
	Long: `Audit reads the append-only trail recorded for every emitted candidate:
the full score breakdown, shared terms and filter outcomes. Ratings are
appended alongside records, never written into them.`,
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit records by confidence",
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, done, err := trailForCommand(cmd)
		if err != nil {
			return err
		}
		defer done()

		batchID, _ := cmd.Flags().GetString("batch-id")
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := trail.List(cmd.Context(), audit.ListOptions{BatchID: batchID, MinConfidence: minConf, Limit: limit})
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return printJSON(recs)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tBatch\tPair\tDomains\tConfidence\tCanonical\tShared terms")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%d-%d\t%s / %s\t%.3f\t%s\t%s\n",
				r.ID, r.BatchID, r.Mechanism1ID, r.Mechanism2ID, r.Domains[0], r.Domains[1],
				r.Breakdown.Confidence, r.CanonicalMechanism, strings.Join(r.SharedHighValueTerms, ", "))
		}
		tw.Flush()
		fmt.Printf("\n%d records\n", len(recs))
		return nil
	},
}

var auditShowCmd = &cobra.Command{
	Use:   "show <batch-id> <mechanism-id> <mechanism-id>",
	Short: "Print one audit record with its ratings",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		m1, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid mechanism ID %q: %w", args[1], err)
		}
		m2, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid mechanism ID %q: %w", args[2], err)
		}

		trail, done, err := trailForCommand(cmd)
		if err != nil {
			return err
		}
		defer done()

		rec, err := trail.Get(cmd.Context(), args[0], m1, m2)
		if err != nil {
			return err
		}
		ratings, err := trail.Ratings(cmd.Context(), rec.ID)
		if err != nil {
			return err
		}
		return printJSON(struct {
			Record  *types.AuditRecord  `json:"record"`
			Ratings []audit.RatingEntry `json:"ratings"`
		}{rec, ratings})
	},
}

var auditRateCmd = &cobra.Command{
	Use:   "rate <record-id> <rating>",
	Short: "Append a curator rating to a record",
	Long: `Rate appends a rating to an audit record. Valid ratings: breakthrough,
excellent, good, weak, false_positive.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, done, err := trailForCommand(cmd)
		if err != nil {
			return err
		}
		defer done()

		note, _ := cmd.Flags().GetString("note")
		if err := trail.Rate(cmd.Context(), args[0], types.Rating(args[1]), note); err != nil {
			return err
		}
		fmt.Printf("rated %s %s\n", args[0], args[1])
		return nil
	},
}

var auditReconstructCmd = &cobra.Command{
	Use:   "reconstruct <batch-id>",
	Short: "Re-rank a batch under the configured weights",
	Long: `Reconstruct recomputes every record's confidence in a batch from its
stored score components using match.weights from the current config, and
prints old and new confidence side by side. Nothing is re-embedded.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		trail, done, err := trailForCommand(cmd)
		if err != nil {
			return err
		}
		defer done()

		recon, err := trail.ReconstructBatch(cmd.Context(), args[0], app.cfg.Match.Weights)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "Pair\tOld\tNew\tDelta")
		for _, r := range recon {
			fmt.Fprintf(tw, "%d-%d\t%.3f\t%.3f\t%+.3f\n",
				r.Record.Mechanism1ID, r.Record.Mechanism2ID, r.OldConfidence, r.NewConfidence, r.NewConfidence-r.OldConfidence)
		}
		return tw.Flush()
	},
}

// trailForCommand opens the corpus database and its audit trail. The
// returned function closes the database.
func trailForCommand(cmd *cobra.Command) (*audit.Trail, func(), error) {
	store, lex, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	trail, err := openTrail(cmd.Context(), store, lex)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return trail, func() { store.Close() }, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	auditListCmd.Flags().String("batch-id", "", "only records of this batch")
	auditListCmd.Flags().Float64("min-confidence", 0, "only records at or above this confidence")
	auditListCmd.Flags().Int("limit", 50, "maximum records (0 = all)")
	auditListCmd.Flags().Bool("json", false, "output records as JSON")
	auditRateCmd.Flags().String("note", "", "free-text note stored with the rating")

	auditCmd.AddCommand(auditListCmd, auditShowCmd, auditRateCmd, auditReconstructCmd)
	rootCmd.AddCommand(auditCmd)
}
