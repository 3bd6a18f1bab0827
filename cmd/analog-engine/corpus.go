// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pdiddy/analog-engine/internal/corpus"
	"github.com/pdiddy/analog-engine/internal/fpfilter"
	"github.com/pdiddy/analog-engine/internal/scorer"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index extracted mechanisms into the corpus",
	Long: `Ingest reads one extraction YAML file per paper from the extracted
directory and upserts the paper and its mechanisms into the SQLite corpus.
Unchanged files are skipped. Mechanisms whose text is unchanged keep their
embedding and false-positive flag.`,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d paper(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- score ---

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score paper abstracts for mechanism richness",
	Long: `Score rates every unscored paper abstract from 0 to 10 by counting
mechanism-category keywords and stores the score. With --select, the IDs of
papers at or above the configured minimum score are printed, highest first,
as the worklist for extraction.`,
	RunE: runScore,
}

func runScore(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	papers, err := store.Papers(ctx)
	if err != nil {
		return err
	}

	minScore := app.cfg.Scoring.MinScore
	sc := scorer.MustNew()
	summary := sc.ScoreCorpus(papers, minScore, os.Stdout)
	if _, err := store.SaveScores(ctx, papers); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nDomain\tPapers\tAvg\tHigh\tAssessment")
	for _, d := range summary.Domains {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\t%d\t%s\n", d.Domain, d.Papers, d.AvgScore, d.HighValueCount, d.Assessment)
	}
	tw.Flush()

	if sel, _ := cmd.Flags().GetBool("select"); sel {
		fmt.Println()
		for _, p := range scorer.Select(papers, minScore) {
			fmt.Printf("%d\t%d\t%s\n", p.ID, *p.MechanismScore, p.Title)
		}
	}
	return nil
}

// --- tag ---

var tagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Flag mechanisms that are methodology boilerplate",
	Long: `Tag classifies every untagged mechanism with the false-positive filter
and stores the flag. Flagged mechanisms are neither embedded nor matched.`,
	RunE: runTag,
}

func runTag(cmd *cobra.Command, args []string) error {
	store, lex, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	mechs, err := store.Mechanisms(ctx, corpus.MechanismFilter{})
	if err != nil {
		return err
	}
	fpfilter.New(lex, app.logger).Tag(mechs, os.Stdout)
	_, err = store.SaveTags(ctx, mechs)
	return err
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print corpus counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "papers\t%d\n", st.Papers)
		fmt.Fprintf(tw, "scored\t%d\n", st.Scored)
		fmt.Fprintf(tw, "mechanisms\t%d\n", st.Mechanisms)
		fmt.Fprintf(tw, "canonical\t%d\n", st.Canonical)
		fmt.Fprintf(tw, "embedded\t%d\n", st.Embedded)
		fmt.Fprintf(tw, "false positives\t%d\n", st.FalsePositives)
		fmt.Fprintf(tw, "untagged\t%d\n", st.Untagged)
		return tw.Flush()
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search mechanisms with full-text search and filters",
	Long: `Search queries mechanism text with FTS5, optionally restricted by
domain or canonical mechanism. False positives are hidden unless
--include-false-positives is set.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	opts := searchOptsFromFlags(cmd, args)
	if opts.Query == "" && opts.Domain == "" && opts.Canonical == "" {
		return fmt.Errorf("query or filter required: provide a search query, --domain, or --canonical")
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.Search(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-8s  %-18s  %-22s  %s\n", "Rank", "ID", "Domain", "Canonical", "Description")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for i, r := range results {
		fmt.Fprintf(os.Stdout, "%-4d  %-8d  %-18s  %-22s  %s\n",
			i+1, r.ID, truncate(r.Domain, 18), truncate(r.CanonicalMechanism, 22), truncate(r.Description, 50))
	}
	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the corpus to YAML or JSON",
	Long: `Export writes the corpus (or a filtered subset) to index/export.yaml
or export.json under the data directory. Supports the same filter flags as
search.`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var export func(context.Context, corpus.SearchOptions) (string, error)
	switch format {
	case "yaml", "":
		export = store.ExportYAML
	case "json":
		export = store.ExportJSON
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	path, err := export(cmd.Context(), searchOptsFromFlags(cmd, args))
	if err != nil {
		return err
	}
	fmt.Println("Exported to", path)
	return nil
}

// --- shared helpers ---

func searchOptsFromFlags(cmd *cobra.Command, args []string) corpus.SearchOptions {
	query, _ := cmd.Flags().GetString("query")
	if query == "" && len(args) > 0 {
		query = strings.Join(args, " ")
	}
	domain, _ := cmd.Flags().GetString("domain")
	canonical, _ := cmd.Flags().GetString("canonical")
	includeFP, _ := cmd.Flags().GetBool("include-false-positives")
	limit, _ := cmd.Flags().GetInt("limit")

	return corpus.SearchOptions{
		Query:                 query,
		Domain:                domain,
		Canonical:             canonical,
		IncludeFalsePositives: includeFP,
		MaxResults:            limit,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("query", "", "full-text search query")
	cmd.Flags().String("domain", "", "filter by paper domain")
	cmd.Flags().String("canonical", "", "filter by canonical mechanism")
	cmd.Flags().Bool("include-false-positives", false, "include mechanisms flagged as false positives")
}

func init() {
	scoreCmd.Flags().Bool("select", false, "print papers at or above scoring.min_score")

	addFilterFlags(searchCmd)
	searchCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	searchCmd.Flags().Bool("json", false, "output results as JSON")

	addFilterFlags(exportCmd)
	exportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	rootCmd.AddCommand(ingestCmd, scoreCmd, tagCmd, statsCmd, searchCmd, exportCmd)
}
