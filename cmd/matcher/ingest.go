package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/opportunity-matcher/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [source-id...]",
	Short: "Collect opportunities from registry sources into the database",
	Long: `ingest runs the named sources, or every enabled source with --all, and
upserts the notices it finds. Each source run is recorded in ingest_runs.`,
	RunE: runIngest,
}

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Generate embeddings for stored opportunities that have none",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := rootApp
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		pool, store, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		p, closeCache, err := a.pipeline(ctx, store, true, false)
		if err != nil {
			return err
		}
		defer closeCache()

		n, err := p.BackfillEmbeddings(ctx, limit)
		fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d opportunities.\n", n)
		return err
	},
}

func init() {
	ingestCmd.Flags().Bool("all", false, "run every enabled source")
	ingestCmd.Flags().Bool("no-embed", false, "skip embedding generation")
	ingestCmd.Flags().Bool("llm", false, "fill missing fields and tags with the language model")
	embedCmd.Flags().Int("limit", 500, "maximum opportunities to embed")

	rootCmd.AddCommand(ingestCmd, embedCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a := rootApp
	ctx := cmd.Context()
	all, _ := cmd.Flags().GetBool("all")
	noEmbed, _ := cmd.Flags().GetBool("no-embed")
	useLLM, _ := cmd.Flags().GetBool("llm")

	if !all && len(args) == 0 {
		return errors.New("name at least one source id or pass --all")
	}

	pool, store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	p, closeCache, err := a.pipeline(ctx, store, a.cfg.Ingest.Embeddings && !noEmbed, a.cfg.Ingest.LLMExtraction || useLLM)
	if err != nil {
		return err
	}
	defer closeCache()

	var results map[string]ingest.IngestionStats
	if all {
		results, err = p.IngestAll(ctx)
	} else {
		results = make(map[string]ingest.IngestionStats, len(args))
		var errs []error
		for _, id := range args {
			stats, runErr := p.IngestSource(ctx, id)
			results[id] = stats
			if runErr != nil {
				errs = append(errs, fmt.Errorf("source %s: %w", id, runErr))
			}
		}
		err = errors.Join(errs...)
	}

	renderIngestStats(cmd.OutOrStdout(), results)
	return err
}

func renderIngestStats(w io.Writer, results map[string]ingest.IngestionStats) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Found", "Saved", "New", "Errors"})
	var total ingest.IngestionStats
	for _, id := range ids {
		s := results[id]
		t.AppendRow(table.Row{id, s.TotalFound, s.TotalSaved, s.Inserted, s.Errors})
		total.TotalFound += s.TotalFound
		total.TotalSaved += s.TotalSaved
		total.Inserted += s.Inserted
		total.Errors += s.Errors
	}
	t.AppendFooter(table.Row{"Total", total.TotalFound, total.TotalSaved, total.Inserted, total.Errors})
	t.Render()
}
