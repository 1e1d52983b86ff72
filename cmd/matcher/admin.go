package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/david/opportunity-matcher/internal/db"
	"github.com/david/opportunity-matcher/internal/ingest"
	"github.com/david/opportunity-matcher/internal/models"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := rootApp
		ctx := cmd.Context()

		pool, err := db.ConnectForMigrations(ctx, a.cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := db.ApplyMigrations(ctx, pool, a.log)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			return nil
		}
		for _, name := range applied {
			fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
		}
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent ingest runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := rootApp
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		pool, store, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		runs, err := store.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		renderRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List registry sources",
	Long:  `sources lists the configured sources. --counts adds stored and open notice counts from the database.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := rootApp
		ctx := cmd.Context()
		withCounts, _ := cmd.Flags().GetBool("counts")

		reg, err := ingest.LoadRegistry(a.cfg.Ingest.SourcesFile)
		if err != nil {
			return err
		}

		var counts map[string]db.SourceCount
		if withCounts {
			pool, store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			rows, err := store.CountBySource(ctx)
			if err != nil {
				return err
			}
			counts = make(map[string]db.SourceCount, len(rows))
			for _, c := range rows {
				counts[c.SourceID] = c
			}
		}

		renderSources(cmd.OutOrStdout(), reg, counts)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <notice-id>",
	Short: "Print one stored opportunity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a := rootApp
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")

		pool, store, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		opp, err := store.GetOpportunityByNoticeID(ctx, args[0])
		if err != nil {
			return fmt.Errorf("opportunity %s: %w", args[0], err)
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(opp)
		}
		renderOpportunity(cmd.OutOrStdout(), opp)
		return nil
	},
}

func init() {
	runsCmd.Flags().Int("limit", 10, "number of runs to show")
	sourcesCmd.Flags().Bool("counts", false, "include stored notice counts")
	showCmd.Flags().Bool("json", false, "print JSON instead of a table")

	rootCmd.AddCommand(migrateCmd, runsCmd, sourcesCmd, showCmd)
}

func renderOpportunity(w io.Writer, o *models.Opportunity) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 80}})
	t.AppendRows([]table.Row{
		{"Notice", o.NoticeID},
		{"Title", o.Title},
		{"Agency", o.Agency},
		{"Posted", formatDate(o.PostedDate)},
		{"Deadline", formatDate(o.ResponseDeadline)},
		{"Ceiling", formatMoney(o.AwardCeiling)},
		{"Tech focus", strings.Join(o.TechFocus, ", ")},
		{"Stages", strings.Join(o.EligibleStages, ", ")},
		{"Timeline", o.Timeline},
		{"Source", o.SourceID},
		{"URL", o.URL},
	})
	t.Render()
	if o.Description != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, o.Description)
	}
}

func renderRuns(w io.Writer, runs []db.IngestRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Status", "Found", "Saved", "Errors", "Duration", "Started At"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.SourceID, r.Status, r.ItemsFound, r.ItemsSaved, r.Errors, formatDuration(r.StartedAt, r.CompletedAt), r.StartedAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()
}

func renderSources(w io.Writer, reg *ingest.Registry, counts map[string]db.SourceCount) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	header := table.Row{"ID", "Name", "Strategy", "Agency", "Enabled"}
	if counts != nil {
		header = append(header, "Stored", "Open")
	}
	t.AppendHeader(header)

	for _, src := range reg.Sources {
		row := table.Row{src.ID, src.Name, src.Strategy, src.Agency, !src.Disabled}
		if counts != nil {
			c := counts[src.ID]
			row = append(row, c.Total, c.Open)
		}
		t.AppendRow(row)
	}
	t.Render()
}
