package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/david/opportunity-matcher/internal/ai"
	"github.com/david/opportunity-matcher/internal/ingest"
	"github.com/david/opportunity-matcher/internal/matching"
	"github.com/david/opportunity-matcher/internal/models"
)

// profileFile is the on-disk shape of a match request.
type profileFile struct {
	Company models.CompanyProfile `json:"company" yaml:"company"`
	Project models.ProjectProfile `json:"project" yaml:"project"`
	Weights *matching.Weights     `json:"weights,omitempty" yaml:"weights,omitempty"`
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank stored opportunities against a company and project profile",
	Long: `match reads a profile file (YAML or JSON) with "company", "project" and an
optional "weights" override, scores candidates and prints the best matches.

Candidates come from the database, through the Redis cache when enabled, or
from a --candidates file. --ai delegates factor scoring to the configured
model; --semantic orders database candidates by embedding similarity.`,
	RunE: runMatch,
}

func init() {
	f := matchCmd.Flags()
	f.StringP("profile", "p", "", "profile file (YAML or JSON)")
	f.String("candidates", "", "score opportunities from this YAML/JSON file instead of the database")
	f.IntP("limit", "n", 0, "number of matches to return (default from config)")
	f.Int("candidate-limit", 0, "maximum candidates loaded from the database")
	f.StringSlice("agency", nil, "only consider these agencies (name or code)")
	f.StringSlice("tech", nil, "only consider opportunities tagged with any of these tech areas")
	f.Bool("open-only", true, "skip opportunities whose response deadline has passed")
	f.Bool("ai", false, "score with the language model instead of the heuristic scorer")
	f.Bool("semantic", false, "order database candidates by similarity to the profile embedding")
	f.Bool("json", false, "print results as JSON")
	_ = matchCmd.MarkFlagRequired("profile")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, _ []string) error {
	a := rootApp
	ctx := cmd.Context()
	f := cmd.Flags()

	profilePath, _ := f.GetString("profile")
	candidatesPath, _ := f.GetString("candidates")
	limit, _ := f.GetInt("limit")
	candidateLimit, _ := f.GetInt("candidate-limit")
	agencies, _ := f.GetStringSlice("agency")
	tech, _ := f.GetStringSlice("tech")
	openOnly, _ := f.GetBool("open-only")
	useAI, _ := f.GetBool("ai")
	semantic, _ := f.GetBool("semantic")
	asJSON, _ := f.GetBool("json")

	prof, err := loadProfile(profilePath)
	if err != nil {
		return err
	}

	var scorer matching.FactorScorer
	if useAI {
		scorer = ai.NewScorer(a.ollama(), a.cfg.AI.CandidateCap, a.log)
	}
	m, err := matching.New(a.cfg.Matching, scorer, a.log)
	if err != nil {
		return err
	}

	req := matching.Request{Company: prof.Company, Project: prof.Project, Weights: prof.Weights}

	var results []models.MatchResult
	if candidatesPath != "" {
		if semantic {
			a.log.Warn("--semantic only applies to database candidates; ignoring")
		}
		req.Candidates, err = loadCandidates(candidatesPath)
		if err != nil {
			return err
		}
		results, err = m.Match(ctx, req, limit)
		if err != nil {
			return err
		}
	} else {
		pool, store, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		var src matching.CandidateSource = store
		cc, closeCache := a.candidateCache(ctx, store)
		defer closeCache()
		if cc != nil {
			src = cc
		}

		q := models.CandidateQuery{
			Agencies:  agencies,
			TechFocus: tech,
			OpenOnly:  openOnly,
			Limit:     candidateLimit,
		}
		if semantic {
			vec, err := a.ollama().GenerateEmbedding(ctx, profileEmbeddingText(prof))
			if err != nil {
				return fmt.Errorf("failed to embed profile: %w", err)
			}
			q.QueryEmbedding = vec
		}

		results, err = m.MatchFromSource(ctx, src, q, req, limit)
		if err != nil {
			return err
		}
	}

	a.log.Debug("match finished", zap.String("scorer", m.ScorerName()), zap.Int("results", len(results)))

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	renderMatches(out, results)
	return nil
}

func loadProfile(path string) (*profileFile, error) {
	var prof profileFile
	if err := decodeFile(path, &prof); err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if strings.TrimSpace(prof.Project.Title) == "" && strings.TrimSpace(prof.Project.Description) == "" {
		return nil, fmt.Errorf("profile %s has no project title or description", path)
	}
	return &prof, nil
}

func loadCandidates(path string) ([]models.Opportunity, error) {
	var opps []models.Opportunity
	if err := decodeFile(path, &opps); err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}
	return opps, nil
}

// decodeFile reads JSON for .json files and YAML otherwise.
func decodeFile(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return json.Unmarshal(data, out)
	}
	return yaml.Unmarshal(data, out)
}

// profileEmbeddingText shapes the profile like a stored opportunity so both
// embed into comparable vectors.
func profileEmbeddingText(prof *profileFile) string {
	tags := append(append([]string{}, prof.Company.TechCategories...), prof.Project.Interests...)
	return ingest.EmbeddingText(models.Opportunity{
		Title:       prof.Project.Title,
		TechFocus:   tags,
		Description: matching.ProjectText(prof.Project),
	})
}

func renderMatches(w io.Writer, results []models.MatchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching opportunities.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Score", "Confidence", "Notice", "Title", "Agency", "Deadline", "Ceiling", "Rationale"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: 40},
		{Name: "Rationale", WidthMax: 50},
	})

	for i, r := range results {
		o := r.Opportunity
		t.AppendRow(table.Row{
			i + 1,
			fmt.Sprintf("%.2f", r.Score),
			r.Confidence,
			o.NoticeID,
			o.Title,
			o.Agency,
			formatDate(o.ResponseDeadline),
			formatMoney(o.AwardCeiling),
			r.Details.Explanation,
		})
	}
	t.Render()
}
