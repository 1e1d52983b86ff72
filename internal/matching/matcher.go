package matching

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/david/opportunity-matcher/internal/models"
)

// ScorerHeuristic names the built-in keyword and range based scorer.
const ScorerHeuristic = "heuristic"

// modelScoreDrift is how far a model-reported score may sit from the locally
// aggregated one before it is logged.
const modelScoreDrift = 0.1

// Config is loaded once at startup and read-only afterwards.
// MaxPerAgency caps how many results one agency contributes during the
// round-robin; 0 leaves groups uncapped.
type Config struct {
	Weights      Weights `mapstructure:"weights" yaml:"weights"`
	DefaultLimit int     `mapstructure:"default_limit" yaml:"default_limit"`
	MaxPerAgency int     `mapstructure:"max_per_agency" yaml:"max_per_agency"`
}

func DefaultConfig() Config {
	return Config{
		Weights:      DefaultWeights(),
		DefaultLimit: 10,
	}
}

func (c Config) Validate() error {
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	if c.DefaultLimit <= 0 {
		return fmt.Errorf("default limit must be positive, got %d", c.DefaultLimit)
	}
	if c.MaxPerAgency < 0 {
		return fmt.Errorf("max per agency must not be negative, got %d", c.MaxPerAgency)
	}
	return nil
}

// Request is one matching call. Weights, when set, overrides the configured
// weight set for this call only.
type Request struct {
	Company    models.CompanyProfile
	Project    models.ProjectProfile
	Candidates []models.Opportunity
	Weights    *Weights
}

// Scored carries the factor breakdown for Request.Candidates[Index].
// ModelScore is the overall score a model reported, if any. It is advisory:
// it is only compared against the local aggregate.
type Scored struct {
	Index      int
	Details    models.MatchDetails
	ModelScore *float64
}

// FactorScorer produces factor scores for the candidates of a request. It may
// skip candidates; results whose Index falls outside Candidates are ignored.
type FactorScorer interface {
	Name() string
	ScoreFactors(ctx context.Context, req Request) ([]Scored, error)
}

// CandidateSource supplies opportunities from a backing store.
type CandidateSource interface {
	ListCandidates(ctx context.Context, q models.CandidateQuery) ([]models.Opportunity, error)
}

type Matcher struct {
	cfg    Config
	scorer FactorScorer
	log    *zap.Logger
}

// New validates cfg and returns a matcher. A nil scorer selects the heuristic
// scorer.
func New(cfg Config, scorer FactorScorer, log *zap.Logger) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("matcher config: %w", err)
	}
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Matcher{cfg: cfg, scorer: scorer, log: log}, nil
}

func (m *Matcher) ScorerName() string {
	return m.scorer.Name()
}

// Match scores req.Candidates and returns at most limit results, best first.
// A limit of 0 or less uses the configured default. No candidates yields an
// empty slice and no error.
func (m *Matcher) Match(ctx context.Context, req Request, limit int) ([]models.MatchResult, error) {
	weights := m.cfg.Weights
	if req.Weights != nil {
		if err := req.Weights.Validate(); err != nil {
			return nil, err
		}
		weights = *req.Weights
	}
	if limit <= 0 {
		limit = m.cfg.DefaultLimit
	}
	if len(req.Candidates) == 0 {
		return []models.MatchResult{}, nil
	}

	scored, err := m.scorer.ScoreFactors(ctx, req)
	if err != nil {
		return nil, err
	}

	projectKeywords := ExtractKeywords(ProjectText(req.Project))
	results := make([]models.MatchResult, 0, len(scored))
	for _, s := range scored {
		if s.Index < 0 || s.Index >= len(req.Candidates) {
			continue
		}
		opp := req.Candidates[s.Index]

		d := s.Details
		d.TechFocusMatch = ClampUnit(d.TechFocusMatch)
		d.StageMatch = ClampUnit(d.StageMatch)
		d.TimelineMatch = ClampUnit(d.TimelineMatch)
		d.BudgetMatch = ClampUnit(d.BudgetMatch)
		d.KeywordMatch = ClampUnit(d.KeywordMatch)
		_, d.MatchedKeywords = KeywordMatch(projectKeywords, ExtractKeywords(opp.Description))

		// The model's own score is advisory; the weighted sum of its factors decides.
		score := weights.Aggregate(d)
		if s.ModelScore != nil && math.Abs(*s.ModelScore-score) > modelScoreDrift {
			m.log.Debug("model score differs from aggregate",
				zap.String("notice_id", opp.NoticeID),
				zap.Float64("model_score", *s.ModelScore),
				zap.Float64("score", score))
		}

		results = append(results, models.MatchResult{
			Opportunity: opp,
			Score:       score,
			Confidence:  ConfidenceFor(score),
			Details:     d,
			Scorer:      m.scorer.Name(),
		})
	}

	ranked := Rank(results, limit, m.cfg.MaxPerAgency)
	m.log.Debug("matched opportunities",
		zap.String("scorer", m.scorer.Name()),
		zap.Int("candidates", len(req.Candidates)),
		zap.Int("scored", len(results)),
		zap.Int("returned", len(ranked)))
	return ranked, nil
}

// MatchFromSource loads candidates from src and matches against them. Source
// failures wrap ErrCandidateFetch.
func (m *Matcher) MatchFromSource(ctx context.Context, src CandidateSource, q models.CandidateQuery, req Request, limit int) ([]models.MatchResult, error) {
	candidates, err := src.ListCandidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCandidateFetch, err)
	}
	req.Candidates = candidates
	return m.Match(ctx, req, limit)
}

// HeuristicScorer scores every factor locally from the profiles.
type HeuristicScorer struct{}

func (HeuristicScorer) Name() string { return ScorerHeuristic }

func (HeuristicScorer) ScoreFactors(_ context.Context, req Request) ([]Scored, error) {
	left := append(append([]string{}, req.Company.TechCategories...), req.Project.Interests...)
	projectKeywords := ExtractKeywords(ProjectText(req.Project))
	budget, budgetOK := ProjectBudgetRange(req.Project.Budget)
	timeline, timelineOK := ProjectTimelineRange(req.Project.Timeline)

	out := make([]Scored, 0, len(req.Candidates))
	for i, opp := range req.Candidates {
		oppTimeline, oppTimelineOK := ParseTimeline(opp.Timeline)
		keyword, shared := KeywordMatch(projectKeywords, ExtractKeywords(opp.Description))

		d := models.MatchDetails{
			TechFocusMatch:  TechFocusMatch(left, opp.TechFocus),
			StageMatch:      StageMatch(req.Company.Stage, opp.EligibleStages),
			TimelineMatch:   TimelineMatch(timeline, oppTimeline, timelineOK, oppTimelineOK),
			BudgetMatch:     BudgetMatch(budget, budgetOK, opp.AwardCeiling),
			KeywordMatch:    keyword,
			MatchedKeywords: shared,
		}
		d.Explanation = Explain(d)
		out = append(out, Scored{Index: i, Details: d})
	}
	return out, nil
}

// Explain writes a short rationale naming the strongest and weakest factors.
func Explain(d models.MatchDetails) string {
	factors := []struct {
		name  string
		score float64
	}{
		{"tech focus", d.TechFocusMatch},
		{"stage", d.StageMatch},
		{"timeline", d.TimelineMatch},
		{"budget", d.BudgetMatch},
		{"keywords", d.KeywordMatch},
	}
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].score > factors[j].score
	})

	best, worst := factors[0], factors[len(factors)-1]
	var b strings.Builder
	fmt.Fprintf(&b, "Strongest fit on %s (%.2f)", best.name, best.score)
	if worst.score < best.score {
		fmt.Fprintf(&b, ", weakest on %s (%.2f)", worst.name, worst.score)
	}
	b.WriteString(".")
	if len(d.MatchedKeywords) > 0 {
		kw := d.MatchedKeywords
		if len(kw) > 5 {
			kw = kw[:5]
		}
		fmt.Fprintf(&b, " Shared terms: %s.", strings.Join(kw, ", "))
	}
	return b.String()
}
