package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/david/opportunity-matcher/internal/models"
)

type stubScorer struct {
	scored []Scored
	err    error
}

func (s stubScorer) Name() string { return "stub" }

func (s stubScorer) ScoreFactors(context.Context, Request) ([]Scored, error) {
	return s.scored, s.err
}

type stubSource struct {
	opps []models.Opportunity
	err  error
	got  models.CandidateQuery
}

func (s *stubSource) ListCandidates(_ context.Context, q models.CandidateQuery) ([]models.Opportunity, error) {
	s.got = q
	return s.opps, s.err
}

func newTestMatcher(t *testing.T, scorer FactorScorer) *Matcher {
	t.Helper()
	m, err := New(DefaultConfig(), scorer, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

func scenarioRequest() Request {
	return Request{
		Company: models.CompanyProfile{
			Name:           "Orbital Forge",
			TechCategories: []string{"Propulsion", "AI/ML"},
			Stage:          "Seed",
		},
		Project: models.ProjectProfile{
			Title:       "Green monopropellant thruster",
			Description: "A non-toxic propulsion thruster for small satellite buses.",
			Budget:      models.Budget{Min: 400000, Max: 600000},
			Timeline:    models.Timeline{Text: "12-18 months"},
		},
		Candidates: []models.Opportunity{{
			NoticeID:       "FA8650-24-S-0001",
			Title:          "Advanced In-Space Propulsion",
			Agency:         "Department of the Air Force",
			Description:    "Seeking propulsion thruster concepts using advanced materials for satellite maneuvering.",
			AwardCeiling:   floatPtr(500000),
			TechFocus:      []string{"Propulsion", "Materials"},
			EligibleStages: []string{"Seed", "Series A"},
			Timeline:       "6-24 months",
		}},
	}
}

func TestMatch_EndToEndScenario(t *testing.T) {
	m := newTestMatcher(t, nil)

	got, err := m.Match(context.Background(), scenarioRequest(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	d := got[0].Details
	assert.Greater(t, d.TechFocusMatch, 0.0)
	assert.Equal(t, 1.0, d.StageMatch)
	assert.Equal(t, 1.0, d.BudgetMatch)
	assert.InDelta(t, 0.333, d.TimelineMatch, 0.001)
	assert.Equal(t, []string{"propulsion", "thruster", "satellite"}, d.MatchedKeywords)
	assert.NotEmpty(t, d.Explanation)

	assert.InDelta(t, DefaultWeights().Aggregate(d), got[0].Score, 1e-12)
	assert.Equal(t, ConfidenceFor(got[0].Score), got[0].Confidence)
	assert.Equal(t, ScorerHeuristic, got[0].Scorer)
}

func TestMatch_EmptyCandidates(t *testing.T) {
	m := newTestMatcher(t, stubScorer{err: errors.New("must not be called")})

	req := scenarioRequest()
	req.Candidates = nil
	got, err := m.Match(context.Background(), req, 5)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMatch_WeightOverride(t *testing.T) {
	m := newTestMatcher(t, nil)

	req := scenarioRequest()
	req.Weights = &Weights{TechFocus: 0.5, Stage: 0.5}
	_, err := m.Match(context.Background(), req, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	req.Weights = &Weights{Stage: 1}
	got, err := m.Match(context.Background(), req, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Score)
	assert.Equal(t, models.ConfidenceHigh, got[0].Confidence)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights.TechFocus = 0.9
	_, err := New(cfg, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidWeights)

	cfg = DefaultConfig()
	cfg.DefaultLimit = 0
	_, err = New(cfg, nil, nil)
	assert.Error(t, err)
}

func TestMatch_ScorerErrorPropagates(t *testing.T) {
	m := newTestMatcher(t, stubScorer{err: ErrModelResponseMalformed})

	got, err := m.Match(context.Background(), scenarioRequest(), 5)
	assert.ErrorIs(t, err, ErrModelResponseMalformed)
	assert.Nil(t, got)
}

func TestMatch_ScoresAndLabelsLocally(t *testing.T) {
	reported := 0.99
	m := newTestMatcher(t, stubScorer{scored: []Scored{
		{Index: 0, Details: models.MatchDetails{TechFocusMatch: 1.4, StageMatch: -1, TimelineMatch: 0.6, BudgetMatch: 0.6, KeywordMatch: 0}, ModelScore: &reported},
		{Index: 7},
		{Index: -1},
	}})

	got, err := m.Match(context.Background(), scenarioRequest(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)

	d := got[0].Details
	assert.Equal(t, 1.0, d.TechFocusMatch)
	assert.Equal(t, 0.0, d.StageMatch)
	assert.InDelta(t, 0.53, got[0].Score, 1e-9)
	assert.Equal(t, models.ConfidenceMedium, got[0].Confidence)
	assert.Equal(t, []string{"propulsion", "thruster", "satellite"}, d.MatchedKeywords)
	assert.Equal(t, "stub", got[0].Scorer)
}

func TestMatch_LimitDefaultsAndDiversity(t *testing.T) {
	cfg := DefaultConfig()
	assert.Zero(t, cfg.MaxPerAgency)
	cfg.DefaultLimit = 2
	m, err := New(cfg, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	req := scenarioRequest()
	base := req.Candidates[0]
	second := base
	second.NoticeID = "FA8650-24-S-0002"
	other := base
	other.NoticeID = "80NSSC24-0003"
	other.Agency = "NASA"
	other.TechFocus = []string{"Robotics"}
	req.Candidates = []models.Opportunity{base, second, other}

	got, err := m.Match(context.Background(), req, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "FA8650-24-S-0001", got[0].Opportunity.NoticeID)
	assert.Equal(t, "80NSSC24-0003", got[1].Opportunity.NoticeID)
}

func TestMatch_AnyStageWithUnknownCompanyStage(t *testing.T) {
	m := newTestMatcher(t, nil)

	req := scenarioRequest()
	req.Company.Stage = "ramen-profitable"
	req.Candidates[0].EligibleStages = []string{"Any"}
	got, err := m.Match(context.Background(), req, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Details.StageMatch)
}

func TestMatchFromSource(t *testing.T) {
	m := newTestMatcher(t, nil)
	src := &stubSource{opps: scenarioRequest().Candidates}
	q := models.CandidateQuery{OpenOnly: true, Limit: 50}

	req := scenarioRequest()
	req.Candidates = nil
	got, err := m.MatchFromSource(context.Background(), src, q, req, 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, q, src.got)
}

func TestMatchFromSource_FetchError(t *testing.T) {
	m := newTestMatcher(t, nil)
	dbErr := errors.New("connection refused")

	got, err := m.MatchFromSource(context.Background(), &stubSource{err: dbErr}, models.CandidateQuery{}, scenarioRequest(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCandidateFetch)
	assert.ErrorIs(t, err, dbErr)
	assert.Nil(t, got)
}

func TestExplain(t *testing.T) {
	got := Explain(models.MatchDetails{
		TechFocusMatch:  0.8,
		StageMatch:      1,
		TimelineMatch:   0.5,
		BudgetMatch:     0.3,
		KeywordMatch:    0.4,
		MatchedKeywords: []string{"orbit", "debris"},
	})
	assert.Equal(t, "Strongest fit on stage (1.00), weakest on budget (0.30). Shared terms: orbit, debris.", got)
}
