package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/david/opportunity-matcher/internal/matching"
	"github.com/david/opportunity-matcher/internal/models"
)

type fakeCompleter struct {
	replies []string
	err     error
	prompts []string
	modes   []bool
}

func (f *fakeCompleter) GenerateCompletion(_ context.Context, prompt string, jsonMode bool) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.modes = append(f.modes, jsonMode)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func testRequest(n int) matching.Request {
	req := matching.Request{
		Company: models.CompanyProfile{Name: "Orbital Forge", Stage: "seed", TechCategories: []string{"Propulsion"}},
		Project: models.ProjectProfile{
			Title:       "Green thruster",
			Description: "Non-toxic propulsion for satellites",
			Budget:      models.Budget{Min: 400000, Max: 600000},
			Timeline:    models.Timeline{Text: "12-18 months"},
		},
	}
	for i := 0; i < n; i++ {
		req.Candidates = append(req.Candidates, models.Opportunity{
			NoticeID:    fmt.Sprintf("N-%02d", i),
			Title:       fmt.Sprintf("Opportunity %d", i),
			Agency:      "NASA",
			Description: "propulsion satellites",
		})
	}
	return req
}

const validReply = "```json\n" + `{
  "matches": [
    {"noticeId": "N-01", "score": 0.8, "matchDetails": {"techFocusMatch": 0.9, "stageMatch": 1, "timelineMatch": 0.5, "budgetMatch": 1.3, "keywordMatch": 0.4}, "explanation": " Strong propulsion overlap. "},
    {"noticeId": "HALLUCINATED-1", "score": 0.99, "matchDetails": {"techFocusMatch": 1, "stageMatch": 1, "timelineMatch": 1, "budgetMatch": 1, "keywordMatch": 1}, "explanation": "made up"},
    {"noticeId": "N-00", "matchDetails": {"techFocusMatch": 0.2, "stageMatch": 0.5, "timelineMatch": -0.1, "budgetMatch": 0.5, "keywordMatch": 0.1}},
    {"noticeId": "N-01", "score": 0.1, "matchDetails": {"techFocusMatch": 0, "stageMatch": 0, "timelineMatch": 0, "budgetMatch": 0, "keywordMatch": 0}}
  ]
}` + "\n```"

func TestScorer_MapsReply(t *testing.T) {
	llm := &fakeCompleter{replies: []string{validReply}}
	s := NewScorer(llm, 20, zaptest.NewLogger(t))

	got, err := s.ScoreFactors(context.Background(), testRequest(3))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 0.9, got[0].Details.TechFocusMatch)
	assert.Equal(t, 1.0, got[0].Details.BudgetMatch)
	assert.Equal(t, "Strong propulsion overlap.", got[0].Details.Explanation)
	require.NotNil(t, got[0].ModelScore)
	assert.Equal(t, 0.8, *got[0].ModelScore)

	assert.Equal(t, 0, got[1].Index)
	assert.Equal(t, 0.0, got[1].Details.TimelineMatch)
	assert.Nil(t, got[1].ModelScore)

	require.Len(t, llm.prompts, 1)
	assert.True(t, llm.modes[0])
	assert.Contains(t, llm.prompts[0], "noticeId: N-02")
	assert.Contains(t, llm.prompts[0], "Budget: 400000-600000 USD")
}

func TestScorer_CapsCandidates(t *testing.T) {
	llm := &fakeCompleter{replies: []string{`{"matches": [
		{"noticeId": "N-04", "score": 0.5, "matchDetails": {"techFocusMatch": 1, "stageMatch": 1, "timelineMatch": 1, "budgetMatch": 1, "keywordMatch": 1}}
	]}`}}
	s := NewScorer(llm, 3, nil)

	got, err := s.ScoreFactors(context.Background(), testRequest(6))
	require.NoError(t, err)
	assert.Empty(t, got, "candidate beyond the cap must not be accepted")
	assert.Contains(t, llm.prompts[0], "N-02")
	assert.NotContains(t, llm.prompts[0], "N-03")
}

func TestScorer_ModelCallFailed(t *testing.T) {
	s := NewScorer(&fakeCompleter{err: errors.New("connection refused")}, 0, nil)

	got, err := s.ScoreFactors(context.Background(), testRequest(2))
	require.Error(t, err)
	assert.ErrorIs(t, err, matching.ErrModelCallFailed)
	assert.Nil(t, got)
}

func TestScorer_MalformedReplies(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "I'm sorry, I can't help with that."},
		{"empty", "   "},
		{"missing matches", `{"results": []}`},
		{"wrong score type", `{"matches": [{"noticeId": "N-00", "score": "high", "matchDetails": {"techFocusMatch": 1, "stageMatch": 1, "timelineMatch": 1, "budgetMatch": 1, "keywordMatch": 1}}]}`},
		{"missing factor", `{"matches": [{"noticeId": "N-00", "matchDetails": {"techFocusMatch": 1}}]}`},
		{"truncated", `{"matches": [{"noticeId": "N-00"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(&fakeCompleter{replies: []string{tt.reply}}, 0, zaptest.NewLogger(t))
			got, err := s.ScoreFactors(context.Background(), testRequest(2))
			require.Error(t, err)
			assert.ErrorIs(t, err, matching.ErrModelResponseMalformed)
			assert.Nil(t, got)
		})
	}
}

func TestScorer_ThroughMatcher(t *testing.T) {
	llm := &fakeCompleter{replies: []string{validReply}}
	m, err := matching.New(matching.DefaultConfig(), NewScorer(llm, 0, nil), zaptest.NewLogger(t))
	require.NoError(t, err)

	got, err := m.Match(context.Background(), testRequest(3), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, r := range got {
		assert.Equal(t, ScorerName, r.Scorer)
		assert.Equal(t, matching.ConfidenceFor(r.Score), r.Confidence)
		assert.InDelta(t, matching.DefaultWeights().Aggregate(r.Details), r.Score, 1e-12)
		assert.Equal(t, []string{"propulsion", "satellites"}, r.Details.MatchedKeywords)
	}
	assert.Equal(t, "N-01", got[0].Opportunity.NoticeID)
}

func TestScorer_MalformedThroughMatcher(t *testing.T) {
	m, err := matching.New(matching.DefaultConfig(), NewScorer(&fakeCompleter{replies: []string{"not json"}}, 0, nil), nil)
	require.NoError(t, err)

	got, err := m.Match(context.Background(), testRequest(1), 10)
	assert.ErrorIs(t, err, matching.ErrModelResponseMalformed)
	assert.Nil(t, got)
}

func TestBuildMatchPrompt_FallbackKeys(t *testing.T) {
	req := testRequest(2)
	req.Candidates[1].NoticeID = ""
	prompt := buildMatchPrompt(req.Company, req.Project, req.Candidates)
	assert.Contains(t, prompt, "noticeId: N-00")
	assert.Contains(t, prompt, "noticeId: candidate-2")
	assert.True(t, strings.HasSuffix(prompt, "Do not invent notice ids."))
}
