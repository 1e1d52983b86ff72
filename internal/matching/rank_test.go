package matching

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/opportunity-matcher/internal/models"
)

func result(id, agency string, score float64) models.MatchResult {
	return models.MatchResult{
		Opportunity: models.Opportunity{NoticeID: id, Agency: agency},
		Score:       score,
		Confidence:  ConfidenceFor(score),
	}
}

func ids(results []models.MatchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Opportunity.NoticeID
	}
	return out
}

func TestRank_UnderLimitReturnsAllSorted(t *testing.T) {
	in := []models.MatchResult{
		result("a", "NASA", 0.4),
		result("b", "NASA", 0.9),
		result("c", "DoD", 0.6),
	}
	got := Rank(in, 5, 2)
	assert.Equal(t, []string{"b", "c", "a"}, ids(got))
	assert.Equal(t, "a", in[0].Opportunity.NoticeID, "input was reordered")
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	in := []models.MatchResult{
		result("first", "NASA", 0.5),
		result("second", "DoD", 0.5),
		result("third", "NOAA", 0.5),
	}
	assert.Equal(t, []string{"first", "second", "third"}, ids(Rank(in, 0, 0)))
}

func TestRank_Deterministic(t *testing.T) {
	var in []models.MatchResult
	agencies := []string{"NASA", "DoD", "NOAA", "DOE"}
	for i := 0; i < 40; i++ {
		in = append(in, result(fmt.Sprintf("n%02d", i), agencies[i%len(agencies)], float64((i*37)%10)/10))
	}

	first := Rank(in, 7, 2)
	second := Rank(in, 7, 2)
	assert.Equal(t, ids(first), ids(second))
}

func TestRank_DiversifiesAgencies(t *testing.T) {
	in := []models.MatchResult{
		result("a1", "NASA", 0.9),
		result("a2", "NASA", 0.85),
		result("b1", "DoD", 0.8),
		result("a3", "NASA", 0.75),
		result("c1", "NOAA", 0.7),
		result("b2", "DoD", 0.6),
	}

	got := Rank(in, 3, 2)
	assert.Equal(t, []string{"a1", "b1", "c1"}, ids(got))

	seen := map[string]bool{}
	for _, r := range got {
		assert.False(t, seen[r.Opportunity.Agency], "duplicate agency %s", r.Opportunity.Agency)
		seen[r.Opportunity.Agency] = true
	}
}

func TestRank_KeepsTopResult(t *testing.T) {
	in := []models.MatchResult{
		result("b1", "DoD", 0.3),
		result("a1", "NASA", 0.95),
		result("c1", "NOAA", 0.2),
		result("d1", "DOE", 0.1),
	}
	got := Rank(in, 2, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].Opportunity.NoticeID)
}

func TestRank_FewerAgenciesThanLimit(t *testing.T) {
	in := []models.MatchResult{
		result("a1", "NASA", 0.9),
		result("a2", "NASA", 0.8),
		result("a3", "NASA", 0.7),
		result("b1", "DoD", 0.1),
	}
	got := Rank(in, 3, 0)
	assert.Equal(t, []string{"a1", "a2", "b1"}, ids(got))
}

func TestRank_OptInCapFillsFromLeftovers(t *testing.T) {
	in := []models.MatchResult{
		result("a1", "NASA", 0.9),
		result("a2", "NASA", 0.8),
		result("a3", "NASA", 0.7),
		result("a4", "NASA", 0.6),
		result("a5", "NASA", 0.5),
	}
	got := Rank(in, 3, 2)
	assert.Equal(t, []string{"a1", "a2", "a3"}, ids(got))
}

func agencyCounts(results []models.MatchResult) map[string]int {
	counts := map[string]int{}
	for _, r := range results {
		counts[r.Opportunity.Agency]++
	}
	return counts
}

func TestRank_RoundRobinUntilGroupsEmpty(t *testing.T) {
	in := []models.MatchResult{
		result("a1", "A", 0.9),
		result("a2", "A", 0.85),
		result("a3", "A", 0.8),
		result("a4", "A", 0.75),
		result("a5", "A", 0.7),
		result("b1", "B", 0.5),
		result("b2", "B", 0.45),
		result("b3", "B", 0.4),
		result("c1", "C", 0.3),
		result("c2", "C", 0.2),
	}

	got := Rank(in, 8, DefaultConfig().MaxPerAgency)
	assert.Equal(t, map[string]int{"A": 3, "B": 3, "C": 2}, agencyCounts(got))
	assert.Equal(t, []string{"a1", "a2", "a3", "b1", "b2", "b3", "c1", "c2"}, ids(got))

	capped := Rank(in, 8, 2)
	assert.Equal(t, map[string]int{"A": 4, "B": 2, "C": 2}, agencyCounts(capped))
}

func TestRank_OutputSortedByScore(t *testing.T) {
	in := []models.MatchResult{
		result("a1", "NASA", 0.95),
		result("a2", "NASA", 0.9),
		result("a3", "NASA", 0.85),
		result("b1", "DoD", 0.4),
		result("c1", "NOAA", 0.3),
	}
	got := Rank(in, 4, 2)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	assert.Equal(t, []string{"a1", "a2", "b1", "c1"}, ids(got))
}
