package matching

import (
	"math"
	"strings"
)

const (
	neutralScore = 0.5
	floatEpsilon = 1e-9
)

// stageAdjacency lists the stages treated as a partial fit for a given
// company stage. Keys and values are in normalizeStage form.
var stageAdjacency = map[string][]string{
	"pre seed":    {"seed", "early stage"},
	"seed":        {"pre seed", "early stage"},
	"early stage": {"seed", "series a", "growth"},
	"series a":    {"early stage", "seed", "series b+"},
	"series b+":   {"series a", "growth"},
	"growth":      {"early stage", "series b+", "established"},
	"established": {"growth"},
}

// TechFocusMatch is a Jaccard overlap between two tag sets where a tag matches
// another when either contains the other, case-insensitively. The
// intersection is a maximum one-to-one pairing of matching tags, so the
// score does not depend on tag order.
func TechFocusMatch(left, right []string) float64 {
	l, r := normalizeTags(left), normalizeTags(right)
	if len(l) == 0 || len(r) == 0 {
		return 0
	}

	intersection := maxTagPairing(l, r)
	union := len(l) + len(r) - intersection
	return ClampUnit(float64(intersection) / float64(union))
}

// maxTagPairing returns the size of a maximum matching between l and r,
// found with augmenting paths.
func maxTagPairing(l, r []string) int {
	adj := make([][]int, len(l))
	for i, a := range l {
		for j, b := range r {
			if strings.Contains(a, b) || strings.Contains(b, a) {
				adj[i] = append(adj[i], j)
			}
		}
	}

	owner := make([]int, len(r))
	for j := range owner {
		owner[j] = -1
	}

	var augment func(i int, seen []bool) bool
	augment = func(i int, seen []bool) bool {
		for _, j := range adj[i] {
			if seen[j] {
				continue
			}
			seen[j] = true
			if owner[j] < 0 || augment(owner[j], seen) {
				owner[j] = i
				return true
			}
		}
		return false
	}

	n := 0
	for i := range l {
		if augment(i, make([]bool, len(r))) {
			n++
		}
	}
	return n
}

// StageMatch scores a company stage against an opportunity's eligible stages.
func StageMatch(companyStage string, eligible []string) float64 {
	if len(eligible) == 0 {
		return 0
	}
	for _, s := range eligible {
		if normalizeStage(s) == "any" {
			return 1
		}
	}

	stage := normalizeStage(companyStage)
	if stage == "" {
		return 0
	}
	for _, s := range eligible {
		if normalizeStage(s) == stage {
			return 1
		}
	}
	for _, related := range stageAdjacency[stage] {
		for _, s := range eligible {
			if normalizeStage(s) == related {
				return neutralScore
			}
		}
	}
	return 0
}

// TimelineMatch is the overlap of two month ranges divided by the wider of the
// two. It returns the neutral score when either range could not be parsed.
func TimelineMatch(a, b MonthRange, okA, okB bool) float64 {
	if !okA || !okB {
		return neutralScore
	}

	widthA, widthB := a.Max-a.Min, b.Max-b.Min
	if widthA <= 0 && widthB <= 0 {
		if math.Abs(a.Min-b.Min) < floatEpsilon {
			return 1
		}
		return 0
	}
	// A single duration inside the other window is a full fit.
	if (widthA <= 0 && within(a.Min, b)) || (widthB <= 0 && within(b.Min, a)) {
		return 1
	}

	overlap := math.Max(0, math.Min(a.Max, b.Max)-math.Max(a.Min, b.Min))
	return ClampUnit(overlap / math.Max(widthA, widthB))
}

// BudgetMatch compares a project budget window with an opportunity's award
// ceiling. A ceiling above the window scores 0.8; one below it scores 0.7 when
// it reaches 70% of the minimum and 0.3 otherwise.
func BudgetMatch(r AmountRange, ok bool, ceiling *float64) float64 {
	if !ok || ceiling == nil || *ceiling <= 0 {
		return neutralScore
	}
	c := *ceiling

	switch {
	case c < r.Min-floatEpsilon:
		if c >= 0.7*r.Min*(1-floatEpsilon) {
			return 0.7
		}
		return 0.3
	case c > r.Max+floatEpsilon:
		return 0.8
	}
	return 1
}

// KeywordMatch returns the share of opportunity keywords the project also uses,
// together with the shared keywords in opportunity order.
func KeywordMatch(projectKeywords, opportunityKeywords []string) (float64, []string) {
	if len(projectKeywords) == 0 || len(opportunityKeywords) == 0 {
		return 0, nil
	}

	project := make(map[string]struct{}, len(projectKeywords))
	for _, k := range projectKeywords {
		project[k] = struct{}{}
	}

	var shared []string
	for _, k := range opportunityKeywords {
		if _, ok := project[k]; ok {
			shared = append(shared, k)
		}
	}
	return ClampUnit(float64(len(shared)) / float64(len(opportunityKeywords))), shared
}

// ClampUnit bounds v to [0,1]. NaN becomes 0.
func ClampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func within(v float64, r MonthRange) bool {
	return v >= r.Min-floatEpsilon && v <= r.Max+floatEpsilon
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func normalizeStage(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	switch s {
	case "series b", "series b +", "series c", "series c+", "series c +":
		return "series b+"
	case "earlystage":
		return "early stage"
	case "preseed":
		return "pre seed"
	}
	return s
}
