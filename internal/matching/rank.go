package matching

import (
	"sort"
	"strings"

	"github.com/david/opportunity-matcher/internal/models"
)

// Rank orders results by score and, when there are more results than limit,
// picks them round-robin across agencies so one agency cannot fill the list.
// Agencies take turns in the order their best result appears until limit is
// reached or every group is empty. A positive maxPerAgency also retires an
// agency after that many picks; the best leftovers then fill any remaining
// slots regardless of agency.
// A limit of 0 or less returns everything.
func Rank(results []models.MatchResult, limit, maxPerAgency int) []models.MatchResult {
	sorted := make([]models.MatchResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	if limit <= 0 || len(sorted) <= limit {
		return sorted
	}

	var order []string
	groups := make(map[string][]int)
	for i, r := range sorted {
		key := agencyKey(r.Opportunity)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	picked := make([]bool, len(sorted))
	taken := make(map[string]int, len(order))
	count := 0

	for count < limit {
		progressed := false
		for _, key := range order {
			if count >= limit {
				break
			}
			if maxPerAgency > 0 && taken[key] >= maxPerAgency {
				continue
			}
			if taken[key] >= len(groups[key]) {
				continue
			}
			picked[groups[key][taken[key]]] = true
			taken[key]++
			count++
			progressed = true
		}
		if !progressed {
			break
		}
	}

	for i := 0; i < len(sorted) && count < limit; i++ {
		if !picked[i] {
			picked[i] = true
			count++
		}
	}

	out := make([]models.MatchResult, 0, limit)
	for i, r := range sorted {
		if picked[i] {
			out = append(out, r)
		}
	}
	return out
}

func agencyKey(o models.Opportunity) string {
	if k := strings.ToLower(strings.TrimSpace(o.Agency)); k != "" {
		return k
	}
	return strings.ToLower(strings.TrimSpace(o.AgencyCode))
}
