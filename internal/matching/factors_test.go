package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestTechFocusMatch(t *testing.T) {
	tests := []struct {
		name  string
		left  []string
		right []string
		want  float64
	}{
		{"identical", []string{"Propulsion"}, []string{"propulsion"}, 1},
		{"partial overlap", []string{"Propulsion", "AI/ML"}, []string{"Propulsion", "Materials"}, 1.0 / 3},
		{"substring counts", []string{"Satellite"}, []string{"Satellites"}, 1},
		{"one to one pairing", []string{"space", "space systems"}, []string{"space"}, 0.5},
		{"maximum pairing", []string{"space", "robotics"}, []string{"space robotics", "space"}, 1},
		{"no overlap", []string{"Robotics"}, []string{"Biotech"}, 0},
		{"empty left", nil, []string{"Propulsion"}, 0},
		{"empty right", []string{"Propulsion"}, []string{" "}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, TechFocusMatch(tt.left, tt.right), 1e-9)
		})
	}
}

func TestTechFocusMatch_OrderIndependent(t *testing.T) {
	left := []string{"space", "robotics", "AI"}
	right := []string{"space robotics", "space", "AI/ML", "materials"}
	want := TechFocusMatch(left, right)
	assert.InDelta(t, 3.0/4, want, 1e-9)

	reverse := func(in []string) []string {
		out := make([]string, len(in))
		for i, v := range in {
			out[len(in)-1-i] = v
		}
		return out
	}
	rotate := func(in []string) []string {
		return append(append([]string{}, in[1:]...), in[0])
	}

	for _, l := range [][]string{left, reverse(left), rotate(left)} {
		for _, r := range [][]string{right, reverse(right), rotate(right), rotate(rotate(right))} {
			assert.InDelta(t, want, TechFocusMatch(l, r), 1e-9, "left=%v right=%v", l, r)
			assert.InDelta(t, want, TechFocusMatch(r, l), 1e-9, "left=%v right=%v", r, l)
		}
	}
}

func TestStageMatch(t *testing.T) {
	tests := []struct {
		name     string
		stage    string
		eligible []string
		want     float64
	}{
		{"wildcard", "seed", []string{"Any"}, 1},
		{"wildcard unknown stage", "bootstrapped", []string{"Series A", "ANY"}, 1},
		{"wildcard empty stage", "", []string{"any"}, 1},
		{"exact", "Seed", []string{"Seed", "Series A"}, 1},
		{"hyphen and case", "Pre-Seed", []string{"pre seed"}, 1},
		{"series b alias", "Series B", []string{"Series B+"}, 1},
		{"adjacent", "seed", []string{"Early-Stage"}, 0.5},
		{"adjacent growth", "growth", []string{"Established"}, 0.5},
		{"unrelated", "pre-seed", []string{"Growth"}, 0},
		{"unknown stage", "bootstrapped", []string{"Seed"}, 0},
		{"empty eligible", "seed", nil, 0},
		{"empty stage", "", []string{"seed"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StageMatch(tt.stage, tt.eligible))
		})
	}
}

func TestTimelineMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b MonthRange
		want float64
	}{
		{"nested", MonthRange{12, 18}, MonthRange{6, 24}, 6.0 / 18},
		{"identical", MonthRange{6, 12}, MonthRange{6, 12}, 1},
		{"partial", MonthRange{6, 12}, MonthRange{9, 15}, 0.5},
		{"disjoint", MonthRange{1, 3}, MonthRange{6, 9}, 0},
		{"touching", MonthRange{1, 6}, MonthRange{6, 9}, 0},
		{"point inside", MonthRange{12, 12}, MonthRange{6, 24}, 1},
		{"point outside", MonthRange{30, 30}, MonthRange{6, 24}, 0},
		{"equal points", MonthRange{6, 6}, MonthRange{6, 6}, 1},
		{"different points", MonthRange{6, 6}, MonthRange{9, 9}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TimelineMatch(tt.a, tt.b, true, true)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.InDelta(t, got, TimelineMatch(tt.b, tt.a, true, true), 1e-12, "swapping sides changes the score")
		})
	}
}

func TestTimelineMatch_Unparseable(t *testing.T) {
	assert.Equal(t, 0.5, TimelineMatch(MonthRange{}, MonthRange{6, 12}, false, true))
	assert.Equal(t, 0.5, TimelineMatch(MonthRange{6, 12}, MonthRange{}, true, false))
	assert.Equal(t, 0.5, TimelineMatch(MonthRange{}, MonthRange{}, false, false))
}

func TestBudgetMatch(t *testing.T) {
	r := AmountRange{Min: 400000, Max: 600000}
	tests := []struct {
		name    string
		ceiling *float64
		want    float64
	}{
		{"at min", floatPtr(400000), 1},
		{"at max", floatPtr(600000), 1},
		{"inside", floatPtr(500000), 1},
		{"70 percent of min", floatPtr(0.70 * 400000), 0.7},
		{"69 percent of min", floatPtr(0.69 * 400000), 0.3},
		{"well below", floatPtr(10000), 0.3},
		{"150 percent of max", floatPtr(1.5 * 600000), 0.8},
		{"missing ceiling", nil, 0.5},
		{"zero ceiling", floatPtr(0), 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BudgetMatch(r, true, tt.ceiling))
		})
	}

	assert.Equal(t, 0.5, BudgetMatch(AmountRange{}, false, floatPtr(500000)))
}

func TestKeywordMatch(t *testing.T) {
	score, shared := KeywordMatch(
		[]string{"propulsion", "satellite", "thruster"},
		[]string{"satellite", "propulsion", "orbit", "debris"},
	)
	assert.InDelta(t, 0.5, score, 1e-9)
	assert.Equal(t, []string{"satellite", "propulsion"}, shared)

	score, shared = KeywordMatch(nil, []string{"orbit"})
	assert.Zero(t, score)
	assert.Nil(t, shared)

	score, _ = KeywordMatch([]string{"orbit"}, nil)
	assert.Zero(t, score)
}

func TestClampUnit(t *testing.T) {
	assert.Equal(t, 0.0, ClampUnit(-0.2))
	assert.Equal(t, 1.0, ClampUnit(1.7))
	assert.Equal(t, 0.4, ClampUnit(0.4))
}
