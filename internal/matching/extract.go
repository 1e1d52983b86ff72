package matching

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/david/opportunity-matcher/internal/models"
)

// MonthRange is a duration window in months.
type MonthRange struct {
	Min float64
	Max float64
}

// AmountRange is a budget window. Max may be +Inf for open-ended budgets.
type AmountRange struct {
	Min float64
	Max float64
}

const numberPattern = `(\d+(?:\.\d+)?)`

var (
	rangeSep      = `\s*(?:-|–|—|to)\s*`
	monthRangeRe  = regexp.MustCompile(`(?i)\b` + numberPattern + rangeSep + numberPattern + `\s*months?\b`)
	yearRangeRe   = regexp.MustCompile(`(?i)\b` + numberPattern + rangeSep + numberPattern + `\s*(?:years?|yrs?)\b`)
	singleMonthRe = regexp.MustCompile(`(?i)\b` + numberPattern + `\s*months?\b`)
	singleYearRe  = regexp.MustCompile(`(?i)\b` + numberPattern + `\s*(?:years?|yrs?)\b`)

	amountSuffix  = `\s*(?:(k|m|b|thousand|million|billion)\b)?`
	amountRe      = regexp.MustCompile(numberPattern + amountSuffix)
	amountRangeRe = regexp.MustCompile(numberPattern + amountSuffix + `\s*(?:-|–|—|to)\s*` + numberPattern + amountSuffix)

	upperBoundHints = []string{"under", "below", "less than", "up to", "max", "at most", "no more than"}
	lowerBoundHints = []string{"over", "above", "more than", "at least", "minimum", "exceeding"}
)

// ParseTimeline reads a duration window out of free text. Ranges in months win
// over ranges in years, which win over a single months or years value. The
// boolean is false when nothing recognisable was found.
func ParseTimeline(text string) (MonthRange, bool) {
	if m := monthRangeRe.FindStringSubmatch(text); m != nil {
		return orderedMonths(atof(m[1]), atof(m[2])), true
	}
	if m := yearRangeRe.FindStringSubmatch(text); m != nil {
		return orderedMonths(atof(m[1])*12, atof(m[2])*12), true
	}
	if m := singleMonthRe.FindStringSubmatch(text); m != nil {
		v := atof(m[1])
		return MonthRange{Min: v, Max: v}, true
	}
	if m := singleYearRe.FindStringSubmatch(text); m != nil {
		v := atof(m[1]) * 12
		return MonthRange{Min: v, Max: v}, true
	}
	return MonthRange{}, false
}

// ProjectTimelineRange resolves a structured timeline first and falls back to
// parsing its text.
func ProjectTimelineRange(t models.Timeline) (MonthRange, bool) {
	if t.MinMonths > 0 || t.MaxMonths > 0 {
		lo, hi := float64(t.MinMonths), float64(t.MaxMonths)
		if hi == 0 {
			hi = lo
		}
		return orderedMonths(lo, hi), true
	}
	if strings.TrimSpace(t.Text) == "" {
		return MonthRange{}, false
	}
	return ParseTimeline(t.Text)
}

// ParseBudget reads a budget window such as "$100k-500k", "under 1m",
// "over 500k" or "250k". A single bare value becomes a ±20% window.
func ParseBudget(text string) (AmountRange, bool) {
	s := cleanAmountText(text)
	if s == "" {
		return AmountRange{}, false
	}

	if m := amountRangeRe.FindStringSubmatch(s); m != nil {
		lo, loSuffix := atof(m[1]), m[2]
		hi, hiSuffix := atof(m[3]), m[4]
		// "100-500k" means 100k-500k.
		if loSuffix == "" && hiSuffix != "" && lo < hi {
			loSuffix = hiSuffix
		}
		lo *= suffixMultiplier(loSuffix)
		hi *= suffixMultiplier(hiSuffix)
		if lo > hi {
			lo, hi = hi, lo
		}
		if hi <= 0 {
			return AmountRange{}, false
		}
		return AmountRange{Min: lo, Max: hi}, true
	}

	m := amountRe.FindStringSubmatchIndex(s)
	if m == nil {
		return AmountRange{}, false
	}
	value := atof(s[m[2]:m[3]])
	if m[4] >= 0 {
		value *= suffixMultiplier(s[m[4]:m[5]])
	}
	if value <= 0 {
		return AmountRange{}, false
	}

	prefix := s[:m[0]]
	switch {
	case containsAny(prefix, upperBoundHints):
		return AmountRange{Min: 0, Max: value}, true
	case containsAny(prefix, lowerBoundHints) || strings.HasPrefix(strings.TrimSpace(s[m[1]:]), "+"):
		return AmountRange{Min: value, Max: math.Inf(1)}, true
	}
	return AmountRange{Min: value * 0.8, Max: value * 1.2}, true
}

// ParseAmount reads the first monetary amount in text, honouring k/m/b suffixes.
func ParseAmount(text string) (float64, bool) {
	s := cleanAmountText(text)
	m := amountRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v := atof(m[1]) * suffixMultiplier(m[2])
	if v <= 0 {
		return 0, false
	}
	return v, true
}

// ProjectBudgetRange resolves a structured budget first and falls back to
// parsing its text.
func ProjectBudgetRange(b models.Budget) (AmountRange, bool) {
	if b.Min > 0 || b.Max > 0 {
		lo, hi := b.Min, b.Max
		if hi <= 0 {
			hi = lo
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		return AmountRange{Min: lo, Max: hi}, true
	}
	if strings.TrimSpace(b.Text) == "" {
		return AmountRange{}, false
	}
	return ParseBudget(b.Text)
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the and for are but not you all any can had her was one our out has have
		this that with from they will would there their what about which when
		make like into than them these those then its his she him been being were
		does did doing should could may might must shall also such each other some
		only very just your yours who whom whose where why how both more most own
		same too ours itself himself herself themselves here while because until
		upon per via`) {
		stopWords[w] = struct{}{}
	}
}

// ExtractKeywords lowercases text, splits it on non-letter runs and drops stop
// words and tokens of two characters or fewer. Order of first appearance is kept.
func ExtractKeywords(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})

	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len([]rune(tok)) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// ProjectText joins the free-text parts of a project used for keyword matching.
func ProjectText(p models.ProjectProfile) string {
	parts := []string{p.Title, p.Description, p.TechnicalSpecs}
	parts = append(parts, p.Keywords...)
	return strings.Join(parts, " ")
}

func orderedMonths(a, b float64) MonthRange {
	if a > b {
		a, b = b, a
	}
	return MonthRange{Min: a, Max: b}
}

func cleanAmountText(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.NewReplacer("$", "", ",", "", "usd", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func suffixMultiplier(suffix string) float64 {
	switch suffix {
	case "k", "thousand":
		return 1e3
	case "m", "million":
		return 1e6
	case "b", "billion":
		return 1e9
	}
	return 1
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

func atof(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
