package ingest

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

var (
	isoDateRe   = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	usDateRe    = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2})\b`)
	monthDateRe = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2}),?\s+(20\d{2})\b`)
	dayMonthRe  = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(20\d{2})\b`)
)

var deadlineLabelHints = []string{
	"due", "deadline", "closes", "closing", "close date", "response date", "submission", "proposals must be received",
}

// parseDateRobust parses the date formats seen on US contract notices.
// Date-only values resolve to the end of that day in UTC.
func parseDateRobust(text string) (time.Time, error) {
	text = cleanDateString(text)
	text = strings.NewReplacer("a.m.", "AM", "p.m.", "PM", " am", " AM", " pm", " PM").Replace(text)

	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", text); err == nil {
		return toEndOfDay(t), nil
	}

	formats := []string{
		"January 2, 2006",
		"January 2, 2006 3:04 PM",
		"January 2, 2006 3 PM",
		"Jan 2, 2006",
		"Jan 2, 2006 3:04 PM",
		"2 January 2006",
		"02 January 2006",
		"2 Jan 2006",
		"01/02/2006",
		"1/2/2006",
		"01/02/2006 3:04 PM",
		"2006-01-02 15:04:05",
		"Monday, January 2, 2006",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, text); err == nil {
			if strings.Contains(format, ":") {
				return t, nil
			}
			return toEndOfDay(t), nil
		}
	}

	if t := parseDateWithRegex(text); !t.IsZero() {
		return toEndOfDay(t), nil
	}

	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

// toEndOfDay sets the time to 23:59:59.999999999 UTC
func toEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// parseDateWithRegex finds the first recognisable date inside free text.
func parseDateWithRegex(text string) time.Time {
	if m := isoDateRe.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t
		}
	}
	if m := usDateRe.FindStringSubmatch(text); len(m) == 4 {
		if t, err := time.Parse("1/2/2006", fmt.Sprintf("%s/%s/%s", m[1], m[2], m[3])); err == nil {
			return t
		}
	}
	if m := monthDateRe.FindStringSubmatch(text); len(m) == 4 {
		month := m[1]
		if strings.EqualFold(month, "sept") {
			month = "Sep"
		}
		for _, layout := range []string{"January 2 2006", "Jan 2 2006"} {
			if t, err := time.Parse(layout, fmt.Sprintf("%s %s %s", month, m[2], m[3])); err == nil {
				return t
			}
		}
	}
	if m := dayMonthRe.FindStringSubmatch(text); len(m) == 4 {
		for _, layout := range []string{"2 January 2006", "2 Jan 2006"} {
			if t, err := time.Parse(layout, fmt.Sprintf("%s %s %s", m[1], m[2], m[3])); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// findDeadlineInText returns the latest date that appears near a deadline
// label, used when a notice has no explicit deadline field.
func findDeadlineInText(text string) (time.Time, bool) {
	type hit struct {
		at    time.Time
		label bool
	}
	var hits []hit

	for _, expr := range []*regexp.Regexp{isoDateRe, usDateRe, monthDateRe, dayMonthRe} {
		for _, loc := range expr.FindAllStringIndex(text, -1) {
			parsed, err := parseDateRobust(text[loc[0]:loc[1]])
			if err != nil {
				continue
			}
			start := loc[0] - 80
			if start < 0 {
				start = 0
			}
			window := strings.ToLower(text[start:loc[0]])
			hits = append(hits, hit{at: parsed, label: containsAnyFold(window, deadlineLabelHints)})
		}
	}

	var labelled []time.Time
	for _, h := range hits {
		if h.label {
			labelled = append(labelled, h.at)
		}
	}
	if len(labelled) == 0 {
		return time.Time{}, false
	}
	sort.Slice(labelled, func(i, j int) bool { return labelled[i].Before(labelled[j]) })
	return labelled[len(labelled)-1], true
}

// cleanDateString removes common prefixes and cleans up date strings
func cleanDateString(s string) string {
	prefixes := []string{
		"Closing date:", "Deadline:", "Response date:", "Due date:", "Posted:",
		"Posted date:", "Published:", "Closes:", "Expires:", "Ends:",
	}
	sLower := strings.ToLower(s)
	for _, p := range prefixes {
		if idx := strings.Index(sLower, strings.ToLower(p)); idx != -1 {
			s = s[idx+len(p):]
			sLower = sLower[idx+len(p):]
		}
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), " ET"))
}
