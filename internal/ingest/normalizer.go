package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/david/opportunity-matcher/internal/matching"
	"github.com/david/opportunity-matcher/internal/models"
)

const maxDescriptionLen = 8000

// techFocusKeywords maps each tech-focus tag to the phrases that imply it.
// Phrases match at a word start; a trailing space forces a whole word.
var techFocusKeywords = []struct {
	Tag      string
	Keywords []string
}{
	{"Propulsion", []string{"propulsion", "thruster", "propellant", "rocket engine", "electric propulsion"}},
	{"Launch", []string{"launch vehicle", "launch services", "reusable launch", "responsive launch", "small launch"}},
	{"Satellite Communications", []string{"satcom", "satellite communication", "optical communication", "laser communication", "ground terminal", "rf payload"}},
	{"Remote Sensing", []string{"remote sensing", "hyperspectral", "multispectral", "synthetic aperture radar", "sar ", "lidar"}},
	{"Earth Observation", []string{"earth observation", "earth science", "weather satellite", "climate monitoring"}},
	{"Space Domain Awareness", []string{"space domain awareness", "space situational awareness", "sda ", "ssa ", "resident space object", "debris tracking", "conjunction"}},
	{"Navigation & Timing", []string{"pnt ", "positioning navigation", "gnss", "gps ", "atomic clock", "timing"}},
	{"Power Systems", []string{"solar array", "battery", "batteries", "power system", "power beaming", "nuclear power"}},
	{"Thermal Management", []string{"thermal control", "thermal management", "radiator", "heat pipe", "cryogenic"}},
	{"Robotics & Autonomy", []string{"robotic", "autonomy", "autonomous", "servicing", "rendezvous", "proximity operations"}},
	{"In-Space Manufacturing", []string{"in-space manufacturing", "in space manufacturing", "additive manufacturing", "on-orbit assembly", "isam "}},
	{"Lunar & Planetary", []string{"lunar", "moon ", "mars ", "planetary", "cislunar", "regolith"}},
	{"Materials", []string{"materials", "composite", "radiation hardened", "rad-hard", "shielding"}},
	{"Ground Systems", []string{"ground system", "ground station", "mission operations", "command and control"}},
	{"AI & Data Analytics", []string{"artificial intelligence", "machine learning", "ai ", "data analytics", "data fusion", "sensor fusion", "computer vision"}},
	{"Cybersecurity", []string{"cyber", "cybersecurity", "encryption", "zero trust"}},
}

// StageVocabulary lists the company stages notices are tagged with.
var StageVocabulary = []string{"pre-seed", "seed", "early stage", "series a", "series b+", "growth", "established", "any"}

var stageRules = []struct {
	Phrases []string
	Stages  []string
}{
	{[]string{"phase i ", "phase 1 ", "phase i/ii"}, []string{"pre-seed", "seed"}},
	{[]string{"phase ii ", "phase 2 ", "d2p2", "direct to phase ii"}, []string{"seed", "early stage"}},
	{[]string{"phase iii", "phase 3 ", "strategic funding increase", "stratfi", "tacfi"}, []string{"series a", "series b+"}},
	{[]string{"sbir", "sttr", "small business innovation", "small business technology transfer"}, []string{"seed", "early stage"}},
	{[]string{"full and open competition", "large business", "idiq"}, []string{"growth", "established"}},
}

var (
	timelineRe = regexp.MustCompile(`(?i)period of performance[^.]{0,60}?(\d+\s*(?:-|–|to)\s*\d+\s*(?:months?|years?)|\d+\s*(?:months?|years?))`)
	monthAdjRe = regexp.MustCompile(`(?i)\b(\d+)[- ]month\b`)
	ceilingRe  = regexp.MustCompile(`(?i)(?:up to|maximum of|not to exceed|ceiling of|max(?:imum)? award(?: amount)?:?|awards? of)\s*(\$\s?[\d,.]+\s*(?:k|m|million|thousand)?)`)
	nonWordRe  = regexp.MustCompile(`[^\p{L}\p{N}+&/-]+`)
)

// FromRaw converts a raw notice into a stored opportunity. Fields the source
// did not provide are derived from the notice text where possible.
func FromRaw(raw RawOpportunity) (models.Opportunity, error) {
	title := normalizeSpace(HTMLToText(sanitizeUTF8(raw.Title)))
	if title == "" {
		return models.Opportunity{}, fmt.Errorf("notice has no title")
	}

	description := TruncateText(HTMLToText(sanitizeHTML(sanitizeUTF8(raw.Description))), maxDescriptionLen)
	fullText := title + "\n" + description + "\n" + raw.AttachmentText

	opp := models.Opportunity{
		NoticeID:     strings.TrimSpace(raw.NoticeID),
		Title:        title,
		Agency:       normalizeSpace(raw.Agency),
		AgencyCode:   strings.TrimSpace(raw.AgencyCode),
		Description:  description,
		URL:          strings.TrimSpace(raw.URL),
		SourceID:     raw.SourceID,
		SourceDomain: raw.SourceDomain,
		Timeline:     normalizeSpace(raw.Timeline),
	}
	if opp.SourceDomain == "" && opp.URL != "" {
		opp.SourceDomain = extractDomain(opp.URL)
	}
	if opp.NoticeID == "" {
		opp.NoticeID = deriveNoticeID(raw.SourceID, opp.URL, title)
	}

	if raw.RawPosted != "" {
		if dt, err := parseDateRobust(raw.RawPosted); err == nil {
			opp.PostedDate = &dt
		}
	}
	if raw.RawDeadline != "" {
		if dt, err := parseDateRobust(raw.RawDeadline); err == nil {
			opp.ResponseDeadline = &dt
		}
	}
	if opp.ResponseDeadline == nil {
		if dt, ok := findDeadlineInText(description + "\n" + raw.AttachmentText); ok {
			opp.ResponseDeadline = &dt
		}
	}

	if ceiling, ok := parseCeiling(raw.RawAmount, fullText); ok {
		opp.AwardCeiling = &ceiling
	}
	if opp.Timeline == "" {
		opp.Timeline = detectTimeline(fullText)
	}

	opp.TechFocus = mergeUniqueFold(cleanTags(raw.Tags), TagTechFocus(fullText))
	opp.EligibleStages = cleanStages(raw.Stages)
	if len(opp.EligibleStages) == 0 {
		opp.EligibleStages = DeriveStages(fullText)
	}

	return opp, nil
}

// TechFocusVocabulary returns the tags TagTechFocus can produce.
func TechFocusVocabulary() []string {
	tags := make([]string, len(techFocusKeywords))
	for i, tk := range techFocusKeywords {
		tags[i] = tk.Tag
	}
	return tags
}

// TagTechFocus returns the tech-focus tags whose phrases occur in text.
func TagTechFocus(text string) []string {
	norm := normalizeForMatch(text)
	var tags []string
	for _, tk := range techFocusKeywords {
		for _, kw := range tk.Keywords {
			if strings.Contains(norm, " "+kw) {
				tags = append(tags, tk.Tag)
				break
			}
		}
	}
	return tags
}

// DeriveStages infers eligible company stages from solicitation wording.
// Text with no stage signal yields ["any"].
func DeriveStages(text string) []string {
	norm := normalizeForMatch(text)
	found := make(map[string]bool)
	for _, rule := range stageRules {
		for _, p := range rule.Phrases {
			if strings.Contains(norm, " "+p) {
				for _, s := range rule.Stages {
					found[s] = true
				}
				break
			}
		}
	}
	if len(found) == 0 {
		return []string{"any"}
	}

	stages := make([]string, 0, len(found))
	for _, s := range StageVocabulary {
		if found[s] {
			stages = append(stages, s)
		}
	}
	return stages
}

func parseCeiling(rawAmount, text string) (float64, bool) {
	if strings.TrimSpace(rawAmount) != "" {
		if v, ok := matching.ParseAmount(rawAmount); ok {
			return v, true
		}
	}
	if m := ceilingRe.FindStringSubmatch(text); m != nil {
		return matching.ParseAmount(m[1])
	}
	return 0, false
}

func detectTimeline(text string) string {
	if m := timelineRe.FindStringSubmatch(text); m != nil {
		return normalizeSpace(m[1])
	}
	if m := monthAdjRe.FindStringSubmatch(text); m != nil {
		return m[1] + " months"
	}
	return ""
}

// deriveNoticeID builds a stable id for notices the source does not number.
func deriveNoticeID(sourceID, url, title string) string {
	key := url
	if key == "" {
		key = sourceID + "|" + strings.ToLower(title)
	}
	return "gen-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = normalizeSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return mergeUniqueFold(nil, out)
}

// cleanStages keeps stages from StageVocabulary, in its order.
func cleanStages(stages []string) []string {
	want := make(map[string]bool, len(stages))
	for _, s := range stages {
		s = strings.ToLower(normalizeSpace(strings.ReplaceAll(s, "_", " ")))
		switch s {
		case "preseed", "pre seed":
			s = "pre-seed"
		case "early-stage", "earlystage":
			s = "early stage"
		case "series-a":
			s = "series a"
		case "series b", "series c", "series b/c", "series-b+":
			s = "series b+"
		}
		want[s] = true
	}
	var out []string
	for _, s := range StageVocabulary {
		if want[s] {
			out = append(out, s)
		}
	}
	return out
}

// normalizeForMatch lowercases text and reduces punctuation to single spaces,
// padded so every word starts after a space.
func normalizeForMatch(text string) string {
	lower := strings.ToLower(text)
	return " " + strings.TrimSpace(nonWordRe.ReplaceAllString(lower, " ")) + " "
}

// TruncateText cuts a string to maxLen runes, appending an ellipsis when cut.
func TruncateText(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	if maxLen > 3 {
		return strings.TrimRightFunc(string(runes[:maxLen-3]), unicode.IsSpace) + "..."
	}
	return string(runes[:maxLen])
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return normalizeSpace(html)
	}
	doc.Find("br, p, div, li, tr, td, th, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return normalizeSpace(doc.Text())
}

// sanitizeUTF8 removes invalid UTF-8 byte sequences that cause PostgreSQL errors.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

var htmlPolicy = bluemonday.UGCPolicy()

// sanitizeHTML strips scripts, styles and unsafe attributes so their content
// never reaches the stored text.
func sanitizeHTML(s string) string {
	return htmlPolicy.Sanitize(s)
}
