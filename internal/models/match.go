package models

// Confidence is a discrete label derived from an overall match score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// MatchDetails is the per-factor breakdown behind a match score.
type MatchDetails struct {
	TechFocusMatch  float64  `json:"tech_focus_match"`
	StageMatch      float64  `json:"stage_match"`
	TimelineMatch   float64  `json:"timeline_match"`
	BudgetMatch     float64  `json:"budget_match"`
	KeywordMatch    float64  `json:"keyword_match"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	Explanation     string   `json:"explanation,omitempty"`
}

// MatchResult pairs one opportunity with its score. Never mutated after creation.
type MatchResult struct {
	Opportunity Opportunity  `json:"opportunity"`
	Score       float64      `json:"score"`
	Confidence  Confidence   `json:"confidence"`
	Details     MatchDetails `json:"match_details"`
	Scorer      string       `json:"scorer"`
}
