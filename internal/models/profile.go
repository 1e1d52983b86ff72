package models

// Funding stages offered on the intake form. Other stage strings are accepted
// and compared as-is.
const (
	StagePreSeed = "pre-seed"
	StageSeed    = "seed"
	StageSeriesA = "series a"
	StageSeriesB = "series b+"
	StageGrowth  = "growth"
	StageAny     = "any"
)

// CompanyProfile describes the applicant. It is a per-request snapshot.
type CompanyProfile struct {
	Name              string   `json:"name" yaml:"name"`
	Description       string   `json:"description" yaml:"description"`
	TechCategories    []string `json:"tech_categories" yaml:"tech_categories"`
	Stage             string   `json:"stage" yaml:"stage"`
	TeamSize          string   `json:"team_size,omitempty" yaml:"team_size,omitempty"`
	FoundedYear       int      `json:"founded_year,omitempty" yaml:"founded_year,omitempty"`
	ContactEmail      string   `json:"contact_email,omitempty" yaml:"contact_email,omitempty"`
	Website           string   `json:"website,omitempty" yaml:"website,omitempty"`
	Patents           string   `json:"patents,omitempty" yaml:"patents,omitempty"`
	PreferredAgencies []string `json:"preferred_agencies,omitempty" yaml:"preferred_agencies,omitempty"`
}

// Budget is either structured (Min/Max) or free text that needs parsing.
type Budget struct {
	Min      float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max      float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Currency string  `json:"currency,omitempty" yaml:"currency,omitempty"`
	Text     string  `json:"text,omitempty" yaml:"text,omitempty"`
}

// Timeline is either a structured duration range in months or free text.
type Timeline struct {
	MinMonths int    `json:"min_months,omitempty" yaml:"min_months,omitempty"`
	MaxMonths int    `json:"max_months,omitempty" yaml:"max_months,omitempty"`
	Text      string `json:"text,omitempty" yaml:"text,omitempty"`
}

// ProjectProfile describes the proposal being matched.
type ProjectProfile struct {
	Title          string   `json:"title" yaml:"title"`
	Description    string   `json:"description" yaml:"description"`
	TechnicalSpecs string   `json:"technical_specs,omitempty" yaml:"technical_specs,omitempty"`
	Budget         Budget   `json:"budget" yaml:"budget"`
	Timeline       Timeline `json:"timeline" yaml:"timeline"`
	Interests      []string `json:"interests,omitempty" yaml:"interests,omitempty"`
	Keywords       []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
}
