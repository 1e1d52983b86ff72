package models

import (
	"time"

	"github.com/google/uuid"
)

// Opportunity is a government contract or grant notice considered for matching.
type Opportunity struct {
	ID               uuid.UUID  `json:"id" yaml:"-"`
	NoticeID         string     `json:"notice_id" yaml:"notice_id"`
	Title            string     `json:"title" yaml:"title"`
	Agency           string     `json:"agency" yaml:"agency"`
	AgencyCode       string     `json:"agency_code,omitempty" yaml:"agency_code,omitempty"`
	Description      string     `json:"description" yaml:"description"`
	PostedDate       *time.Time `json:"posted_date,omitempty" yaml:"posted_date,omitempty"`
	ResponseDeadline *time.Time `json:"response_deadline,omitempty" yaml:"response_deadline,omitempty"`
	AwardCeiling     *float64   `json:"award_ceiling,omitempty" yaml:"award_ceiling,omitempty"`
	TechFocus        []string   `json:"tech_focus" yaml:"tech_focus"`
	EligibleStages   []string   `json:"eligible_stages" yaml:"eligible_stages"`
	Timeline         string     `json:"timeline,omitempty" yaml:"timeline,omitempty"`
	URL              string     `json:"url,omitempty" yaml:"url,omitempty"`
	SourceID         string     `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	SourceDomain     string     `json:"source_domain,omitempty" yaml:"source_domain,omitempty"`
	CreatedAt        time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time  `json:"updated_at" yaml:"-"`
}

// CandidateQuery narrows the opportunities a candidate source returns.
type CandidateQuery struct {
	Agencies       []string  // agency names or codes; empty means all
	TechFocus      []string  // any-overlap filter on tech_focus tags
	OpenOnly       bool      // exclude notices whose response deadline has passed
	Limit          int       // 0 means the source default
	QueryEmbedding []float32 // orders by similarity when set
}
