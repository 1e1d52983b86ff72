package ingest

import (
	"context"
	"io"
	"time"
)

// RawOpportunity is the untrusted, unnormalized notice a strategy extracts
// from a source.
type RawOpportunity struct {
	NoticeID     string   `yaml:"notice_id"`
	Title        string   `yaml:"title"`
	Description  string   `yaml:"description"` // HTML or plain text
	URL          string   `yaml:"url"`
	Agency       string   `yaml:"agency"`
	AgencyCode   string   `yaml:"agency_code"`
	RawPosted    string   `yaml:"posted"`
	RawDeadline  string   `yaml:"deadline"`
	RawAmount    string   `yaml:"award_ceiling"`
	Timeline     string   `yaml:"timeline"`
	Tags         []string `yaml:"tech_focus"`
	Stages       []string `yaml:"eligible_stages"`
	SourceID     string   `yaml:"-"`
	SourceDomain string   `yaml:"-"`

	// AttachmentText holds text pulled from linked documents. It feeds
	// deadline and tag detection but is not stored.
	AttachmentText string `yaml:"-"`
}

// IngestionStats holds metrics about a run.
type IngestionStats struct {
	TotalFound int
	TotalSaved int
	Inserted   int
	Errors     int
}

// RawSink receives raw notices from a strategy.
type RawSink interface {
	SaveRaw(ctx context.Context, raw RawOpportunity) error
}

// FetchedDocument is the raw result of a fetch.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}
