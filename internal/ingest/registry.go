package ingest

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all data sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig defines HTTP fetching configuration for a source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 2
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Requests per second, default: 1.0
}

// SourceConfig defines a single data source for ingestion.
type SourceConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Agency      string `yaml:"agency,omitempty"`
	AgencyCode  string `yaml:"agency_code,omitempty"`
	Strategy    string `yaml:"strategy"` // "html_listing", "seed_file"
	BaseURL     string `yaml:"base_url,omitempty"`
	SeedFile    string `yaml:"seed_file,omitempty"`
	Disabled    bool   `yaml:"disabled,omitempty"`
	Description string `yaml:"description,omitempty"`

	Fetch FetchConfig `yaml:"fetch,omitempty"`

	// For the html_listing strategy
	Selectors  SelectorConfig   `yaml:"selectors,omitempty"`
	Pagination PaginationConfig `yaml:"pagination,omitempty"`
	MaxPages   int              `yaml:"max_pages,omitempty"`
	Detail     DetailConfig     `yaml:"detail,omitempty"`
}

type PaginationConfig struct {
	Next string `yaml:"next,omitempty"` // CSS selector for the next page link
}

type SelectorConfig struct {
	Container string `yaml:"container,omitempty"` // CSS selector for the list item wrapper
	Link      string `yaml:"link,omitempty"`
	LinkAttr  string `yaml:"link_attr,omitempty"` // default: href
	Title     string `yaml:"title,omitempty"`
	NoticeID  string `yaml:"notice_id,omitempty"`
	Date      string `yaml:"date,omitempty"`
	Content   string `yaml:"content,omitempty"`
}

type DetailConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	Selectors DetailSelectorConfig `yaml:"selectors,omitempty"`
}

type DetailSelectorConfig struct {
	Container   string `yaml:"container,omitempty"`
	Description string `yaml:"description,omitempty"`
	Deadline    string `yaml:"deadline,omitempty"`
	Posted      string `yaml:"posted,omitempty"`
	Amount      string `yaml:"amount,omitempty"`
	Agency      string `yaml:"agency,omitempty"`
	Timeline    string `yaml:"timeline,omitempty"`
	Attachments string `yaml:"attachments,omitempty"` // links to PDF documents
}

// LoadRegistry reads sources from path, or from the embedded sources.yaml
// when path is empty. ${VAR} references are expanded from the environment.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read source registry: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("failed to parse source registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks ids are unique and each source names a usable strategy.
func (r *Registry) Validate() error {
	seen := make(map[string]struct{}, len(r.Sources))
	for i, src := range r.Sources {
		if src.ID == "" {
			return fmt.Errorf("source #%d has no id", i+1)
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}

		// Disabled sources may leave env-driven fields unset.
		switch src.Strategy {
		case StrategyHTMLListing:
			if !src.Disabled && (src.BaseURL == "" || src.Selectors.Container == "") {
				return fmt.Errorf("source %q: html_listing needs base_url and selectors.container", src.ID)
			}
		case StrategySeedFile:
			if !src.Disabled && src.SeedFile == "" {
				return fmt.Errorf("source %q: seed_file needs seed_file", src.ID)
			}
		default:
			return fmt.Errorf("source %q: unknown strategy %q", src.ID, src.Strategy)
		}
	}
	return nil
}

// Find returns the source with the given id.
func (r *Registry) Find(id string) (SourceConfig, bool) {
	for _, src := range r.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return SourceConfig{}, false
}
