package ingest

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SeedFileStrategy loads hand-curated notices from a YAML list.
type SeedFileStrategy struct {
	Log *zap.Logger
}

func (s *SeedFileStrategy) Run(ctx context.Context, config SourceConfig, sink RawSink) (IngestionStats, error) {
	stats := IngestionStats{}
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	notices, err := LoadSeedFile(config.SeedFile)
	if err != nil {
		return stats, err
	}

	for _, raw := range notices {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.TotalFound++

		if raw.Agency == "" {
			raw.Agency = config.Agency
		}
		if raw.AgencyCode == "" {
			raw.AgencyCode = config.AgencyCode
		}
		raw.SourceID = config.ID
		if raw.URL != "" {
			raw.URL = CanonicalizeURL(raw.URL)
			raw.SourceDomain = extractDomain(raw.URL)
		}

		if err := sink.SaveRaw(ctx, raw); err != nil {
			log.Warn("failed to save seed notice", zap.String("source", config.ID), zap.String("title", raw.Title), zap.Error(err))
			stats.Errors++
			continue
		}
		stats.TotalSaved++
	}
	return stats, nil
}

// LoadSeedFile reads a YAML list of raw notices.
func LoadSeedFile(path string) ([]RawOpportunity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var notices []RawOpportunity
	if err := yaml.Unmarshal(data, &notices); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return notices, nil
}
