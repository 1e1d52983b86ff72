package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const (
	StrategyHTMLListing = "html_listing"
	StrategySeedFile    = "seed_file"
)

// FetcherStrategy defines the contract for any ingestion source.
type FetcherStrategy interface {
	// Run extracts notices for one source and hands each to sink.
	Run(ctx context.Context, config SourceConfig, sink RawSink) (IngestionStats, error)
}

// StrategyFactory maps strategy IDs (from sources.yaml) to implementations.
type StrategyFactory struct {
	strategies map[string]FetcherStrategy
}

func NewStrategyFactory() *StrategyFactory {
	return &StrategyFactory{
		strategies: make(map[string]FetcherStrategy),
	}
}

func (f *StrategyFactory) Register(id string, strategy FetcherStrategy) {
	f.strategies[id] = strategy
}

func (f *StrategyFactory) Get(id string) (FetcherStrategy, error) {
	strategy, ok := f.strategies[id]
	if !ok {
		return nil, fmt.Errorf("strategy not found: %s", id)
	}
	return strategy, nil
}

// DefaultStrategyFactory registers the built-in strategies.
func DefaultStrategyFactory(userAgent string, log *zap.Logger) *StrategyFactory {
	f := NewStrategyFactory()
	f.Register(StrategyHTMLListing, &HTMLListingStrategy{UserAgent: userAgent, Log: log})
	f.Register(StrategySeedFile, &SeedFileStrategy{Log: log})
	return f
}
