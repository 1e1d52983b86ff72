package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/david/opportunity-matcher/internal/ai"
	"github.com/david/opportunity-matcher/internal/db"
	"github.com/david/opportunity-matcher/internal/models"
)

// OpportunityStore is the persistence the pipeline writes to.
type OpportunityStore interface {
	UpsertOpportunity(ctx context.Context, o *models.Opportunity) (bool, error)
	SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	ListMissingEmbeddings(ctx context.Context, limit int) ([]models.Opportunity, error)
	StartRun(ctx context.Context, sourceID string) (uuid.UUID, error)
	FinishRun(ctx context.Context, run db.IngestRun) error
}

// CacheInvalidator drops cached candidate lists after stored data changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) (int, error)
}

type Pipeline struct {
	Store    OpportunityStore
	Registry *Registry
	Factory  *StrategyFactory
	Log      *zap.Logger

	// Optional collaborators; nil disables the step.
	Embedder   ai.Embedder
	Extractor  *ai.Extractor
	Classifier ai.Completer
	Cache      CacheInvalidator

	inserted int
}

func NewPipeline(store OpportunityStore, registry *Registry, factory *StrategyFactory, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		Store:    store,
		Registry: registry,
		Factory:  factory,
		Log:      log,
	}
}

// IngestSource runs one registry source and records it in ingest_runs.
func (p *Pipeline) IngestSource(ctx context.Context, sourceID string) (IngestionStats, error) {
	config, ok := p.Registry.Find(sourceID)
	if !ok {
		return IngestionStats{}, fmt.Errorf("source id %q not found in registry", sourceID)
	}

	strategy, err := p.Factory.Get(config.Strategy)
	if err != nil {
		return IngestionStats{}, fmt.Errorf("strategy %q not found for source %q", config.Strategy, sourceID)
	}

	log := p.Log.With(zap.String("source", config.ID))

	runID, err := p.Store.StartRun(ctx, config.ID)
	if err != nil {
		log.Warn("failed to create ingest run", zap.Error(err))
	}

	start := time.Now()
	p.inserted = 0
	log.Info("starting ingestion", zap.String("name", config.Name), zap.String("strategy", config.Strategy))

	stats, runErr := strategy.Run(ctx, config, p)
	stats.Inserted = p.inserted
	duration := time.Since(start)

	if runID != uuid.Nil {
		run := db.IngestRun{
			RunID:      runID,
			Status:     db.RunStatus(stats.TotalSaved, stats.Errors, runErr),
			ItemsFound: stats.TotalFound,
			ItemsSaved: stats.TotalSaved,
			Errors:     stats.Errors,
			Details: map[string]interface{}{
				"duration_ms": duration.Milliseconds(),
				"inserted":    stats.Inserted,
			},
		}
		if runErr != nil {
			run.Details["error"] = runErr.Error()
		}
		if err := p.Store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
			log.Warn("failed to update ingest run", zap.String("run_id", runID.String()), zap.Error(err))
		}
	}

	log.Info("ingestion finished",
		zap.Int("found", stats.TotalFound),
		zap.Int("saved", stats.TotalSaved),
		zap.Int("inserted", stats.Inserted),
		zap.Int("errors", stats.Errors),
		zap.Duration("duration", duration),
		zap.Error(runErr),
	)

	if stats.TotalSaved > 0 && p.Cache != nil {
		if n, err := p.Cache.Invalidate(ctx); err != nil {
			log.Warn("candidate cache invalidation failed", zap.Error(err))
		} else {
			log.Debug("candidate cache invalidated", zap.Int("keys", n))
		}
	}

	return stats, runErr
}

// IngestAll runs every enabled source. A failing source does not stop the
// others; failures are joined into the returned error.
func (p *Pipeline) IngestAll(ctx context.Context) (map[string]IngestionStats, error) {
	results := make(map[string]IngestionStats)
	var errs []error

	for _, src := range p.Registry.Sources {
		if src.Disabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		stats, err := p.IngestSource(ctx, src.ID)
		results[src.ID] = stats
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, err))
		}
	}

	return results, errors.Join(errs...)
}

// SaveRaw normalizes a raw notice, fills gaps with the optional model
// collaborators, stores it and embeds it.
func (p *Pipeline) SaveRaw(ctx context.Context, raw RawOpportunity) error {
	opp, err := FromRaw(raw)
	if err != nil {
		return err
	}

	if p.Extractor != nil && (opp.ResponseDeadline == nil || opp.AwardCeiling == nil) {
		p.applyExtraction(ctx, &opp, raw.AttachmentText)
	}
	if p.Classifier != nil && len(opp.TechFocus) == 0 {
		p.applyClassification(ctx, &opp)
	}

	inserted, err := p.Store.UpsertOpportunity(ctx, &opp)
	if err != nil {
		return err
	}
	if inserted {
		p.inserted++
	}

	if p.Embedder != nil {
		if err := p.embed(ctx, opp); err != nil {
			p.Log.Warn("embedding failed", zap.String("notice_id", opp.NoticeID), zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) applyExtraction(ctx context.Context, opp *models.Opportunity, attachmentText string) {
	text := TruncateText(strings.TrimSpace(opp.Description+"\n"+attachmentText), maxDescriptionLen)

	fields, err := p.Extractor.ExtractOpportunityFields(ctx, opp.Title, opp.URL, text)
	if err != nil {
		p.Log.Warn("llm extraction failed", zap.String("notice_id", opp.NoticeID), zap.Error(err))
		return
	}

	if opp.ResponseDeadline == nil && fields.DeadlineISO != "" {
		if dt, err := parseDateRobust(fields.DeadlineISO); err == nil {
			opp.ResponseDeadline = &dt
		}
	}
	if opp.PostedDate == nil && fields.PostedISO != "" {
		if dt, err := parseDateRobust(fields.PostedISO); err == nil {
			opp.PostedDate = &dt
		}
	}
	if opp.AwardCeiling == nil && fields.AwardCeiling > 0 {
		ceiling := fields.AwardCeiling
		opp.AwardCeiling = &ceiling
	}
	if opp.Agency == "" {
		opp.Agency = normalizeSpace(fields.Agency)
	}
	if opp.Timeline == "" {
		opp.Timeline = normalizeSpace(fields.Timeline)
	}
	if len(opp.TechFocus) == 0 {
		opp.TechFocus = cleanTags(fields.TechFocus)
	}
	if isAnyOnly(opp.EligibleStages) {
		if stages := cleanStages(fields.EligibleStages); len(stages) > 0 {
			opp.EligibleStages = stages
		}
	}
}

func (p *Pipeline) applyClassification(ctx context.Context, opp *models.Opportunity) {
	result, err := ai.ClassifyOpportunity(ctx, p.Classifier, opp.Title, TruncateText(opp.Description, 1500), TechFocusVocabulary(), StageVocabulary)
	if err != nil {
		p.Log.Warn("llm classification failed", zap.String("notice_id", opp.NoticeID), zap.Error(err))
		return
	}
	opp.TechFocus = result.TechFocus
	if isAnyOnly(opp.EligibleStages) && len(result.EligibleStages) > 0 {
		opp.EligibleStages = result.EligibleStages
	}
}

// BackfillEmbeddings embeds up to limit stored opportunities that have none.
func (p *Pipeline) BackfillEmbeddings(ctx context.Context, limit int) (int, error) {
	if p.Embedder == nil {
		return 0, fmt.Errorf("no embedder configured")
	}

	opps, err := p.Store.ListMissingEmbeddings(ctx, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, opp := range opps {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := p.embed(ctx, opp); err != nil {
			p.Log.Warn("embedding failed", zap.String("notice_id", opp.NoticeID), zap.Error(err))
			continue
		}
		done++
	}
	if done > 0 && p.Cache != nil {
		if _, err := p.Cache.Invalidate(ctx); err != nil {
			p.Log.Warn("candidate cache invalidation failed", zap.Error(err))
		}
	}
	return done, nil
}

func (p *Pipeline) embed(ctx context.Context, opp models.Opportunity) error {
	vec, err := p.Embedder.GenerateEmbedding(ctx, EmbeddingText(opp))
	if err != nil {
		return err
	}
	return p.Store.SetEmbedding(ctx, opp.ID, vec)
}

// EmbeddingText is the text embedded for an opportunity. Profiles embedded
// for semantic candidate ordering should use a comparable shape.
func EmbeddingText(opp models.Opportunity) string {
	parts := []string{opp.Title}
	if len(opp.TechFocus) > 0 {
		parts = append(parts, strings.Join(opp.TechFocus, ", "))
	}
	if opp.Description != "" {
		parts = append(parts, TruncateText(opp.Description, 2000))
	}
	return strings.Join(parts, "\n")
}

func isAnyOnly(stages []string) bool {
	return len(stages) == 0 || (len(stages) == 1 && stages[0] == "any")
}
