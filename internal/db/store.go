package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/david/opportunity-matcher/internal/models"
)

// DefaultCandidateLimit bounds a candidate query that sets no limit.
const DefaultCandidateLimit = 200

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectCols = `id, notice_id, title, agency, agency_code, description,
	posted_date, response_deadline, award_ceiling, tech_focus, eligible_stages,
	timeline, url, source_id, source_domain, created_at, updated_at`

func scanOpportunity(scan func(dest ...interface{}) error) (models.Opportunity, error) {
	var o models.Opportunity
	var agencyCode, timeline, url, sourceID, sourceDomain *string

	err := scan(
		&o.ID, &o.NoticeID, &o.Title, &o.Agency, &agencyCode, &o.Description,
		&o.PostedDate, &o.ResponseDeadline, &o.AwardCeiling, &o.TechFocus, &o.EligibleStages,
		&timeline, &url, &sourceID, &sourceDomain, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.AgencyCode = deref(agencyCode)
	o.Timeline = deref(timeline)
	o.URL = deref(url)
	o.SourceID = deref(sourceID)
	o.SourceDomain = deref(sourceDomain)
	return o, nil
}

// ListCandidates returns stored opportunities matching q. With a query
// embedding, rows are ordered by cosine distance and unembedded rows last.
func (s *Store) ListCandidates(ctx context.Context, q models.CandidateQuery) ([]models.Opportunity, error) {
	sql, args := buildCandidateQuery(q)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	opps := []models.Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return opps, nil
}

func buildCandidateQuery(q models.CandidateQuery) (string, []interface{}) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if agencies := lowerAll(sanitizeStringSlice(q.Agencies)); len(agencies) > 0 {
		where += fmt.Sprintf(" AND (lower(agency) = ANY($%d) OR lower(agency_code) = ANY($%d))", argIdx, argIdx)
		args = append(args, agencies)
		argIdx++
	}
	if tags := sanitizeStringSlice(q.TechFocus); len(tags) > 0 {
		where += fmt.Sprintf(" AND tech_focus && $%d", argIdx)
		args = append(args, tags)
		argIdx++
	}
	if q.OpenOnly {
		where += buildOpenConstraint()
	}

	sql := fmt.Sprintf("SELECT %s FROM opportunities %s", selectCols, where)

	if len(q.QueryEmbedding) > 0 {
		sql += fmt.Sprintf(" ORDER BY embedding IS NULL ASC, embedding <=> $%d ASC, response_deadline ASC NULLS LAST, created_at DESC", argIdx)
		args = append(args, pgvector.NewVector(q.QueryEmbedding))
		argIdx++
	} else {
		sql += " ORDER BY posted_date DESC NULLS LAST, created_at DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	sql += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	return sql, args
}

// buildOpenConstraint keeps notices whose deadline is unknown or not yet past.
func buildOpenConstraint() string {
	return " AND (response_deadline IS NULL OR response_deadline >= NOW())"
}

// UpsertOpportunity inserts o or updates the row with the same notice id,
// filling o.ID and timestamps. It reports whether a new row was created.
func (s *Store) UpsertOpportunity(ctx context.Context, o *models.Opportunity) (bool, error) {
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO opportunities (
			notice_id, title, agency, agency_code, description,
			posted_date, response_deadline, award_ceiling, tech_focus, eligible_stages,
			timeline, url, source_id, source_domain
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (notice_id) DO UPDATE SET
			title = EXCLUDED.title,
			agency = EXCLUDED.agency,
			agency_code = COALESCE(EXCLUDED.agency_code, opportunities.agency_code),
			description = EXCLUDED.description,
			posted_date = COALESCE(EXCLUDED.posted_date, opportunities.posted_date),
			response_deadline = COALESCE(EXCLUDED.response_deadline, opportunities.response_deadline),
			award_ceiling = COALESCE(EXCLUDED.award_ceiling, opportunities.award_ceiling),
			tech_focus = EXCLUDED.tech_focus,
			eligible_stages = EXCLUDED.eligible_stages,
			timeline = COALESCE(EXCLUDED.timeline, opportunities.timeline),
			url = COALESCE(EXCLUDED.url, opportunities.url),
			source_id = EXCLUDED.source_id,
			source_domain = EXCLUDED.source_domain,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0)`,
		o.NoticeID, o.Title, o.Agency, nullIfEmpty(o.AgencyCode), o.Description,
		o.PostedDate, o.ResponseDeadline, o.AwardCeiling, nonNil(o.TechFocus), nonNil(o.EligibleStages),
		nullIfEmpty(o.Timeline), nullIfEmpty(o.URL), nullIfEmpty(o.SourceID), nullIfEmpty(o.SourceDomain),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt, &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert %s failed: %w", o.NoticeID, err)
	}
	return inserted, nil
}

func (s *Store) SetEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	_, err := s.pool.Exec(ctx, "UPDATE opportunities SET embedding = $1 WHERE id = $2", pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("set embedding for %s failed: %w", id, err)
	}
	return nil
}

// ListMissingEmbeddings returns up to limit opportunities without an embedding.
func (s *Store) ListMissingEmbeddings(ctx context.Context, limit int) ([]models.Opportunity, error) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s FROM opportunities WHERE embedding IS NULL ORDER BY created_at DESC LIMIT $1", selectCols), limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var opps []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

func (s *Store) GetOpportunityByNoticeID(ctx context.Context, noticeID string) (*models.Opportunity, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM opportunities WHERE notice_id = $1", selectCols), noticeID)

	o, err := scanOpportunity(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("not found: %w", err)
	}
	return &o, nil
}

// SourceCount is the number of stored opportunities per source.
type SourceCount struct {
	SourceID string
	Total    int
	Open     int
}

func (s *Store) CountBySource(ctx context.Context) ([]SourceCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT COALESCE(source_id, ''), COUNT(*),
			COUNT(*) FILTER (WHERE response_deadline IS NULL OR response_deadline >= NOW())
		FROM opportunities
		GROUP BY source_id
		ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("count by source failed: %w", err)
	}
	defer rows.Close()

	var counts []SourceCount
	for rows.Next() {
		var c SourceCount
		if err := rows.Scan(&c.SourceID, &c.Total, &c.Open); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func sanitizeStringSlice(values []string) []string {
	if len(values) == 0 {
		return values
	}

	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			clean = append(clean, trimmed)
		}
	}

	return clean
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
