package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/david/opportunity-matcher/internal/matching"
	"github.com/david/opportunity-matcher/internal/models"
)

const (
	ScorerName          = "ai"
	DefaultCandidateCap = 20

	maxPromptDescription = 600
)

var matchReplySchema = gojsonschema.NewStringLoader(`{
  "type": "object",
  "required": ["matches"],
  "properties": {
    "matches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["noticeId", "matchDetails"],
        "properties": {
          "noticeId": {"type": "string", "minLength": 1},
          "score": {"type": "number"},
          "explanation": {"type": "string"},
          "matchDetails": {
            "type": "object",
            "required": ["techFocusMatch", "stageMatch", "timelineMatch", "budgetMatch", "keywordMatch"],
            "properties": {
              "techFocusMatch": {"type": "number"},
              "stageMatch": {"type": "number"},
              "timelineMatch": {"type": "number"},
              "budgetMatch": {"type": "number"},
              "keywordMatch": {"type": "number"}
            }
          }
        }
      }
    }
  }
}`)

type matchReply struct {
	Matches []struct {
		NoticeID     string   `json:"noticeId"`
		Score        *float64 `json:"score"`
		Explanation  string   `json:"explanation"`
		MatchDetails struct {
			TechFocusMatch float64 `json:"techFocusMatch"`
			StageMatch     float64 `json:"stageMatch"`
			TimelineMatch  float64 `json:"timelineMatch"`
			BudgetMatch    float64 `json:"budgetMatch"`
			KeywordMatch   float64 `json:"keywordMatch"`
		} `json:"matchDetails"`
	} `json:"matches"`
}

// Scorer delegates factor scoring and the rationale to a language model. Only
// the first CandidateCap candidates are sent; the rest are not scored.
type Scorer struct {
	llm          Completer
	candidateCap int
	log          *zap.Logger
}

func NewScorer(llm Completer, candidateCap int, log *zap.Logger) *Scorer {
	if candidateCap <= 0 {
		candidateCap = DefaultCandidateCap
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scorer{llm: llm, candidateCap: candidateCap, log: log}
}

func (s *Scorer) Name() string { return ScorerName }

// ScoreFactors sends one prompt for the request. Replies naming unknown or
// repeated notice ids are skipped. A failed call wraps
// matching.ErrModelCallFailed; an unusable reply wraps
// matching.ErrModelResponseMalformed.
func (s *Scorer) ScoreFactors(ctx context.Context, req matching.Request) ([]matching.Scored, error) {
	candidates := req.Candidates
	if len(candidates) > s.candidateCap {
		candidates = candidates[:s.candidateCap]
	}

	keys := make(map[string]int, len(candidates))
	for i, opp := range candidates {
		k := promptKey(i, opp)
		if _, dup := keys[k]; !dup {
			keys[k] = i
		}
	}

	raw, err := s.llm.GenerateCompletion(ctx, buildMatchPrompt(req.Company, req.Project, candidates), true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", matching.ErrModelCallFailed, err)
	}

	reply, err := parseMatchReply(raw)
	if err != nil {
		s.log.Debug("unusable model reply", zap.String("reply", truncate(raw, 500)), zap.Error(err))
		return nil, err
	}

	seen := make(map[int]struct{}, len(reply.Matches))
	out := make([]matching.Scored, 0, len(reply.Matches))
	for _, m := range reply.Matches {
		idx, ok := keys[strings.TrimSpace(m.NoticeID)]
		if !ok {
			s.log.Debug("dropping match for unknown notice id", zap.String("notice_id", m.NoticeID))
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}

		out = append(out, matching.Scored{
			Index: idx,
			Details: models.MatchDetails{
				TechFocusMatch: matching.ClampUnit(m.MatchDetails.TechFocusMatch),
				StageMatch:     matching.ClampUnit(m.MatchDetails.StageMatch),
				TimelineMatch:  matching.ClampUnit(m.MatchDetails.TimelineMatch),
				BudgetMatch:    matching.ClampUnit(m.MatchDetails.BudgetMatch),
				KeywordMatch:   matching.ClampUnit(m.MatchDetails.KeywordMatch),
				Explanation:    strings.TrimSpace(m.Explanation),
			},
			ModelScore: m.Score,
		})
	}

	s.log.Debug("model scored candidates",
		zap.Int("sent", len(candidates)),
		zap.Int("returned", len(reply.Matches)),
		zap.Int("kept", len(out)))
	return out, nil
}

func parseMatchReply(raw string) (*matchReply, error) {
	cleaned := cleanModelReply(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty reply", matching.ErrModelResponseMalformed)
	}

	result, err := gojsonschema.Validate(matchReplySchema, gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", matching.ErrModelResponseMalformed, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s", matching.ErrModelResponseMalformed, strings.Join(msgs, "; "))
	}

	var reply matchReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return nil, fmt.Errorf("%w: %w", matching.ErrModelResponseMalformed, err)
	}
	return &reply, nil
}

func promptKey(i int, opp models.Opportunity) string {
	if id := strings.TrimSpace(opp.NoticeID); id != "" {
		return id
	}
	return fmt.Sprintf("candidate-%d", i+1)
}

func buildMatchPrompt(company models.CompanyProfile, project models.ProjectProfile, candidates []models.Opportunity) string {
	var b strings.Builder

	b.WriteString(`You are an expert in government contracting for space technology startups. Score how well each opportunity fits the company and project below.

COMPANY
`)
	fmt.Fprintf(&b, "Name: %s\n", company.Name)
	fmt.Fprintf(&b, "Stage: %s\n", company.Stage)
	fmt.Fprintf(&b, "Technology: %s\n", strings.Join(company.TechCategories, ", "))
	if company.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", company.Description)
	}
	if len(company.PreferredAgencies) > 0 {
		fmt.Fprintf(&b, "Preferred agencies: %s\n", strings.Join(company.PreferredAgencies, ", "))
	}

	b.WriteString("\nPROJECT\n")
	fmt.Fprintf(&b, "Title: %s\n", project.Title)
	fmt.Fprintf(&b, "Description: %s\n", project.Description)
	if project.TechnicalSpecs != "" {
		fmt.Fprintf(&b, "Technical specs: %s\n", project.TechnicalSpecs)
	}
	fmt.Fprintf(&b, "Budget: %s\n", budgetText(project.Budget))
	fmt.Fprintf(&b, "Timeline: %s\n", timelineText(project.Timeline))
	if len(project.Interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(project.Interests, ", "))
	}
	if len(project.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(project.Keywords, ", "))
	}

	b.WriteString("\nOPPORTUNITIES\n")
	for i, opp := range candidates {
		fmt.Fprintf(&b, "- noticeId: %s\n", promptKey(i, opp))
		fmt.Fprintf(&b, "  title: %s\n", opp.Title)
		fmt.Fprintf(&b, "  agency: %s\n", opp.Agency)
		fmt.Fprintf(&b, "  techFocus: %s\n", strings.Join(opp.TechFocus, ", "))
		fmt.Fprintf(&b, "  eligibleStages: %s\n", strings.Join(opp.EligibleStages, ", "))
		if opp.AwardCeiling != nil {
			fmt.Fprintf(&b, "  awardCeiling: %.0f\n", *opp.AwardCeiling)
		}
		if opp.Timeline != "" {
			fmt.Fprintf(&b, "  timeline: %s\n", opp.Timeline)
		}
		fmt.Fprintf(&b, "  description: %s\n", truncate(opp.Description, maxPromptDescription))
	}

	b.WriteString(`
Return ONLY a JSON object of this shape, with every score between 0 and 1:
{
  "matches": [
    {
      "noticeId": "string, copied exactly from the list above",
      "score": number,
      "matchDetails": {
        "techFocusMatch": number,
        "stageMatch": number,
        "timelineMatch": number,
        "budgetMatch": number,
        "keywordMatch": number
      },
      "explanation": "one or two sentences"
    }
  ]
}

Include one entry per opportunity. Do not invent notice ids.`)
	return b.String()
}

func budgetText(b models.Budget) string {
	switch {
	case b.Min > 0 || b.Max > 0:
		cur := b.Currency
		if cur == "" {
			cur = "USD"
		}
		return fmt.Sprintf("%.0f-%.0f %s", b.Min, b.Max, cur)
	case b.Text != "":
		return b.Text
	}
	return "not specified"
}

func timelineText(t models.Timeline) string {
	switch {
	case t.MinMonths > 0 || t.MaxMonths > 0:
		return fmt.Sprintf("%d-%d months", t.MinMonths, t.MaxMonths)
	case t.Text != "":
		return t.Text
	}
	return "not specified"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
