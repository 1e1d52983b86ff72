package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ExtractedFields is the structured data a model pulls from a notice page.
type ExtractedFields struct {
	DeadlineISO    string   `json:"deadline_iso"`
	PostedISO      string   `json:"posted_iso"`
	AwardCeiling   float64  `json:"award_ceiling"`
	Agency         string   `json:"agency"`
	Timeline       string   `json:"timeline"`
	TechFocus      []string `json:"tech_focus"`
	EligibleStages []string `json:"eligible_stages"`
	Summary        string   `json:"summary"`
}

// Extractor fills gaps in scraped notices with a language model.
type Extractor struct {
	llm Completer
	log *zap.Logger
}

func NewExtractor(llm Completer, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{llm: llm, log: log}
}

// ExtractOpportunityFields tries JSON mode first and falls back to a plain
// completion when the JSON-mode reply does not parse.
func (e *Extractor) ExtractOpportunityFields(ctx context.Context, title, url, text string) (*ExtractedFields, error) {
	prompt := fmt.Sprintf(`You are an expert government contracting analyst. Extract key information from the following contract or grant notice into JSON format.

Input:
Title: %s
URL: %s
Text:
%s

Instructions:
1. deadline_iso: the response or proposal due date (YYYY-MM-DD), or null.
2. posted_iso: the posting date (YYYY-MM-DD), or null.
3. award_ceiling: the maximum award amount in US dollars as a number, or 0 when not stated.
4. agency: the issuing agency name.
5. timeline: the period of performance as written (e.g. "6-24 months").
6. tech_focus: 1-4 short technology areas (e.g. "Propulsion", "Remote Sensing").
7. eligible_stages: company stages that may apply, from: pre-seed, seed, early-stage, series a, series b+, growth, established, any.
8. summary: 1-2 neutral sentences.

Respond ONLY with the JSON object.`, title, url, text)

	resp, err := e.llm.GenerateCompletion(ctx, prompt, true)
	if err == nil {
		data, parseErr := parseExtractedFields(resp)
		if parseErr == nil {
			return data, nil
		}
		e.log.Debug("json mode reply did not parse, retrying in text mode", zap.Error(parseErr))
	} else {
		e.log.Debug("json mode generation failed, retrying in text mode", zap.Error(err))
	}

	resp, err = e.llm.GenerateCompletion(ctx, prompt, false)
	if err != nil {
		return nil, err
	}

	data, err := parseExtractedFields(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse extraction reply after retry: %w", err)
	}
	return data, nil
}

func parseExtractedFields(resp string) (*ExtractedFields, error) {
	var data ExtractedFields
	if err := json.Unmarshal([]byte(cleanModelReply(resp)), &data); err != nil {
		return nil, err
	}
	data.DeadlineISO = nullString(data.DeadlineISO)
	data.PostedISO = nullString(data.PostedISO)
	if data.AwardCeiling < 0 {
		data.AwardCeiling = 0
	}
	return &data, nil
}

func nullString(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return ""
	}
	return s
}
