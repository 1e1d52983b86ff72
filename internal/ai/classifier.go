package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type ClassificationResult struct {
	TechFocus      []string `json:"tech_focus"`
	EligibleStages []string `json:"eligible_stages"`
}

// ClassifyOpportunity asks the model to tag a notice using only the given
// vocabularies. Tags outside them are dropped.
func ClassifyOpportunity(ctx context.Context, llm Completer, title, summary string, techTags, stages []string) (*ClassificationResult, error) {
	prompt := fmt.Sprintf(`You are an expert classifier of government contract opportunities for space technology companies. Tag the following notice based on its Title and Summary.

NOTICE TITLE: %s
NOTICE SUMMARY: %s

Select the most relevant tags from the following EXACT lists. Do not invent new tags.

AVAILABLE TECH FOCUS: %s
AVAILABLE STAGES: %s

Return a JSON object with this format:
{
  "tech_focus": ["Tag1", "Tag2"],
  "eligible_stages": ["stage1"]
}

Rules:
1. Select only tags that strongly apply.
2. If the notice is a small business (SBIR/STTR) Phase I, include "seed" and "pre-seed".
3. If no stage restriction is stated, return ["any"] for eligible_stages.
4. If no tags apply, return empty arrays.
5. RESPOND ONLY WITH JSON.`, title, summary, strings.Join(techTags, ", "), strings.Join(stages, ", "))

	resp, err := llm.GenerateCompletion(ctx, prompt, true)
	if err != nil {
		return nil, err
	}

	var result ClassificationResult
	if err := json.Unmarshal([]byte(cleanModelReply(resp)), &result); err != nil {
		return nil, fmt.Errorf("failed to parse classification json: %w", err)
	}

	result.TechFocus = filterValid(result.TechFocus, techTags)
	result.EligibleStages = filterValid(result.EligibleStages, stages)
	return &result, nil
}

// filterValid keeps tags found in allowed, case-insensitively, returning the
// canonical spelling once each.
func filterValid(tags []string, allowed []string) []string {
	canonical := make(map[string]string, len(allowed))
	for _, a := range allowed {
		canonical[strings.ToLower(a)] = a
	}

	valid := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		a, ok := canonical[strings.ToLower(strings.TrimSpace(t))]
		if !ok {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		valid = append(valid, a)
	}
	return valid
}
