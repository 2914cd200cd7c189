package suitability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// contextualResponse is the strict schema the model must produce.
type contextualResponse struct {
	Categories            map[string]contextualCategory `json:"categories"`
	OverallRecommendation string                        `json:"overall_recommendation"`
}

type contextualCategory struct {
	Probability float64  `json:"probability"`
	Reasoning   string   `json:"reasoning"`
	KeyFactors  []string `json:"key_factors"`
	Risks       []string `json:"risks"`
}

// ContextualEvaluator asks a language model to assess the environment
// vector for every requested category in a single call.
type ContextualEvaluator struct {
	chain *ModelChain
}

func NewContextualEvaluator(chain *ModelChain) *ContextualEvaluator {
	return &ContextualEvaluator{chain: chain}
}

// Evaluate runs one model call (with the chain's retry and failover
// policy) covering all categories. On exhaustion it returns a
// *ContextualEvaluationFailure carrying the attempt count and the
// models tried; token usage is reported even on failure so callers can
// account for spend.
func (e *ContextualEvaluator) Evaluate(ctx context.Context, vec *BusinessEnvironmentVector, categories []string) (*ContextualOutcome, TokenUsage, error) {
	prompt, err := buildContextualPrompt(vec, categories)
	if err != nil {
		return nil, TokenUsage{}, fmt.Errorf("build contextual prompt: %w", err)
	}

	var resp contextualResponse
	validate := func() error { return validateContextualResponse(&resp, categories) }

	model, usage, attempts, runErr := e.chain.Run(ctx, prompt, &resp, validate)
	if runErr != nil {
		return nil, usage, &ContextualEvaluationFailure{
			Attempts: attempts,
			Models:   e.chain.Models(),
			Err:      runErr,
		}
	}

	out := &ContextualOutcome{
		Results:               make(map[string]ContextualEvaluationResult, len(categories)),
		OverallRecommendation: strings.TrimSpace(resp.OverallRecommendation),
		ModelUsed:             model,
		Usage:                 usage,
	}
	for _, cat := range categories {
		cc := resp.Categories[cat]
		out.Results[cat] = ContextualEvaluationResult{
			Category:    cat,
			Probability: clamp01(cc.Probability),
			Reasoning:   strings.TrimSpace(cc.Reasoning),
			KeyFactors:  trimAll(cc.KeyFactors),
			Risks:       trimAll(cc.Risks),
			ModelUsed:   model,
		}
	}
	return out, usage, nil
}

func validateContextualResponse(resp *contextualResponse, categories []string) error {
	if resp.Categories == nil {
		return fmt.Errorf("missing categories object")
	}
	for _, cat := range categories {
		cc, ok := resp.Categories[cat]
		if !ok {
			return fmt.Errorf("category %q missing from response", cat)
		}
		if cc.Probability < 0 || cc.Probability > 1 {
			return fmt.Errorf("category %q probability %v out of [0,1]", cat, cc.Probability)
		}
		if strings.TrimSpace(cc.Reasoning) == "" {
			return fmt.Errorf("category %q missing reasoning", cat)
		}
	}
	if strings.TrimSpace(resp.OverallRecommendation) == "" {
		return fmt.Errorf("missing overall_recommendation")
	}
	return nil
}

func buildContextualPrompt(vec *BusinessEnvironmentVector, categories []string) (string, error) {
	payload, err := json.MarshalIndent(vec, "", "  ")
	if err != nil {
		return "", err
	}
	sorted := append([]string(nil), categories...)
	sort.Strings(sorted)

	var schema strings.Builder
	schema.WriteString("{\n  \"categories\": {\n")
	for i, cat := range sorted {
		schema.WriteString(fmt.Sprintf("    %q: {\"probability\": <float 0-1>, \"reasoning\": \"<2-3 sentences>\", \"key_factors\": [\"...\"], \"risks\": [\"...\"]}", cat))
		if i < len(sorted)-1 {
			schema.WriteString(",")
		}
		schema.WriteString("\n")
	}
	schema.WriteString("  },\n  \"overall_recommendation\": \"<one sentence naming the strongest category and why>\"\n}")

	return fmt.Sprintf(`Assess the suitability of a location for each candidate business category, using the business environment snapshot below.

The snapshot covers a circle of %d meters around (%.5f, %.5f). Counts are businesses inside the circle; distances are meters to the nearest instance of each amenity, with %.0f meaning none was found. avg_rating and avg_review_count summarize existing businesses nearby; income_tier is an inferred proxy, not census data.

Environment snapshot:
%s

Candidate categories: %s

For each category estimate the probability (0.0 to 1.0) that a new business of that category would be viable at this location, weighing competitive saturation, demand drivers, foot traffic, accessibility, and income fit. Be decisive and ground every claim in the snapshot values.

Respond with JSON in exactly this shape:
%s`, vec.RadiusMeters, vec.Latitude, vec.Longitude, SentinelDistanceMeters, payload, strings.Join(sorted, ", "), schema.String()), nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
