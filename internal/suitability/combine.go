package suitability

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	DefaultRuleWeight       = 0.65
	DefaultContextualWeight = 0.35

	weightSumEpsilon = 1e-9
	tieEpsilon       = 1e-9
)

// Weights controls the rule/contextual blend. The two components must
// sum to exactly 1.0 within floating-point tolerance.
type Weights struct {
	Rule       float64 `json:"rule" koanf:"rule"`
	Contextual float64 `json:"contextual" koanf:"contextual"`
}

func DefaultWeights() Weights {
	return Weights{Rule: DefaultRuleWeight, Contextual: DefaultContextualWeight}
}

func (w Weights) Validate() error {
	if w.Rule < 0 || w.Contextual < 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("ensemble weights must be non-negative, got rule=%v contextual=%v", w.Rule, w.Contextual)}
	}
	if math.Abs(w.Rule+w.Contextual-1.0) > weightSumEpsilon {
		return &ConfigurationError{Reason: fmt.Sprintf("ensemble weights must sum to 1.0, got %v", w.Rule+w.Contextual)}
	}
	return nil
}

// Tier thresholds, inclusive at the lower bound.
func TierFor(score float64) Tier {
	switch {
	case score >= 0.80:
		return TierExcellent
	case score >= 0.65:
		return TierGood
	case score >= 0.45:
		return TierModerate
	case score >= 0.25:
		return TierPoor
	default:
		return TierNotRecommended
	}
}

// Combiner merges rule scores with contextual probabilities into final
// per-category recommendations.
type Combiner struct {
	weights Weights
}

func NewCombiner(weights Weights) (*Combiner, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Combiner{weights: weights}, nil
}

// Combine blends each category's rule score with its contextual
// probability. When contextual is nil the rule score stands alone at
// full weight rather than being scaled down. requestedCategory breaks
// score ties in the best-category pick.
func (c *Combiner) Combine(ruleResults map[string]RuleEvaluationResult, contextual *ContextualOutcome, requestedCategory string) (map[string]CategoryRecommendation, BestCategory) {
	out := make(map[string]CategoryRecommendation, len(ruleResults))
	for cat, rr := range ruleResults {
		rec := CategoryRecommendation{
			RuleScore: rr.Score,
		}
		if contextual != nil {
			cr, ok := contextual.Results[cat]
			if ok {
				p := cr.Probability
				rec.ContextualProbability = &p
				rec.FinalScore = c.weights.Rule*rr.Score + c.weights.Contextual*p
				rec.Reasoning = cr.Reasoning
			}
		}
		if rec.ContextualProbability == nil {
			rec.FinalScore = rr.Score
		}
		rec.Suitability = TierFor(rec.FinalScore)
		rec.PositiveFactors, rec.Concerns = mergeFactors(rr, contextualFor(contextual, cat))
		out[cat] = rec
	}
	return out, pickBest(out, requestedCategory)
}

func contextualFor(outcome *ContextualOutcome, cat string) *ContextualEvaluationResult {
	if outcome == nil {
		return nil
	}
	if cr, ok := outcome.Results[cat]; ok {
		return &cr
	}
	return nil
}

// mergeFactors folds rule rationales and contextual factors into a
// single deduplicated pair of lists: positive-delta rationales plus
// key factors, negative-delta rationales plus risks.
func mergeFactors(rr RuleEvaluationResult, cr *ContextualEvaluationResult) (positives, concerns []string) {
	seenPos := map[string]bool{}
	seenNeg := map[string]bool{}
	add := func(dst *[]string, seen map[string]bool, s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			return
		}
		seen[strings.ToLower(s)] = true
		*dst = append(*dst, s)
	}
	for _, ar := range rr.RulesApplied {
		if ar.Delta > 0 {
			add(&positives, seenPos, ar.Rationale)
		} else if ar.Delta < 0 {
			add(&concerns, seenNeg, ar.Rationale)
		}
	}
	if cr != nil {
		for _, f := range cr.KeyFactors {
			add(&positives, seenPos, f)
		}
		for _, r := range cr.Risks {
			add(&concerns, seenNeg, r)
		}
	}
	if positives == nil {
		positives = []string{}
	}
	if concerns == nil {
		concerns = []string{}
	}
	return positives, concerns
}

// pickBest selects the highest-scoring category. Within tieEpsilon of
// the top score the requested category wins; otherwise ties resolve to
// the lexicographically first category so the pick is deterministic.
func pickBest(recs map[string]CategoryRecommendation, requestedCategory string) BestCategory {
	cats := make([]string, 0, len(recs))
	for cat := range recs {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	best := BestCategory{}
	first := true
	for _, cat := range cats {
		if first || recs[cat].FinalScore > best.Score+tieEpsilon {
			best = BestCategory{Category: cat, Score: recs[cat].FinalScore, Suitability: recs[cat].Suitability}
			first = false
		}
	}
	if requestedCategory != "" {
		if rec, ok := recs[requestedCategory]; ok && math.Abs(rec.FinalScore-best.Score) <= tieEpsilon {
			best = BestCategory{Category: requestedCategory, Score: rec.FinalScore, Suitability: rec.Suitability}
		}
	}
	best.Message = bestMessage(best)
	return best
}

func bestMessage(b BestCategory) string {
	switch b.Suitability {
	case TierExcellent:
		return fmt.Sprintf("%s is an excellent fit for this location (score %.2f).", b.Category, b.Score)
	case TierGood:
		return fmt.Sprintf("%s is a good fit for this location (score %.2f).", b.Category, b.Score)
	case TierModerate:
		return fmt.Sprintf("%s is a moderate fit for this location (score %.2f); review the concerns before committing.", b.Category, b.Score)
	case TierPoor:
		return fmt.Sprintf("%s is a poor fit for this location (score %.2f).", b.Category, b.Score)
	default:
		return fmt.Sprintf("No evaluated category is recommended at this location (best: %s, score %.2f).", b.Category, b.Score)
	}
}
