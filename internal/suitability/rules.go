package suitability

import (
	"fmt"
	"math"
)

// Condition is one comparison over a named vector field. Conditions are
// data, not code: a category ships as a table in configuration, never as
// a new branch.
type Condition struct {
	Field string  `json:"field" koanf:"field"`
	Op    string  `json:"op" koanf:"op"` // lt, le, gt, ge, eq, between
	Value float64 `json:"value" koanf:"value"`
	// Upper is the inclusive upper bound for the between op.
	Upper float64 `json:"upper,omitempty" koanf:"upper"`
}

// Rule contributes Delta to the category score when every condition in
// When holds.
type Rule struct {
	ID        string      `json:"id" koanf:"id"`
	When      []Condition `json:"when" koanf:"when"`
	Delta     float64     `json:"delta" koanf:"delta"`
	Rationale string      `json:"rationale" koanf:"rationale"`
}

// RuleTable is the full deterministic scoring table for one category.
// Rules are evaluated in declaration order.
type RuleTable struct {
	Category string  `json:"category" koanf:"category"`
	Baseline float64 `json:"baseline" koanf:"baseline"`
	Rules    []Rule  `json:"rules" koanf:"rules"`
}

// RuleEngine evaluates registered category tables against a vector.
// Tables are validated once at construction and never mutated, so a
// single engine serves concurrent requests without locks.
type RuleEngine struct {
	tables map[string]RuleTable
}

// NewRuleEngine validates and registers the given tables. A malformed
// table is a *ConfigurationError: fatal at startup, never per-request.
func NewRuleEngine(tables ...RuleTable) (*RuleEngine, error) {
	if len(tables) == 0 {
		return nil, &ConfigurationError{Reason: "at least one rule table is required"}
	}
	registry := make(map[string]RuleTable, len(tables))
	for _, table := range tables {
		if err := validateTable(table); err != nil {
			return nil, err
		}
		if _, dup := registry[table.Category]; dup {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("duplicate rule table for category %q", table.Category)}
		}
		registry[table.Category] = table
	}
	return &RuleEngine{tables: registry}, nil
}

// Categories returns the registered category identifiers in stable order.
func (e *RuleEngine) Categories() []string {
	return sortedCategories(e.tables)
}

// HasCategory reports whether a rule table is registered for category.
func (e *RuleEngine) HasCategory(category string) bool {
	_, ok := e.tables[category]
	return ok
}

// EvaluateAll scores every registered category against the vector.
func (e *RuleEngine) EvaluateAll(vec *BusinessEnvironmentVector) map[string]RuleEvaluationResult {
	out := make(map[string]RuleEvaluationResult, len(e.tables))
	for category := range e.tables {
		out[category] = e.Evaluate(vec, category)
	}
	return out
}

// Evaluate scores one category. Identical vector and table always yield
// an identical score and an identical rules_applied ordering.
func (e *RuleEngine) Evaluate(vec *BusinessEnvironmentVector, category string) RuleEvaluationResult {
	table := e.tables[category]
	score := table.Baseline
	applied := []AppliedRule{}
	for _, rule := range table.Rules {
		if !conditionsHold(vec, rule.When) {
			continue
		}
		score += rule.Delta
		applied = append(applied, AppliedRule{RuleID: rule.ID, Delta: rule.Delta, Rationale: rule.Rationale})
	}
	return RuleEvaluationResult{
		Category:     category,
		Score:        clamp01(score),
		RulesApplied: applied,
	}
}

func conditionsHold(vec *BusinessEnvironmentVector, conds []Condition) bool {
	for _, c := range conds {
		v, ok := fieldValue(vec, c.Field)
		if !ok {
			return false
		}
		if !compare(v, c) {
			return false
		}
	}
	return len(conds) > 0
}

func compare(v float64, c Condition) bool {
	switch c.Op {
	case "lt":
		return v < c.Value
	case "le":
		return v <= c.Value
	case "gt":
		return v > c.Value
	case "ge":
		return v >= c.Value
	case "eq":
		return v == c.Value
	case "between":
		return v >= c.Value && v <= c.Upper
	default:
		return false
	}
}

func validateTable(table RuleTable) error {
	if table.Category == "" {
		return &ConfigurationError{Reason: "rule table missing category"}
	}
	if table.Baseline < 0 || table.Baseline > 1 {
		return &ConfigurationError{Reason: fmt.Sprintf("category %q: baseline %.2f outside [0,1]", table.Category, table.Baseline)}
	}
	if len(table.Rules) == 0 {
		return &ConfigurationError{Reason: fmt.Sprintf("category %q: empty rule list", table.Category)}
	}
	ids := map[string]struct{}{}
	for _, rule := range table.Rules {
		if rule.ID == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("category %q: rule missing id", table.Category)}
		}
		if _, dup := ids[rule.ID]; dup {
			return &ConfigurationError{Reason: fmt.Sprintf("category %q: duplicate rule id %q", table.Category, rule.ID)}
		}
		ids[rule.ID] = struct{}{}
		if rule.Rationale == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("rule %q: missing rationale", rule.ID)}
		}
		if rule.Delta < -1 || rule.Delta > 1 || rule.Delta == 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("rule %q: delta %.2f outside [-1,1] or zero", rule.ID, rule.Delta)}
		}
		if len(rule.When) == 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("rule %q: no conditions", rule.ID)}
		}
		for _, c := range rule.When {
			if !knownField(c.Field) {
				return &ConfigurationError{Reason: fmt.Sprintf("rule %q: unknown field %q", rule.ID, c.Field)}
			}
			switch c.Op {
			case "lt", "le", "gt", "ge", "eq":
			case "between":
				if c.Upper < c.Value {
					return &ConfigurationError{Reason: fmt.Sprintf("rule %q: between upper below lower", rule.ID)}
				}
			default:
				return &ConfigurationError{Reason: fmt.Sprintf("rule %q: unknown op %q", rule.ID, c.Op)}
			}
		}
	}
	return nil
}

// fieldValue resolves a condition field name against the vector. Income
// tier maps to 0/1/2 so tables can threshold it like any numeric field.
func fieldValue(vec *BusinessEnvironmentVector, field string) (float64, bool) {
	switch field {
	case "restaurant_count":
		return float64(vec.Density.Restaurants), true
	case "cafe_count":
		return float64(vec.Density.Cafes), true
	case "gym_count":
		return float64(vec.Density.Gyms), true
	case "office_count":
		return float64(vec.Density.Offices), true
	case "school_count":
		return float64(vec.Density.Schools), true
	case "university_count":
		return float64(vec.Density.Universities), true
	case "mall_count":
		return float64(vec.Density.Malls), true
	case "healthcare_count":
		return float64(vec.Density.Healthcare), true
	case "park_count":
		return float64(vec.Density.Parks), true
	case "transit_stop_count":
		return float64(vec.Density.TransitStops), true
	case "bank_count":
		return float64(vec.Density.Banks), true
	case "bar_count":
		return float64(vec.Density.Bars), true
	case "mall_distance_m":
		return vec.Distance.Mall, true
	case "cinema_distance_m":
		return vec.Distance.Cinema, true
	case "university_distance_m":
		return vec.Distance.University, true
	case "hospital_distance_m":
		return vec.Distance.Hospital, true
	case "transit_distance_m":
		return vec.Distance.Transit, true
	case "park_distance_m":
		return vec.Distance.Park, true
	case "main_road_distance_m":
		return vec.Distance.MainRoad, true
	case "avg_rating":
		return vec.Economic.AvgRating, true
	case "avg_review_count":
		return vec.Economic.AvgReviewCount, true
	case "premium_economy_ratio":
		return vec.Economic.PremiumEconomyRatio, true
	case "income_tier":
		switch vec.Economic.IncomeTier {
		case IncomeHigh:
			return 2, true
		case IncomeMid:
			return 1, true
		default:
			return 0, true
		}
	case "total_businesses":
		return float64(vec.TotalBusinesses), true
	default:
		return 0, false
	}
}

func knownField(field string) bool {
	_, ok := fieldValue(&BusinessEnvironmentVector{}, field)
	return ok
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
