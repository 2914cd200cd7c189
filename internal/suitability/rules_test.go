package suitability

import (
	"errors"
	"reflect"
	"testing"
)

func baseVector() *BusinessEnvironmentVector {
	return &BusinessEnvironmentVector{
		Latitude:     40.4168,
		Longitude:    -3.7038,
		RadiusMeters: 500,
		CellID:       "cell-1",
		Distance: AmenityDistances{
			Mall:       SentinelDistanceMeters,
			Cinema:     SentinelDistanceMeters,
			University: SentinelDistanceMeters,
			Hospital:   SentinelDistanceMeters,
			Transit:    SentinelDistanceMeters,
			Park:       SentinelDistanceMeters,
			MainRoad:   SentinelDistanceMeters,
		},
		Economic: EconomicProfile{IncomeTier: IncomeMid},
	}
}

func mustEngine(t *testing.T, tables ...RuleTable) *RuleEngine {
	t.Helper()
	if len(tables) == 0 {
		tables = DefaultRuleTables()
	}
	engine, err := NewRuleEngine(tables...)
	if err != nil {
		t.Fatalf("NewRuleEngine: %v", err)
	}
	return engine
}

func TestRuleEngineDeterminism(t *testing.T) {
	engine := mustEngine(t)
	vec := baseVector()
	vec.Density.Gyms = 2
	vec.Density.Offices = 9
	vec.Distance.Park = 200

	first := engine.Evaluate(vec, "gym")
	for i := 0; i < 10; i++ {
		again := engine.Evaluate(vec, "gym")
		if again.Score != first.Score {
			t.Fatalf("run %d: score %v != %v", i, again.Score, first.Score)
		}
		if !reflect.DeepEqual(again.RulesApplied, first.RulesApplied) {
			t.Fatalf("run %d: rules_applied ordering changed", i)
		}
	}
}

func TestRuleEngineFavorableGymEnvironment(t *testing.T) {
	engine := mustEngine(t)
	vec := baseVector()
	vec.Density.Gyms = 0
	vec.Density.Offices = 10
	vec.Density.Universities = 1

	res := engine.Evaluate(vec, "gym")
	if res.Score < 0.75 {
		t.Fatalf("favorable environment scored %v, want >= 0.75", res.Score)
	}
	if len(res.RulesApplied) == 0 {
		t.Fatal("expected applied rules")
	}
}

func TestRuleEngineSaturatedGymEnvironment(t *testing.T) {
	engine := mustEngine(t)
	vec := baseVector()
	vec.Density.Gyms = 6

	res := engine.Evaluate(vec, "gym")
	if res.Score > 0.35 {
		t.Fatalf("saturated environment scored %v, want <= 0.35", res.Score)
	}
}

// Adding own-category competitors must never raise the score.
func TestRuleEngineCompetitionMonotone(t *testing.T) {
	engine := mustEngine(t)
	prev := 2.0
	for gyms := 0; gyms <= 8; gyms++ {
		vec := baseVector()
		vec.Density.Gyms = gyms
		score := engine.Evaluate(vec, "gym").Score
		if score > prev {
			t.Fatalf("gyms=%d scored %v, higher than gyms=%d at %v", gyms, score, gyms-1, prev)
		}
		prev = score
	}
}

func TestRuleEngineScoreClamped(t *testing.T) {
	table := RuleTable{
		Category: "test",
		Baseline: 0.9,
		Rules: []Rule{
			{ID: "r1", When: []Condition{{Field: "gym_count", Op: "ge", Value: 0}}, Delta: 0.5, Rationale: "push over one"},
			{ID: "r2", When: []Condition{{Field: "office_count", Op: "ge", Value: 100}}, Delta: -1.0, Rationale: "unreachable"},
		},
	}
	engine := mustEngine(t, table)
	res := engine.Evaluate(baseVector(), "test")
	if res.Score != 1.0 {
		t.Fatalf("score %v, want clamp to 1.0", res.Score)
	}
}

func TestRuleEngineDeclarationOrder(t *testing.T) {
	table := RuleTable{
		Category: "test",
		Baseline: 0.5,
		Rules: []Rule{
			{ID: "second-declared-first", When: []Condition{{Field: "gym_count", Op: "eq", Value: 0}}, Delta: 0.1, Rationale: "a"},
			{ID: "first-declared-second", When: []Condition{{Field: "office_count", Op: "eq", Value: 0}}, Delta: 0.1, Rationale: "b"},
		},
	}
	engine := mustEngine(t, table)
	res := engine.Evaluate(baseVector(), "test")
	if len(res.RulesApplied) != 2 {
		t.Fatalf("applied %d rules, want 2", len(res.RulesApplied))
	}
	if res.RulesApplied[0].RuleID != "second-declared-first" {
		t.Fatalf("first applied rule %q, want declaration order", res.RulesApplied[0].RuleID)
	}
}

func TestRuleEngineSupportsManyCategories(t *testing.T) {
	tables := append(DefaultRuleTables(), RuleTable{
		Category: "bookstore",
		Baseline: 0.5,
		Rules: []Rule{
			{ID: "bk-campus", When: []Condition{{Field: "university_count", Op: "ge", Value: 1}}, Delta: 0.1, Rationale: "campus nearby"},
		},
	})
	engine := mustEngine(t, tables...)

	vec := baseVector()
	vec.Density.Universities = 2
	results := engine.EvaluateAll(vec)
	if len(results) != 3 {
		t.Fatalf("got %d categories, want 3", len(results))
	}
	if results["bookstore"].Score != 0.6 {
		t.Fatalf("bookstore score %v, want 0.6", results["bookstore"].Score)
	}
}

func TestRuleEngineSingleCategory(t *testing.T) {
	engine := mustEngine(t, GymRuleTable())
	results := engine.EvaluateAll(baseVector())
	if len(results) != 1 {
		t.Fatalf("got %d categories, want 1", len(results))
	}
}

func TestNewRuleEngineRejectsBadTables(t *testing.T) {
	cases := []struct {
		name  string
		table RuleTable
	}{
		{"empty category", RuleTable{Baseline: 0.5, Rules: GymRuleTable().Rules}},
		{"baseline out of range", RuleTable{Category: "x", Baseline: 1.5, Rules: GymRuleTable().Rules}},
		{"no rules", RuleTable{Category: "x", Baseline: 0.5}},
		{"zero delta", RuleTable{Category: "x", Baseline: 0.5, Rules: []Rule{
			{ID: "r", When: []Condition{{Field: "gym_count", Op: "eq", Value: 0}}, Delta: 0, Rationale: "noop"},
		}}},
		{"unknown field", RuleTable{Category: "x", Baseline: 0.5, Rules: []Rule{
			{ID: "r", When: []Condition{{Field: "unicorn_count", Op: "eq", Value: 0}}, Delta: 0.1, Rationale: "r"},
		}}},
		{"bad op", RuleTable{Category: "x", Baseline: 0.5, Rules: []Rule{
			{ID: "r", When: []Condition{{Field: "gym_count", Op: "near", Value: 0}}, Delta: 0.1, Rationale: "r"},
		}}},
		{"missing rationale", RuleTable{Category: "x", Baseline: 0.5, Rules: []Rule{
			{ID: "r", When: []Condition{{Field: "gym_count", Op: "eq", Value: 0}}, Delta: 0.1},
		}}},
		{"duplicate rule id", RuleTable{Category: "x", Baseline: 0.5, Rules: []Rule{
			{ID: "r", When: []Condition{{Field: "gym_count", Op: "eq", Value: 0}}, Delta: 0.1, Rationale: "a"},
			{ID: "r", When: []Condition{{Field: "office_count", Op: "eq", Value: 0}}, Delta: 0.1, Rationale: "b"},
		}}},
		{"inverted between", RuleTable{Category: "x", Baseline: 0.5, Rules: []Rule{
			{ID: "r", When: []Condition{{Field: "gym_count", Op: "between", Value: 5, Upper: 1}}, Delta: 0.1, Rationale: "r"},
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRuleEngine(tc.table)
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("got %v, want ConfigurationError", err)
			}
		})
	}
}

func TestIncomeTierComparisons(t *testing.T) {
	engine := mustEngine(t)

	high := baseVector()
	high.Economic.IncomeTier = IncomeHigh
	low := baseVector()
	low.Economic.IncomeTier = IncomeLow

	highScore := engine.Evaluate(high, "gym").Score
	lowScore := engine.Evaluate(low, "gym").Score
	if highScore <= lowScore {
		t.Fatalf("high income %v should outscore low income %v for gyms", highScore, lowScore)
	}
}
