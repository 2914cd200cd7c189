package suitability

// DefaultBaseline is the neutral starting score every built-in table
// uses before deltas apply.
const DefaultBaseline = 0.5

// DefaultRuleTables returns the built-in category tables. Deployments
// add categories by supplying more tables through configuration; the
// engine never special-cases these two.
func DefaultRuleTables() []RuleTable {
	return []RuleTable{GymRuleTable(), CafeRuleTable()}
}

func GymRuleTable() RuleTable {
	return RuleTable{
		Category: "gym",
		Baseline: DefaultBaseline,
		Rules: []Rule{
			{
				ID:        "gym_no_competition",
				When:      []Condition{{Field: "gym_count", Op: "eq", Value: 0}},
				Delta:     0.15,
				Rationale: "No competing gyms inside the search radius",
			},
			{
				ID:        "gym_light_competition",
				When:      []Condition{{Field: "gym_count", Op: "between", Value: 1, Upper: 2}},
				Delta:     0.05,
				Rationale: "Only 1-2 competing gyms nearby",
			},
			{
				ID:        "gym_saturated",
				When:      []Condition{{Field: "gym_count", Op: "ge", Value: 5}},
				Delta:     -0.20,
				Rationale: "Market saturated: 5 or more gyms already operate here",
			},
			{
				ID:        "gym_office_demand",
				When:      []Condition{{Field: "office_count", Op: "ge", Value: 8}},
				Delta:     0.10,
				Rationale: "Dense office population supplies weekday demand",
			},
			{
				ID:        "gym_some_offices",
				When:      []Condition{{Field: "office_count", Op: "between", Value: 3, Upper: 7}},
				Delta:     0.05,
				Rationale: "Moderate office presence nearby",
			},
			{
				ID:        "gym_university_demand",
				When:      []Condition{{Field: "university_count", Op: "ge", Value: 1}},
				Delta:     0.08,
				Rationale: "University population within reach",
			},
			{
				ID:        "gym_park_synergy",
				When:      []Condition{{Field: "park_distance_m", Op: "le", Value: 400}},
				Delta:     0.04,
				Rationale: "Park within 400 m attracts fitness-oriented residents",
			},
			{
				ID:        "gym_transit_access",
				When:      []Condition{{Field: "transit_distance_m", Op: "le", Value: 300}},
				Delta:     0.04,
				Rationale: "Transit stop within 300 m widens the catchment area",
			},
			{
				ID:        "gym_high_income",
				When:      []Condition{{Field: "income_tier", Op: "eq", Value: 2}},
				Delta:     0.06,
				Rationale: "High income area supports premium memberships",
			},
			{
				ID:        "gym_low_income",
				When:      []Condition{{Field: "income_tier", Op: "eq", Value: 0}},
				Delta:     -0.06,
				Rationale: "Low income area limits membership pricing",
			},
		},
	}
}

func CafeRuleTable() RuleTable {
	return RuleTable{
		Category: "cafe",
		Baseline: DefaultBaseline,
		Rules: []Rule{
			{
				ID:        "cafe_no_competition",
				When:      []Condition{{Field: "cafe_count", Op: "eq", Value: 0}},
				Delta:     0.12,
				Rationale: "No competing cafes inside the search radius",
			},
			{
				ID:        "cafe_light_competition",
				When:      []Condition{{Field: "cafe_count", Op: "between", Value: 1, Upper: 3}},
				Delta:     0.04,
				Rationale: "Only a few competing cafes nearby",
			},
			{
				ID:        "cafe_saturated",
				When:      []Condition{{Field: "cafe_count", Op: "ge", Value: 6}},
				Delta:     -0.18,
				Rationale: "Market saturated: 6 or more cafes already operate here",
			},
			{
				ID:        "cafe_office_foot_traffic",
				When:      []Condition{{Field: "office_count", Op: "ge", Value: 5}},
				Delta:     0.12,
				Rationale: "Office workers drive weekday coffee traffic",
			},
			{
				ID:        "cafe_campus_crowd",
				When:      []Condition{{Field: "university_count", Op: "ge", Value: 1}},
				Delta:     0.08,
				Rationale: "Student population within reach",
			},
			{
				ID:        "cafe_school_daytime",
				When:      []Condition{{Field: "school_count", Op: "ge", Value: 2}},
				Delta:     0.04,
				Rationale: "Schools nearby bring daytime pickup traffic",
			},
			{
				ID:        "cafe_transit_flow",
				When:      []Condition{{Field: "transit_distance_m", Op: "le", Value: 250}},
				Delta:     0.06,
				Rationale: "Commuter flow from transit stop within 250 m",
			},
			{
				ID:        "cafe_mall_anchor",
				When:      []Condition{{Field: "mall_distance_m", Op: "le", Value: 500}},
				Delta:     0.04,
				Rationale: "Shopping mall within 500 m anchors foot traffic",
			},
			{
				ID:        "cafe_restaurant_cluster",
				When:      []Condition{{Field: "restaurant_count", Op: "ge", Value: 10}},
				Delta:     0.05,
				Rationale: "Established dining cluster signals food-service demand",
			},
			{
				ID:        "cafe_high_income",
				When:      []Condition{{Field: "income_tier", Op: "eq", Value: 2}},
				Delta:     0.05,
				Rationale: "High income area supports specialty pricing",
			},
			{
				ID:        "cafe_low_income",
				When:      []Condition{{Field: "income_tier", Op: "eq", Value: 0}},
				Delta:     -0.05,
				Rationale: "Low income area compresses margins",
			},
			{
				ID:        "cafe_nightlife_mismatch",
				When:      []Condition{{Field: "bar_count", Op: "ge", Value: 8}},
				Delta:     -0.04,
				Rationale: "Nightlife-heavy block mismatches daytime cafe hours",
			},
		},
	}
}
