package suitability

import "time"

// SentinelDistanceMeters marks "no such amenity found within the search
// radius". Found amenities always report a distance strictly below this
// value, so a genuine zero-distance match is never ambiguous.
const SentinelDistanceMeters = 99999.0

const (
	MinRadiusMeters     = 100
	MaxRadiusMeters     = 2000
	DefaultRadiusMeters = 500
)

type Mode string

const (
	ModeFast Mode = "fast"
	ModeFull Mode = "full"
)

type Tier string

const (
	TierExcellent      Tier = "excellent"
	TierGood           Tier = "good"
	TierModerate       Tier = "moderate"
	TierPoor           Tier = "poor"
	TierNotRecommended Tier = "not_recommended"
)

type IncomeTier string

const (
	IncomeLow  IncomeTier = "low"
	IncomeMid  IncomeTier = "mid"
	IncomeHigh IncomeTier = "high"
)

// ContextualStatus records how the contextual stage ended for a request.
type ContextualStatus string

const (
	ContextualSucceeded ContextualStatus = "succeeded"
	ContextualFailed    ContextualStatus = "failed"
	ContextualSkipped   ContextualStatus = "skipped"
)

// Stage identifies a pipeline state. Requests move strictly forward:
// idle -> building_vector -> rule_evaluating -> [contextual_evaluating]
// -> combining -> done, with error terminal from any stage before combining.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageVector     Stage = "building_vector"
	StageRules      Stage = "rule_evaluating"
	StageContextual Stage = "contextual_evaluating"
	StageCombining  Stage = "combining"
	StageDone       Stage = "done"
	StageError      Stage = "error"
)

type DensityCounts struct {
	Restaurants  int `json:"restaurants"`
	Cafes        int `json:"cafes"`
	Gyms         int `json:"gyms"`
	Offices      int `json:"offices"`
	Schools      int `json:"schools"`
	Universities int `json:"universities"`
	Malls        int `json:"malls"`
	Healthcare   int `json:"healthcare"`
	Parks        int `json:"parks"`
	TransitStops int `json:"transit_stops"`
	Banks        int `json:"banks"`
	Bars         int `json:"bars"`
}

// AmenityDistances holds nearest-instance distances in meters, or
// SentinelDistanceMeters when nothing of that type was found.
type AmenityDistances struct {
	Mall       float64 `json:"mall_m"`
	Cinema     float64 `json:"cinema_m"`
	University float64 `json:"university_m"`
	Hospital   float64 `json:"hospital_m"`
	Transit    float64 `json:"transit_m"`
	Park       float64 `json:"park_m"`
	MainRoad   float64 `json:"main_road_m"`
}

type EconomicProfile struct {
	AvgRating           float64    `json:"avg_rating"`
	AvgReviewCount      float64    `json:"avg_review_count"`
	PremiumEconomyRatio float64    `json:"premium_economy_ratio"`
	IncomeTier          IncomeTier `json:"income_tier"`
}

// BusinessEnvironmentVector is the fixed-shape numeric snapshot of a
// location's surroundings. Built per request, never persisted here.
type BusinessEnvironmentVector struct {
	Latitude     float64          `json:"lat"`
	Longitude    float64          `json:"lon"`
	RadiusMeters int              `json:"radius_m"`
	CellID       string           `json:"cell_id"`
	Density      DensityCounts    `json:"density"`
	Distance     AmenityDistances `json:"distance"`
	Economic     EconomicProfile  `json:"economic"`
	// TotalBusinesses is the deduplicated count across all lookups.
	TotalBusinesses int `json:"total_businesses"`
}

type AppliedRule struct {
	RuleID    string  `json:"rule_id"`
	Delta     float64 `json:"delta"`
	Rationale string  `json:"rationale"`
}

// RuleEvaluationResult is the deterministic baseline score for one
// category: clamp-to-[0,1] of the table baseline plus all applied deltas,
// rules listed in table-declaration order.
type RuleEvaluationResult struct {
	Category     string        `json:"category"`
	Score        float64       `json:"score"`
	RulesApplied []AppliedRule `json:"rules_applied"`
}

// ContextualEvaluationResult is one category's slice of the text-generation
// assessment. It exists only when the contextual stage ran and parsed; a
// skipped or failed stage yields no result at all, never a zero placeholder.
type ContextualEvaluationResult struct {
	Category    string   `json:"category"`
	Probability float64  `json:"probability"`
	Reasoning   string   `json:"reasoning"`
	KeyFactors  []string `json:"key_factors"`
	Risks       []string `json:"risks"`
	ModelUsed   string   `json:"model_used"`
}

type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// ContextualOutcome is the full-stage output across categories.
type ContextualOutcome struct {
	Results               map[string]ContextualEvaluationResult `json:"results"`
	OverallRecommendation string                                `json:"overall_recommendation"`
	ModelUsed             string                                `json:"model_used"`
	Usage                 TokenUsage                            `json:"usage"`
}

type CategoryRecommendation struct {
	FinalScore            float64  `json:"score"`
	Suitability           Tier     `json:"suitability"`
	RuleScore             float64  `json:"rule_score"`
	ContextualProbability *float64 `json:"contextual_probability,omitempty"`
	Reasoning             string   `json:"reasoning"`
	PositiveFactors       []string `json:"positive_factors"`
	Concerns              []string `json:"concerns"`
}

type BestCategory struct {
	Category    string  `json:"best_category"`
	Score       float64 `json:"score"`
	Suitability Tier    `json:"suitability"`
	Message     string  `json:"message"`
}

type StageTimings struct {
	BuildVector time.Duration `json:"build_vector"`
	Rules       time.Duration `json:"rules"`
	Contextual  time.Duration `json:"contextual"`
	Combine     time.Duration `json:"combine"`
	Total       time.Duration `json:"total"`
}

// CombinedRecommendation is the per-request output of the pipeline.
// Fully ephemeral: constructed, returned, discarded. Callers that want
// caching or persistence add it outside this package.
type CombinedRecommendation struct {
	CellID           string                            `json:"cell_id"`
	Mode             Mode                              `json:"mode"`
	ContextualStatus ContextualStatus                  `json:"contextual_status"`
	Categories       map[string]CategoryRecommendation `json:"categories"`
	Best             BestCategory                      `json:"recommendation"`
	ModelUsed        string                            `json:"model_used"`
	KeyFactors       []string                          `json:"key_factors,omitempty"`
	Risks            []string                          `json:"risks,omitempty"`
	TotalBusinesses  int                               `json:"total_businesses_nearby"`
	Timing           StageTimings                      `json:"timing"`
	GeneratedAt      time.Time                         `json:"generated_at"`
}

// RuleOnly reports whether the recommendation was produced without a
// contextual contribution, whether by fast mode or by degradation.
func (c CombinedRecommendation) RuleOnly() bool {
	return c.ContextualStatus != ContextualSucceeded
}
