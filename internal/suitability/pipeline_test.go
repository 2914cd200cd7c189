package suitability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abdullahx404/startsmart/internal/places"
)

func testOrchestrator(t *testing.T, lookup Lookup, gen TextGenerator) *Orchestrator {
	t.Helper()
	engine := mustEngine(t)
	combiner := mustCombiner(t)
	var contextual *ContextualEvaluator
	if gen != nil {
		contextual = NewContextualEvaluator(NewModelChain(gen, "primary", "fallback"))
	}
	return NewOrchestrator(NewVectorBuilder(lookup), engine, contextual, combiner, PipelineConfig{
		RequestTimeout:    5 * time.Second,
		ContextualTimeout: 2 * time.Second,
		BatchConcurrency:  2,
	})
}

func favorableGymLookup() *mockLookup {
	return &mockLookup{byKeyword: map[string][]places.Business{
		"office": {
			biz("o1", "office", 40.4170, -3.7040, 4.0, 40),
			biz("o2", "office", 40.4171, -3.7041, 4.1, 35),
			biz("o3", "office", 40.4172, -3.7042, 3.9, 20),
			biz("o4", "office", 40.4173, -3.7043, 4.3, 60),
			biz("o5", "office", 40.4174, -3.7044, 4.0, 25),
			biz("o6", "office", 40.4175, -3.7045, 4.2, 45),
			biz("o7", "office", 40.4176, -3.7046, 3.8, 15),
			biz("o8", "office", 40.4177, -3.7047, 4.1, 50),
		},
		"university": {biz("u1", "university", 40.4180, -3.7050, 4.4, 300)},
	}}
}

func TestRecommendFastModeSkipsContextual(t *testing.T) {
	gen := &mockGenerator{}
	o := testOrchestrator(t, favorableGymLookup(), gen)

	rec, err := o.Recommend(context.Background(), Request{Latitude: 40.4168, Longitude: -3.7038, Category: "gym", Mode: ModeFast})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("contextual evaluator called %d times in fast mode", gen.calls)
	}
	if rec.ContextualStatus != ContextualSkipped {
		t.Fatalf("status %s, want skipped", rec.ContextualStatus)
	}
	if !rec.RuleOnly() {
		t.Fatal("fast mode must be rule-only")
	}
	if rec.Categories["gym"].FinalScore != rec.Categories["gym"].RuleScore {
		t.Fatal("fast mode final score must equal rule score")
	}
	if rec.ModelUsed != "" {
		t.Fatalf("model used %q in fast mode", rec.ModelUsed)
	}
}

func TestRecommendFastModeDeterministic(t *testing.T) {
	o := testOrchestrator(t, favorableGymLookup(), nil)
	req := Request{Latitude: 40.4168, Longitude: -3.7038, Category: "gym", Mode: ModeFast}

	first, err := o.Recommend(context.Background(), req)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := o.Recommend(context.Background(), req)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if again.Best.Score != first.Best.Score || again.Best.Category != first.Best.Category {
			t.Fatalf("run %d: result drifted: %v vs %v", i, again.Best, first.Best)
		}
	}
}

func TestRecommendFullModeCombines(t *testing.T) {
	gen := &mockGenerator{responses: []string{goodResponse("cafe", "gym")}}
	o := testOrchestrator(t, favorableGymLookup(), gen)

	rec, err := o.Recommend(context.Background(), Request{Latitude: 40.4168, Longitude: -3.7038, Category: "gym", Mode: ModeFull})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.ContextualStatus != ContextualSucceeded {
		t.Fatalf("status %s, want succeeded", rec.ContextualStatus)
	}
	if rec.RuleOnly() {
		t.Fatal("successful full mode must not be rule-only")
	}
	if rec.Categories["gym"].ContextualProbability == nil {
		t.Fatal("contextual probability missing")
	}
	if rec.ModelUsed != "primary" {
		t.Fatalf("model used %q", rec.ModelUsed)
	}
	if len(rec.KeyFactors) == 0 || len(rec.Risks) == 0 {
		t.Fatal("top-level key factors and risks missing in full mode")
	}
}

// A full-mode request whose contextual stage fails must still return a
// rule-only recommendation, never an error.
func TestRecommendFullModeDegradesOnContextualFailure(t *testing.T) {
	gen := &mockGenerator{responses: []string{"garbage", "garbage", "garbage", "garbage"}}
	o := testOrchestrator(t, favorableGymLookup(), gen)

	rec, err := o.Recommend(context.Background(), Request{Latitude: 40.4168, Longitude: -3.7038, Category: "gym", Mode: ModeFull})
	if err != nil {
		t.Fatalf("degraded request must not fail: %v", err)
	}
	if rec.ContextualStatus != ContextualFailed {
		t.Fatalf("status %s, want failed", rec.ContextualStatus)
	}
	if !rec.RuleOnly() {
		t.Fatal("degraded result must be flagged rule-only")
	}
	if rec.Categories["gym"].FinalScore != rec.Categories["gym"].RuleScore {
		t.Fatal("degraded final score must equal rule score")
	}
}

func TestRecommendValidation(t *testing.T) {
	o := testOrchestrator(t, favorableGymLookup(), nil)
	cases := []Request{
		{Latitude: 91, Longitude: 0, Category: "gym", Mode: ModeFast},
		{Latitude: 0, Longitude: -181, Category: "gym", Mode: ModeFast},
		{Latitude: 0, Longitude: 0, Category: "laundromat", Mode: ModeFast},
		{Latitude: 0, Longitude: 0, Category: "gym", Mode: "turbo"},
		{Latitude: 0, Longitude: 0, RadiusMeters: 50, Category: "gym", Mode: ModeFast},
		{Latitude: 0, Longitude: 0, RadiusMeters: 50000, Category: "gym", Mode: ModeFast},
	}
	for _, req := range cases {
		_, err := o.Recommend(context.Background(), req)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("request %+v: got %v, want ValidationError", req, err)
		}
	}
}

func TestRecommendValidationBeforeExternalCalls(t *testing.T) {
	lookup := &mockLookup{byKeyword: map[string][]places.Business{}}
	o := testOrchestrator(t, lookup, nil)
	_, _ = o.Recommend(context.Background(), Request{Latitude: 95, Longitude: 0, Mode: ModeFast})
	if len(lookup.calls) != 0 {
		t.Fatal("validation failure must precede any lookup call")
	}
}

type slowLookup struct {
	delay time.Duration
}

func (s *slowLookup) SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int, keyword string) ([]places.Business, error) {
	select {
	case <-time.After(s.delay):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRecommendRequestTimeout(t *testing.T) {
	o := NewOrchestrator(NewVectorBuilder(&slowLookup{delay: time.Second}), mustEngine(t), nil, mustCombiner(t), PipelineConfig{
		RequestTimeout:    50 * time.Millisecond,
		ContextualTimeout: 25 * time.Millisecond,
		BatchConcurrency:  1,
	})
	_, err := o.Recommend(context.Background(), Request{Latitude: 40.0, Longitude: -3.0, Mode: ModeFast})
	var pte *PipelineTimeoutError
	if !errors.As(err, &pte) {
		t.Fatalf("got %v, want PipelineTimeoutError", err)
	}
	if pte.Stage != StageVector {
		t.Fatalf("timed out in stage %s, want %s", pte.Stage, StageVector)
	}
}

type flakyLookup struct {
	failLat float64
}

func (f *flakyLookup) SearchNearby(ctx context.Context, lat, lon float64, radiusMeters int, keyword string) ([]places.Business, error) {
	if lat == f.failLat {
		return nil, errors.New("upstream unavailable")
	}
	return nil, nil
}

// One failing batch item must not poison its siblings, and results come
// back in input order.
func TestRecommendBatchIsolatesFailures(t *testing.T) {
	o := NewOrchestrator(NewVectorBuilder(&flakyLookup{failLat: 41.0}), mustEngine(t), nil, mustCombiner(t), PipelineConfig{
		RequestTimeout:    5 * time.Second,
		ContextualTimeout: time.Second,
		BatchConcurrency:  2,
	})
	reqs := []Request{
		{Latitude: 40.0, Longitude: -3.0, Mode: ModeFast},
		{Latitude: 41.0, Longitude: -3.0, Mode: ModeFast},
		{Latitude: 42.0, Longitude: -3.0, Mode: ModeFast},
	}
	items := o.RecommendBatch(context.Background(), reqs)
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	for i, item := range items {
		if item.Index != i {
			t.Fatalf("item %d reports index %d", i, item.Index)
		}
	}
	if items[0].Err != nil || items[2].Err != nil {
		t.Fatalf("healthy items failed: %v / %v", items[0].Err, items[2].Err)
	}
	var ese *ExternalServiceError
	if !errors.As(items[1].Err, &ese) {
		t.Fatalf("item 1: got %v, want ExternalServiceError", items[1].Err)
	}
	if items[1].Recommendation != nil {
		t.Fatal("failed item must not carry a recommendation")
	}
}

func TestRecommendDefaults(t *testing.T) {
	lookup := &mockLookup{byKeyword: map[string][]places.Business{}}
	o := testOrchestrator(t, lookup, nil)
	d, err := o.Debug(context.Background(), Request{Latitude: 40.0, Longitude: -3.0, Mode: ModeFast})
	if err != nil {
		t.Fatalf("Debug: %v", err)
	}
	if d.Vector.RadiusMeters != DefaultRadiusMeters {
		t.Fatalf("radius %d, want default %d", d.Vector.RadiusMeters, DefaultRadiusMeters)
	}
	if len(d.RuleResults) != 2 {
		t.Fatalf("rule results for %d categories, want 2", len(d.RuleResults))
	}
	if d.Recommendation.Mode != ModeFast {
		t.Fatalf("mode %s", d.Recommendation.Mode)
	}
}
