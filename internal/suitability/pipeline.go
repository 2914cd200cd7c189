package suitability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/abdullahx404/startsmart/internal/logging"
	"github.com/abdullahx404/startsmart/internal/metrics"
	"github.com/abdullahx404/startsmart/internal/telemetry"
)

// Request is a single recommendation query. RadiusMeters of zero takes
// the default; a non-zero radius outside [MinRadiusMeters,
// MaxRadiusMeters] is rejected before any external call. CellID is
// derived from the coordinate when absent. Category is optional and
// only biases the best-category tie-break.
type Request struct {
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	RadiusMeters int     `json:"radius_meters"`
	CellID       string  `json:"cell_id,omitempty"`
	Category     string  `json:"category,omitempty"`
	Mode         Mode    `json:"mode"`
}

func (r *Request) normalize() {
	if r.Mode == "" {
		r.Mode = ModeFull
	}
	if r.RadiusMeters == 0 {
		r.RadiusMeters = DefaultRadiusMeters
	}
}

// PipelineConfig carries the orchestrator's timing knobs.
type PipelineConfig struct {
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	ContextualTimeout time.Duration `koanf:"contextual_timeout"`
	BatchConcurrency  int64         `koanf:"batch_concurrency"`
}

func (c *PipelineConfig) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.ContextualTimeout <= 0 {
		c.ContextualTimeout = 30 * time.Second
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 4
	}
}

// Orchestrator drives a request through the staged pipeline: build the
// environment vector, evaluate rule tables, optionally consult the
// contextual evaluator, then combine. The contextual evaluator may be
// nil, in which case full-mode requests degrade the same way they do
// when the evaluator fails.
type Orchestrator struct {
	builder    *VectorBuilder
	engine     *RuleEngine
	contextual *ContextualEvaluator
	combiner   *Combiner
	cfg        PipelineConfig
}

func NewOrchestrator(builder *VectorBuilder, engine *RuleEngine, contextual *ContextualEvaluator, combiner *Combiner, cfg PipelineConfig) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{builder: builder, engine: engine, contextual: contextual, combiner: combiner, cfg: cfg}
}

// DebugResult exposes the intermediate stage outputs alongside the
// final recommendation for the debug entry point.
type DebugResult struct {
	Recommendation *CombinedRecommendation         `json:"recommendation"`
	Vector         *BusinessEnvironmentVector      `json:"vector"`
	RuleResults    map[string]RuleEvaluationResult `json:"rule_results"`
	Contextual     *ContextualOutcome              `json:"contextual,omitempty"`
}

// Recommend runs one request end to end. Rule-table scoring always
// completes; contextual failure degrades the result rather than
// failing it. Only vector-build failure, validation failure, or the
// request deadline produce an error.
func (o *Orchestrator) Recommend(ctx context.Context, req Request) (*CombinedRecommendation, error) {
	d, err := o.run(ctx, req)
	if err != nil {
		return nil, err
	}
	return d.Recommendation, nil
}

// Debug runs the same pipeline but keeps the intermediate outputs.
func (o *Orchestrator) Debug(ctx context.Context, req Request) (*DebugResult, error) {
	return o.run(ctx, req)
}

func (o *Orchestrator) run(ctx context.Context, req Request) (*DebugResult, error) {
	req.normalize()
	if err := o.validate(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	stage := StageVector
	timing := StageTimings{}

	log := logging.Logger().With().
		Float64("lat", req.Latitude).
		Float64("lon", req.Longitude).
		Int("radius_m", req.RadiusMeters).
		Str("category", req.Category).
		Str("mode", string(req.Mode)).
		Logger()

	fail := func(err error) (*DebugResult, error) {
		metrics.PipelineRuns.WithLabelValues(string(req.Mode), "error").Inc()
		if ctx.Err() != nil {
			return nil, &PipelineTimeoutError{Stage: stage, Timeout: o.cfg.RequestTimeout}
		}
		return nil, err
	}

	cellID := req.CellID
	if cellID == "" {
		cellID = DeriveCellID(req.Latitude, req.Longitude)
	}

	stageStart := time.Now()
	sctx, span := telemetry.StartStage(ctx, string(stage))
	vec, err := o.builder.Build(sctx, req.Latitude, req.Longitude, req.RadiusMeters, cellID)
	span.End()
	timing.BuildVector = time.Since(stageStart)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(timing.BuildVector.Seconds())
	if err != nil {
		log.Error().Err(err).Msg("environment vector build failed")
		return fail(err)
	}

	stage = StageRules
	stageStart = time.Now()
	_, span = telemetry.StartStage(ctx, string(stage))
	ruleResults := o.engine.EvaluateAll(vec)
	span.End()
	timing.Rules = time.Since(stageStart)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(timing.Rules.Seconds())

	var outcome *ContextualOutcome
	status := ContextualSkipped
	modelUsed := ""
	if req.Mode == ModeFull {
		stage = StageContextual
		stageStart = time.Now()
		outcome, status, modelUsed = o.runContextual(ctx, vec, log)
		timing.Contextual = time.Since(stageStart)
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(timing.Contextual.Seconds())
		if ctx.Err() != nil {
			// the request deadline, not just the stage deadline, expired
			return fail(ctx.Err())
		}
	}

	stage = StageCombining
	stageStart = time.Now()
	categories, best := o.combiner.Combine(ruleResults, outcome, req.Category)
	timing.Combine = time.Since(stageStart)
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(timing.Combine.Seconds())
	timing.Total = time.Since(start)

	rec := &CombinedRecommendation{
		CellID:           cellID,
		Mode:             req.Mode,
		ContextualStatus: status,
		Categories:       categories,
		Best:             best,
		ModelUsed:        modelUsed,
		TotalBusinesses:  vec.TotalBusinesses,
		Timing:           timing,
		GeneratedAt:      time.Now().UTC(),
	}
	if outcome != nil {
		cat := req.Category
		if cat == "" {
			cat = best.Category
		}
		if cr, ok := outcome.Results[cat]; ok {
			rec.KeyFactors = cr.KeyFactors
			rec.Risks = cr.Risks
		}
	}

	outcomeLabel := "ok"
	if rec.RuleOnly() && req.Mode == ModeFull {
		outcomeLabel = "degraded"
	}
	metrics.PipelineRuns.WithLabelValues(string(req.Mode), outcomeLabel).Inc()
	log.Info().
		Str("best_category", best.Category).
		Float64("best_score", best.Score).
		Str("contextual_status", string(status)).
		Dur("total", timing.Total).
		Msg("recommendation complete")
	return &DebugResult{
		Recommendation: rec,
		Vector:         vec,
		RuleResults:    ruleResults,
		Contextual:     outcome,
	}, nil
}

// runContextual executes the contextual stage under its own timeout.
// Any failure, including the stage timeout, degrades to rule-only.
func (o *Orchestrator) runContextual(ctx context.Context, vec *BusinessEnvironmentVector, log zerolog.Logger) (*ContextualOutcome, ContextualStatus, string) {
	if o.contextual == nil {
		return nil, ContextualFailed, ""
	}
	sctx, cancel := context.WithTimeout(ctx, o.cfg.ContextualTimeout)
	defer cancel()
	sctx, span := telemetry.StartStage(sctx, string(StageContextual))
	defer span.End()

	outcome, _, err := o.contextual.Evaluate(sctx, vec, o.engine.Categories())
	if err != nil {
		log.Warn().Err(err).Msg("contextual evaluation failed, degrading to rule-only")
		return nil, ContextualFailed, ""
	}
	return outcome, ContextualSucceeded, outcome.ModelUsed
}

func (o *Orchestrator) validate(req Request) error {
	if req.Latitude < -90 || req.Latitude > 90 {
		return &ValidationError{Field: "latitude", Reason: fmt.Sprintf("%v is outside [-90, 90]", req.Latitude)}
	}
	if req.Longitude < -180 || req.Longitude > 180 {
		return &ValidationError{Field: "longitude", Reason: fmt.Sprintf("%v is outside [-180, 180]", req.Longitude)}
	}
	if req.RadiusMeters < MinRadiusMeters || req.RadiusMeters > MaxRadiusMeters {
		return &ValidationError{Field: "radius", Reason: fmt.Sprintf("%d is outside [%d, %d]", req.RadiusMeters, MinRadiusMeters, MaxRadiusMeters)}
	}
	if req.Mode != ModeFast && req.Mode != ModeFull {
		return &ValidationError{Field: "mode", Reason: fmt.Sprintf("%q is not a recognized mode", req.Mode)}
	}
	if req.Category != "" && !o.engine.HasCategory(req.Category) {
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("%q has no rule table", req.Category)}
	}
	return nil
}

// BatchItem pairs one request's result with its error; exactly one of
// the two is set.
type BatchItem struct {
	Index          int                     `json:"index"`
	Recommendation *CombinedRecommendation `json:"recommendation,omitempty"`
	Err            error                   `json:"-"`
}

// RecommendBatch evaluates every request, isolating failures per item
// and preserving input order in the result slice. Concurrency is
// capped by the configured batch limit.
func (o *Orchestrator) RecommendBatch(ctx context.Context, reqs []Request) []BatchItem {
	items := make([]BatchItem, len(reqs))
	sem := semaphore.NewWeighted(o.cfg.BatchConcurrency)
	done := make(chan int, len(reqs))

	for i := range reqs {
		i := i
		go func() {
			defer func() { done <- i }()
			items[i].Index = i
			if err := sem.Acquire(ctx, 1); err != nil {
				items[i].Err = err
				return
			}
			defer sem.Release(1)
			rec, err := o.Recommend(ctx, reqs[i])
			items[i].Recommendation, items[i].Err = rec, err
			if err != nil {
				metrics.BatchItems.WithLabelValues("error").Inc()
			} else {
				metrics.BatchItems.WithLabelValues("ok").Inc()
			}
		}()
	}
	for range reqs {
		<-done
	}
	return items
}
