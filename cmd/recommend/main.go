package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/abdullahx404/startsmart/internal/config"
	"github.com/abdullahx404/startsmart/internal/logging"
	"github.com/abdullahx404/startsmart/internal/places"
	"github.com/abdullahx404/startsmart/internal/suitability"
)

// recommend runs a single suitability evaluation from the command line
// and prints either a markdown report or the raw JSON result.
func main() {
	lat := flag.Float64("lat", 0, "latitude of the candidate location")
	lon := flag.Float64("lon", 0, "longitude of the candidate location")
	radius := flag.Int("radius", 0, "search radius in meters (default 500)")
	category := flag.String("category", "", "requested business category (optional)")
	mode := flag.String("mode", "full", "pipeline mode: fast or full")
	asJSON := flag.Bool("json", false, "print raw JSON instead of markdown")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: "warn", Format: "console"})

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		os.Exit(1)
	}

	req := suitability.Request{
		Latitude:     *lat,
		Longitude:    *lon,
		RadiusMeters: *radius,
		Category:     *category,
		Mode:         suitability.Mode(*mode),
	}
	d, err := pipeline.Debug(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recommendation failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(d.Recommendation)
		return
	}
	req.RadiusMeters = d.Vector.RadiusMeters
	fmt.Print(suitability.BuildMarkdownReport(req, d.Vector, d.Recommendation))
}

func buildPipeline(cfg *config.Config) (*suitability.Orchestrator, error) {
	tables, err := cfg.RuleTables()
	if err != nil {
		return nil, err
	}
	engine, err := suitability.NewRuleEngine(tables...)
	if err != nil {
		return nil, err
	}
	combiner, err := suitability.NewCombiner(cfg.Ensemble)
	if err != nil {
		return nil, err
	}
	builder := suitability.NewVectorBuilder(places.NewClient(places.Config{
		BaseURL:           cfg.Places.BaseURL,
		APIKey:            cfg.Places.APIKey,
		Timeout:           cfg.Places.Timeout,
		MaxRetries:        uint64(cfg.Places.MaxRetries),
		RequestsPerSecond: cfg.Places.RequestsPerSecond,
	}))

	var contextual *suitability.ContextualEvaluator
	if cfg.LLM.Enabled {
		if gen, err := suitability.NewAnthropicGeneratorFromEnv(cfg.LLM.MaxTokens); err == nil {
			contextual = suitability.NewContextualEvaluator(suitability.NewModelChain(gen, cfg.LLM.PrimaryModel, cfg.LLM.FallbackModel))
		}
	}
	return suitability.NewOrchestrator(builder, engine, contextual, combiner, suitability.PipelineConfig{
		RequestTimeout:    cfg.Pipeline.RequestTimeout,
		ContextualTimeout: cfg.Pipeline.ContextualTimeout,
		BatchConcurrency:  cfg.Pipeline.BatchConcurrency,
	}), nil
}
