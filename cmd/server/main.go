package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdullahx404/startsmart/internal/config"
	"github.com/abdullahx404/startsmart/internal/httpapi"
	"github.com/abdullahx404/startsmart/internal/logging"
	"github.com/abdullahx404/startsmart/internal/places"
	"github.com/abdullahx404/startsmart/internal/store"
	"github.com/abdullahx404/startsmart/internal/suitability"
	"github.com/abdullahx404/startsmart/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		logging.Fatal().Err(err).Msg("telemetry setup failed")
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdownTracing(sctx)
	}()

	pipeline, err := buildPipeline(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("pipeline setup failed")
	}

	history, err := store.NewHistoryStore(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("history store setup failed")
	}
	defer history.Close()

	handler := httpapi.NewServer(pipeline, history, httpapi.Options{
		RequestsPerMin: cfg.Server.RequestsPerMin,
		BatchMaxItems:  cfg.Pipeline.BatchMaxItems,
	})
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("shutdown incomplete")
	}
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

	lookup := places.NewClient(places.Config{
		BaseURL:           cfg.Places.BaseURL,
		APIKey:            cfg.Places.APIKey,
		Timeout:           cfg.Places.Timeout,
		MaxRetries:        uint64(cfg.Places.MaxRetries),
		RequestsPerSecond: cfg.Places.RequestsPerSecond,
	})
	builder := suitability.NewVectorBuilder(lookup)

	var contextual *suitability.ContextualEvaluator
	if cfg.LLM.Enabled {
		gen, err := suitability.NewAnthropicGeneratorFromEnv(cfg.LLM.MaxTokens)
		if err != nil {
			logging.Warn().Err(err).Msg("contextual evaluator disabled, full mode will degrade to rule-only")
		} else {
			chain := suitability.NewModelChain(gen, cfg.LLM.PrimaryModel, cfg.LLM.FallbackModel)
			contextual = suitability.NewContextualEvaluator(chain)
		}
	}

	return suitability.NewOrchestrator(builder, engine, contextual, combiner, suitability.PipelineConfig{
		RequestTimeout:    cfg.Pipeline.RequestTimeout,
		ContextualTimeout: cfg.Pipeline.ContextualTimeout,
		BatchConcurrency:  cfg.Pipeline.BatchConcurrency,
	}), nil
}
