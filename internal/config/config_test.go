package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdullahx404/startsmart/internal/suitability"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port %d", cfg.Server.Port)
	}
	if cfg.Ensemble.Rule != 0.65 || cfg.Ensemble.Contextual != 0.35 {
		t.Fatalf("default ensemble weights %+v", cfg.Ensemble)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := defaultConfig()
	cfg.Ensemble = suitability.Weights{Rule: 0.7, Contextual: 0.7}
	var ce *suitability.ConfigurationError
	if err := cfg.Validate(); !errors.As(err, &ce) {
		t.Fatalf("got %v, want ConfigurationError", err)
	}
}

func TestValidateRejectsInvertedTimeouts(t *testing.T) {
	cfg := defaultConfig()
	cfg.Pipeline.ContextualTimeout = 2 * time.Minute
	cfg.Pipeline.RequestTimeout = time.Minute
	var ce *suitability.ConfigurationError
	if err := cfg.Validate(); !errors.As(err, &ce) {
		t.Fatalf("got %v, want ConfigurationError", err)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("port 0 accepted")
	}
}

func TestLoadAppliesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9000
places:
  base_url: http://places.internal:8000
  api_key: file-key
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("STARTSMART_PLACES_API_KEY", "env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("port %d, want file value 9000", cfg.Server.Port)
	}
	if cfg.Places.BaseURL != "http://places.internal:8000" {
		t.Fatalf("base url %q", cfg.Places.BaseURL)
	}
	if cfg.Places.APIKey != "env-key" {
		t.Fatalf("api key %q, want env override", cfg.Places.APIKey)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level %q", cfg.Logging.Level)
	}
	if cfg.Pipeline.RequestTimeout != 60*time.Second {
		t.Fatalf("request timeout %s, want untouched default", cfg.Pipeline.RequestTimeout)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: -4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	if _, err := Load(); err == nil {
		t.Fatal("negative port accepted")
	}
}

func TestEnvTransform(t *testing.T) {
	cases := map[string]string{
		"STARTSMART_SERVER_PORT":    "server.port",
		"STARTSMART_PLACES_API_KEY": "places.api_key",
		"STARTSMART_LOGGING_LEVEL":  "logging.level",
	}
	for in, want := range cases {
		if got := envTransform(in); got != want {
			t.Errorf("envTransform(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestRuleTablesDefaultsOnly(t *testing.T) {
	cfg := defaultConfig()
	tables, err := cfg.RuleTables()
	if err != nil {
		t.Fatalf("RuleTables: %v", err)
	}
	if len(tables) != len(suitability.DefaultRuleTables()) {
		t.Fatalf("got %d tables", len(tables))
	}
}

func TestRuleTablesMergeAndOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	yaml := `
tables:
  - category: gym
    baseline: 0.4
    rules:
      - id: gym_custom
        when:
          - field: gym_count
            op: eq
            value: 0
        delta: 0.3
        rationale: no competing gyms nearby
  - category: bookstore
    baseline: 0.5
    rules:
      - id: bookstore_university
        when:
          - field: university_count
            op: ge
            value: 1
        delta: 0.2
        rationale: student population supports book sales
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := defaultConfig()
	cfg.Rules.TablesPath = path

	tables, err := cfg.RuleTables()
	if err != nil {
		t.Fatalf("RuleTables: %v", err)
	}
	if len(tables) != len(suitability.DefaultRuleTables())+1 {
		t.Fatalf("got %d tables", len(tables))
	}

	byCategory := make(map[string]suitability.RuleTable, len(tables))
	for _, tb := range tables {
		byCategory[tb.Category] = tb
	}
	gym, ok := byCategory["gym"]
	if !ok {
		t.Fatal("gym table missing")
	}
	if gym.Baseline != 0.4 || len(gym.Rules) != 1 || gym.Rules[0].ID != "gym_custom" {
		t.Fatalf("gym table not overridden: %+v", gym)
	}
	if _, ok := byCategory["bookstore"]; !ok {
		t.Fatal("extra bookstore table missing")
	}

	if _, err := suitability.NewRuleEngine(tables...); err != nil {
		t.Fatalf("merged tables rejected by engine: %v", err)
	}
}
