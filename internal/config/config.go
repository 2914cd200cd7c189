package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/abdullahx404/startsmart/internal/suitability"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "STARTSMART_CONFIG"

// DefaultConfigPaths lists where a config file is searched, first hit wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/startsmart/config.yaml",
}

// envPrefix namespaces the environment overrides:
// STARTSMART_SERVER_PORT -> server.port, STARTSMART_PLACES_API_KEY -> places.api_key.
const envPrefix = "STARTSMART_"

// Config is the complete application configuration. Immutable after
// Load and safe for concurrent reads.
type Config struct {
	Server    ServerConfig        `koanf:"server"`
	Places    PlacesConfig        `koanf:"places"`
	LLM       LLMConfig           `koanf:"llm"`
	Pipeline  PipelineConfig      `koanf:"pipeline"`
	Ensemble  suitability.Weights `koanf:"ensemble"`
	Rules     RulesConfig         `koanf:"rules"`
	Store     StoreConfig         `koanf:"store"`
	Logging   LoggingConfig       `koanf:"logging"`
	Telemetry TelemetryConfig     `koanf:"telemetry"`
	Report    ReportConfig        `koanf:"report"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestsPerMin  int           `koanf:"requests_per_min" validate:"gte=1"`
}

type PlacesConfig struct {
	BaseURL           string        `koanf:"base_url" validate:"required,url"`
	APIKey            string        `koanf:"api_key"`
	Timeout           time.Duration `koanf:"timeout"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
}

type LLMConfig struct {
	Enabled       bool   `koanf:"enabled"`
	PrimaryModel  string `koanf:"primary_model"`
	FallbackModel string `koanf:"fallback_model"`
	MaxTokens     int64  `koanf:"max_tokens" validate:"gte=256,lte=16384"`
}

type PipelineConfig struct {
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	ContextualTimeout time.Duration `koanf:"contextual_timeout"`
	BatchConcurrency  int64         `koanf:"batch_concurrency" validate:"gte=1,lte=64"`
	BatchMaxItems     int           `koanf:"batch_max_items" validate:"gte=1,lte=500"`
}

// RulesConfig optionally points at a YAML file of extra rule tables
// that extend or override the built-in set.
type RulesConfig struct {
	TablesPath string `koanf:"tables_path"`
}

type StoreConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	ServiceName  string `koanf:"service_name"`
}

type ReportConfig struct {
	OutputDir  string        `koanf:"output_dir"`
	PDFTimeout time.Duration `koanf:"pdf_timeout"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestsPerMin:  120,
		},
		Places: PlacesConfig{
			BaseURL:           "http://localhost:9090",
			Timeout:           10 * time.Second,
			MaxRetries:        3,
			RequestsPerSecond: 10,
		},
		LLM: LLMConfig{
			Enabled:       true,
			PrimaryModel:  suitability.DefaultPrimaryModel,
			FallbackModel: suitability.DefaultFallbackModel,
			MaxTokens:     2048,
		},
		Pipeline: PipelineConfig{
			RequestTimeout:    60 * time.Second,
			ContextualTimeout: 30 * time.Second,
			BatchConcurrency:  4,
			BatchMaxItems:     50,
		},
		Ensemble: suitability.DefaultWeights(),
		Store: StoreConfig{
			Path: "startsmart.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "startsmart",
		},
		Report: ReportConfig{
			OutputDir:  "reports",
			PDFTimeout: 30 * time.Second,
		},
	}
}

// Load builds configuration in three layers: struct defaults, then an
// optional YAML file, then STARTSMART_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural constraints plus the domain invariants
// that must hold before the pipeline is allowed to serve.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return &suitability.ConfigurationError{Reason: err.Error()}
	}
	if err := c.Ensemble.Validate(); err != nil {
		return err
	}
	if c.Pipeline.ContextualTimeout >= c.Pipeline.RequestTimeout {
		return &suitability.ConfigurationError{
			Reason: fmt.Sprintf("contextual timeout %s must be shorter than request timeout %s",
				c.Pipeline.ContextualTimeout, c.Pipeline.RequestTimeout),
		}
	}
	return nil
}

// RuleTables returns the built-in tables merged with any configured
// extras. An extra table for a built-in category replaces it.
func (c *Config) RuleTables() ([]suitability.RuleTable, error) {
	tables := suitability.DefaultRuleTables()
	if c.Rules.TablesPath == "" {
		return tables, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(c.Rules.TablesPath), yaml.Parser()); err != nil {
		return nil, &suitability.ConfigurationError{Reason: fmt.Sprintf("load rule tables %s: %v", c.Rules.TablesPath, err)}
	}
	var extra struct {
		Tables []suitability.RuleTable `koanf:"tables"`
	}
	if err := k.Unmarshal("", &extra); err != nil {
		return nil, &suitability.ConfigurationError{Reason: fmt.Sprintf("parse rule tables %s: %v", c.Rules.TablesPath, err)}
	}

	byCategory := make(map[string]int, len(tables))
	for i, t := range tables {
		byCategory[t.Category] = i
	}
	for _, t := range extra.Tables {
		if i, ok := byCategory[t.Category]; ok {
			tables[i] = t
			continue
		}
		byCategory[t.Category] = len(tables)
		tables = append(tables, t)
	}
	return tables, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return key
	}
	return parts[0] + "." + parts[1]
}
