// Package config provides configuration file support for kmeansd. It
// handles loading, validation, and environment variable interpolation
// for kmeansd.yaml configuration files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full kmeansd configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Training  TrainingConfig  `mapstructure:"training"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Export    ExportConfig    `mapstructure:"export"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP/gRPC server settings.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	GRPCPort     int           `mapstructure:"grpc_port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// TrainingConfig holds the default K-Means|| training parameters used
// when a /train request or train subcommand omits them.
type TrainingConfig struct {
	K           int64  `mapstructure:"k"`
	MaxIters    int    `mapstructure:"max_iters"`
	Init        string `mapstructure:"init"` // none, plusplus, furthest
	Standardize bool   `mapstructure:"standardize"`
	Seed        int64  `mapstructure:"seed"`
	ChunkSize   int64  `mapstructure:"chunk_size"`
	Workers     int    `mapstructure:"workers"`
}

// EmbeddingConfig holds settings for the optional text-feature
// augmentation step during ingestion.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	BatchSize int    `mapstructure:"batch_size"`
}

// ExportConfig holds centroid-export settings.
type ExportConfig struct {
	Backend   string `mapstructure:"backend"` // pinecone or qdrant
	Index     string `mapstructure:"index"`
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	APIKeys []string `mapstructure:"api_keys"`
}

// TelemetryConfig holds observability settings.
type TelemetryConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Exporter   string  `mapstructure:"exporter"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
	Insecure   bool    `mapstructure:"insecure"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			GRPCPort:     9090,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Training: TrainingConfig{
			K:           8,
			MaxIters:    100,
			Init:        "plusplus",
			Standardize: true,
			Seed:        0,
			ChunkSize:   100_000,
			Workers:     0,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			BatchSize: 100,
		},
		Export: ExportConfig{
			Backend: "pinecone",
		},
		Auth: AuthConfig{
			APIKeys: []string{},
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "otlp",
				Endpoint:   "localhost:4317",
				SampleRate: 1.0,
				Insecure:   true,
			},
		},
	}
}

// Load reads configuration from the given viper instance and returns
// a validated Config. Environment variables in string values are
// interpolated using ${VAR} syntax.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	interpolateConfig(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads a specific config file and returns a validated Config.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return Load(v)
}

// Validate checks the configuration for errors and returns a
// descriptive error if any field is invalid.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: must be between 0 and 65535, got %d", cfg.Server.Port))
	}
	if cfg.Server.GRPCPort < 0 || cfg.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.grpc_port: must be between 0 and 65535, got %d", cfg.Server.GRPCPort))
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, "server.read_timeout: must be non-negative")
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout: must be non-negative")
	}

	if cfg.Training.K < 1 || cfg.Training.K > 10_000_000 {
		errs = append(errs, fmt.Sprintf("training.k: must be between 1 and 10000000, got %d", cfg.Training.K))
	}
	if cfg.Training.MaxIters < 1 || cfg.Training.MaxIters > 1_000_000 {
		errs = append(errs, fmt.Sprintf("training.max_iters: must be between 1 and 1000000, got %d", cfg.Training.MaxIters))
	}
	validInits := map[string]bool{"none": true, "plusplus": true, "furthest": true}
	if !validInits[cfg.Training.Init] {
		errs = append(errs, fmt.Sprintf("training.init: unsupported init %q (supported: none, plusplus, furthest)", cfg.Training.Init))
	}
	if cfg.Training.ChunkSize < 0 {
		errs = append(errs, "training.chunk_size: must be non-negative")
	}

	validProviders := map[string]bool{"openai": true, "": true}
	if !validProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Sprintf("embedding.provider: unsupported provider %q (supported: openai)", cfg.Embedding.Provider))
	}
	if cfg.Embedding.BatchSize < 0 {
		errs = append(errs, "embedding.batch_size: must be non-negative")
	}

	validBackends := map[string]bool{"pinecone": true, "qdrant": true, "": true}
	if !validBackends[cfg.Export.Backend] {
		errs = append(errs, fmt.Sprintf("export.backend: unsupported backend %q (supported: pinecone, qdrant)", cfg.Export.Backend))
	}

	validExporters := map[string]bool{"otlp": true, "stdout": true, "none": true, "": true}
	if !validExporters[cfg.Telemetry.Tracing.Exporter] {
		errs = append(errs, fmt.Sprintf("telemetry.tracing.exporter: unsupported exporter %q (supported: otlp, stdout, none)", cfg.Telemetry.Tracing.Exporter))
	}
	if cfg.Telemetry.Tracing.SampleRate < 0 || cfg.Telemetry.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("telemetry.tracing.sample_rate: must be between 0 and 1, got %f", cfg.Telemetry.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnv replaces ${VAR} and ${VAR:-default} patterns in a
// string with the corresponding environment variable values.
func InterpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		if defaultVal != "" {
			return defaultVal
		}
		return match
	})
}

// interpolateConfig applies environment variable interpolation to all
// string fields in the config.
func interpolateConfig(cfg *Config) {
	cfg.Server.Host = InterpolateEnv(cfg.Server.Host)
	cfg.Training.Init = InterpolateEnv(cfg.Training.Init)
	cfg.Embedding.Provider = InterpolateEnv(cfg.Embedding.Provider)
	cfg.Embedding.Model = InterpolateEnv(cfg.Embedding.Model)
	cfg.Export.Backend = InterpolateEnv(cfg.Export.Backend)
	cfg.Export.Index = InterpolateEnv(cfg.Export.Index)
	cfg.Export.Host = InterpolateEnv(cfg.Export.Host)
	cfg.Export.Namespace = InterpolateEnv(cfg.Export.Namespace)

	for i, key := range cfg.Auth.APIKeys {
		cfg.Auth.APIKeys[i] = InterpolateEnv(key)
	}

	cfg.Telemetry.Tracing.Exporter = InterpolateEnv(cfg.Telemetry.Tracing.Exporter)
	cfg.Telemetry.Tracing.Endpoint = InterpolateEnv(cfg.Telemetry.Tracing.Endpoint)
}

// GenerateTemplate returns a YAML template string with all available
// configuration options and their defaults, suitable for writing to
// a kmeansd.yaml file.
func GenerateTemplate() string {
	return `# kmeansd Configuration
# See: https://github.com/kmeansd/kmeansd

server:
  port: 8080
  grpc_port: 9090
  host: 0.0.0.0
  read_timeout: 30s
  write_timeout: 60s

training:
  k: 8
  max_iters: 100
  init: plusplus      # none, plusplus, or furthest
  standardize: true
  seed: 0
  chunk_size: 100000
  workers: 0          # 0 selects GOMAXPROCS

embedding:
  provider: openai
  model: text-embedding-3-small
  batch_size: 100

export:
  backend: pinecone    # pinecone or qdrant
  index: ""
  host: ""             # required for qdrant
  namespace: ""

auth:
  api_keys:
    # - ${KMEANSD_API_KEY}

telemetry:
  tracing:
    enabled: false
    exporter: otlp       # otlp, stdout, or none
    endpoint: localhost:4317
    sample_rate: 1.0     # 0.0 to 1.0
    insecure: true
`
}
