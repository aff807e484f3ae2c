// Package config loads the typed settings the pipeline engine needs from a
// YAML file with an environment-variable overlay, following the same
// per-concern struct split the rest of the corpus uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// WorkersConfig controls the worker pool's size, capacity, and retry
// behavior.
type WorkersConfig struct {
	MaxWorkers    int `yaml:"max_workers" validate:"min=1"`
	QueueSize     int `yaml:"queue_size" validate:"min=1"`
	TimeoutSecs   int `yaml:"timeout" validate:"min=1"`
	RetryAttempts int `yaml:"retry_attempts" validate:"min=0"`
	BatchSize     int `yaml:"batch_size" validate:"min=1"`
}

// DefaultWorkersConfig mirrors the defaults named in spec §6.
func DefaultWorkersConfig() WorkersConfig {
	return WorkersConfig{
		MaxWorkers:    4,
		QueueSize:     100,
		TimeoutSecs:   500,
		RetryAttempts: 3,
		BatchSize:     100,
	}
}

// OllamaConfig points at the local LLM runtime.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url" validate:"required"`
}

func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{BaseURL: "http://localhost:11434"}
}

// ModelsConfig carries the quantized-model substitution table.
type ModelsConfig struct {
	QuantizedModels map[string]string `yaml:"quantized_models"`
}

// ModelCapabilitiesConfig declares, per model, which task types it
// supports, plus the ordered fallback list the selector walks when no
// declared-capable model is available. Capabilities is a YAML sequence,
// not a mapping: a mapping's keys would have to be re-ordered through a Go
// map on the way to the selector, and map iteration order is randomized
// per process. A sequence preserves the declaration order spec §4.2
// requires the selector to try models in.
type ModelCapabilitiesConfig struct {
	Capabilities  []ModelCapabilityEntry `yaml:"capabilities"`
	FallbackOrder []string               `yaml:"fallback_order"`
}

type ModelCapabilityEntry struct {
	Name        string            `yaml:"name" validate:"required"`
	Tasks       []models.TaskType `yaml:"tasks"`
	MaxTokens   int               `yaml:"max_tokens"`
	Description string            `yaml:"description"`
}

// PathsConfig names filesystem locations the engine reads from.
type PathsConfig struct {
	PromptDir   string `yaml:"prompt_dir"`
	TaxonomyDir string `yaml:"taxonomy_dir"`
}

// TaxonomyConfig controls the category matcher's rejection cutoff.
type TaxonomyConfig struct {
	Cutoff float64 `yaml:"cutoff" validate:"min=0,max=1"`
}

func DefaultTaxonomyConfig() TaxonomyConfig {
	return TaxonomyConfig{Cutoff: 0.30}
}

// Config aggregates every concern-specific section into one typed tree,
// following the teacher's Defaults-struct-with-constructor convention.
type Config struct {
	Workers          WorkersConfig           `yaml:"workers"`
	Ollama           OllamaConfig            `yaml:"ollama"`
	Models           ModelsConfig            `yaml:"models"`
	ModelCapabilities ModelCapabilitiesConfig `yaml:"model_capabilities"`
	Paths            PathsConfig             `yaml:"paths"`
	Taxonomy         TaxonomyConfig          `yaml:"taxonomy"`
}

// Defaults returns a Config populated with every section's default, the
// way the teacher's DefaultQueueConfig does for one section at a time.
func Defaults() Config {
	return Config{
		Workers:  DefaultWorkersConfig(),
		Ollama:   DefaultOllamaConfig(),
		Taxonomy: DefaultTaxonomyConfig(),
	}
}

var validate = validator.New()

// Load reads a YAML config file at path, overlays the fixed set of
// environment variables that applyEnvOverlay reads, and validates the
// result.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewLoadError(path, err)
	}

	applyEnvOverlay(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, NewValidationError("config", fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	return &cfg, nil
}

// applyEnvOverlay lets a small set of hot-path settings be overridden
// without editing the file, matching the teacher's env-over-yaml layering
// in cmd/tarsy/main.go.
func applyEnvOverlay(cfg *Config) {
	if v := os.Getenv("PIPELINE_OLLAMA_BASE_URL"); v != "" {
		cfg.Ollama.BaseURL = v
	}
	if v := os.Getenv("PIPELINE_WORKERS_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.MaxWorkers = n
		}
	}
	if v := os.Getenv("PIPELINE_WORKERS_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.QueueSize = n
		}
	}
	if v := os.Getenv("PIPELINE_PROMPT_DIR"); v != "" {
		cfg.Paths.PromptDir = v
	}
}

// ModelTaskSet renders a capability entry's task list as a lookup set,
// used to populate models.ModelCapability.SupportedOn.
func (e ModelCapabilityEntry) ModelTaskSet() map[models.TaskType]bool {
	set := make(map[models.TaskType]bool, len(e.Tasks))
	for _, t := range e.Tasks {
		set[t] = true
	}
	return set
}

// String renders the fallback order for log lines.
func (c ModelCapabilitiesConfig) String() string {
	return strings.Join(c.FallbackOrder, " -> ")
}
