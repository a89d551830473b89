package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Concept   ConceptConfig   `yaml:"concept" mapstructure:"concept"`
	Ablation  AblationConfig  `yaml:"ablation" mapstructure:"ablation"`
	Stats     StatsConfig     `yaml:"stats" mapstructure:"stats"`
	Gen       GenConfig       `yaml:"gen" mapstructure:"gen"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-index database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ModelConfig holds settings for the OpenAI-compatible scoring backend.
type ModelConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Name        string  `yaml:"name" mapstructure:"name"`
	TopLogProbs int     `yaml:"top_logprobs" mapstructure:"top_logprobs"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RPS         float64 `yaml:"rps" mapstructure:"rps"`
}

// AnthropicConfig holds Anthropic API settings for the generation backend.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ConceptConfig selects the target concept and its candidate vocabulary.
type ConceptConfig struct {
	Target        string `yaml:"target" mapstructure:"target"`
	VocabFile     string `yaml:"vocab_file" mapstructure:"vocab_file"`
	ProbeQuestion string `yaml:"probe_question" mapstructure:"probe_question"`
	Instruction   string `yaml:"instruction" mapstructure:"instruction"`
}

// AblationConfig holds the default grid parameters.
type AblationConfig struct {
	Modes             []string `yaml:"modes" mapstructure:"modes"`
	Conditions        []string `yaml:"conditions" mapstructure:"conditions"`
	TurnCounts        []int    `yaml:"turn_counts" mapstructure:"turn_counts"`
	SampleLimit       int      `yaml:"sample_limit" mapstructure:"sample_limit"`
	MaxNewTokens      int      `yaml:"max_new_tokens" mapstructure:"max_new_tokens"`
	Temperature       float32  `yaml:"temperature" mapstructure:"temperature"`
	Seed              int64    `yaml:"seed" mapstructure:"seed"`
	Concurrency       int      `yaml:"concurrency" mapstructure:"concurrency"`
	ResultsDir        string   `yaml:"results_dir" mapstructure:"results_dir"`
	SaveConversations bool     `yaml:"save_conversations" mapstructure:"save_conversations"`
}

// StatsConfig configures the comparison engine.
type StatsConfig struct {
	Resamples  int     `yaml:"resamples" mapstructure:"resamples"`
	Confidence float64 `yaml:"confidence" mapstructure:"confidence"`
}

// GenConfig configures the teacher-conversation generator.
type GenConfig struct {
	Backend      string  `yaml:"backend" mapstructure:"backend"`
	Records      int     `yaml:"records" mapstructure:"records"`
	Turns        int     `yaml:"turns" mapstructure:"turns"`
	MaxNewTokens int     `yaml:"max_new_tokens" mapstructure:"max_new_tokens"`
	Temperature  float32 `yaml:"temperature" mapstructure:"temperature"`
	Seed         int64   `yaml:"seed" mapstructure:"seed"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ROLEPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.port", 8080)
	v.SetDefault("model.base_url", "http://localhost:8000/v1")
	v.SetDefault("model.name", "Qwen/Qwen2.5-7B-Instruct")
	v.SetDefault("model.top_logprobs", 20)
	v.SetDefault("model.timeout_secs", 120)
	v.SetDefault("model.rps", 0)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("concept.target", "owl")
	v.SetDefault("ablation.modes", []string{"both"})
	v.SetDefault("ablation.conditions", []string{"baseline", "system", "user"})
	v.SetDefault("ablation.turn_counts", []int{1, 2})
	v.SetDefault("ablation.max_new_tokens", 32)
	v.SetDefault("ablation.temperature", 1.0)
	v.SetDefault("ablation.seed", 42)
	v.SetDefault("ablation.concurrency", 5)
	v.SetDefault("ablation.results_dir", "results")
	v.SetDefault("stats.resamples", 2000)
	v.SetDefault("stats.confidence", 0.95)
	v.SetDefault("gen.backend", "openai")
	v.SetDefault("gen.records", 50)
	v.SetDefault("gen.turns", 4)
	v.SetDefault("gen.max_new_tokens", 64)
	v.SetDefault("gen.temperature", 1.0)
	v.SetDefault("gen.seed", 42)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
