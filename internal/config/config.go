package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the YAML config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// DefaultProfilerPrompt is the instruction sent ahead of the post images.
const DefaultProfilerPrompt = "Assume I am a business. I want to gain detailed insights about this potential customer (Instagram user) based on their latest post images and corresponding captions. Please examine these post images and captions and return relevant insights about this customer."

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	LLM      LLMConfig      `koanf:"llm"`
	Scraper  ScraperConfig  `koanf:"scraper"`
	Images   ImagesConfig   `koanf:"images"`
	Output   OutputConfig   `koanf:"output"`
	Profiler ProfilerConfig `koanf:"profiler"`
	Refine   RefineConfig   `koanf:"refine"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Host               string        `koanf:"host"`
	Port               int           `koanf:"port" validate:"min=1,max=65535"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
	IPAllowlistEnabled bool          `koanf:"ip_allowlist_enabled"`
	AllowedIPs         []string      `koanf:"allowed_ips" validate:"required_if=IPAllowlistEnabled true,dive,ip"`
	RateLimitRequests  int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow    time.Duration `koanf:"rate_limit_window"`
}

type LLMConfig struct {
	Backend         string  `koanf:"backend" validate:"oneof=gemini claude"`
	GeminiAPIKey    string  `koanf:"gemini_api_key" validate:"required_if=Backend gemini"`
	GeminiModel     string  `koanf:"gemini_model" validate:"required"`
	ClaudeAPIKey    string  `koanf:"claude_api_key" validate:"required_if=Backend claude"`
	ClaudeModel     string  `koanf:"claude_model" validate:"required"`
	Temperature     float32 `koanf:"temperature" validate:"min=0,max=2"`
	TopP            float32 `koanf:"top_p" validate:"min=0,max=1"`
	MaxOutputTokens int     `koanf:"max_output_tokens" validate:"min=1"`
}

type ScraperConfig struct {
	BaseURL      string `koanf:"base_url" validate:"required,url"`
	Token        string `koanf:"token"`
	ActorID      string `koanf:"actor_id" validate:"required"`
	ResultsLimit int    `koanf:"results_limit" validate:"min=1"`
}

type ImagesConfig struct {
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxPosts int           `koanf:"max_posts" validate:"min=1"`
}

type OutputConfig struct {
	Dir  string `koanf:"dir" validate:"required"`
	Save bool   `koanf:"save"`
}

type ProfilerConfig struct {
	Prompt       string `koanf:"prompt" validate:"required"`
	TestDataPath string `koanf:"test_data_path"`
}

type RefineConfig struct {
	// SampleFeedback substitutes two canned feedback entries when a rewrite
	// request carries none. Meant for demos and manual testing.
	SampleFeedback bool `koanf:"sample_feedback"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Default returns the built-in configuration before any file or environment
// overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "",
			Port:               8080,
			CORSAllowedOrigins: []string{"*"},
			IPAllowlistEnabled: false,
			AllowedIPs:         []string{},
			RateLimitRequests:  0,
			RateLimitWindow:    time.Minute,
		},
		LLM: LLMConfig{
			Backend:         "gemini",
			GeminiModel:     "gemini-2.0-flash",
			ClaudeModel:     "claude-sonnet-4-5",
			Temperature:     0.7,
			TopP:            0.95,
			MaxOutputTokens: 2048,
		},
		Scraper: ScraperConfig{
			BaseURL:      "https://api.apify.com",
			ActorID:      "shu8hvrXbJbY3Eb9W",
			ResultsLimit: 5,
		},
		Images: ImagesConfig{
			Timeout:  10 * time.Second,
			MaxPosts: 5,
		},
		Output: OutputConfig{
			Dir:  "outputs",
			Save: true,
		},
		Profiler: ProfilerConfig{
			Prompt:       DefaultProfilerPrompt,
			TestDataPath: "ig_test_data.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the Config from defaults, an optional YAML file, a .env file
// and the environment, in increasing priority.
func Load() (*Config, error) {
	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"server_host":            "server.host",
	"port":                   "server.port",
	"cors_allowed_origins":   "server.cors_allowed_origins",
	"ip_allowlist_enabled":   "server.ip_allowlist_enabled",
	"allowed_ips":            "server.allowed_ips",
	"rate_limit_requests":    "server.rate_limit_requests",
	"rate_limit_window":      "server.rate_limit_window",
	"llm_backend":            "llm.backend",
	"gemini_api_key":         "llm.gemini_api_key",
	"gemini_model":           "llm.gemini_model",
	"claude_api_key":         "llm.claude_api_key",
	"claude_model":           "llm.claude_model",
	"llm_temperature":        "llm.temperature",
	"llm_top_p":              "llm.top_p",
	"llm_max_output_tokens":  "llm.max_output_tokens",
	"apify_base_url":         "scraper.base_url",
	"apify_token":            "scraper.token",
	"apify_api_token":        "scraper.token",
	"apify_actor_id":         "scraper.actor_id",
	"apify_results_limit":    "scraper.results_limit",
	"image_timeout":          "images.timeout",
	"max_posts":              "images.max_posts",
	"output_dir":             "output.dir",
	"save_outputs":           "output.save",
	"profiler_prompt":        "profiler.prompt",
	"test_data_path":         "profiler.test_data_path",
	"refine_sample_feedback": "refine.sample_feedback",
	"log_level":              "log.level",
	"log_format":             "log.format",
}

// envTransformFunc maps known environment variables to config paths and
// drops everything else.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

var sliceConfigPaths = []string{
	"server.cors_allowed_origins",
	"server.allowed_ips",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := make([]string, 0)
		for _, p := range strings.Split(strVal, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
