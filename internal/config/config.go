// Package config loads flashbott.json, fills defaults and applies the
// environment credential override.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"

	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/llm"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/paths"
)

// FileName is the config file looked up in the search path.
const FileName = "flashbott.json"

// APIKeyEnv overrides llm.apiKey when set.
const APIKeyEnv = "GEMINI_API_KEY"

// Config represents the flashbott configuration
type Config struct {
	Log     LogConfig     `json:"log"`
	HTTP    HTTPConfig    `json:"http"`
	LLM     LLMConfig     `json:"llm"`
	History HistoryConfig `json:"history"`

	// where the API key came from: "env", "file" or ""
	APIKeySource string `json:"-"`
}

type LogConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json,omitempty"`
}

type HTTPConfig struct {
	Listen        string  `json:"listen"`
	RatePerSecond float64 `json:"ratePerSecond"` // per client
	Burst         int     `json:"burst"`
}

type LLMConfig struct {
	APIKey         string      `json:"apiKey,omitempty"`
	BaseURL        string      `json:"baseUrl"`
	Candidates     []string    `json:"candidates"`
	TimeoutSeconds int         `json:"timeoutSeconds"`
	MaxTokens      int         `json:"maxTokens,omitempty"`
	Probe          RetryConfig `json:"probe"`
	Generation     RetryConfig `json:"generation"`
}

// RetryConfig is the file form of llm.RetryPolicy.
type RetryConfig struct {
	MaxRetries  int `json:"maxRetries"`
	BaseDelayMs int `json:"baseDelayMs"`
}

// Policy converts to the runtime retry policy.
func (r RetryConfig) Policy() llm.RetryPolicy {
	return llm.RetryPolicy{
		MaxRetries: r.MaxRetries,
		BaseDelay:  time.Duration(r.BaseDelayMs) * time.Millisecond,
	}
}

type HistoryConfig struct {
	Path          string `json:"path"`
	RetentionDays int    `json:"retentionDays"`
	PruneSchedule string `json:"pruneSchedule"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		HTTP: HTTPConfig{
			Listen:        ":3000",
			RatePerSecond: 1,
			Burst:         5,
		},
		LLM: LLMConfig{
			BaseURL:        llm.DefaultBaseURL,
			Candidates:     append([]string(nil), llm.DefaultCandidates...),
			TimeoutSeconds: 60,
			Probe:          RetryConfig{MaxRetries: llm.ProbePolicy.MaxRetries, BaseDelayMs: int(llm.ProbePolicy.BaseDelay / time.Millisecond)},
			Generation:     RetryConfig{MaxRetries: llm.GenerationPolicy.MaxRetries, BaseDelayMs: int(llm.GenerationPolicy.BaseDelay / time.Millisecond)},
		},
		History: HistoryConfig{
			Path:          filepath.Join(configDir(), "history.db"),
			RetentionDays: 30,
			PruneSchedule: "@daily",
		},
	}
}

func configDir() string {
	dir, err := paths.BaseDir()
	if err != nil {
		return "."
	}
	return dir
}

// SearchPaths lists where Load looks for the config file, in order.
func SearchPaths() []string {
	return []string{
		FileName,
		filepath.Join(configDir(), FileName),
	}
}

// DefaultPath is where `config init` writes a fresh file.
func DefaultPath() string {
	return filepath.Join(configDir(), FileName)
}

// Load reads the config at path, or the first file found in SearchPaths when
// path is empty. With no file at all the defaults are used. It returns the
// path actually loaded ("" for pure defaults).
func Load(path string) (*Config, string, error) {
	if path != "" {
		cfg, err := LoadFile(path)
		return cfg, path, err
	}
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			cfg, err := LoadFile(p)
			return cfg, p, err
		}
	}

	cfg := Default()
	cfg.applyEnv()
	return cfg, "", cfg.Validate()
}

// LoadFile reads one config file and fills unset fields from Default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes JSON config data and fills unset fields from Default.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	err := json.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: invalid JSON: %w", err)
	}
	if err := mergo.Merge(cfg, Default()); err != nil {
		return nil, fmt.Errorf("config: applying defaults: %w", err)
	}
	if cfg.LLM.APIKey != "" {
		cfg.APIKeySource = "file"
	}
	cfg.applyEnv()
	if cfg.History.Path, err = paths.ExpandTilde(cfg.History.Path); err != nil {
		return nil, fmt.Errorf("config: history.path: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if key := strings.TrimSpace(os.Getenv(APIKeyEnv)); key != "" {
		c.LLM.APIKey = key
		c.APIKeySource = "env"
	}
}

// HasCredential reports whether an upstream API key is configured.
func (c *Config) HasCredential() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

// Validate rejects values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.RatePerSecond < 0 {
		errs = append(errs, errors.New("http.ratePerSecond must not be negative"))
	}
	if c.HTTP.Burst < 0 {
		errs = append(errs, errors.New("http.burst must not be negative"))
	}
	for i, name := range c.LLM.Candidates {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("llm.candidates[%d] is empty", i))
		}
	}
	if c.LLM.Probe.MaxRetries < 1 || c.LLM.Generation.MaxRetries < 1 {
		errs = append(errs, errors.New("llm retry maxRetries must be at least 1"))
	}
	if c.History.RetentionDays < 1 {
		errs = append(errs, errors.New("history.retentionDays must be at least 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.LLM.Candidates = append([]string(nil), c.LLM.Candidates...)
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = "***"
	}
	return &out
}
