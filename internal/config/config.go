// Package config loads the ambientd configuration from a TOML file, applies
// environment overrides and validates the risk threshold ordering.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultListenAddr    = ":8714"
	DefaultDBPath        = "ambientd.db"
	DefaultLogLevel      = "info"
	DefaultLLMBaseURL    = "http://localhost:11434/v1"
	DefaultLowThreshold  = 0.88
	DefaultMedThreshold  = 0.92
	DefaultHighThreshold = 0.97
)

// Config is the resolved application configuration.
type Config struct {
	ListenAddr string
	AuthToken  string

	DBPath      string
	LexiconPath string

	RiskLow    float64
	RiskMedium float64
	RiskHigh   float64

	LLMEnabled bool
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	LogLevel string
	LogFile  string
}

type fileConfig struct {
	Server struct {
		Listen    string `toml:"listen"`
		AuthToken string `toml:"auth_token"`
	} `toml:"server"`
	Storage struct {
		Path string `toml:"path"`
	} `toml:"storage"`
	Lexicon struct {
		Path string `toml:"path"`
	} `toml:"lexicon"`
	Risk struct {
		Low    float64 `toml:"low"`
		Medium float64 `toml:"medium"`
		High   float64 `toml:"high"`
	} `toml:"risk"`
	LLM struct {
		Enabled bool   `toml:"enabled"`
		BaseURL string `toml:"base_url"`
		APIKey  string `toml:"api_key"`
		Model   string `toml:"model"`
	} `toml:"llm"`
	Logging struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
	} `toml:"logging"`
}

// Load reads configuration from path (optional), then environment, then
// defaults. An invalid risk ordering is rejected here rather than surfacing
// later as a policy bug.
func Load(path string) (*Config, error) {
	cfg := &Config{
		ListenAddr: DefaultListenAddr,
		DBPath:     DefaultDBPath,
		RiskLow:    DefaultLowThreshold,
		RiskMedium: DefaultMedThreshold,
		RiskHigh:   DefaultHighThreshold,
		LLMBaseURL: DefaultLLMBaseURL,
		LogLevel:   DefaultLogLevel,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		var fc fileConfig
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applyFile(cfg, &fc)
	}
	applyEnv(cfg)

	if err := validateRisk(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, fc *fileConfig) {
	if fc.Server.Listen != "" {
		cfg.ListenAddr = fc.Server.Listen
	}
	if fc.Server.AuthToken != "" {
		cfg.AuthToken = fc.Server.AuthToken
	}
	if fc.Storage.Path != "" {
		cfg.DBPath = fc.Storage.Path
	}
	if fc.Lexicon.Path != "" {
		cfg.LexiconPath = fc.Lexicon.Path
	}
	if fc.Risk.Low > 0 {
		cfg.RiskLow = fc.Risk.Low
	}
	if fc.Risk.Medium > 0 {
		cfg.RiskMedium = fc.Risk.Medium
	}
	if fc.Risk.High > 0 {
		cfg.RiskHigh = fc.Risk.High
	}
	cfg.LLMEnabled = fc.LLM.Enabled
	if fc.LLM.BaseURL != "" {
		cfg.LLMBaseURL = fc.LLM.BaseURL
	}
	if fc.LLM.APIKey != "" {
		cfg.LLMAPIKey = fc.LLM.APIKey
	}
	if fc.LLM.Model != "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if fc.Logging.Level != "" {
		cfg.LogLevel = fc.Logging.Level
	}
	if fc.Logging.File != "" {
		cfg.LogFile = fc.Logging.File
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AMBIENTD_LISTEN"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("AMBIENTD_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("AMBIENTD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("AMBIENTD_LEXICON_PATH"); v != "" {
		cfg.LexiconPath = v
	}
	if v := os.Getenv("AMBIENTD_LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("AMBIENTD_LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("AMBIENTD_LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("AMBIENTD_LLM_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.LLMEnabled = enabled
		}
	}
	if v := os.Getenv("AMBIENTD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func validateRisk(cfg *Config) error {
	if cfg.RiskLow <= 0 || cfg.RiskHigh > 1 {
		return fmt.Errorf("risk thresholds must lie in (0,1]")
	}
	if cfg.RiskLow > cfg.RiskMedium || cfg.RiskMedium > cfg.RiskHigh {
		return fmt.Errorf("risk thresholds must be monotonic: low=%.2f medium=%.2f high=%.2f",
			cfg.RiskLow, cfg.RiskMedium, cfg.RiskHigh)
	}
	return nil
}
