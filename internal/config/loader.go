package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load loads the configuration from file
func (l *Loader) Load() (*Config, error) {
	// Pick up a local .env before reading env overrides. Missing
	// files are fine.
	_ = godotenv.Load()

	configPath := l.configPath
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".payperai", "payperai.json")
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		v := viper.New()
		v.SetConfigFile(configPath)
		v.SetConfigType("json")

		v.SetEnvPrefix("PAYPERAI")
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	// Secrets come from the environment, never the config file.
	applyEnvSecrets(cfg)

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".payperai")
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "payperai.log")
	}
	if cfg.Session.Dir == "" {
		cfg.Session.Dir = filepath.Join(cfg.DataDir, "sessions")
	}
	if cfg.Docs.DBPath == "" {
		cfg.Docs.DBPath = filepath.Join(cfg.DataDir, "docs.db")
	}
	if cfg.Payment.ConsumedDBPath == "" {
		cfg.Payment.ConsumedDBPath = filepath.Join(cfg.DataDir, "payments.db")
	}

	return cfg, nil
}

// applyEnvSecrets fills credentials from the environment when the
// config file carries none.
func applyEnvSecrets(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && !hasProfile(cfg, "openai") {
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       "openai-env",
			Provider: "openai",
			APIKey:   key,
			Priority: len(cfg.AI.Profiles),
		})
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && !hasProfile(cfg, "anthropic") {
		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       "anthropic-env",
			Provider: "anthropic",
			APIKey:   key,
			Priority: len(cfg.AI.Profiles),
		})
	}
	if payTo := os.Getenv("PAYPERAI_PAY_TO"); payTo != "" {
		cfg.Payment.PayTo = payTo
	}
	if facilitator := os.Getenv("PAYPERAI_FACILITATOR_URL"); facilitator != "" {
		cfg.Payment.FacilitatorURL = facilitator
	}
}

func hasProfile(cfg *Config, provider string) bool {
	for _, profile := range cfg.AI.Profiles {
		if profile.Provider == provider {
			return true
		}
	}
	return false
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("cannot determine config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("server", cfg.Server)
	v.Set("payment", cfg.Payment)
	v.Set("session", cfg.Session)
	v.Set("docs", cfg.Docs)
	v.Set("ai", cfg.AI)
	v.Set("wallet", cfg.Wallet)
	v.Set("logging", cfg.Logging)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".payperai", "payperai.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
