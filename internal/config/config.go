package config

import (
	"encoding/json"
)

// Config represents the main PayperAI configuration
type Config struct {
	// Server holds gateway listen settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Payment holds x402 gate settings
	Payment PaymentConfig `json:"payment" mapstructure:"payment"`

	// Session holds transcript store settings
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Docs holds documentation search settings
	Docs DocsConfig `json:"docs" mapstructure:"docs"`

	// AI holds provider credentials and model settings
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Wallet holds client-side signing and chain settings
	Wallet WalletConfig `json:"wallet" mapstructure:"wallet"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host              string `json:"host" mapstructure:"host"`
	Port              int    `json:"port" mapstructure:"port"`
	RequestsPerMinute int    `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int    `json:"max_concurrent" mapstructure:"max_concurrent"`
}

// PaymentConfig holds x402 payment gate configuration
type PaymentConfig struct {
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
	PayTo          string `json:"pay_to" mapstructure:"pay_to"`
	FacilitatorURL string `json:"facilitator_url" mapstructure:"facilitator_url"`
	// ConsumedDBPath is the sqlite file backing replay rejection.
	// Empty keeps consumed proofs in memory only.
	ConsumedDBPath string `json:"consumed_db_path" mapstructure:"consumed_db_path"`
	// Prices maps route patterns to octa amounts.
	Prices map[string]PriceConfig `json:"prices" mapstructure:"prices"`
}

// PriceConfig prices one route
type PriceConfig struct {
	Amount      string `json:"amount" mapstructure:"amount"`
	Description string `json:"description" mapstructure:"description"`
}

// SessionConfig holds transcript store configuration
type SessionConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // memory, jsonl
	Dir     string `json:"dir" mapstructure:"dir"`
}

// DocsConfig holds documentation search configuration
type DocsConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	CorpusDir string `json:"corpus_dir" mapstructure:"corpus_dir"`
	DBPath    string `json:"db_path" mapstructure:"db_path"`
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles         []AIProfile `json:"profiles" mapstructure:"profiles"`
	Model            string      `json:"model" mapstructure:"model"`
	PremiumModel     string      `json:"premium_model" mapstructure:"premium_model"`
	Temperature      float64     `json:"temperature" mapstructure:"temperature"`
	MaxTokens        int         `json:"max_tokens" mapstructure:"max_tokens"`
	MaxContextTokens int         `json:"max_context_tokens" mapstructure:"max_context_tokens"`
	MaxRetries       int         `json:"max_retries" mapstructure:"max_retries"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// WalletConfig holds client-side wallet configuration
type WalletConfig struct {
	// SignerURL is the local signing service the chat client submits
	// transactions through. Keys never reach this process.
	SignerURL   string `json:"signer_url" mapstructure:"signer_url"`
	FullnodeURL string `json:"fullnode_url" mapstructure:"fullnode_url"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			RequestsPerMinute: 60,
			MaxConcurrent:     10,
		},
		Payment: PaymentConfig{
			Enabled: true,
			Prices: map[string]PriceConfig{
				"/api/ai-agent":         {Amount: "10000", Description: "AI agent call"},
				"/api/ai-agent/premium": {Amount: "50000", Description: "Premium AI agent call"},
			},
		},
		Session: SessionConfig{
			Backend: "jsonl",
		},
		Docs: DocsConfig{
			Enabled: true,
			BaseURL: "https://docs.movementnetwork.xyz",
		},
		AI: AIConfig{
			Profiles:         []AIProfile{},
			Model:            "gpt-4o-mini",
			PremiumModel:     "gpt-4o",
			Temperature:      0.7,
			MaxTokens:        4096,
			MaxContextTokens: 8192,
			MaxRetries:       3,
		},
		Wallet: WalletConfig{
			FullnodeURL: "https://testnet.bardock.movementnetwork.xyz/v1",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
