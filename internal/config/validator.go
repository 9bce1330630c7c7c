package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates an AI provider name
func (v *Validator) ValidateProvider(provider string) error {
	validProviders := []string{"openai", "anthropic"}
	for _, valid := range validProviders {
		if provider == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid provider: %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
}

// ValidateSessionBackend validates the transcript store backend
func (v *Validator) ValidateSessionBackend(backend string) error {
	if backend == "" {
		return nil // Use default
	}

	validBackends := []string{"memory", "jsonl"}
	for _, valid := range validBackends {
		if backend == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid session backend: %s (must be one of: %s)", backend, strings.Join(validBackends, ", "))
}

// ValidatePrice validates a route price amount: octas as a decimal string.
func (v *Validator) ValidatePrice(amount string) error {
	if amount == "" {
		return fmt.Errorf("price amount cannot be empty")
	}
	for _, r := range amount {
		if r < '0' || r > '9' {
			return fmt.Errorf("invalid price amount %q: must be an integer octa count", amount)
		}
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate AI profiles (canonical source)
	for i, profile := range cfg.AI.Profiles {
		if profile.Provider != "" {
			if err := v.ValidateProvider(profile.Provider); err != nil {
				errors = append(errors, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
				continue
			}
			if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
				errors = append(errors, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
			}
		}
	}

	if cfg.AI.Temperature != 0 {
		if err := v.ValidateTemperature(cfg.AI.Temperature); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.AI.MaxTokens != 0 {
		if err := v.ValidateMaxTokens(cfg.AI.MaxTokens); err != nil {
			errors = append(errors, err)
		}
	}

	// Validate payment gate
	if cfg.Payment.Enabled {
		if cfg.Payment.PayTo == "" {
			errors = append(errors, fmt.Errorf("payment.pay_to is required when the payment gate is enabled"))
		}
		if cfg.Payment.FacilitatorURL == "" {
			errors = append(errors, fmt.Errorf("payment.facilitator_url is required when the payment gate is enabled"))
		}
		for route, price := range cfg.Payment.Prices {
			if err := v.ValidatePrice(price.Amount); err != nil {
				errors = append(errors, fmt.Errorf("payment price for %s: %w", route, err))
			}
		}
	}

	if err := v.ValidateSessionBackend(cfg.Session.Backend); err != nil {
		errors = append(errors, err)
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}

// Validate checks if the configuration is valid for serving
func (c *Config) Validate() error {
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	v := NewValidator()
	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %s: provider is required", profile.ID)
		}
		if err := v.ValidateProvider(profile.Provider); err != nil {
			return fmt.Errorf("AI profile %s: %w", profile.ID, err)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
	}

	if errs := v.ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}

	return nil
}
