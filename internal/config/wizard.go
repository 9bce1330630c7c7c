package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== PayperAI Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// API Keys
	fmt.Println("API Keys (at least one is required):")
	fmt.Println()

	// OpenAI API Key
	for {
		fmt.Print("OpenAI API Key (press Enter to skip): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if key == "" {
			break
		}

		if err := validator.ValidateAPIKey(key, "openai"); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       "openai",
			Provider: "openai",
			APIKey:   key,
			Priority: len(cfg.AI.Profiles),
		})
		break
	}

	// Anthropic API Key
	for {
		fmt.Print("Anthropic API Key (press Enter to skip): ")
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if key == "" {
			break
		}

		if err := validator.ValidateAPIKey(key, "anthropic"); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.AI.Profiles = append(cfg.AI.Profiles, AIProfile{
			ID:       "anthropic",
			Provider: "anthropic",
			APIKey:   key,
			Priority: len(cfg.AI.Profiles),
		})
		break
	}

	if len(cfg.AI.Profiles) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}

	fmt.Println()

	// Payment gate
	fmt.Println("Payment Gate:")
	fmt.Println()

	fmt.Print("Enable pay-per-call billing? (y/n) [y]: ")
	enable, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if enable == "" || strings.ToLower(enable) == "y" {
		cfg.Payment.Enabled = true

		for {
			fmt.Print("Merchant address (receives MOVE payments): ")
			payTo, err := w.readLine()
			if err != nil {
				return nil, err
			}

			if payTo == "" {
				fmt.Println("Error: Merchant address is required when billing is enabled")
				continue
			}

			cfg.Payment.PayTo = payTo
			break
		}

		for {
			fmt.Print("x402 facilitator URL: ")
			facilitator, err := w.readLine()
			if err != nil {
				return nil, err
			}

			if facilitator == "" {
				fmt.Println("Error: Facilitator URL is required when billing is enabled")
				continue
			}

			cfg.Payment.FacilitatorURL = facilitator
			break
		}

		fmt.Printf("Standard call price in octas [%s]: ", cfg.Payment.Prices["/api/ai-agent"].Amount)
		price, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if price != "" {
			if err := validator.ValidatePrice(price); err != nil {
				fmt.Printf("Warning: %v, keeping default\n", err)
			} else {
				cfg.Payment.Prices["/api/ai-agent"] = PriceConfig{
					Amount:      price,
					Description: "AI agent call",
				}
			}
		}
	} else {
		cfg.Payment.Enabled = false
	}

	fmt.Println()

	// Default Model
	fmt.Println("Default Model:")
	fmt.Printf("Model name [%s]: ", cfg.AI.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if model != "" {
		cfg.AI.Model = model
	}

	fmt.Println()

	// Log Level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
