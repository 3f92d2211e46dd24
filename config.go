package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"tagkeep/console"
	"tagkeep/coordinator"
	"tagkeep/httpapi"
	"tagkeep/indicator"
	"tagkeep/label"
	"tagkeep/mqtt"
	"tagkeep/reader"
	"tagkeep/store"
)

// Config is the main configuration structure for tagkeep.
type Config struct {
	// General settings
	ClientID string `yaml:"client_id"`

	// Card reader configuration
	Reader reader.Config `yaml:"reader"`

	// Registry flash region
	Flash store.Config `yaml:"flash"`

	// Front-ends
	HTTP    httpapi.Config `yaml:"http"`
	Console console.Config `yaml:"console"`

	// MQTT connection settings
	MQTT mqtt.Config `yaml:"mqtt"`

	// Indicator configuration
	Indicator indicator.Config `yaml:"indicator"`

	// Label printer (empty device = disabled)
	Label label.Config `yaml:"label"`

	// Acquisition timing
	Acquisition coordinator.Config `yaml:"acquisition"`
}

// defaultConfig returns the settings used for anything the file leaves out.
// Acquisition timings are set here rather than in applyDefaults so that an
// explicit zero reread_guard disables the guard.
func defaultConfig() Config {
	return Config{
		Acquisition: coordinator.DefaultConfig(),
	}
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := defaultConfig()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Indicator.Hold == 0 {
		c.Indicator.Hold = indicator.DefaultHold
	}
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("client_id missing in config file")
	}
	a := c.Acquisition
	if a.Timeout <= 0 {
		return fmt.Errorf("acquisition timeout must be positive, got %v", a.Timeout)
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("acquisition poll_interval must be positive, got %v", a.PollInterval)
	}
	if a.Timeout < a.PollInterval {
		return fmt.Errorf("acquisition timeout %v is shorter than poll_interval %v", a.Timeout, a.PollInterval)
	}
	if a.RereadGuard < 0 {
		return fmt.Errorf("acquisition reread_guard must not be negative, got %v", a.RereadGuard)
	}
	if c.Flash.Offset < 0 {
		return fmt.Errorf("flash offset must not be negative, got %d", c.Flash.Offset)
	}
	if (c.Flash.Type == "file" || c.Flash.Type == "mtd") && c.Flash.Path == "" {
		return fmt.Errorf("flash type %q needs a path", c.Flash.Type)
	}
	return nil
}
