package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models formline.yml.
type Config struct {
	Defaults struct {
		PassingScore   float64 `yaml:"passing_score"`
		SequencePrefix string  `yaml:"sequence_prefix"`
	} `yaml:"defaults"`
	Presets map[string]OptionPreset `yaml:"presets"`
}

// OptionPreset is a reusable option list templates can reference through an
// item's optionsKey instead of inlining the options.
type OptionPreset struct {
	Options []PresetOption `yaml:"options"`
}

type PresetOption struct {
	Value string  `yaml:"value"`
	Label string  `yaml:"label"`
	Score float64 `yaml:"score"`
	Color string  `yaml:"color"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Defaults.PassingScore < 0 || c.Defaults.PassingScore > 100 {
		return fmt.Errorf("config.defaults.passing_score must be between 0 and 100")
	}
	if c.Defaults.SequencePrefix == "" {
		return fmt.Errorf("config.defaults.sequence_prefix is required")
	}
	for name, preset := range c.Presets {
		if name == "" {
			return fmt.Errorf("config.presets contains empty preset name")
		}
		if len(preset.Options) == 0 {
			return fmt.Errorf("preset %s has no options", name)
		}
		values := map[string]bool{}
		for _, opt := range preset.Options {
			if opt.Value == "" {
				return fmt.Errorf("preset %s has an option without value", name)
			}
			if values[opt.Value] {
				return fmt.Errorf("preset %s has duplicate option value %q", name, opt.Value)
			}
			values[opt.Value] = true
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "formline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Defaults.SequencePrefix == "" {
		cfg.Defaults.SequencePrefix = "INS"
	}
	if cfg.Defaults.PassingScore == 0 {
		cfg.Defaults.PassingScore = 70
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `defaults:
  passing_score: 70
  sequence_prefix: INS

presets:
  yes_no:
    options:
      - value: "Sí"
        label: "Sí"
        score: 1
        color: green
      - value: "No"
        label: "No"
        score: 0
        color: red

  condition:
    options:
      - value: Good
        label: Good
        score: 2
        color: green
      - value: Fair
        label: Fair
        score: 1
        color: yellow
      - value: Poor
        label: Poor
        score: 0
        color: red

  pass_fail:
    options:
      - value: Pass
        label: Pass
        score: 1
        color: green
      - value: Fail
        label: Fail
        score: 0
        color: red
`
