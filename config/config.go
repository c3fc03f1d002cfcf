package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/m4xw311/retainer/errors"
	"gopkg.in/yaml.v3"
)

// Toolset selects provider tools by name. Entries are doublestar globs, so
// "disk_*" or "**" work as well as exact names.
type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Timeouts struct {
	Completion time.Duration `yaml:"completion"`
	Tool       time.Duration `yaml:"tool"`
}

type Augmentation struct {
	ResourceTriggers []string     `yaml:"resource_triggers"`
	Queries          []QueryAlias `yaml:"queries"`
	PromptTrigger    string       `yaml:"prompt_trigger"`
	PromptName       string       `yaml:"prompt_name"`
}

// QueryAlias maps a phrase found in user input to the query used to search
// resources.
type QueryAlias struct {
	Phrase string `yaml:"phrase"`
	Query  string `yaml:"query"`
}

type Log struct {
	Debug bool `yaml:"debug"`
}

type Tracing struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

type Config struct {
	LLMClient     string       `yaml:"llm"`
	Model         string       `yaml:"model"`
	BaseURL       string       `yaml:"base_url"`
	APIKey        string       `yaml:"api_key"`
	Server        string       `yaml:"server"`
	Toolset       string       `yaml:"toolset"`
	Toolsets      []Toolset    `yaml:"toolsets"`
	ToolVerbosity string       `yaml:"tool_verbosity"`
	MaxToolRounds int          `yaml:"max_tool_rounds"`
	Timeouts      Timeouts     `yaml:"timeouts"`
	Augmentation  Augmentation `yaml:"augmentation"`
	Log           Log          `yaml:"log"`
	Tracing       Tracing      `yaml:"tracing"`
}

// Default returns the configuration used when no file overrides a key. It
// targets a local Ollama server and the sysinfo MCP server on port 8003.
func Default() *Config {
	return &Config{
		LLMClient:     "openai",
		Model:         "llama3.1:8b",
		BaseURL:       "http://localhost:11434/v1",
		Server:        "http://localhost:8003/mcp",
		Toolset:       "default",
		ToolVerbosity: "info",
		MaxToolRounds: 8,
		Timeouts: Timeouts{
			Completion: 2 * time.Minute,
			Tool:       30 * time.Second,
		},
		Augmentation: Augmentation{
			ResourceTriggers: []string{"tell me about", "what is"},
			Queries: []QueryAlias{
				{Phrase: "cpu usage", Query: "cpu"},
				{Phrase: "ram usage", Query: "ram"},
				{Phrase: "disk usage", Query: "disk"},
			},
			PromptTrigger: "friendly chat",
			PromptName:    "friendly_assistant_prompt",
		},
		Tracing: Tracing{
			ServiceName: "retainer",
			SampleRate:  1.0,
		},
	}
}

// LoadConfig loads configuration from the user's home directory and the current
// working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := Default()

	// Load user-level config first
	home, err := os.UserHomeDir()
	if err == nil {
		userConfigPath := filepath.Join(home, ".retainer", "config.yaml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := loadFromFile(userConfigPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	// Load project-level config, overriding user-level
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectConfigPath := filepath.Join(wd, ".retainer", "config.yaml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := loadFromFile(projectConfigPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	return cfg, nil
}

// LoadFile loads a single explicit config file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading config %s", path)
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal only overwrites keys present in the YAML, so a later file
	// replaces individual keys of an earlier one.
	return yaml.Unmarshal(data, cfg)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.LLMClient {
	case "openai", "anthropic", "bedrock", "gemini", "mock":
	default:
		return errors.New("unknown llm client %q", c.LLMClient)
	}
	switch c.ToolVerbosity {
	case "none", "info", "all":
	default:
		return errors.New("invalid tool verbosity %q, must be 'none', 'info' or 'all'", c.ToolVerbosity)
	}
	if c.Server == "" {
		return errors.New("no MCP server configured")
	}
	if c.MaxToolRounds < 0 {
		return errors.New("max_tool_rounds must not be negative, got %d", c.MaxToolRounds)
	}
	if c.Timeouts.Completion < 0 || c.Timeouts.Tool < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.New("tracing sample_rate %.2f is outside [0, 1]", c.Tracing.SampleRate)
	}
	return nil
}

// GetToolset finds a toolset by name. Returns the "default" toolset if the
// named one is not found or if an empty name is provided. Without a
// configured "default", every tool is allowed.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for _, ts := range c.Toolsets {
		if ts.Name == name {
			return &ts, nil
		}
	}
	if name == "default" {
		return &Toolset{Name: "default", Tools: []string{"**"}}, nil
	}
	if len(c.Toolsets) == 0 {
		return nil, fmt.Errorf("toolset '%s' requested but no toolsets are configured", name)
	}
	// Fallback to default if a specific toolset was requested but not found
	return c.GetToolset("default")
}
