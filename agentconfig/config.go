package agentconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AgentClass names the kind of agent a config describes.
type AgentClass string

// Supported agent classes. "Agent" is an alias of LlmAgent.
const (
	ClassLlmAgent        AgentClass = "LlmAgent"
	ClassAgent           AgentClass = "Agent"
	ClassSequentialAgent AgentClass = "SequentialAgent"
	ClassParallelAgent   AgentClass = "ParallelAgent"
	ClassLoopAgent       AgentClass = "LoopAgent"
)

// IsLLM reports whether the class denotes a model-driven agent.
func (c AgentClass) IsLLM() bool {
	return c == "" || c == ClassLlmAgent || c == ClassAgent
}

// AgentConfig is the decoded form of one agent YAML file.
type AgentConfig struct {
	AgentClass  AgentClass `yaml:"agent_class"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`

	Model                    string                 `yaml:"model"`
	Instruction              string                 `yaml:"instruction"`
	GlobalInstruction        string                 `yaml:"global_instruction"`
	OutputKey                string                 `yaml:"output_key"`
	IncludeContents          string                 `yaml:"include_contents"`
	DisallowTransferToParent bool                   `yaml:"disallow_transfer_to_parent"`
	DisallowTransferToPeers  bool                   `yaml:"disallow_transfer_to_peers"`
	GenerateContentConfig    *GenerateContentConfig `yaml:"generate_content_config"`
	Tools                    []ToolRef              `yaml:"tools"`

	MaxIterations *int `yaml:"max_iterations"`

	SubAgents []SubAgentRef `yaml:"sub_agents"`

	path string
}

// GenerateContentConfig carries sampling overrides for LlmAgents.
type GenerateContentConfig struct {
	Temperature     *float64 `yaml:"temperature"`
	MaxOutputTokens *int64   `yaml:"max_output_tokens"`
}

// ToolRef names a tool from the tool registry.
type ToolRef struct {
	Name string `yaml:"name"`
}

// SubAgentRef points to a sub-agent: a config file or a registered agent.
type SubAgentRef struct {
	ConfigPath string `yaml:"config_path"`
	Code       string `yaml:"code"`
}

// Class returns the agent class with the LlmAgent default applied.
func (c *AgentConfig) Class() AgentClass {
	if c.AgentClass == "" {
		return ClassLlmAgent
	}
	return c.AgentClass
}

// Path returns the absolute path the config was loaded from, if any.
func (c *AgentConfig) Path() string { return c.path }

// ResolvePath resolves a sub-agent config path relative to this config's directory.
func (c *AgentConfig) ResolvePath(rel string) string {
	if filepath.IsAbs(rel) || c.path == "" {
		return filepath.Clean(rel)
	}
	return filepath.Join(filepath.Dir(c.path), rel)
}

// LoadConfig reads and strictly decodes an agent config file. Unknown keys
// are rejected. The result is not validated; call Validate.
func LoadConfig(path string) (*AgentConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, &ConfigError{Path: abs, Err: err}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, &ConfigError{Path: abs, Err: err}
	}

	cfg.path = abs

	return cfg, nil
}

// Parse strictly decodes config YAML that is not bound to a file. Relative
// sub-agent paths of the result resolve against the working directory. Input
// with more than one YAML document is rejected.
func Parse(data []byte) (*AgentConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg AgentConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty config")
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		return nil, errors.New("config must contain a single YAML document")
	}

	return &cfg, nil
}
