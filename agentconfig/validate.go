package agentconfig

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	stateKeyRe   = regexp.MustCompile(`^((app|user|temp):)?[A-Za-z_][A-Za-z0-9_]*$`)
)

// Validate checks the field rules of a single config (sub-agent files are
// validated when they are built). All violations are reported together.
func (c *AgentConfig) Validate() error {
	var errs []error

	class := c.Class()

	switch class {
	case ClassLlmAgent, ClassAgent, ClassSequentialAgent, ClassParallelAgent, ClassLoopAgent:
	default:
		errs = append(errs, fieldErr("agent_class", "unsupported value %q", c.AgentClass))
	}

	switch {
	case c.Name == "":
		errs = append(errs, fieldErr("name", "is required"))
	case c.Name == "user":
		errs = append(errs, fieldErr("name", `"user" is reserved for end-user input`))
	case !identifierRe.MatchString(c.Name):
		errs = append(errs, fieldErr("name", "%q must be a valid identifier", c.Name))
	}

	if class.IsLLM() {
		errs = append(errs, c.validateLLM()...)
	} else {
		errs = append(errs, c.rejectLLMFields()...)
	}

	if c.MaxIterations != nil {
		if class != ClassLoopAgent {
			errs = append(errs, fieldErr("max_iterations", "only valid for %s", ClassLoopAgent))
		} else if *c.MaxIterations < 0 {
			errs = append(errs, fieldErr("max_iterations", "must be >= 0"))
		}
	}

	for i, ref := range c.SubAgents {
		field := fmt.Sprintf("sub_agents[%d]", i)
		switch {
		case ref.ConfigPath == "" && ref.Code == "":
			errs = append(errs, fieldErr(field, "one of config_path or code is required"))
		case ref.ConfigPath != "" && ref.Code != "":
			errs = append(errs, fieldErr(field, "config_path and code are mutually exclusive"))
		}
	}

	return errors.Join(errs...)
}

func (c *AgentConfig) validateLLM() []error {
	var errs []error

	switch c.IncludeContents {
	case "", "default", "none":
	default:
		errs = append(errs, fieldErr("include_contents", "must be default or none, got %q", c.IncludeContents))
	}

	if c.OutputKey != "" && !stateKeyRe.MatchString(c.OutputKey) {
		errs = append(errs, fieldErr("output_key", "%q is not a valid state key", c.OutputKey))
	}

	if g := c.GenerateContentConfig; g != nil {
		if g.Temperature != nil && (*g.Temperature < 0 || *g.Temperature > 2) {
			errs = append(errs, fieldErr("generate_content_config.temperature", "must be within [0, 2]"))
		}
		if g.MaxOutputTokens != nil && *g.MaxOutputTokens <= 0 {
			errs = append(errs, fieldErr("generate_content_config.max_output_tokens", "must be > 0"))
		}
	}

	seen := make(map[string]struct{}, len(c.Tools))
	for i, t := range c.Tools {
		field := fmt.Sprintf("tools[%d].name", i)
		if t.Name == "" {
			errs = append(errs, fieldErr(field, "is required"))
			continue
		}
		if _, dup := seen[t.Name]; dup {
			errs = append(errs, fieldErr(field, "duplicate tool %q", t.Name))
		}
		seen[t.Name] = struct{}{}
	}

	return errs
}

func (c *AgentConfig) rejectLLMFields() []error {
	var errs []error

	set := map[string]bool{
		"model":                       c.Model != "",
		"instruction":                 c.Instruction != "",
		"global_instruction":          c.GlobalInstruction != "",
		"output_key":                  c.OutputKey != "",
		"include_contents":            c.IncludeContents != "",
		"disallow_transfer_to_parent": c.DisallowTransferToParent,
		"disallow_transfer_to_peers":  c.DisallowTransferToPeers,
		"generate_content_config":     c.GenerateContentConfig != nil,
		"tools":                       len(c.Tools) > 0,
	}

	for _, field := range []string{
		"model", "instruction", "global_instruction", "output_key", "include_contents",
		"disallow_transfer_to_parent", "disallow_transfer_to_peers", "generate_content_config", "tools",
	} {
		if set[field] {
			errs = append(errs, fieldErr(field, "only valid for %s", ClassLlmAgent))
		}
	}

	return errs
}
