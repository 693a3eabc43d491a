package agentconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is matched by every field validation error.
	ErrInvalidConfig = errors.New("invalid agent config")
	// ErrConfigCycle is returned when sub-agent config paths form a cycle.
	ErrConfigCycle = errors.New("agent config cycle")
	// ErrDuplicateAgent is returned when two siblings share a name.
	ErrDuplicateAgent = errors.New("duplicate agent name")
	// ErrUnknownTool is returned for tool names missing from the registry.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrUnknownAgentRef is returned for code references missing from the agent registry.
	ErrUnknownAgentRef = errors.New("unknown agent reference")
	// ErrMissingModel is returned when an LlmAgent has no model and none can be inherited.
	ErrMissingModel = errors.New("no model configured")
)

// ConfigError ties an error to the config file it originated from.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("agentconfig %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FieldError describes a single invalid field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes every FieldError match ErrInvalidConfig.
func (e *FieldError) Is(target error) bool { return target == ErrInvalidConfig }

func fieldErr(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}
