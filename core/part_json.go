package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownPartType is returned when decoding a part with an unrecognized type tag.
var ErrUnknownPartType = errors.New("unknown part type")

type partEnvelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// MarshalJSON encodes parts with an explicit type tag so Content survives a
// round trip through persistent session stores.
func (c Content) MarshalJSON() ([]byte, error) {
	envs := make([]partEnvelope, 0, len(c.Parts))
	for _, p := range c.Parts {
		var typ string
		switch p.(type) {
		case TextPart:
			typ = "text"
		case DataPart:
			typ = "data"
		case FunctionCallPart:
			typ = "function_call"
		case FunctionResponsePart:
			typ = "function_response"
		default:
			return nil, fmt.Errorf("%w: %T", ErrUnknownPartType, p)
		}
		body, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		envs = append(envs, partEnvelope{Type: typ, Body: body})
	}
	return json.Marshal(struct {
		Role  string         `json:"role,omitempty"`
		Parts []partEnvelope `json:"parts"`
	}{Role: c.Role, Parts: envs})
}

// UnmarshalJSON decodes the tagged representation produced by MarshalJSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role  string         `json:"role,omitempty"`
		Parts []partEnvelope `json:"parts"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Role = raw.Role
	c.Parts = make([]Part, 0, len(raw.Parts))
	for _, env := range raw.Parts {
		var (
			p   Part
			err error
		)
		switch env.Type {
		case "text":
			var tp TextPart
			err = json.Unmarshal(env.Body, &tp)
			p = tp
		case "data":
			var dp DataPart
			err = json.Unmarshal(env.Body, &dp)
			p = dp
		case "function_call":
			var fc FunctionCallPart
			err = json.Unmarshal(env.Body, &fc)
			p = fc
		case "function_response":
			var fr FunctionResponsePart
			err = json.Unmarshal(env.Body, &fr)
			p = fr
		default:
			return fmt.Errorf("%w: %q", ErrUnknownPartType, env.Type)
		}
		if err != nil {
			return fmt.Errorf("decode %s part: %w", env.Type, err)
		}
		c.Parts = append(c.Parts, p)
	}
	return nil
}
