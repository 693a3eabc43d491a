package util

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// ErrMissingStateKey is returned when a required {key} placeholder has no value in state.
var ErrMissingStateKey = errors.New("missing state key")

var (
	placeholderRe = regexp.MustCompile(`\{+[^{}]*\}+`)
	stateKeyRe    = regexp.MustCompile(`^((app|user|temp):)?[A-Za-z_][A-Za-z0-9_]*$`)
)

// RenderTemplate renders instruction text against session state. It supports
// Go text/template syntax ({{ .key }}) followed by single-brace {key}
// placeholders; {key?} renders empty when the key is absent. Brace groups
// that are not state keys (JSON snippets, doubled braces) are left untouched.
func RenderTemplate(text string, state map[string]any) (string, error) {
	if strings.Contains(text, "{{") {
		tmpl, err := template.New("instruction").Funcs(template.FuncMap{
			"default": func(defaultVal any, val any) any {
				if val == nil || val == "" {
					return defaultVal
				}
				return val
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"join": func(sep string, items []any) string {
				strItems := make([]string, len(items))
				for i, item := range items {
					strItems[i] = fmt.Sprintf("%v", item)
				}
				return strings.Join(strItems, sep)
			},
		}).Parse(text)
		if err != nil {
			return "", err
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, state); err != nil {
			return "", err
		}
		text = buf.String()
	}

	return InjectState(text, state)
}

// InjectState replaces {key} and {key?} placeholders with state values.
func InjectState(text string, state map[string]any) (string, error) {
	if !strings.Contains(text, "{") {
		return text, nil
	}

	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		if strings.HasPrefix(match, "{{") || strings.HasSuffix(match, "}}") {
			return match
		}
		name := strings.TrimSpace(match[1 : len(match)-1])
		optional := strings.HasSuffix(name, "?")
		name = strings.TrimSuffix(name, "?")
		if !stateKeyRe.MatchString(name) {
			return match
		}
		v, ok := state[name]
		if !ok {
			if !optional && firstErr == nil {
				firstErr = fmt.Errorf("%w: %s", ErrMissingStateKey, name)
			}
			return ""
		}
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
