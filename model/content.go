package model

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/adkservice/core"
)

// FunctionResponseText renders a tool result as the text payload providers
// expect in tool result messages. Errors are reported as {"error": "..."}.
func FunctionResponseText(fr core.FunctionResponse) string {
	if fr.Error != "" {
		b, _ := json.Marshal(map[string]string{"error": fr.Error})
		return string(b)
	}
	switch v := fr.Response.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
