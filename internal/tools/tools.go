// Package tools builds the engine tools given to master and worker agents.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

func schema(s string) json.RawMessage {
	return json.RawMessage(s)
}

func decode(args json.RawMessage, v any) error {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func required(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", name)
	}
	return nil
}
