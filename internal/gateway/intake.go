package gateway

import (
	"bytes"
	"encoding/json"
	"strings"
)

const promptRequired = "prompt is required and must be a non-empty string"

// Intake validates the raw prompt field of a request body and returns the
// trimmed prompt.
func Intake(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", invalidRequest(promptRequired)
	}

	var prompt string
	if err := json.Unmarshal(raw, &prompt); err != nil {
		return "", invalidRequest(promptRequired)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", invalidRequest(promptRequired)
	}
	return prompt, nil
}
