package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/easeaico/careertrack-agent/internal/memory"
)

type validator interface {
	Validate() error
}

// decodeStrict parses a collaborator reply into out. Unknown fields,
// trailing data and failed validation are schema violations; an empty reply
// means the collaborator is unavailable.
func decodeStrict(text string, out validator) error {
	text = stripFence(strings.TrimSpace(text))
	if text == "" {
		return fmt.Errorf("%w: empty response", memory.ErrCollaboratorUnavailable)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", memory.ErrSchemaViolation, err)
	}
	if dec.More() {
		return memory.SchemaErrorf("trailing data after JSON object")
	}

	return out.Validate()
}

// stripFence removes a surrounding ```json fence some models add even in JSON mode.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
